package hub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/introspection"
	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
)

// Health is the body of the liveness endpoint.
type Health struct {
	Status     string         `json:"status"`
	Uptime     string         `json:"uptime"`
	Components map[string]any `json:"components"`
}

// NewRouter mounts the websocket endpoint, the liveness probe and a
// read-only snapshot of the document. Extra components (the store) are
// reported by the liveness probe.
func NewRouter(h *Hub, transport *Transport, components ...introspection.Component) http.Handler {
	started := time.Now()
	logger := h.config.Logger

	r := mux.NewRouter()
	r.Use(func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			m := httpsnoop.CaptureMetrics(handler, w, req)
			logger.Debug("handled", "method", req.Method, "url", req.URL, "duration", m.Duration, "status", m.Code)
		})
	})

	r.Methods(http.MethodGet).Path("/ws").Handler(transport)

	r.Methods(http.MethodGet).Path("/healthz").HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body := Health{
			Status:     "ok",
			Uptime:     time.Since(started).Round(time.Second).String(),
			Components: map[string]any{h.ComponentType(): h.State()},
		}
		status := http.StatusOK
		select {
		case <-h.Done():
			body.Status = "stopped"
			status = http.StatusServiceUnavailable
		default:
		}
		for _, c := range components {
			if intro, ok := c.(introspection.Introspectable); ok {
				body.Components[c.ComponentType()] = intro.State()
			}
		}
		writeJSON(w, logger, status, body)
	})

	r.Methods(http.MethodGet).Path("/state").HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		doc, err := h.Document(req.Context())
		if err != nil {
			writeJSON(w, logger, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, logger, http.StatusOK, doc)
	})

	return r
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to write out", "error", err)
	}
}
