package hub

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/gorilla/websocket"

	"github.com/aretw0/shelf/pkg/protocol"
)

const (
	DefaultIdleTimeout  = 90 * time.Second
	DefaultWriteTimeout = 10 * time.Second
	maxFrameBytes       = 8 << 20
)

// Transport serves the hub over websockets.
type Transport struct {
	hub          *Hub
	upgrader     websocket.Upgrader
	idleTimeout  time.Duration
	writeTimeout time.Duration
	logger       *slog.Logger
}

// TransportConfig tunes the websocket endpoint.
type TransportConfig struct {
	// IdleTimeout closes connections that send nothing (not even a ping)
	// for this long.
	IdleTimeout  time.Duration
	WriteTimeout time.Duration
	// AllowedOrigins restricts browser origins; empty allows any.
	AllowedOrigins []string
}

// NewTransport wraps h in a websocket handler.
func NewTransport(h *Hub, config TransportConfig) *Transport {
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}
	allowed := make(map[string]struct{}, len(config.AllowedOrigins))
	for _, o := range config.AllowedOrigins {
		allowed[o] = struct{}{}
	}
	return &Transport{
		hub: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				_, ok := allowed[r.Header.Get("Origin")]
				return ok
			},
		},
		idleTimeout:  config.IdleTimeout,
		writeTimeout: config.WriteTimeout,
		logger:       h.config.Logger,
	}
}

// ServeHTTP upgrades the request and runs the connection until either side
// closes it.
func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.logger.Error("failed to upgrade", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	session, err := t.hub.Connect(r.RemoteAddr)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	defer session.Close()

	// The request context ends when this handler returns; the writer keeps
	// draining until the outbox closes.
	lifecycle.Go(context.WithoutCancel(r.Context()), func(ctx context.Context) error {
		return t.writeLoop(conn, session)
	}, lifecycle.WithErrorHandler(func(err error) {
		t.logger.Error("connection writer failed", "session", session.ID(), "error", err)
		_ = conn.Close()
	}))

	t.readLoop(conn, session)
}

// readLoop decodes frames and hands them to the hub. A panic here is logged
// and ends only this connection.
func (t *Transport) readLoop(conn *websocket.Conn, session *Session) {
	defer func() {
		if recovered := recover(); recovered != nil {
			if t.logger.Enabled(context.Background(), slog.LevelDebug) {
				t.logger.Error("connection panic", "session", session.ID(), "error", recovered, "stack", string(debug.Stack()))
			} else {
				t.logger.Error("connection panic", "session", session.ID(), "error", recovered)
			}
		}
		_ = conn.Close()
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(t.idleTimeout))
		mt, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.logger.Debug("connection closed", "session", session.ID(), "error", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		msg, err := protocol.DecodeClient(frame)
		if err != nil {
			t.logger.Warn("ignoring frame", "session", session.ID(), "error", err)
			continue
		}
		if err := session.Handle(msg); err != nil {
			return
		}
	}
}

// writeLoop drains the session outbox. It exits when the hub drops the
// session (outbox closed) or a write fails.
func (t *Transport) writeLoop(conn *websocket.Conn, session *Session) error {
	defer conn.Close()
	for msg := range session.Outbox() {
		frame, err := protocol.EncodeServer(msg)
		if err != nil {
			return fmt.Errorf("failed to encode %T: %w", msg, err)
		}
		_ = conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			t.logger.Debug("write failed", "session", session.ID(), "error", err)
			return nil
		}
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return nil
}
