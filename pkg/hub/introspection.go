package hub

import (
	"github.com/aretw0/introspection"
)

// Stats counts what the hub has done since it started.
type Stats struct {
	Sessions    int   `json:"sessions"`
	Accepted    int64 `json:"accepted"`
	Rejected    int64 `json:"rejected"`
	RateLimited int64 `json:"rate_limited"`
	Duplicates  int64 `json:"duplicates"`
	Deliveries  int64 `json:"deliveries"`
	SlowDrops   int64 `json:"slow_drops"`
}

// State implements introspection.Introspectable.
func (h *Hub) State() any {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stats
}

// ComponentType implements introspection.Component.
func (h *Hub) ComponentType() string {
	return "hub"
}

var _ introspection.Introspectable = (*Hub)(nil)
var _ introspection.Component = (*Hub)(nil)
