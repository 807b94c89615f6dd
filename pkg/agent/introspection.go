package agent

import "github.com/aretw0/introspection"

// Stats exposes the agent's connection state and counters.
type Stats struct {
	Status           string `json:"status"`
	URL              string `json:"url"`
	Connects         int64  `json:"connects"`
	Disconnects      int64  `json:"disconnects"`
	ConnectionErrors int64  `json:"connection_errors"`
	Reconnects       int64  `json:"reconnects"`
	Sent             int64  `json:"sent"`
	Received         int64  `json:"received"`
	Skipped          int64  `json:"skipped_echoes"`
	Deferred         int64  `json:"deferred"`
	Queued           int64  `json:"queued_offline"`
	DroppedEvents    int64  `json:"dropped_events"`
}

// State implements introspection.Introspectable.
func (a *Agent) State() any {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stats
}

// ComponentType implements introspection.Component.
func (a *Agent) ComponentType() string {
	return "agent"
}

var _ introspection.Introspectable = (*Agent)(nil)
var _ introspection.Component = (*Agent)(nil)
