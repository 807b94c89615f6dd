package agent

import (
	"fmt"

	"github.com/aretw0/shelf/pkg/core"
)

// EventKind identifies what happened to the agent.
type EventKind string

const (
	EventConnect         EventKind = "connect"
	EventDisconnect      EventKind = "disconnect"
	EventConnectionError EventKind = "connection_error"
	EventStateUpdate     EventKind = "state-update"
)

// Event is emitted on Agent.Events.
type Event struct {
	Kind EventKind
	// Document is set for EventStateUpdate.
	Document core.Document
	// Err is set for EventConnectionError, and for EventDisconnect when the
	// connection was lost rather than closed on request.
	Err error
}

// String implements lifecycle.Event.
func (e Event) String() string {
	switch {
	case e.Kind == EventStateUpdate:
		return fmt.Sprintf("%s (%d items, %d folders)", e.Kind, len(e.Document.Items), len(e.Document.Folders))
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}
