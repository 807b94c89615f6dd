// Package protocol defines the events exchanged between shelf clients and the
// server.
//
// Every frame is a JSON object {"event": name, "data": payload}. Messages are
// closed sets per direction: a ClientMessage is one of GetInitialState,
// UpdateState or Ping; a ServerMessage is one of StateUpdate, Pong or Error.
// Adding an event means adding a type here and a case to the decoders, and
// the type switches in the hub and the agent.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/shelf/pkg/core"
)

// Event names on the wire.
const (
	EventGetInitialState = "get-initial-state"
	EventUpdateState     = "update-state"
	EventStateUpdate     = "state-update"
	EventPing            = "ping"
	EventPong            = "pong"
	EventError           = "error"
)

// ClientMessage is a message sent from a client to the server.
type ClientMessage interface {
	clientEvent() string
}

// ServerMessage is a message sent from the server to a client.
type ServerMessage interface {
	serverEvent() string
}

// GetInitialState asks the server for the current document.
type GetInitialState struct{}

// UpdateState carries a full replacement document. Payload is kept raw so the
// receiver can validate its shape before trusting it.
type UpdateState struct {
	Payload json.RawMessage
}

// Ping is a liveness probe.
type Ping struct{}

// StateUpdate carries the full current document.
type StateUpdate struct {
	Document core.Document
}

// Pong answers a Ping.
type Pong struct{}

// Error reports a rejected request back to its sender.
type Error struct {
	Message string `json:"message"`
}

func (GetInitialState) clientEvent() string { return EventGetInitialState }
func (UpdateState) clientEvent() string     { return EventUpdateState }
func (Ping) clientEvent() string            { return EventPing }

func (StateUpdate) serverEvent() string { return EventStateUpdate }
func (Pong) serverEvent() string        { return EventPong }
func (Error) serverEvent() string       { return EventError }

// NewUpdateState encodes a document into an UpdateState message.
func NewUpdateState(doc core.Document) UpdateState {
	return UpdateState{Payload: doc.Canonical()}
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// EncodeClient renders a client message as a wire frame.
func EncodeClient(msg ClientMessage) ([]byte, error) {
	env := envelope{Event: msg.clientEvent()}
	if m, ok := msg.(UpdateState); ok {
		env.Data = m.Payload
	}
	return json.Marshal(env)
}

// DecodeClient parses a wire frame sent by a client. UpdateState payloads are
// not validated here.
func DecodeClient(frame []byte) (ClientMessage, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	switch env.Event {
	case EventGetInitialState:
		return GetInitialState{}, nil
	case EventUpdateState:
		return UpdateState{Payload: env.Data}, nil
	case EventPing:
		return Ping{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownEvent, env.Event)
	}
}

// EncodeServer renders a server message as a wire frame.
func EncodeServer(msg ServerMessage) ([]byte, error) {
	env := envelope{Event: msg.serverEvent()}
	switch m := msg.(type) {
	case StateUpdate:
		env.Data = m.Document.Canonical()
	case Error:
		data, err := json.Marshal(m)
		if err != nil {
			return nil, err
		}
		env.Data = data
	case Pong:
	}
	return json.Marshal(env)
}

// DecodeServer parses a wire frame sent by the server.
func DecodeServer(frame []byte) (ServerMessage, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	switch env.Event {
	case EventStateUpdate:
		doc, err := core.DecodeDocument(env.Data)
		if err != nil {
			return nil, err
		}
		return StateUpdate{Document: doc}, nil
	case EventPong:
		return Pong{}, nil
	case EventError:
		var m Error
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return nil, fmt.Errorf("failed to decode error payload: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownEvent, env.Event)
	}
}
