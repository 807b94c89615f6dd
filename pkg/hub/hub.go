// Package hub is the authoritative broadcast server.
//
// A single goroutine owns the shared document and every per-session record.
// Sessions feed it through one inbox, so validate -> apply -> broadcast ->
// persist runs to completion for one update before the next is looked at.
// The hub never merges: the last accepted update replaces the document.
package hub

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/shelf/pkg/core"
	"github.com/aretw0/shelf/pkg/protocol"
)

const (
	DefaultMinUpdateInterval = 100 * time.Millisecond
	DefaultSendBuffer        = 32
)

// Persister receives every accepted document. Save must not block.
type Persister interface {
	Save(doc core.Document)
}

// Config holds the hub configuration.
type Config struct {
	// MinUpdateInterval is the minimum spacing between two accepted updates
	// from the same session; faster updates are dropped silently.
	MinUpdateInterval time.Duration
	// SendBuffer bounds each session's outbound queue. A session that falls
	// this far behind is disconnected instead of stalling the others.
	SendBuffer int
	Persister  Persister
	Logger     *slog.Logger
	// Clock is used for rate limiting; nil means time.Now.
	Clock func() time.Time
}

type inbound struct {
	session *Session
	msg     protocol.ClientMessage
}

// Hub owns the shared document.
type Hub struct {
	config Config

	register   chan *Session
	unregister chan *Session
	inbox      chan inbound
	external   chan core.Document
	snapshots  chan chan core.Document
	done       chan struct{}

	// owned by the run loop
	doc      core.Document
	sessions map[*Session]*gate

	mu      sync.RWMutex
	stats   Stats
	nextID  int
	started bool
}

// New creates a hub serving doc.
func New(doc core.Document, config Config) *Hub {
	if config.MinUpdateInterval <= 0 {
		config.MinUpdateInterval = DefaultMinUpdateInterval
	}
	if config.SendBuffer <= 0 {
		config.SendBuffer = DefaultSendBuffer
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	return &Hub{
		config:     config,
		register:   make(chan *Session),
		unregister: make(chan *Session),
		inbox:      make(chan inbound),
		external:   make(chan core.Document),
		snapshots:  make(chan chan core.Document),
		done:       make(chan struct{}),
		doc:        doc.Clone(),
		sessions:   make(map[*Session]*gate),
	}
}

// Start runs the hub loop until ctx is cancelled.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return fmt.Errorf("hub already started")
	}
	h.started = true
	h.mu.Unlock()

	lifecycle.Go(ctx, h.run, lifecycle.WithErrorHandler(func(err error) {
		h.config.Logger.Error("hub loop failed", "error", err)
	}))
	return nil
}

// Done is closed once the hub loop has stopped.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) run(ctx context.Context) error {
	defer close(h.done)
	defer func() {
		for s := range h.sessions {
			h.drop(s)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-h.register:
			h.sessions[s] = newGate(h.config.MinUpdateInterval)
			h.count(func(st *Stats) { st.Sessions = len(h.sessions) })
			h.config.Logger.Info("client connected", "session", s.id, "sessions", len(h.sessions))
		case s := <-h.unregister:
			if _, ok := h.sessions[s]; ok {
				h.drop(s)
				h.config.Logger.Info("client disconnected", "session", s.id, "sessions", len(h.sessions))
			}
		case in := <-h.inbox:
			if _, ok := h.sessions[in.session]; ok {
				h.handle(in.session, in.msg)
			}
		case doc := <-h.external:
			h.doc = doc
			h.broadcast(nil, doc)
			h.config.Logger.Info("adopted external state", "items", len(doc.Items))
		case reply := <-h.snapshots:
			reply <- h.doc.Clone()
		}
	}
}

// handle dispatches one client message. The switch is exhaustive over
// protocol.ClientMessage.
func (h *Hub) handle(s *Session, msg protocol.ClientMessage) {
	switch m := msg.(type) {
	case protocol.GetInitialState:
		h.sessions[s].ready = true
		h.deliver(s, protocol.StateUpdate{Document: h.doc})
	case protocol.UpdateState:
		h.update(s, m)
	case protocol.Ping:
		h.deliver(s, protocol.Pong{})
	default:
		h.config.Logger.Warn("unhandled client message", "session", s.id, "type", fmt.Sprintf("%T", msg))
	}
}

func (h *Hub) update(s *Session, m protocol.UpdateState) {
	doc, err := core.DecodeDocument(m.Payload)
	if err != nil {
		h.count(func(st *Stats) { st.Rejected++ })
		h.config.Logger.Warn("rejected update", "session", s.id, "error", err)
		h.deliver(s, protocol.Error{Message: err.Error()})
		return
	}

	if verdict := h.sessions[s].admit(doc.Canonical(), h.config.Clock()); verdict != admitted {
		h.count(func(st *Stats) {
			if verdict == tooSoon {
				st.RateLimited++
			} else {
				st.Duplicates++
			}
		})
		h.config.Logger.Debug("dropped update", "session", s.id, "reason", verdict.String())
		return
	}

	h.doc = doc
	h.count(func(st *Stats) { st.Accepted++ })
	h.broadcast(s, doc)
	if h.config.Persister != nil {
		h.config.Persister.Save(doc)
	}
	h.config.Logger.Debug("accepted update", "session", s.id, "items", len(doc.Items), "folders", len(doc.Folders))
}

// broadcast sends doc to every ready session except sender (nil means
// everyone).
func (h *Hub) broadcast(sender *Session, doc core.Document) {
	for s, g := range h.sessions {
		if s == sender || !g.ready {
			continue
		}
		h.deliver(s, protocol.StateUpdate{Document: doc})
	}
}

// deliver queues msg for s without blocking. A full queue means the peer is
// not keeping up; it is dropped so the rest of the hub keeps moving.
func (h *Hub) deliver(s *Session, msg protocol.ServerMessage) {
	select {
	case s.send <- msg:
		if _, ok := msg.(protocol.StateUpdate); ok {
			h.count(func(st *Stats) { st.Deliveries++ })
		}
	default:
		h.config.Logger.Warn("client too slow, disconnecting", "session", s.id)
		h.count(func(st *Stats) { st.SlowDrops++ })
		h.drop(s)
	}
}

func (h *Hub) drop(s *Session) {
	if _, ok := h.sessions[s]; !ok {
		return
	}
	delete(h.sessions, s)
	close(s.send)
	h.count(func(st *Stats) { st.Sessions = len(h.sessions) })
}

func (h *Hub) count(fn func(*Stats)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(&h.stats)
}

// Connect registers a new session. The hub sends nothing to it until it
// asks for the initial state.
func (h *Hub) Connect(label string) (*Session, error) {
	h.mu.Lock()
	h.nextID++
	id := fmt.Sprintf("s%d", h.nextID)
	h.mu.Unlock()
	if label != "" {
		id += "@" + label
	}

	s := &Session{
		id:   id,
		hub:  h,
		send: make(chan protocol.ServerMessage, h.config.SendBuffer),
	}
	select {
	case h.register <- s:
		return s, nil
	case <-h.done:
		return nil, ErrClosed
	}
}

// Replace installs a document that arrived out of band (for example an
// edit of the state file) and broadcasts it to every session. It is not
// persisted again.
func (h *Hub) Replace(ctx context.Context, doc core.Document) error {
	select {
	case h.external <- doc.Clone():
		return nil
	case <-h.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Document returns a copy of the current document.
func (h *Hub) Document(ctx context.Context) (core.Document, error) {
	reply := make(chan core.Document, 1)
	select {
	case h.snapshots <- reply:
	case <-h.done:
		return core.Document{}, ErrClosed
	case <-ctx.Done():
		return core.Document{}, ctx.Err()
	}
	select {
	case doc := <-reply:
		return doc, nil
	case <-ctx.Done():
		return core.Document{}, ctx.Err()
	}
}

// Session is one client's view of the hub.
type Session struct {
	id   string
	hub  *Hub
	send chan protocol.ServerMessage
	once sync.Once
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

// Outbox yields the messages addressed to this session. It is closed when
// the session is dropped or the hub stops.
func (s *Session) Outbox() <-chan protocol.ServerMessage { return s.send }

// Handle submits a client message and returns once the hub has taken it.
func (s *Session) Handle(msg protocol.ClientMessage) error {
	select {
	case s.hub.inbox <- inbound{session: s, msg: msg}:
		return nil
	case <-s.hub.done:
		return ErrClosed
	}
}

// Close unregisters the session. Its tracking state is forgotten; the
// document is untouched.
func (s *Session) Close() {
	s.once.Do(func() {
		select {
		case s.hub.unregister <- s:
		case <-s.hub.done:
		}
	})
}
