// Package agent keeps a client's copy of the shelf in sync with the server.
//
// The Agent is a single goroutine that owns the websocket connection, the
// local document and every timer. Public methods post commands to it; the
// connection reader and the timers post their results the same way, so no
// state is shared between goroutines.
package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/gorilla/websocket"

	"github.com/aretw0/shelf/pkg/core"
	"github.com/aretw0/shelf/pkg/protocol"
)

const (
	DefaultHeartbeat      = 30 * time.Second
	DefaultReconnectDelay = 3 * time.Second
	DefaultCooldown       = 200 * time.Millisecond
	DefaultDialTimeout    = 10 * time.Second
	DefaultWriteTimeout   = 10 * time.Second
	DefaultEventBuffer    = 64

	cacheTimeout = 5 * time.Second
)

var (
	// ErrStopped is returned by commands sent to an agent that is not running.
	ErrStopped = errors.New("agent not running")
	// ErrHeartbeatTimeout is the disconnect cause when a ping goes unanswered
	// for a whole heartbeat interval.
	ErrHeartbeatTimeout = errors.New("heartbeat not answered")
)

// Config holds the agent configuration.
type Config struct {
	// URL of the server websocket endpoint, e.g. ws://localhost:3001/ws.
	URL string
	// Heartbeat is the ping interval. A ping still unanswered when the next
	// one is due marks the connection dead.
	Heartbeat time.Duration
	// ReconnectDelay is the fixed backoff after a failed or lost connection.
	ReconnectDelay time.Duration
	// Cooldown is the minimum spacing between two outgoing updates. Updates
	// made during the cooldown are coalesced into one deferred send.
	Cooldown     time.Duration
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	// Cache keeps the last document and the offline pending edit. Defaults
	// to an in-memory cache.
	Cache       core.Cache
	Dialer      *websocket.Dialer
	EventBuffer int
	Logger      *slog.Logger
	// Manual stops Start from connecting; call Connect instead.
	Manual bool
}

type connState int

const (
	stateIdle connState = iota
	stateDialing
	stateConnected
)

func (s connState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateDialing:
		return "dialing"
	case stateConnected:
		return "connected"
	}
	return "unknown"
}

// commands and results handled by the loop
type (
	connectCmd    struct{}
	disconnectCmd struct{}
	reconnectCmd  struct{}
	updateCmd     struct{ doc core.Document }
	snapshotCmd   struct{ reply chan core.Document }

	dialed struct {
		gen  uint64
		conn *websocket.Conn
		err  error
	}
	received struct {
		gen uint64
		msg protocol.ServerMessage
	}
	lost struct {
		gen uint64
		err error
	}
)

// Agent synchronizes one client with the server.
type Agent struct {
	config Config
	inbox  chan any
	events chan Event
	done   chan struct{}

	mu      sync.RWMutex
	stats   Stats
	started bool

	// owned by the run loop
	ctx          context.Context
	state        connState
	auto         bool
	conn         *websocket.Conn
	dialGen      uint64
	connGen      uint64
	doc          core.Document
	lastReceived []byte
	lastSentAt   time.Time
	deferred     *core.Document
	awaitingPong bool
	heartbeat    timer
	reconnect    timer
	cooldown     timer
}

// New creates an agent. Nothing happens until Start.
func New(config Config) *Agent {
	if config.Heartbeat <= 0 {
		config.Heartbeat = DefaultHeartbeat
	}
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = DefaultReconnectDelay
	}
	if config.Cooldown <= 0 {
		config.Cooldown = DefaultCooldown
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = DefaultDialTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = DefaultEventBuffer
	}
	if config.Cache == nil {
		config.Cache = NewMemoryCache()
	}
	if config.Dialer == nil {
		config.Dialer = websocket.DefaultDialer
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Agent{
		config: config,
		inbox:  make(chan any),
		events: make(chan Event, config.EventBuffer),
		done:   make(chan struct{}),
		stats:  Stats{Status: stateIdle.String(), URL: config.URL},
	}
}

// Start runs the agent until ctx is cancelled. Unless Config.Manual is set
// it connects right away.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return fmt.Errorf("agent already started")
	}
	a.started = true
	a.mu.Unlock()

	lifecycle.Go(ctx, a.run, lifecycle.WithErrorHandler(func(err error) {
		a.config.Logger.Error("agent loop failed", "error", err)
	}))
	return nil
}

// Events yields connection and state events. It is closed when the agent
// stops. Events are dropped, not queued, when the consumer falls behind.
func (a *Agent) Events() <-chan Event {
	return a.events
}

// Done is closed once the agent loop has stopped.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}

// Connect opens the connection and re-enables automatic reconnects.
func (a *Agent) Connect() error { return a.request(connectCmd{}) }

// Disconnect closes the connection and disables automatic reconnects until
// the next Connect or UpdateState.
func (a *Agent) Disconnect() error { return a.request(disconnectCmd{}) }

// Reconnect tears the connection down and dials again immediately.
func (a *Agent) Reconnect() error { return a.request(reconnectCmd{}) }

// UpdateState publishes a locally produced document. It never blocks on the
// network: offline edits are parked in the cache and sent on reconnect.
func (a *Agent) UpdateState(doc core.Document) error {
	return a.request(updateCmd{doc: doc.Clone()})
}

// Document returns the client's current document.
func (a *Agent) Document(ctx context.Context) (core.Document, error) {
	reply := make(chan core.Document, 1)
	if err := a.request(snapshotCmd{reply: reply}); err != nil {
		return core.Document{}, err
	}
	select {
	case doc := <-reply:
		return doc, nil
	case <-ctx.Done():
		return core.Document{}, ctx.Err()
	}
}

func (a *Agent) request(cmd any) error {
	a.mu.RLock()
	started := a.started
	a.mu.RUnlock()
	if !started || !a.post(cmd) {
		return ErrStopped
	}
	return nil
}

func (a *Agent) post(msg any) bool {
	select {
	case a.inbox <- msg:
		return true
	case <-a.done:
		return false
	}
}

func (a *Agent) fire(msg any) { a.post(msg) }

func (a *Agent) run(ctx context.Context) error {
	defer close(a.done)
	defer close(a.events)

	a.ctx = ctx
	a.doc = core.Empty()
	if doc, ok := a.cacheGet(core.SlotLast); ok {
		a.doc = doc
		a.config.Logger.Debug("restored cached document", "items", len(doc.Items))
	}
	if !a.config.Manual {
		a.connect()
	}

	for {
		select {
		case <-ctx.Done():
			a.auto = false
			a.reconnect.stop()
			a.teardown()
			return nil
		case msg := <-a.inbox:
			a.handle(msg)
		}
	}
}

func (a *Agent) handle(msg any) {
	switch m := msg.(type) {
	case connectCmd:
		a.connect()
	case disconnectCmd:
		a.auto = false
		a.reconnect.stop()
		if a.state == stateIdle {
			return
		}
		wasConnected := a.state == stateConnected
		if wasConnected && !a.flushDeferred() {
			return
		}
		a.teardown()
		if wasConnected {
			a.count(func(st *Stats) { st.Disconnects++ })
			a.emit(Event{Kind: EventDisconnect})
		}
		a.config.Logger.Info("disconnected", "url", a.config.URL)
	case reconnectCmd:
		a.reconnect.stop()
		wasConnected := a.state == stateConnected
		a.teardown()
		if wasConnected {
			a.count(func(st *Stats) { st.Disconnects++ })
			a.emit(Event{Kind: EventDisconnect})
		}
		a.connect()
	case updateCmd:
		a.update(m.doc)
	case snapshotCmd:
		m.reply <- a.doc.Clone()
	case dialed:
		a.dialed(m)
	case received:
		if m.gen == a.connGen && a.state == stateConnected {
			a.receive(m.msg)
		}
	case lost:
		if m.gen == a.connGen && a.state == stateConnected {
			a.dropConnection(m.err)
		}
	case fired:
		a.timerFired(m)
	default:
		a.config.Logger.Warn("unhandled agent message", "type", fmt.Sprintf("%T", msg))
	}
}

func (a *Agent) connect() {
	a.auto = true
	if a.state != stateIdle {
		return
	}
	a.reconnect.stop()
	a.setState(stateDialing)
	a.dialGen++
	gen := a.dialGen
	url := a.config.URL
	a.config.Logger.Debug("dialing", "url", url)

	lifecycle.Go(a.ctx, func(ctx context.Context) error {
		dialCtx, cancel := context.WithTimeout(ctx, a.config.DialTimeout)
		defer cancel()
		conn, _, err := a.config.Dialer.DialContext(dialCtx, url, nil)
		if !a.post(dialed{gen: gen, conn: conn, err: err}) && conn != nil {
			_ = conn.Close()
		}
		return nil
	})
}

func (a *Agent) dialed(m dialed) {
	if m.gen != a.dialGen || a.state != stateDialing {
		if m.conn != nil {
			_ = m.conn.Close()
		}
		return
	}
	if m.err != nil {
		a.setState(stateIdle)
		a.count(func(st *Stats) { st.ConnectionErrors++ })
		a.config.Logger.Warn("connection failed", "url", a.config.URL, "error", m.err)
		a.emit(Event{Kind: EventConnectionError, Err: m.err})
		a.scheduleReconnect()
		return
	}

	a.conn = m.conn
	a.connGen++
	a.setState(stateConnected)
	a.awaitingPong = false
	a.lastReceived = nil
	a.lastSentAt = time.Time{}

	conn, gen := a.conn, a.connGen
	lifecycle.Go(a.ctx, func(ctx context.Context) error {
		a.read(conn, gen)
		return nil
	})

	a.count(func(st *Stats) { st.Connects++ })
	a.config.Logger.Info("connected", "url", a.config.URL)
	a.emit(Event{Kind: EventConnect})

	// The pending edit goes out before the initial state is requested, so
	// the reply already reflects it instead of reverting it.
	if pending, ok := a.cacheGet(core.SlotPending); ok {
		if !a.send(protocol.NewUpdateState(pending)) {
			return
		}
		a.lastSentAt = time.Now()
		a.count(func(st *Stats) { st.Sent++ })
		a.cacheDelete(core.SlotPending)
		a.config.Logger.Info("flushed offline edit", "items", len(pending.Items))
	}
	if !a.send(protocol.GetInitialState{}) {
		return
	}
	a.heartbeat.arm(a.config.Heartbeat, timerHeartbeat, a.fire)
}

// read pumps frames from conn into the loop until the connection fails.
func (a *Agent) read(conn *websocket.Conn, gen uint64) {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			a.post(lost{gen: gen, err: err})
			return
		}
		msg, err := protocol.DecodeServer(frame)
		if err != nil {
			a.config.Logger.Warn("ignoring frame", "error", err)
			continue
		}
		if !a.post(received{gen: gen, msg: msg}) {
			return
		}
	}
}

func (a *Agent) receive(msg protocol.ServerMessage) {
	switch m := msg.(type) {
	case protocol.StateUpdate:
		a.doc = m.Document
		a.lastReceived = m.Document.Canonical()
		a.cachePut(core.SlotLast, m.Document)
		a.count(func(st *Stats) { st.Received++ })
		a.emit(Event{Kind: EventStateUpdate, Document: m.Document.Clone()})
	case protocol.Pong:
		a.awaitingPong = false
	case protocol.Error:
		a.config.Logger.Warn("server rejected update", "message", m.Message)
	default:
		a.config.Logger.Warn("unhandled server message", "type", fmt.Sprintf("%T", msg))
	}
}

func (a *Agent) update(doc core.Document) {
	a.doc = doc
	a.cachePut(core.SlotLast, doc)

	if a.state != stateConnected {
		a.cachePut(core.SlotPending, doc)
		a.count(func(st *Stats) { st.Queued++ })
		a.config.Logger.Debug("offline, edit queued", "state", a.state.String())
		a.connect()
		return
	}
	a.push(doc)
}

// push sends doc unless it is an echo of what the server last sent, or
// defers it to the end of the current cooldown.
func (a *Agent) push(doc core.Document) {
	if a.lastReceived != nil && bytes.Equal(doc.Canonical(), a.lastReceived) {
		a.count(func(st *Stats) { st.Skipped++ })
		a.config.Logger.Debug("skipping echo of server state")
		return
	}

	if !a.lastSentAt.IsZero() {
		if wait := a.config.Cooldown - time.Since(a.lastSentAt); wait > 0 {
			a.deferred = &doc
			a.count(func(st *Stats) { st.Deferred++ })
			if !a.cooldown.armed() {
				a.cooldown.arm(wait, timerCooldown, a.fire)
			}
			return
		}
	}

	if !a.send(protocol.NewUpdateState(doc)) {
		a.cachePut(core.SlotPending, doc)
		return
	}
	a.lastSentAt = time.Now()
	a.count(func(st *Stats) { st.Sent++ })
}

// flushDeferred sends a deferred update without waiting for the cooldown.
// It reports false when the send failed and the connection was dropped.
func (a *Agent) flushDeferred() bool {
	if a.deferred == nil {
		return true
	}
	doc := *a.deferred
	a.deferred = nil
	a.cooldown.stop()
	if !a.send(protocol.NewUpdateState(doc)) {
		a.cachePut(core.SlotPending, doc)
		return false
	}
	a.lastSentAt = time.Now()
	a.count(func(st *Stats) { st.Sent++ })
	return true
}

func (a *Agent) timerFired(f fired) {
	switch f.kind {
	case timerHeartbeat:
		if !a.heartbeat.current(f) || a.state != stateConnected {
			return
		}
		if a.awaitingPong {
			a.config.Logger.Warn("heartbeat missed", "url", a.config.URL)
			a.dropConnection(ErrHeartbeatTimeout)
			return
		}
		if !a.send(protocol.Ping{}) {
			return
		}
		a.awaitingPong = true
		a.heartbeat.arm(a.config.Heartbeat, timerHeartbeat, a.fire)
	case timerReconnect:
		if !a.reconnect.current(f) || !a.auto {
			return
		}
		a.count(func(st *Stats) { st.Reconnects++ })
		a.connect()
	case timerCooldown:
		if !a.cooldown.current(f) || a.deferred == nil {
			return
		}
		doc := *a.deferred
		a.deferred = nil
		if a.state != stateConnected {
			a.cachePut(core.SlotPending, doc)
			return
		}
		a.push(doc)
	}
}

// send writes msg on the live connection. A failed write drops the
// connection and reports false.
func (a *Agent) send(msg protocol.ClientMessage) bool {
	frame, err := protocol.EncodeClient(msg)
	if err != nil {
		a.config.Logger.Error("failed to encode", "type", fmt.Sprintf("%T", msg), "error", err)
		return false
	}
	_ = a.conn.SetWriteDeadline(time.Now().Add(a.config.WriteTimeout))
	if err := a.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		a.dropConnection(fmt.Errorf("failed to send %T: %w", msg, err))
		return false
	}
	return true
}

func (a *Agent) dropConnection(cause error) {
	a.teardown()
	a.count(func(st *Stats) { st.Disconnects++ })
	a.config.Logger.Warn("connection lost", "url", a.config.URL, "error", cause)
	a.emit(Event{Kind: EventDisconnect, Err: cause})
	a.scheduleReconnect()
}

// teardown closes the connection (or abandons a dial in flight) and stops
// the connection timers. A deferred send is parked in the pending slot.
func (a *Agent) teardown() {
	a.heartbeat.stop()
	a.cooldown.stop()
	if a.deferred != nil {
		a.cachePut(core.SlotPending, *a.deferred)
		a.deferred = nil
	}
	if a.conn != nil {
		_ = a.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = a.conn.Close()
		a.conn = nil
	}
	a.connGen++
	a.dialGen++
	a.awaitingPong = false
	a.setState(stateIdle)
}

func (a *Agent) scheduleReconnect() {
	if !a.auto {
		return
	}
	a.config.Logger.Info("reconnecting", "in", a.config.ReconnectDelay)
	a.reconnect.arm(a.config.ReconnectDelay, timerReconnect, a.fire)
}

func (a *Agent) emit(e Event) {
	select {
	case a.events <- e:
	default:
		a.count(func(st *Stats) { st.DroppedEvents++ })
		a.config.Logger.Warn("event dropped, consumer too slow", "event", e.String())
	}
}

func (a *Agent) setState(s connState) {
	a.state = s
	a.count(func(st *Stats) { st.Status = s.String() })
}

func (a *Agent) count(fn func(*Stats)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(&a.stats)
}

func (a *Agent) cacheContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(a.ctx), cacheTimeout)
}

func (a *Agent) cacheGet(slot core.Slot) (core.Document, bool) {
	ctx, cancel := a.cacheContext()
	defer cancel()
	doc, ok, err := a.config.Cache.Get(ctx, slot)
	if err != nil {
		a.config.Logger.Warn("failed to read cache", "slot", slot, "error", err)
		return core.Document{}, false
	}
	return doc, ok
}

func (a *Agent) cachePut(slot core.Slot, doc core.Document) {
	ctx, cancel := a.cacheContext()
	defer cancel()
	if err := a.config.Cache.Put(ctx, slot, doc); err != nil {
		a.config.Logger.Warn("failed to write cache", "slot", slot, "error", err)
	}
}

func (a *Agent) cacheDelete(slot core.Slot) {
	ctx, cancel := a.cacheContext()
	defer cancel()
	if err := a.config.Cache.Delete(ctx, slot); err != nil {
		a.config.Logger.Warn("failed to clear cache", "slot", slot, "error", err)
	}
}
