package platform

import (
	"log/slog"
	"time"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/shelf/pkg/core"
)

// options holds the internal configuration for the shelf server and client.
type options struct {
	logger *slog.Logger
	// routeLibraryLogs is set when the caller supplied a logger; lifecycle
	// then logs through it instead of its own stderr default.
	routeLibraryLogs bool

	// server
	addr              string
	saveInterval      time.Duration
	flushGrace        time.Duration
	minUpdateInterval time.Duration
	sendBuffer        int
	idleTimeout       time.Duration
	allowedOrigins    []string
	watch             bool
	storeErrorHandler func(error)

	// client
	heartbeat      time.Duration
	reconnectDelay time.Duration
	cooldown       time.Duration
	cache          core.Cache
}

// Option defines a functional option for configuring shelf.
type Option func(*options)

// DefaultAddr is where the server listens when nothing else is configured.
const DefaultAddr = "localhost:3001"

// DefaultFlushGrace bounds the final save on shutdown.
const DefaultFlushGrace = 3 * time.Second

// defaultOptions returns the default configuration. Zero durations defer to
// the defaults of the component that uses them.
func defaultOptions() *options {
	return &options{
		addr:       DefaultAddr,
		flushGrace: DefaultFlushGrace,
	}
}

func apply(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// WithLogger sets the logger for every component. lifecycle keeps a single
// process-wide logger, so building a server or client with this option also
// points lifecycle's supervisor and goroutine logs at logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
		o.routeLibraryLogs = logger != nil
	}
}

// WithAddr sets the server listen address (host:port).
func WithAddr(addr string) Option {
	return func(o *options) {
		if addr != "" {
			o.addr = addr
		}
	}
}

// WithSaveInterval sets the minimum spacing between two physical writes of
// the state file.
func WithSaveInterval(d time.Duration) Option {
	return func(o *options) {
		o.saveInterval = d
	}
}

// WithFlushGrace bounds how long shutdown waits for the final save.
func WithFlushGrace(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.flushGrace = d
		}
	}
}

// WithMinUpdateInterval sets the per-connection rate limit for updates.
func WithMinUpdateInterval(d time.Duration) Option {
	return func(o *options) {
		o.minUpdateInterval = d
	}
}

// WithSendBuffer bounds each connection's outbound queue.
func WithSendBuffer(n int) Option {
	return func(o *options) {
		o.sendBuffer = n
	}
}

// WithIdleTimeout closes connections that stay silent for d.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) {
		o.idleTimeout = d
	}
}

// WithAllowedOrigins restricts the browser origins accepted by the
// websocket endpoint. Empty allows any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(o *options) {
		o.allowedOrigins = origins
	}
}

// WithWatch enables reloading the state file when it is edited by hand.
func WithWatch(enabled bool) Option {
	return func(o *options) {
		o.watch = enabled
	}
}

// WithStoreErrorHandler registers a callback for persistence failures,
// which are otherwise only logged.
func WithStoreErrorHandler(fn func(error)) Option {
	return func(o *options) {
		o.storeErrorHandler = fn
	}
}

// WithHeartbeat sets the client ping interval.
func WithHeartbeat(d time.Duration) Option {
	return func(o *options) {
		o.heartbeat = d
	}
}

// WithReconnectDelay sets the client's fixed reconnect backoff.
func WithReconnectDelay(d time.Duration) Option {
	return func(o *options) {
		o.reconnectDelay = d
	}
}

// WithCooldown sets the client's minimum spacing between outgoing updates.
func WithCooldown(d time.Duration) Option {
	return func(o *options) {
		o.cooldown = d
	}
}

// WithCache injects the client cache. By default the client opens a SQLite
// cache in its data directory.
func WithCache(cache core.Cache) Option {
	return func(o *options) {
		o.cache = cache
	}
}

func (o *options) routeLifecycleLogs() {
	if o.routeLibraryLogs {
		lifecycle.SetLogger(o.logger.With("component", "lifecycle"))
	}
}
