package shelf

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/shelf/internal/platform"
	"github.com/aretw0/shelf/pkg/core"
)

// Version exposes the version of the library.
// See version.go for the implementation using go:embed.

// --- Types ---

// Server is the composed broadcast server (store, hub, HTTP surface).
type Server = platform.Server

// Client is a sync agent wired to its durable cache.
type Client = platform.Client

// Snapshot is a document as seen by a one-shot client operation.
type Snapshot = platform.Snapshot

// Mutation turns the current document into the next one.
type Mutation = platform.Mutation

// Config is the content of shelf.yaml.
type Config = platform.Config

// --- Configuration ---

// Option defines a functional option for configuring shelf.
type Option = platform.Option

// WithLogger sets the logger for every component.
func WithLogger(logger *slog.Logger) Option {
	return platform.WithLogger(logger)
}

// WithAddr sets the server listen address.
func WithAddr(addr string) Option {
	return platform.WithAddr(addr)
}

// WithSaveInterval sets the minimum spacing between two writes of the state file.
func WithSaveInterval(d time.Duration) Option {
	return platform.WithSaveInterval(d)
}

// WithFlushGrace bounds how long shutdown waits for the final save.
func WithFlushGrace(d time.Duration) Option {
	return platform.WithFlushGrace(d)
}

// WithMinUpdateInterval sets the per-connection rate limit for updates.
func WithMinUpdateInterval(d time.Duration) Option {
	return platform.WithMinUpdateInterval(d)
}

// WithSendBuffer bounds each connection's outbound queue.
func WithSendBuffer(n int) Option {
	return platform.WithSendBuffer(n)
}

// WithIdleTimeout closes connections that stay silent for d.
func WithIdleTimeout(d time.Duration) Option {
	return platform.WithIdleTimeout(d)
}

// WithAllowedOrigins restricts the browser origins accepted by the websocket endpoint.
func WithAllowedOrigins(origins ...string) Option {
	return platform.WithAllowedOrigins(origins...)
}

// WithWatch enables reloading the state file when it is edited by hand.
func WithWatch(enabled bool) Option {
	return platform.WithWatch(enabled)
}

// WithStoreErrorHandler registers a callback for persistence failures.
func WithStoreErrorHandler(fn func(error)) Option {
	return platform.WithStoreErrorHandler(fn)
}

// WithHeartbeat sets the client ping interval.
func WithHeartbeat(d time.Duration) Option {
	return platform.WithHeartbeat(d)
}

// WithReconnectDelay sets the client's fixed reconnect backoff.
func WithReconnectDelay(d time.Duration) Option {
	return platform.WithReconnectDelay(d)
}

// WithCooldown sets the client's minimum spacing between outgoing updates.
func WithCooldown(d time.Duration) Option {
	return platform.WithCooldown(d)
}

// WithCache injects the client cache.
func WithCache(cache core.Cache) Option {
	return platform.WithCache(cache)
}

// --- Factory ---

// NewServer prepares dataDir and loads the last saved document.
func NewServer(ctx context.Context, dataDir string, opts ...Option) (*Server, error) {
	return platform.NewServer(ctx, dataDir, opts...)
}

// NewClient builds a sync agent for the server websocket at url, caching in dataDir.
func NewClient(ctx context.Context, url, dataDir string, opts ...Option) (*Client, error) {
	return platform.NewClient(ctx, url, dataDir, opts...)
}

// LoadConfig reads shelf.yaml (searching upwards when path is empty) and
// applies environment overrides.
func LoadConfig(path string) (Config, error) {
	return platform.LoadConfig(path)
}
