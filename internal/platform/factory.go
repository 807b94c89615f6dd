package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/shelf/pkg/adapters/fs"
	"github.com/aretw0/shelf/pkg/adapters/sqlite"
	"github.com/aretw0/shelf/pkg/agent"
	"github.com/aretw0/shelf/pkg/core"
	"github.com/aretw0/shelf/pkg/hub"
)

// Server is the composed broadcast server: the durable store, the hub that
// owns the live document, and the HTTP surface.
type Server struct {
	Store   *fs.Store
	Hub     *hub.Hub
	Handler http.Handler

	opts *options
}

// NewServer prepares dataDir and loads the last saved document.
// srv, err := platform.NewServer(ctx, "./data", platform.WithLogger(logger))
func NewServer(ctx context.Context, dataDir string, opts ...Option) (*Server, error) {
	o := apply(opts)
	o.routeLifecycleLogs()

	store := fs.NewStore(fs.Config{
		Dir:          dataDir,
		SaveInterval: o.saveInterval,
		Logger:       o.logger.With("component", "store"),
		ErrorHandler: o.storeErrorHandler,
	})
	if err := store.Initialize(ctx); err != nil {
		return nil, err
	}
	doc := store.Load(ctx)

	h := hub.New(doc, hub.Config{
		MinUpdateInterval: o.minUpdateInterval,
		SendBuffer:        o.sendBuffer,
		Persister:         store,
		Logger:            o.logger.With("component", "hub"),
	})
	transport := hub.NewTransport(h, hub.TransportConfig{
		IdleTimeout:    o.idleTimeout,
		AllowedOrigins: o.allowedOrigins,
	})

	return &Server{
		Store:   store,
		Hub:     h,
		Handler: hub.NewRouter(h, transport, store),
		opts:    o,
	}, nil
}

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.opts.addr }

// Start launches the saver, the hub and, when enabled, the state file
// watcher. Everything stops when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Store.Start(ctx); err != nil {
		return err
	}
	if err := s.Hub.Start(ctx); err != nil {
		return err
	}
	if !s.opts.watch {
		return nil
	}

	changes, err := s.Store.Watch(ctx)
	if err != nil {
		return err
	}
	lifecycle.Go(ctx, func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case doc := <-changes:
				if err := s.Hub.Replace(ctx, doc); err != nil {
					return nil
				}
			}
		}
	})
	return nil
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve starts the components and serves HTTP on ln until ctx is cancelled.
// On the way out it stops accepting requests and flushes the store within
// the flush grace period.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	if err := s.Start(runCtx); err != nil {
		_ = ln.Close()
		return err
	}

	srv := &http.Server{
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.opts.logger.Handler(), slog.LevelWarn),
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()
	s.opts.logger.Info("listening", "addr", ln.Addr().String(), "state", s.Store.PrimaryPath())

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	}

	// Stopping the hub closes the websocket sessions, which Shutdown does not
	// track once hijacked.
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.flushGrace)
	defer cancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		s.opts.logger.Warn("http shutdown", "error", shutdownErr)
	}
	if flushErr := s.Flush(shutdownCtx); flushErr != nil {
		s.opts.logger.Error("final save failed", "error", flushErr)
		err = errors.Join(err, flushErr)
	}
	s.opts.logger.Info("stopped")
	return err
}

// Flush writes any unsaved document now and waits for a save already in
// progress. It is also the best-effort save used before an unexpected exit.
func (s *Server) Flush(ctx context.Context) error {
	if s.Store.Dirty() {
		s.opts.logger.Info("saving state before exit")
	}
	return s.Store.Flush(ctx)
}

// Client is a sync agent wired to its durable cache.
type Client struct {
	Agent *agent.Agent
	Cache core.Cache

	opts   *options
	closer io.Closer
}

// NewClient builds an agent for the server at url. Unless WithCache is
// given, the cache is a SQLite database in dataDir.
func NewClient(ctx context.Context, url, dataDir string, opts ...Option) (*Client, error) {
	o := apply(opts)
	o.routeLifecycleLogs()

	c := &Client{Cache: o.cache, opts: o}
	if c.Cache == nil {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create client dir: %w", err)
		}
		cache, err := sqlite.Open(ctx, filepath.Join(dataDir, sqlite.DefaultFileName))
		if err != nil {
			return nil, err
		}
		c.Cache, c.closer = cache, cache
	}

	c.Agent = agent.New(agent.Config{
		URL:            url,
		Heartbeat:      o.heartbeat,
		ReconnectDelay: o.reconnectDelay,
		Cooldown:       o.cooldown,
		Cache:          c.Cache,
		Logger:         o.logger.With("component", "agent"),
	})
	return c, nil
}

// Close releases the cache opened by NewClient.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}
