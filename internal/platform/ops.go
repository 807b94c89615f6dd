package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/shelf/pkg/agent"
	"github.com/aretw0/shelf/pkg/core"
)

// DefaultConnectTimeout bounds how long one-shot operations wait for the
// server before falling back to the cached document.
const DefaultConnectTimeout = 5 * time.Second

// Snapshot is a document as seen by a one-shot client operation.
type Snapshot struct {
	Document core.Document
	// Live is false when the server could not be reached and Document comes
	// from the local cache.
	Live bool
}

// Mutation turns the current document into the next one.
type Mutation func(core.Document) (core.Document, error)

// Fetch starts the client, waits for the server's document (or gives up
// after timeout) and returns what the client now holds.
func (c *Client) Fetch(ctx context.Context, timeout time.Duration) (Snapshot, error) {
	if err := c.Agent.Start(ctx); err != nil {
		return Snapshot{}, err
	}
	return c.await(ctx, timeout)
}

// Edit fetches the current document, applies fn and publishes the result.
// When the server is unreachable the edit is applied to the cached
// document and parked for the next connection; the returned snapshot then
// has Live set to false.
func (c *Client) Edit(ctx context.Context, timeout time.Duration, fn Mutation) (Snapshot, error) {
	current, err := c.Fetch(ctx, timeout)
	if err != nil {
		return Snapshot{}, err
	}

	next, err := fn(current.Document.Normalize())
	if err != nil {
		return current, err
	}
	if err := next.Check(); err != nil {
		return current, err
	}
	if err := c.Agent.UpdateState(next); err != nil {
		return current, err
	}
	// The agent handles commands in order, so once this answers the update
	// has been written (or parked).
	if _, err := c.Agent.Document(ctx); err != nil {
		return current, err
	}
	if err := c.Agent.Disconnect(); err != nil {
		return current, err
	}
	return Snapshot{Document: next, Live: current.Live}, nil
}

func (c *Client) await(ctx context.Context, timeout time.Duration) (Snapshot, error) {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case e, ok := <-c.Agent.Events():
			if !ok {
				return Snapshot{}, agent.ErrStopped
			}
			switch e.Kind {
			case agent.EventStateUpdate:
				return Snapshot{Document: e.Document, Live: true}, nil
			case agent.EventConnectionError:
				c.opts.logger.Debug("server unreachable, using cache", "error", e.Err)
				return c.cached(ctx)
			}
		case <-deadline.C:
			c.opts.logger.Debug("server did not answer in time, using cache", "timeout", timeout)
			return c.cached(ctx)
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		}
	}
}

func (c *Client) cached(ctx context.Context) (Snapshot, error) {
	doc, err := c.Agent.Document(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read cached document: %w", err)
	}
	return Snapshot{Document: doc}, nil
}
