// Package shelf is the Composition Root for a real-time synchronized shelf.
//
// A shelf is one shared document of items and folders, ordered by hand.
// A single server owns the authoritative copy and persists it; every client
// holds a full copy, edits it locally and publishes whole snapshots. The
// last accepted snapshot wins.
//
// Layout:
//
//   - pkg/core: the document model and the pure ordering operations.
//   - pkg/protocol: the websocket wire messages.
//   - pkg/hub: the broadcast server (one goroutine owning the document).
//   - pkg/agent: the client sync agent (reconnects, heartbeat, offline queue).
//   - pkg/adapters/fs: atomic, throttled persistence with backup recovery.
//   - pkg/adapters/sqlite: the client's durable cache.
//
// Usage:
//
//	srv, err := shelf.NewServer(ctx, "./data", shelf.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	return srv.Run(ctx)
//
//	client, err := shelf.NewClient(ctx, "ws://localhost:3001/ws", cacheDir)
//	snap, err := client.Edit(ctx, 5*time.Second, func(d core.Document) (core.Document, error) {
//		return core.Drop(d, "item-1", "folder-a"), nil
//	})
package shelf
