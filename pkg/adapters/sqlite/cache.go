// Package sqlite implements the client document cache on a local SQLite
// database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aretw0/shelf/pkg/core"
)

// DefaultFileName is the cache database created in the client data dir.
const DefaultFileName = "cache.db"

// Cache is a core.Cache backed by a single "slots" table.
type Cache struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the cache database at path.
func Open(ctx context.Context, path string) (*Cache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache %s: %w", path, err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	c := &Cache{db: db, path: path}
	if err := c.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) init(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS slots (
		name text not null primary key,
		content text not null,
		updated_at text not null
		)`,
	); err != nil {
		return fmt.Errorf("failed to create slots table: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (c *Cache) Path() string { return c.path }

func (c *Cache) Get(ctx context.Context, slot core.Slot) (core.Document, bool, error) {
	var content string
	if err := c.db.QueryRowContext(ctx,
		`SELECT content FROM slots WHERE name = ?`, string(slot),
	).Scan(&content); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Document{}, false, nil
		}
		return core.Document{}, false, fmt.Errorf("failed to read slot %s: %w", slot, err)
	}

	doc, err := core.DecodeDocument([]byte(content))
	if err != nil {
		return core.Document{}, false, fmt.Errorf("slot %s: %w", slot, err)
	}
	return doc, true, nil
}

func (c *Cache) Put(ctx context.Context, slot core.Slot, doc core.Document) error {
	if _, err := c.db.ExecContext(ctx,
		`INSERT INTO slots (name, content, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		string(slot), string(doc.Canonical()), time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("failed to write slot %s: %w", slot, err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, slot core.Slot) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM slots WHERE name = ?`, string(slot)); err != nil {
		return fmt.Errorf("failed to clear slot %s: %w", slot, err)
	}
	return nil
}

// Close releases the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

var _ core.Cache = (*Cache)(nil)
