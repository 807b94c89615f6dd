package agent

import (
	"context"
	"sync"

	"github.com/aretw0/shelf/pkg/core"
)

// MemoryCache is a core.Cache that lives only as long as the process.
type MemoryCache struct {
	mu    sync.RWMutex
	slots map[core.Slot]core.Document
}

// NewMemoryCache returns an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{slots: make(map[core.Slot]core.Document)}
}

func (c *MemoryCache) Get(_ context.Context, slot core.Slot) (core.Document, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.slots[slot]
	if !ok {
		return core.Document{}, false, nil
	}
	return doc.Clone(), true, nil
}

func (c *MemoryCache) Put(_ context.Context, slot core.Slot, doc core.Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slots[slot] = doc.Clone()
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, slot core.Slot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.slots, slot)
	return nil
}

var _ core.Cache = (*MemoryCache)(nil)
