package cache

import (
	"context"
	"sync"
	"time"
)

// MemorySnapshotCache is a process-local cache. Entries are copied on the way
// in and out so callers cannot mutate a cached snapshot.
type MemorySnapshotCache struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     Entry
	expiresAt time.Time
}

func NewMemorySnapshotCache() *MemorySnapshotCache {
	return &MemorySnapshotCache{now: time.Now, entries: make(map[string]memoryEntry)}
}

func (c *MemorySnapshotCache) Get(_ context.Context, key string) (*Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !item.expiresAt.IsZero() && !c.now().Before(item.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	out := cloneEntry(item.value)
	return &out, true, nil
}

func (c *MemorySnapshotCache) Set(_ context.Context, key string, value *Entry, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	item := memoryEntry{value: cloneEntry(*value)}
	if ttl > 0 {
		item.expiresAt = c.now().Add(ttl)
	}
	c.entries[key] = item
	return nil
}

func (c *MemorySnapshotCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func cloneEntry(e Entry) Entry {
	e.Products = append(e.Products[:0:0], e.Products...)
	e.Accounts = append(e.Accounts[:0:0], e.Accounts...)
	e.Warehouses = append(e.Warehouses[:0:0], e.Warehouses...)
	return e
}
