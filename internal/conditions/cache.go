package conditions

import (
	"context"
	"sync"
	"time"
)

// Entry is a cached record and the time it was fetched from the backend.
type Entry struct {
	Record    *Record
	FetchedAt time.Time
}

// Cache stores conditions records by key. Implementations decide eviction;
// freshness is judged by the Service from FetchedAt.
type Cache interface {
	Get(ctx context.Context, key string) (*Entry, bool, error)
	Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error
	Purge(ctx context.Context) error
	Len(ctx context.Context) (int, error)
}

// MemoryCache is an in-process Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry

	lastCleanup     time.Time
	cleanupInterval time.Duration
	now             func() time.Time
}

type memoryEntry struct {
	entry     *Entry
	expiresAt time.Time
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries:         make(map[string]*memoryEntry),
		cleanupInterval: 5 * time.Minute,
		now:             time.Now,
	}
}

// Get returns the entry for key if it has not expired.
func (c *MemoryCache) Get(_ context.Context, key string) (*Entry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expiresAt) {
		return nil, false, nil
	}
	return e.entry, true, nil
}

// Set stores entry under key until ttl elapses.
func (c *MemoryCache) Set(_ context.Context, key string, entry *Entry, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[key] = &memoryEntry{entry: entry, expiresAt: now.Add(ttl)}
	c.cleanupIfNeeded(now)
	return nil
}

// Purge removes all entries.
func (c *MemoryCache) Purge(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*memoryEntry)
	return nil
}

// Len returns the number of stored entries, expired ones included until
// the next cleanup.
func (c *MemoryCache) Len(_ context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries), nil
}

// cleanupIfNeeded drops expired entries once per cleanup interval.
// Caller must hold the write lock.
func (c *MemoryCache) cleanupIfNeeded(now time.Time) {
	if now.Sub(c.lastCleanup) < c.cleanupInterval {
		return
	}
	c.lastCleanup = now

	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}

var _ Cache = (*MemoryCache)(nil)
