package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// MemoryCache is an in-memory Cache used by tests, honouring TTL expiry via
// an injectable clock so tests can simulate elapsed time without sleeping.
type MemoryCache struct {
	clock clockwork.Clock

	mu      sync.Mutex
	entries map[string]memoryRecord
}

type memoryRecord struct {
	entry    Entry
	expireAt time.Time
}

// NewMemoryCache creates an empty in-memory cache using the given clock.
// Pass nil to use the real clock.
func NewMemoryCache(clock clockwork.Clock) *MemoryCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryCache{clock: clock, entries: make(map[string]memoryRecord)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	if c.clock.Now().After(rec.expireAt) {
		delete(c.entries, key)
		return Entry{}, false, nil
	}
	return rec.entry, true, nil
}

func (c *MemoryCache) Put(_ context.Context, key string, entry Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = memoryRecord{
		entry:    entry,
		expireAt: c.clock.Now().Add(TTLFor(entry.Outcome)),
	}
	return nil
}

// Ping always succeeds; there is no backing connection to check.
func (c *MemoryCache) Ping(_ context.Context) error {
	return nil
}

// Len reports the number of stored entries, including expired ones not
// yet swept, useful for test assertions.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
