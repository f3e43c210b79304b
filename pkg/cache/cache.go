package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Store is a byte-oriented cache with per-entry TTLs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// LockingStore adds an atomic insert-if-absent.
type LockingStore interface {
	Store
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
}

// MemoryStore provides in-memory caching with periodic expiry cleanup
type MemoryStore struct {
	data    map[string]*cacheEntry
	ttl     time.Duration
	mu      sync.RWMutex
	cleanup *time.Ticker
	done    chan struct{}
	once    sync.Once

	statsMu sync.Mutex
	hits    int64
	misses  int64
}

type cacheEntry struct {
	value      []byte
	expiration time.Time
}

// NewMemoryStore creates a store whose entries default to ttl
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	store := &MemoryStore{
		data:    make(map[string]*cacheEntry),
		ttl:     ttl,
		cleanup: time.NewTicker(time.Minute),
		done:    make(chan struct{}),
	}

	go store.cleanupLoop()

	return store
}

func (c *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()

	if ok && time.Now().After(entry.expiration) {
		ok = false
	}
	c.record(ok)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), entry.value...), true, nil
}

func (c *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = &cacheEntry{
		value:      append([]byte(nil), value...),
		expiration: time.Now().Add(ttl),
	}
	return nil
}

func (c *MemoryStore) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.data, key)
	return nil
}

// SetNX stores value only if key is absent or expired.
func (c *MemoryStore) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = c.ttl
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.data[key]; ok && time.Now().Before(entry.expiration) {
		return false, nil
	}
	c.data[key] = &cacheEntry{
		value:      append([]byte(nil), value...),
		expiration: time.Now().Add(ttl),
	}
	return true, nil
}

// DeleteByPrefix removes all entries with keys starting with the given prefix
func (c *MemoryStore) DeleteByPrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.data {
		if strings.HasPrefix(key, prefix) {
			delete(c.data, key)
		}
	}
}

// Size returns the number of entries in the cache
func (c *MemoryStore) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.data)
}

// Stats reports hit and miss counts since creation.
func (c *MemoryStore) Stats() (hits, misses int64) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.hits, c.misses
}

// Stop stops the cleanup goroutine
func (c *MemoryStore) Stop() {
	c.once.Do(func() {
		c.cleanup.Stop()
		close(c.done)
	})
}

func (c *MemoryStore) record(hit bool) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
}

func (c *MemoryStore) cleanupLoop() {
	for {
		select {
		case <-c.cleanup.C:
			c.removeExpired()
		case <-c.done:
			return
		}
	}
}

func (c *MemoryStore) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.data {
		if now.After(entry.expiration) {
			delete(c.data, key)
		}
	}
}
