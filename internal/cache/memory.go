package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is the in-process KeyCache used by single-binary deployments
// and tests. Reads are lock-free via sync.Map; expired entries are dropped
// lazily on read and swept by a background loop.
type MemoryCache struct {
	data sync.Map
	stop chan struct{}
	once sync.Once
}

type memoryEntry struct {
	entry     Entry
	expiresAt time.Time
}

// NewMemoryCache creates an in-process cache and starts its sweep loop.
// Callers that do not keep the cache for the process lifetime should Close
// it to stop the sweeper.
func NewMemoryCache() *MemoryCache {
	c := &MemoryCache{stop: make(chan struct{})}
	go c.sweepLoop()
	return c
}

// Close stops the sweep loop. Safe to call more than once. The cache stays
// usable afterwards; expiry falls back to the lazy check in Get.
func (c *MemoryCache) Close() error {
	c.once.Do(func() { close(c.stop) })
	return nil
}

// Get implements KeyCache.
func (c *MemoryCache) Get(_ context.Context, keyHash string) (*Entry, error) {
	val, ok := c.data.Load(keyHash)
	if !ok {
		return nil, nil
	}
	me := val.(*memoryEntry)
	if time.Now().After(me.expiresAt) {
		c.data.Delete(keyHash)
		return nil, nil
	}
	entry := me.entry
	return &entry, nil
}

// Set implements KeyCache.
func (c *MemoryCache) Set(_ context.Context, keyHash string, entry Entry, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c.data.Store(keyHash, &memoryEntry{entry: entry, expiresAt: time.Now().Add(ttl)})
	return nil
}

// Delete implements KeyCache.
func (c *MemoryCache) Delete(_ context.Context, keyHash string) error {
	c.data.Delete(keyHash)
	return nil
}

func (c *MemoryCache) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			c.data.Range(func(key, value interface{}) bool {
				if now.After(value.(*memoryEntry).expiresAt) {
					c.data.Delete(key)
				}
				return true
			})
		case <-c.stop:
			return
		}
	}
}
