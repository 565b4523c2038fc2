// Package ristretto implements the cache port with an in-process
// dgraph-io/ristretto cache. Resolved query results are cached here keyed by
// the normalized question text.
package ristretto

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache wraps a ristretto cache as an in-process cache.
type Cache struct {
	c *ristretto.Cache[string, []byte]
}

// New creates a ristretto-backed cache bounded to maxSizeMB megabytes of
// cached values.
func New(maxSizeMB int64) (*Cache, error) {
	maxCost := maxSizeMB << 20
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxCost / 100 * 10, // ~10x expected items
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

// Get retrieves a value from the cache.
func (c *Cache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	val, found := c.c.Get(key)
	if !found {
		return nil, false, nil
	}
	return val, true, nil
}

// Set stores a value in the cache with the given TTL. The value's byte
// length is its admission cost.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.c.SetWithTTL(key, value, int64(len(value)), ttl)
	return nil
}

// Delete removes a value from the cache.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Wait blocks until buffered writes have been admitted. Admission is
// asynchronous, so a value set just now may not be visible until Wait
// returns.
func (c *Cache) Wait() {
	c.c.Wait()
}

// Close shuts down the cache and releases resources.
func (c *Cache) Close() {
	c.c.Close()
}
