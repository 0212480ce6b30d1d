package pricetable

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/dvloznov/subzap/internal/domain"
)

// cacheEntry also records misses, since most merchants have no price.
type cacheEntry struct {
	ref Reference
	ok  bool
}

// Cached memoises lookups of a slower table.
type Cached struct {
	inner Table
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewCached wraps inner with a cache holding up to maxEntries results for ttl.
// A zero ttl keeps entries until evicted or Invalidate is called.
func NewCached(inner Table, maxEntries int64, ttl time.Duration) (*Cached, error) {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10, // number of keys to track frequency of
		MaxCost:     maxEntries,
		BufferItems: 64, // number of keys per Get buffer

		// Cost is counted in entries, not bytes.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("pricetable.NewCached: %w", err)
	}
	return &Cached{inner: inner, cache: cache, ttl: ttl}, nil
}

// Lookup implements Table. Errors from the inner table are not cached.
func (c *Cached) Lookup(ctx context.Context, merchantKey string) (Reference, bool, error) {
	key := domain.MerchantKey(merchantKey)
	if v, found := c.cache.Get(key); found {
		e := v.(cacheEntry)
		return e.ref, e.ok, nil
	}

	ref, ok, err := c.inner.Lookup(ctx, key)
	if err != nil {
		return Reference{}, false, err
	}

	if c.ttl > 0 {
		c.cache.SetWithTTL(key, cacheEntry{ref: ref, ok: ok}, 1, c.ttl)
	} else {
		c.cache.Set(key, cacheEntry{ref: ref, ok: ok}, 1)
	}
	return ref, ok, nil
}

// Version implements Versioned by asking the inner table.
func (c *Cached) Version() string {
	return VersionOf(c.inner)
}

// Wait blocks until pending cache writes are visible.
func (c *Cached) Wait() {
	c.cache.Wait()
}

// Invalidate drops every cached result, e.g. after the inner table reloads.
func (c *Cached) Invalidate() {
	c.cache.Clear()
}

// Close releases the cache.
func (c *Cached) Close() {
	c.cache.Close()
}

var _ Table = (*Cached)(nil)
