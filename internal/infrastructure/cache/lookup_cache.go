package cache

import (
	"time"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/integration"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Defaults for the natural-key lookup cache
const (
	DefaultLookupCacheSize = 1024
	DefaultLookupCacheTTL  = 10 * time.Minute
)

// LookupCache remembers the remote id found for a natural key on a platform,
// so a batch of upserts does not repeat the same search. Entries are bounded
// in number and expire after a TTL.
type LookupCache struct {
	lru *expirable.LRU[string, catalog.ExternalID]
}

// NewLookupCache creates a cache holding at most size entries for ttl each
func NewLookupCache(size int, ttl time.Duration) *LookupCache {
	if size <= 0 {
		size = DefaultLookupCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultLookupCacheTTL
	}
	return &LookupCache{lru: expirable.NewLRU[string, catalog.ExternalID](size, nil, ttl)}
}

// Get returns the cached remote id of lookup on platform
func (c *LookupCache) Get(platform integration.PlatformCode, lookup integration.Lookup) (catalog.ExternalID, bool) {
	return c.lru.Get(lookup.CacheKey(platform))
}

// Add caches a remote id found by search
func (c *LookupCache) Add(platform integration.PlatformCode, lookup integration.Lookup, id catalog.ExternalID) {
	if id.IsZero() {
		return
	}
	c.lru.Add(lookup.CacheKey(platform), id)
}

// Invalidate drops the entry of lookup on platform
func (c *LookupCache) Invalidate(platform integration.PlatformCode, lookup integration.Lookup) {
	c.lru.Remove(lookup.CacheKey(platform))
}

// Purge drops every entry
func (c *LookupCache) Purge() {
	c.lru.Purge()
}

// Len returns the number of live entries
func (c *LookupCache) Len() int {
	return c.lru.Len()
}
