package rpc

import (
	"sync"
	"time"
)

// dedupEntry caches one correlationId's outcome for the idempotency
// window (spec §4.9): a retried mutation with the same correlationId
// gets the original result instead of re-executing.
type dedupEntry struct {
	result  interface{}
	err     error
	expires time.Time
}

// dedupCache is a bounded correlationId→result cache, keyed per tenant
// so two tenants can reuse the same correlationId without colliding.
// Grounded on the teacher's internal/cache sweep pattern (generalized
// from a key's sliding TTL to a fixed idempotency window).
type dedupCache struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]dedupEntry
}

func newDedupCache(window time.Duration) *dedupCache {
	return &dedupCache{window: window, entries: make(map[string]dedupEntry)}
}

func dedupKey(tenantID, correlationID string) string {
	return tenantID + "\x00" + correlationID
}

// lookup returns a cached result for (tenantID, correlationID), if one
// is still within its window.
func (c *dedupCache) lookup(tenantID, correlationID string) (interface{}, error, bool) {
	if correlationID == "" {
		return nil, nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[dedupKey(tenantID, correlationID)]
	if !ok || time.Now().After(e.expires) {
		return nil, nil, false
	}
	return e.result, e.err, true
}

// store records the outcome of one correlationId and sweeps any other
// expired entries, keeping the cache from growing unbounded.
func (c *dedupCache) store(tenantID, correlationID string, result interface{}, err error) {
	if correlationID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.entries[dedupKey(tenantID, correlationID)] = dedupEntry{result: result, err: err, expires: now.Add(c.window)}

	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
		}
	}
}
