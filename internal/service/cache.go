package service

import (
	"sync"
	"time"

	"github.com/keywarden/keywarden/internal/model"
)

// validationCache is a process-local TTL cache mapping raw presented secrets
// to resolved key snapshots. It exists to spare the store a round trip and a
// digest computation on every request. Entries are evicted lazily on read;
// revoke and rotate purge affected entries immediately, regardless of TTL.
//
// Purges leave a short-lived tombstone per key ID so that a populate racing a
// purge (store read before the revoke committed, insert after the purge ran)
// cannot resurrect a revoked snapshot.
type validationCache struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	m         map[string]cacheEntry
	purged    map[string]time.Time // keyID -> last purge time
	clearedAt time.Time
}

type cacheEntry struct {
	info       *model.KeyInfo
	insertedAt time.Time
}

func newValidationCache(ttl time.Duration) *validationCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &validationCache{
		ttl:    ttl,
		now:    time.Now,
		m:      make(map[string]cacheEntry),
		purged: make(map[string]time.Time),
	}
}

// get returns the cached snapshot for a secret. An entry past its TTL is a
// miss and is deleted on the spot.
func (c *validationCache) get(secret string) (*model.KeyInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.m[secret]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.insertedAt) >= c.ttl {
		delete(c.m, secret)
		return nil, false
	}
	return e.info, true
}

// put inserts the entry for a secret resolved from a store read that began at
// readAt. The insert is dropped if the key was purged, or the cache cleared,
// after the read began: the snapshot could predate a revoke or rotate.
func (c *validationCache) put(secret string, info *model.KeyInfo, readAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.clearedAt.After(readAt) {
		return
	}
	if pt, ok := c.purged[info.KeyID]; ok {
		if pt.After(readAt) {
			return
		}
		delete(c.purged, info.KeyID) // tombstone no longer needed
	}
	c.m[secret] = cacheEntry{info: info, insertedAt: c.now()}
}

// purgeByKeyID removes every entry whose snapshot references the given key
// ID and records a tombstone. Called synchronously by revoke and rotate so
// the purge is visible before the mutating call returns.
func (c *validationCache) purgeByKeyID(keyID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for secret, e := range c.m {
		if e.info.KeyID == keyID {
			delete(c.m, secret)
		}
	}
	now := c.now()
	c.purged[keyID] = now

	// Drop tombstones older than the TTL; any in-flight populate that began
	// before one of those has long since finished.
	for id, t := range c.purged {
		if now.Sub(t) >= c.ttl {
			delete(c.purged, id)
		}
	}
}

// clear drops everything. Used after bulk mutations where targeted purging
// would be more complex than it is worth.
func (c *validationCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m = make(map[string]cacheEntry)
	c.purged = make(map[string]time.Time)
	c.clearedAt = c.now()
}

func (c *validationCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}
