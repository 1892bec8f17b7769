package eval

import (
	"sync"
	"time"

	"github.com/mvaleed/acs/internal/domain"
)

const DefaultCacheTTL = 5 * time.Minute

// cacheKey identifies one cached decision (spec §4.B: "bounded lookup
// keyed by (entityId, uri, verb)").
type cacheKey struct {
	EntityID int64
	URI      string
	Verb     domain.Verb
}

type cacheEntry struct {
	decision Decision
	expires  time.Time
}

// decisionCache is the evaluator's bounded TTL cache with
// descendant-subtree invalidation (spec §4.B). It is shared across
// goroutines (the dispatcher's hot path and any out-of-band reporting
// callers), so every operation takes the mutex.
type decisionCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	entries map[cacheKey]cacheEntry
	byEntity map[int64]map[cacheKey]struct{}
}

func newDecisionCache(ttl time.Duration, maxSize int) *decisionCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxSize <= 0 {
		maxSize = 100_000
	}
	return &decisionCache{
		ttl:      ttl,
		maxSize:  maxSize,
		entries:  make(map[cacheKey]cacheEntry),
		byEntity: make(map[int64]map[cacheKey]struct{}),
	}
}

func (c *decisionCache) get(key cacheKey, now time.Time) (Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return Decision{}, false
	}
	if now.After(entry.expires) {
		c.removeLocked(key)
		return Decision{}, false
	}
	return entry.decision, true
}

func (c *decisionCache) put(key cacheKey, d Decision, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}

	c.entries[key] = cacheEntry{decision: d, expires: now.Add(c.ttl)}
	set, ok := c.byEntity[key.EntityID]
	if !ok {
		set = make(map[cacheKey]struct{})
		c.byEntity[key.EntityID] = set
	}
	set[key] = struct{}{}
}

func (c *decisionCache) removeLocked(key cacheKey) {
	delete(c.entries, key)
	if set, ok := c.byEntity[key.EntityID]; ok {
		delete(set, key)
		if len(set) == 0 {
			delete(c.byEntity, key.EntityID)
		}
	}
}

func (c *decisionCache) evictOldestLocked() {
	var oldestKey cacheKey
	var oldest time.Time
	first := true
	for k, e := range c.entries {
		if first || e.expires.Before(oldest) {
			oldestKey, oldest, first = k, e.expires, false
		}
	}
	if !first {
		c.removeLocked(oldestKey)
	}
}

// invalidateEntities drops every cached decision whose EntityID is in ids
// (spec §4.B: "invalidates all entries whose entityId is e or a
// descendant of e").
func (c *decisionCache) invalidateEntities(ids ...int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range ids {
		set, ok := c.byEntity[id]
		if !ok {
			continue
		}
		for key := range set {
			delete(c.entries, key)
		}
		delete(c.byEntity, id)
	}
}
