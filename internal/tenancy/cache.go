package tenancy

import (
	"sync"
	"time"
)

// DefaultCacheTTL bounds how long a catalog check is trusted before the
// catalog is consulted again.
const DefaultCacheTTL = 5 * time.Minute

// ExistenceEntry is one memoized catalog check for a candidate database
// name. KnownDBs snapshots the catalog at check time for diagnostics.
type ExistenceEntry struct {
	Exists    bool
	DBName    string
	KnownDBs  []string
	CheckedAt time.Time
}

// ExistenceCache memoizes database-existence checks with a TTL. It is a
// performance optimization only; the authoritative state is the server's
// catalog, so concurrent last-writer-wins updates are fine.
type ExistenceCache struct {
	mu      sync.RWMutex
	entries map[string]ExistenceEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewExistenceCache(ttl time.Duration) *ExistenceCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &ExistenceCache{
		entries: make(map[string]ExistenceEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the entry for the candidate name if one exists and is younger
// than the TTL. Expired entries are treated as absent.
func (c *ExistenceCache) Get(name string) (ExistenceEntry, bool) {
	c.mu.RLock()
	e, ok := c.entries[name]
	c.mu.RUnlock()
	if !ok || c.now().Sub(e.CheckedAt) >= c.ttl {
		return ExistenceEntry{}, false
	}
	return e, true
}

// Put overwrites the entry for the candidate name, stamped with the current
// time. resolved is the database name that actually matched (it may differ
// from the candidate when a fallback naming variant was adopted).
func (c *ExistenceCache) Put(name string, exists bool, resolved string, known []string) {
	e := ExistenceEntry{
		Exists:    exists,
		DBName:    resolved,
		KnownDBs:  known,
		CheckedAt: c.now(),
	}
	c.mu.Lock()
	c.entries[name] = e
	c.mu.Unlock()
}
