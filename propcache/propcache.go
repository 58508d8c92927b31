// Package propcache implements the Property Cache (spec.md §4.7):
// canonical-path-keyed, per-change-class TTL, LRU-bounded, with the
// uncached flag bypassing both lookup and insertion.
//
// Grounded on github.com/hashicorp/golang-lru/v2 (named in the
// perkeep-perkeep manifest go.mod, which also shows the library's
// typical use as a bounded cache in front of a slower backing store --
// pkg/blobserver/proxycache -- generalised here from the non-generic
// camlistore-local lru.Cache to the generic hashicorp/v2 Cache).
package propcache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jangala-dev/owgo/device"
)

// TTLs is the set of per-ChangeClass cache lifetimes (spec.md §4.7
// table and §5 config knobs).
type TTLs struct {
	Stable   time.Duration
	Volatile time.Duration
}

type entry struct {
	value   string
	expires time.Time // zero means "never expires" (static)
}

// Cache is the size-bounded, TTL-aware property cache.
type Cache struct {
	ttls TTLs
	lru  *lru.Cache[string, entry]
}

// New builds a Cache holding at most size entries (spec.md §4.7, "the
// cache is size-bounded with LRU eviction").
func New(size int, ttls TTLs) (*Cache, error) {
	l, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}
	return &Cache{ttls: ttls, lru: l}, nil
}

// Get returns the cached rendered value for key, or ("", false) on a
// miss or an expired entry. Alarm-class properties and uncached paths
// never reach this method (the caller is expected to skip the cache
// lookup entirely for those, per spec.md §4.7).
func (c *Cache) Get(key string) (string, bool) {
	e, ok := c.lru.Get(key)
	if !ok {
		return "", false
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		c.lru.Remove(key)
		return "", false
	}
	return e.value, true
}

// Put inserts or refreshes key with value, choosing a TTL from change
// (spec.md §4.7: static ~ infinite, stable 15s, volatile 1s, alarm
// bypasses the cache entirely -- callers must not call Put for an
// alarm-class property).
func (c *Cache) Put(key string, value string, change device.ChangeClass) {
	var expires time.Time
	switch change {
	case device.ChangeStable:
		expires = time.Now().Add(c.ttls.Stable)
	case device.ChangeVolatile:
		expires = time.Now().Add(c.ttls.Volatile)
	case device.ChangeStatic:
		// zero value: never expires
	default:
		// directory/subdir entries are not values cached by this
		// store; callers should not Put them, but treat conservatively
		// as volatile if they do.
		expires = time.Now().Add(c.ttls.Volatile)
	}
	c.lru.Add(key, entry{value: value, expires: expires})
}

// Invalidate drops key, used on write failure (spec.md §4.7: "failures
// invalidate" the cache entry) and on any write regardless of success
// for properties whose value we don't want to assume (callers choose).
func (c *Cache) Invalidate(key string) {
	c.lru.Remove(key)
}

// Len reports the current number of cached entries, for tests and
// statistics.
func (c *Cache) Len() int { return c.lru.Len() }
