package permission

import (
	"sync"
	"sync/atomic"
	"time"
)

// LoaderFunc supplies the current role table when the cache rebuilds.
type LoaderFunc func() ([]Role, error)

// Cache owns a time-bounded snapshot of the built resolver. The graph
// is static between rebuilds, so reads take no lock; when the TTL
// elapses the whole resolver is rebuilt from the loader and swapped in
// wholesale rather than mutated in place.
type Cache struct {
	loader LoaderFunc
	ttl    time.Duration

	current atomic.Pointer[cacheEntry]
	rebuild sync.Mutex
}

type cacheEntry struct {
	resolver *Resolver
	builtAt  time.Time
}

// NewCache builds the initial resolver eagerly so a bad role table
// fails at startup, not on the first authorization check. A ttl of
// zero disables rebuilds entirely.
func NewCache(loader LoaderFunc, ttl time.Duration) (*Cache, error) {
	roles, err := loader()
	if err != nil {
		return nil, err
	}
	resolver, err := NewResolver(roles)
	if err != nil {
		return nil, err
	}

	c := &Cache{loader: loader, ttl: ttl}
	c.current.Store(&cacheEntry{resolver: resolver, builtAt: time.Now()})
	return c, nil
}

// Resolver returns the current snapshot, rebuilding first when stale.
// A failed rebuild keeps serving the previous snapshot.
func (c *Cache) Resolver() *Resolver {
	entry := c.current.Load()
	if c.ttl <= 0 || time.Since(entry.builtAt) < c.ttl {
		return entry.resolver
	}

	c.rebuild.Lock()
	defer c.rebuild.Unlock()

	// Another goroutine may have rebuilt while we waited.
	entry = c.current.Load()
	if time.Since(entry.builtAt) < c.ttl {
		return entry.resolver
	}

	roles, err := c.loader()
	if err != nil {
		c.current.Store(&cacheEntry{resolver: entry.resolver, builtAt: time.Now()})
		return entry.resolver
	}
	resolver, err := NewResolver(roles)
	if err != nil {
		c.current.Store(&cacheEntry{resolver: entry.resolver, builtAt: time.Now()})
		return entry.resolver
	}

	c.current.Store(&cacheEntry{resolver: resolver, builtAt: time.Now()})
	return resolver
}

// StaticLoader wraps a fixed role table as a LoaderFunc.
func StaticLoader(roles []Role) LoaderFunc {
	return func() ([]Role, error) {
		return roles, nil
	}
}
