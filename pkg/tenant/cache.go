// Package tenant resolves users to tenants and tenants to store credentials.
package tenant

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// lruCache is a TTL'd LRU of resolved values keyed by string.
type lruCache[V any] struct {
	capacity int
	ttl      time.Duration
	now      func() time.Time
	mu       sync.Mutex
	entries  map[string]*list.Element
	lru      *list.List
}

// cacheEntry represents a cached lookup
type cacheEntry[V any] struct {
	key       string
	value     V
	timestamp time.Time
}

func newLRUCache[V any](capacity int, ttl time.Duration) *lruCache[V] {
	if capacity < 1 {
		capacity = 1
	}
	return &lruCache[V]{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
	}
}

func (c *lruCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	entry := el.Value.(*cacheEntry[V])

	// Check if entry has expired
	if c.now().Sub(entry.timestamp) > c.ttl {
		c.removeLocked(el)
		return zero, false
	}

	c.lru.MoveToFront(el)
	return entry.value, true
}

func (c *lruCache[V]) put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry[V])
		entry.value = value
		entry.timestamp = c.now()
		c.lru.MoveToFront(el)
		return
	}

	c.entries[key] = c.lru.PushFront(&cacheEntry[V]{key: key, value: value, timestamp: c.now()})

	// Evict oldest entry if cache is full
	if c.lru.Len() > c.capacity {
		c.removeLocked(c.lru.Back())
	}
}

func (c *lruCache[V]) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
}

// removeLocked removes an element from the cache (must hold lock)
func (c *lruCache[V]) removeLocked(el *list.Element) {
	entry := el.Value.(*cacheEntry[V])
	c.lru.Remove(el)
	delete(c.entries, entry.key)
}

func (c *lruCache[V]) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// CacheStats contains cache statistics
type CacheStats struct {
	Users   int
	Tenants int
	Hits    uint64
	Misses  uint64
}

// CachedResolver wraps a Resolver with a credential cache. Only successful
// lookups are cached, so a tenant fixed by an administrator becomes visible
// on the next call.
type CachedResolver struct {
	next    Resolver
	users   *lruCache[string]
	tenants *lruCache[Credentials]

	mu     sync.Mutex
	hits   uint64
	misses uint64
}

// NewCachedResolver creates a cached resolver wrapper
func NewCachedResolver(next Resolver, capacity int, ttl time.Duration) *CachedResolver {
	return &CachedResolver{
		next:    next,
		users:   newLRUCache[string](capacity, ttl),
		tenants: newLRUCache[Credentials](capacity, ttl),
	}
}

// TenantForUser checks the cache before asking the wrapped resolver.
func (r *CachedResolver) TenantForUser(ctx context.Context, userID string) (string, error) {
	if id, ok := r.users.get(userID); ok {
		r.record(true)
		return id, nil
	}
	r.record(false)

	id, err := r.next.TenantForUser(ctx, userID)
	if err != nil {
		return "", err
	}
	r.users.put(userID, id)
	return id, nil
}

// Credentials checks the cache before asking the wrapped resolver.
func (r *CachedResolver) Credentials(ctx context.Context, tenantID string) (Credentials, error) {
	if creds, ok := r.tenants.get(tenantID); ok {
		r.record(true)
		return creds, nil
	}
	r.record(false)

	creds, err := r.next.Credentials(ctx, tenantID)
	if err != nil {
		return Credentials{}, err
	}
	r.tenants.put(tenantID, creds)
	return creds, nil
}

// Invalidate drops the cached credentials of tenantID, e.g. after the store
// rejected its token.
func (r *CachedResolver) Invalidate(tenantID string) {
	r.tenants.invalidate(tenantID)
}

func (r *CachedResolver) record(hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hit {
		r.hits++
	} else {
		r.misses++
	}
}

// Stats returns cache statistics
func (r *CachedResolver) Stats() CacheStats {
	r.mu.Lock()
	hits, misses := r.hits, r.misses
	r.mu.Unlock()
	return CacheStats{
		Users:   r.users.size(),
		Tenants: r.tenants.size(),
		Hits:    hits,
		Misses:  misses,
	}
}

// HitRate returns the cache hit rate as a percentage
func (r *CachedResolver) HitRate() float64 {
	st := r.Stats()
	total := st.Hits + st.Misses
	if total == 0 {
		return 0.0
	}
	return float64(st.Hits) / float64(total) * 100.0
}
