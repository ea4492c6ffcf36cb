package tenant

import (
	"context"
	"testing"
	"time"

	"github.com/vjranagit/dashboard/pkg/errs"
)

// countingResolver counts calls made through to it.
type countingResolver struct {
	users   map[string]string
	tenants map[string]Credentials
	calls   int
}

func (c *countingResolver) TenantForUser(_ context.Context, userID string) (string, error) {
	c.calls++
	id, ok := c.users[userID]
	if !ok {
		return "", errs.TenantNotFound(userID)
	}
	return id, nil
}

func (c *countingResolver) Credentials(_ context.Context, tenantID string) (Credentials, error) {
	c.calls++
	creds, ok := c.tenants[tenantID]
	if !ok {
		return Credentials{}, errs.TenantNotFound(tenantID)
	}
	return creds, nil
}

func TestCachedResolverHitsCache(t *testing.T) {
	next := &countingResolver{
		users:   map[string]string{"alice": "acme"},
		tenants: map[string]Credentials{"acme": {Org: "o", Token: "t"}},
	}
	r := NewCachedResolver(next, 10, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := r.TenantForUser(ctx, "alice"); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if _, err := r.Credentials(ctx, "acme"); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}

	if next.calls != 2 {
		t.Errorf("Expected 2 calls to the wrapped resolver, got %d", next.calls)
	}
	st := r.Stats()
	if st.Hits != 4 || st.Misses != 2 {
		t.Errorf("Expected 4 hits and 2 misses, got %+v", st)
	}
	if rate := r.HitRate(); rate < 66 || rate > 67 {
		t.Errorf("Expected hit rate ~66.7%%, got %f", rate)
	}
}

func TestCachedResolverDoesNotCacheFailures(t *testing.T) {
	next := &countingResolver{users: map[string]string{}, tenants: map[string]Credentials{}}
	r := NewCachedResolver(next, 10, time.Minute)
	ctx := context.Background()

	r.TenantForUser(ctx, "bob")
	next.users["bob"] = "acme"

	id, err := r.TenantForUser(ctx, "bob")
	if err != nil || id != "acme" {
		t.Fatalf("Expected acme after fix, got %q (%v)", id, err)
	}
}

func TestCachedResolverInvalidate(t *testing.T) {
	next := &countingResolver{tenants: map[string]Credentials{"acme": {Org: "o", Token: "old"}}}
	r := NewCachedResolver(next, 10, time.Minute)
	ctx := context.Background()

	r.Credentials(ctx, "acme")
	next.tenants["acme"] = Credentials{Org: "o", Token: "new"}
	r.Invalidate("acme")

	creds, _ := r.Credentials(ctx, "acme")
	if creds.Token != "new" {
		t.Errorf("Expected refreshed token, got %q", creds.Token)
	}
}

func TestLRUCacheTTL(t *testing.T) {
	c := newLRUCache[string](10, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.put("k", "v")
	if _, ok := c.get("k"); !ok {
		t.Fatal("Expected cache hit, got miss")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.get("k"); ok {
		t.Error("Expected expired entry to miss")
	}
	if c.size() != 0 {
		t.Errorf("Expected expired entry to be removed, size %d", c.size())
	}
}

func TestLRUCacheEviction(t *testing.T) {
	c := newLRUCache[int](2, time.Minute)

	c.put("a", 1)
	c.put("b", 2)
	c.get("a") // a becomes most recently used
	c.put("c", 3)

	if _, ok := c.get("b"); ok {
		t.Error("Expected b to be evicted")
	}
	if v, ok := c.get("a"); !ok || v != 1 {
		t.Errorf("Expected a=1 to survive, got %d %v", v, ok)
	}
	if c.size() != 2 {
		t.Errorf("Expected size 2, got %d", c.size())
	}
}
