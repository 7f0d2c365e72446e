package auth

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/grantor/pkg/contextkeys"
	"github.com/platinummonkey/grantor/pkg/identity"
	"github.com/platinummonkey/grantor/pkg/observability"
)

const cacheName = "security_identities"

// CacheKeyContributor adds a part to the memoization key, such as the
// current organization
type CacheKeyContributor func(ctx context.Context) string

// resolution is a memoized list with the permission flag of its event
type resolution struct {
	sids    []identity.SecurityIdentity
	enabled bool
}

// CachingIdentityManager memoizes the identities resolved by another Resolver
type CachingIdentityManager struct {
	next         Resolver
	cache        *lru.LRU[string, resolution]
	contributors []CacheKeyContributor
	metrics      *observability.Metrics
}

// NewCachingIdentityManager wraps next with an LRU of size entries. A zero
// ttl keeps entries until evicted or invalidated.
func NewCachingIdentityManager(next Resolver, size int, ttl time.Duration) *CachingIdentityManager {
	if size <= 0 {
		size = 1024
	}
	return &CachingIdentityManager{
		next:  next,
		cache: lru.NewLRU[string, resolution](size, nil, ttl),
	}
}

// SetMetrics enables cache metrics
func (c *CachingIdentityManager) SetMetrics(metrics *observability.Metrics) {
	c.metrics = metrics
}

// AddCacheKeyContributor appends a key contributor
func (c *CachingIdentityManager) AddCacheKeyContributor(contributor CacheKeyContributor) {
	c.contributors = append(c.contributors, contributor)
}

// SecurityIdentities returns the memoized identities of token. The
// permission flag of the resolution is memoized along and replayed into ctx.
func (c *CachingIdentityManager) SecurityIdentities(ctx context.Context, token Token) ([]identity.SecurityIdentity, error) {
	if token == nil {
		return []identity.SecurityIdentity{}, nil
	}

	key := c.key(ctx, token)
	if cached, ok := c.cache.Get(key); ok {
		c.metrics.RecordCacheLookup(cacheName, true)
		contextkeys.SetPermissionEnabled(ctx, cached.enabled)
		return append([]identity.SecurityIdentity(nil), cached.sids...), nil
	}
	c.metrics.RecordCacheLookup(cacheName, false)

	resolveCtx := contextkeys.WithPermissionEnabled(ctx, true)
	sids, err := c.next.SecurityIdentities(resolveCtx, token)
	if err != nil {
		return nil, err
	}
	enabled, _ := contextkeys.PermissionEnabled(resolveCtx)
	c.cache.Add(key, resolution{
		sids:    append([]identity.SecurityIdentity(nil), sids...),
		enabled: enabled,
	})
	contextkeys.SetPermissionEnabled(ctx, enabled)
	return sids, nil
}

// Invalidate drops every memoized list
func (c *CachingIdentityManager) Invalidate() {
	c.cache.Purge()
	c.metrics.RecordInvalidation(cacheName, "full")
}

// Len returns the number of memoized lists
func (c *CachingIdentityManager) Len() int {
	return c.cache.Len()
}

func (c *CachingIdentityManager) key(ctx context.Context, token Token) string {
	parts := []string{tokenKey(token)}
	for _, contributor := range c.contributors {
		parts = append(parts, contributor(ctx))
	}
	return strings.Join(parts, "#")
}

func tokenKey(token Token) string {
	if keyer, ok := token.(CacheKeyer); ok {
		return keyer.CacheKey()
	}
	if v := reflect.ValueOf(token); v.Kind() == reflect.Pointer {
		return fmt.Sprintf("%T@%x", token, v.Pointer())
	}
	return fmt.Sprintf("%T:%v", token, token)
}
