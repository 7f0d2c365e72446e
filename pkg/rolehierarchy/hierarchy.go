package rolehierarchy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/grantor/pkg/cache"
	"github.com/platinummonkey/grantor/pkg/contextkeys"
	"github.com/platinummonkey/grantor/pkg/identity"
	"github.com/platinummonkey/grantor/pkg/observability"
)

// UserScope is the cache scope used outside any organization
const UserScope = "user"

const cacheName = "role_hierarchy"

// Resolver expands a role set with every role it implies. Implementations
// must be transitive and idempotent.
type Resolver interface {
	ReachableRoles(ctx context.Context, roles []string) ([]string, error)
}

// RoleLoader supplies stored parent to children role edges
type RoleLoader interface {
	RoleChildren(ctx context.Context) (map[string][]string, error)
}

// Scoped is implemented by context values that select a cache scope
type Scoped interface {
	CacheScope() string
}

// Scope returns the cache scope of ctx
func Scope(ctx context.Context) string {
	if s, ok := contextkeys.OrgContext(ctx).(Scoped); ok {
		if scope := s.CacheScope(); scope != "" {
			return scope
		}
	}
	return UserScope
}

// Config configures a Hierarchy
type Config struct {
	// Edges maps a parent role to the roles it implies
	Edges   map[string][]string
	Loader  RoleLoader
	Cache   cache.Adapter
	Logger  *observability.Logger
	Metrics *observability.Metrics
	Tracer  trace.Tracer
}

// Hierarchy is a goroutine safe Resolver
type Hierarchy struct {
	mu     sync.RWMutex
	static map[string][]string
	loaded map[string][]string
	// bumped by every invalidation; results computed under an older
	// generation are not stored
	generation uint64

	loader  RoleLoader
	cache   cache.Adapter
	group   singleflight.Group
	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// New creates a role hierarchy
func New(cfg Config) *Hierarchy {
	h := &Hierarchy{
		static:  copyEdges(cfg.Edges),
		loader:  cfg.Loader,
		cache:   cfg.Cache,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		tracer:  cfg.Tracer,
	}
	if h.cache == nil {
		h.cache = cache.NewMemoryAdapter(cache.DefaultMemorySize, 0)
	}
	if h.logger == nil {
		h.logger = observability.NopLogger()
	}
	return h
}

// Cache returns the adapter holding reachability results
func (h *Hierarchy) Cache() cache.Adapter {
	return h.cache
}

// ReachableRoles returns roles followed by every role they imply, in
// discovery order and without duplicates.
func (h *Hierarchy) ReachableRoles(ctx context.Context, roles []string) ([]string, error) {
	if len(roles) == 0 {
		return []string{}, nil
	}

	key := cache.Key(Scope(ctx), cacheID(roles))
	if cached, found, err := h.cache.Get(ctx, key); err != nil {
		h.logger.WithError(err).WithField("key", key).Warn("role hierarchy cache read failed")
	} else if found {
		h.metrics.RecordCacheLookup(cacheName, true)
		return cached, nil
	}
	h.metrics.RecordCacheLookup(cacheName, false)

	generation := h.currentGeneration()
	v, err, _ := h.group.Do(fmt.Sprintf("%s@%d", key, generation), func() (interface{}, error) {
		edges, err := h.edges(ctx, generation)
		if err != nil {
			return nil, err
		}
		reachable := expand(edges, roles)
		h.store(ctx, generation, key, reachable)
		return reachable, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]string(nil), v.([]string)...), nil
}

// SetEdges replaces the static edges and drops every cached result
func (h *Hierarchy) SetEdges(ctx context.Context, edges map[string][]string) error {
	h.mu.Lock()
	h.static = copyEdges(edges)
	h.mu.Unlock()
	return h.Invalidate(ctx)
}

// Invalidate drops cached reachability results and stored edges. With
// prefixes and a prefix capable adapter only those scopes are evicted.
func (h *Hierarchy) Invalidate(ctx context.Context, prefixes ...string) error {
	h.mu.Lock()
	h.loaded = nil
	h.generation++
	h.mu.Unlock()

	if clearer, ok := h.cache.(cache.PrefixClearer); ok && len(prefixes) > 0 {
		h.metrics.RecordInvalidation(cacheName, "prefix")
		return clearer.ClearByPrefixes(ctx, prefixes...)
	}
	h.metrics.RecordInvalidation(cacheName, "full")
	return h.cache.Clear(ctx)
}

func (h *Hierarchy) currentGeneration() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.generation
}

// store writes a result unless an invalidation happened since generation
func (h *Hierarchy) store(ctx context.Context, generation uint64, key string, reachable []string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.generation != generation {
		h.logger.WithField("key", key).Debug("discarded role hierarchy result computed before invalidation")
		return
	}
	if err := h.cache.Set(ctx, key, reachable); err != nil {
		h.logger.WithError(err).WithField("key", key).Warn("role hierarchy cache write failed")
	}
}

func (h *Hierarchy) edges(ctx context.Context, generation uint64) (map[string][]string, error) {
	h.mu.RLock()
	static, loaded := h.static, h.loaded
	h.mu.RUnlock()

	if h.loader == nil {
		return static, nil
	}
	if loaded == nil {
		v, err, _ := h.group.Do(fmt.Sprintf("\x00edges@%d", generation), func() (interface{}, error) {
			return h.load(ctx, generation)
		})
		if err != nil {
			return nil, err
		}
		loaded = v.(map[string][]string)
	}
	return mergeEdges(static, loaded), nil
}

func (h *Hierarchy) load(ctx context.Context, generation uint64) (edges map[string][]string, err error) {
	started := time.Now()
	ctx, span := observability.StartSpan(ctx, h.tracer, "rolehierarchy.load")
	defer func() {
		span.SetAttributes(attribute.Int("grantor.roles", len(edges)))
		observability.EndSpan(span, err)
		h.metrics.RecordFetch("role_loader", "role_children", err, started)
	}()

	edges, err = h.loader.RoleChildren(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load role children: %w", err)
	}
	observability.UpdateLoggerWithTraceContext(ctx, h.logger).
		WithField("roles", len(edges)).Debug("loaded role hierarchy edges")

	h.mu.Lock()
	if h.generation == generation {
		h.loaded = edges
	}
	h.mu.Unlock()
	return edges, nil
}

// expand walks edges breadth first from roles. A suffixed role ROLE__org also
// follows the edges of ROLE, with the suffix applied to each child.
func expand(edges map[string][]string, roles []string) []string {
	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))
	queue := make([]string, 0, len(roles))
	visit := func(role string) {
		if role == "" {
			return
		}
		if _, ok := seen[role]; ok {
			return
		}
		seen[role] = struct{}{}
		out = append(out, role)
		queue = append(queue, role)
	}

	for _, role := range roles {
		visit(role)
	}
	for len(queue) > 0 {
		role := queue[0]
		queue = queue[1:]
		for _, child := range edges[role] {
			visit(child)
		}
		if base, org, ok := identity.SplitOrganizationRole(role); ok {
			for _, child := range edges[base] {
				visit(identity.OrganizationRoleName(child, org))
			}
		}
	}
	return out
}

func cacheID(roles []string) string {
	sorted := append([]string(nil), roles...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

func copyEdges(edges map[string][]string) map[string][]string {
	out := make(map[string][]string, len(edges))
	for parent, children := range edges {
		out[parent] = append([]string(nil), children...)
	}
	return out
}

func mergeEdges(a, b map[string][]string) map[string][]string {
	out := copyEdges(a)
	for parent, children := range b {
		out[parent] = append(out[parent], children...)
	}
	return out
}
