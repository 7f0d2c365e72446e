package authz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/grantor/pkg/auth"
	"github.com/platinummonkey/grantor/pkg/cache"
	"github.com/platinummonkey/grantor/pkg/config"
	"github.com/platinummonkey/grantor/pkg/identity"
	"github.com/platinummonkey/grantor/pkg/invalidation"
	"github.com/platinummonkey/grantor/pkg/observability"
	"github.com/platinummonkey/grantor/pkg/orgs"
	"github.com/platinummonkey/grantor/pkg/permission"
	"github.com/platinummonkey/grantor/pkg/rolehierarchy"
	"github.com/platinummonkey/grantor/pkg/sharing"
	"github.com/platinummonkey/grantor/pkg/storage/sqlstore"
)

// ErrNoPermissionProvider is returned when neither a permission provider nor
// a database is configured
var ErrNoPermissionProvider = errors.New("no permission provider configured")

// Providers are the data sources of the engine. Sharing and Roles are
// optional.
type Providers struct {
	Permissions permission.Provider
	Sharing     sharing.Provider
	Roles       rolehierarchy.RoleLoader
}

// Options configures an Engine
type Options struct {
	// Config defaults to config.DefaultConfig()
	Config *config.Config

	// Policy defaults to the file at Config.Authorization.PolicyPath, or an
	// empty policy
	Policy *config.Policy

	// Providers default to a SQL store opened from Config.Database
	Providers Providers

	// Cache overrides the adapter built from Config.Cache
	Cache cache.Adapter

	Logger         *observability.Logger
	Registry       *prometheus.Registry
	TracerProvider trace.TracerProvider
}

// associationSetter is implemented by providers resolving masters through
// declared associations
type associationSetter interface {
	SetAssociation(class, property, target string)
}

// Engine is the process wide authorization engine. It owns the shared role
// caches and hands out request scoped sessions. It is safe for concurrent use.
type Engine struct {
	cfg       *config.Config
	providers Providers

	hierarchy *rolehierarchy.Hierarchy
	adapter   cache.Adapter

	// reloadMu serializes policy swaps and hook registration
	reloadMu    sync.Mutex
	mu          sync.RWMutex
	policy      *config.Policy
	permConfigs []*permission.Config
	resolver    *auth.CachingIdentityManager
	trigger     *invalidation.Trigger
	preHooks    []auth.PreHook
	addHooks    []auth.AddHook
	postHooks   []auth.PostHook

	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer

	health  *observability.HealthChecker
	watcher *config.PolicyWatcher
	closers []func() error
}

// NewEngine builds an engine from configuration, policy and providers
func NewEngine(ctx context.Context, opts Options) (*Engine, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	e := &Engine{
		cfg:       cfg,
		providers: opts.Providers,
		logger:    opts.Logger,
		health:    observability.NewHealthChecker(cfg.Database.Timeout),
	}
	if e.logger == nil {
		e.logger = observability.NopLogger()
	}

	if cfg.Observability.MetricsEnabled && opts.Registry != nil {
		e.metrics = observability.NewMetrics(opts.Registry)
	}

	policy := opts.Policy
	if policy == nil {
		var err error
		if policy, err = loadPolicy(cfg); err != nil {
			return nil, err
		}
	} else if err := policy.Validate(); err != nil {
		return nil, err
	}

	tp := opts.TracerProvider
	if tp == nil && cfg.Observability.OTelEnabled {
		sdkProvider, err := observability.InitOTel(ctx, cfg.OTelConfig(), e.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
		if sdkProvider != nil {
			tp = sdkProvider
			e.closers = append(e.closers, func() error {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return observability.ShutdownOTel(shutdownCtx, sdkProvider, e.logger)
			})
		}
	}
	e.tracer = observability.Tracer(tp)

	if e.providers.Permissions == nil {
		if err := e.openStore(ctx); err != nil {
			e.Close()
			return nil, err
		}
	}

	e.adapter = opts.Cache
	if e.adapter == nil {
		adapter, err := e.newCacheAdapter(ctx)
		if err != nil {
			e.Close()
			return nil, err
		}
		e.adapter = adapter
	}

	e.hierarchy = rolehierarchy.New(rolehierarchy.Config{
		Edges:   policy.RoleHierarchy,
		Loader:  e.providers.Roles,
		Cache:   e.adapter,
		Logger:  e.logger,
		Metrics: e.metrics,
		Tracer:  e.tracer,
	})
	e.reloadMu.Lock()
	e.applyPolicy(policy)
	e.reloadMu.Unlock()

	if cfg.Authorization.WatchPolicy {
		if err := e.WatchPolicy(ctx); err != nil {
			e.Close()
			return nil, fmt.Errorf("failed to watch policy: %w", err)
		}
	}

	e.logger.WithFields(map[string]interface{}{
		"permission_configs": len(policy.Permissions),
		"sharing_subjects":   len(policy.Sharing.Subjects),
		"cache":              cfg.Cache.Type,
	}).Info("authorization engine initialized")
	return e, nil
}

func loadPolicy(cfg *config.Config) (*config.Policy, error) {
	if cfg.Authorization.PolicyPath == "" {
		return &config.Policy{}, nil
	}
	policy, err := config.LoadPolicy(cfg.Authorization.PolicyPath)
	if err != nil {
		return nil, err
	}
	return policy, nil
}

func (e *Engine) openStore(ctx context.Context) error {
	db := e.cfg.Database
	if db.Driver == "" {
		return ErrNoPermissionProvider
	}

	cm, err := sqlstore.NewConnectionManager(ctx, sqlstore.ConnectionConfig{
		Driver:      db.Driver,
		PrimaryURL:  db.URL,
		ReplicaURLs: db.ReplicaURLs,
		MaxConns:    db.MaxConns,
		MinConns:    db.MinConns,
		Timeout:     db.Timeout,
		MaxLifetime: db.MaxLifetime,
		MaxIdleTime: db.MaxIdleTime,
	}, e.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	e.closers = append(e.closers, cm.Close)
	e.health.Register("database", cm.HealthCheck, true)

	if cm.ReplicaCount() > 0 && db.ReplicaCheckSchedule != "" {
		scheduler, err := cm.ScheduleReplicaChecks(db.ReplicaCheckSchedule)
		if err != nil {
			return err
		}
		e.closers = append(e.closers, func() error {
			<-scheduler.Stop().Done()
			return nil
		})
	}

	if db.AutoMigrate {
		if err := sqlstore.RunMigrations(ctx, cm.Primary(), e.logger); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	store := sqlstore.NewFromConnections(cm)
	e.providers.Permissions = store
	if e.providers.Sharing == nil {
		e.providers.Sharing = store
	}
	if e.providers.Roles == nil {
		e.providers.Roles = store
	}
	return nil
}

func (e *Engine) newCacheAdapter(ctx context.Context) (cache.Adapter, error) {
	c := e.cfg.Cache
	if c.Type != config.CacheRedis {
		return cache.NewMemoryAdapter(c.MemorySize, c.TTL), nil
	}

	client, err := cache.NewRedisClient(ctx, cache.RedisConfig{
		URL:        c.RedisURL,
		Password:   c.RedisPassword,
		DB:         c.RedisDB,
		MaxRetries: c.RedisMaxRetries,
		PoolSize:   c.RedisPoolSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}
	e.closers = append(e.closers, client.Close)
	e.health.Register("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}, false)
	return cache.NewRedisAdapter(client, c.RedisNamespace, c.TTL), nil
}

// applyPolicy rebuilds the policy derived state. Memoized identities depend
// on special roles so the identity managers are rebuilt too. Callers hold
// reloadMu.
func (e *Engine) applyPolicy(policy *config.Policy) {
	configs := make([]*permission.Config, 0, len(policy.Permissions))
	for i := range policy.Permissions {
		c := policy.Permissions[i]
		configs = append(configs, &c)
	}

	if setter, ok := e.providers.Permissions.(associationSetter); ok {
		for _, a := range policy.Associations {
			setter.SetAssociation(a.Class, a.Property, a.Target)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// hooks are registered before the manager is published
	identities := auth.NewIdentityManager(auth.Options{
		Hierarchy:    e.hierarchy,
		SpecialRoles: policy.SpecialRoles,
		Logger:       e.logger,
	})
	for _, hook := range e.preHooks {
		identities.AddPreHook(hook)
	}
	identities.AddIdentitiesHook(orgs.AddIdentitiesHook(e.hierarchy))
	for _, hook := range e.addHooks {
		identities.AddIdentitiesHook(hook)
	}
	for _, hook := range e.postHooks {
		identities.AddPostHook(hook)
	}

	resolver := auth.NewCachingIdentityManager(identities,
		e.cfg.Authorization.IdentityCacheSize, e.cfg.Authorization.IdentityCacheTTL)
	resolver.SetMetrics(e.metrics)
	resolver.AddCacheKeyContributor(orgs.CacheKeyContributor)

	e.policy = policy
	e.permConfigs = configs
	e.resolver = resolver
	e.trigger = invalidation.NewTrigger(e.hierarchy, resolver, e.logger)
}

// ReloadPolicy swaps the policy. Sessions created before the reload keep the
// previous one.
func (e *Engine) ReloadPolicy(ctx context.Context, policy *config.Policy) error {
	if policy == nil {
		return fmt.Errorf("%w: nil policy", config.ErrInvalidPolicy)
	}
	if err := policy.Validate(); err != nil {
		return err
	}

	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()
	if err := e.hierarchy.SetEdges(ctx, policy.RoleHierarchy); err != nil {
		return fmt.Errorf("failed to reset role hierarchy: %w", err)
	}
	e.applyPolicy(policy)
	e.logger.Info("authorization policy reloaded")
	return nil
}

// WatchPolicy reloads the policy whenever the configured policy file changes.
// The watcher runs until Close.
func (e *Engine) WatchPolicy(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	path := e.cfg.Authorization.PolicyPath
	if path == "" {
		return fmt.Errorf("no policy path configured")
	}
	watcher, err := config.WatchPolicy(ctx, path, func(policy *config.Policy) {
		if err := e.ReloadPolicy(ctx, policy); err != nil {
			e.logger.WithError(err).Warn("failed to apply reloaded policy")
		}
	}, e.logger)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.watcher = watcher
	e.mu.Unlock()
	return nil
}

// AddPreHook registers a hook run before identities are resolved. It may
// seed identities and change the permission flag reported to post load
// hooks. It survives policy reloads.
func (e *Engine) AddPreHook(hook auth.PreHook) {
	e.addHook(func() { e.preHooks = append(e.preHooks, hook) })
}

// AddIdentitiesHook registers a hook adding identities to every resolved
// token. It survives policy reloads.
func (e *Engine) AddIdentitiesHook(hook auth.AddHook) {
	e.addHook(func() { e.addHooks = append(e.addHooks, hook) })
}

// AddPostHook registers a hook observing every resolved list. It survives
// policy reloads.
func (e *Engine) AddPostHook(hook auth.PostHook) {
	e.addHook(func() { e.postHooks = append(e.postHooks, hook) })
}

// addHook registers a hook and rebuilds the identity managers with the
// current policy
func (e *Engine) addHook(register func()) {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()

	e.mu.Lock()
	register()
	policy := e.policy
	e.mu.Unlock()
	e.applyPolicy(policy)
}

// SecurityIdentities returns the memoized identities of token
func (e *Engine) SecurityIdentities(ctx context.Context, token auth.Token) ([]identity.SecurityIdentity, error) {
	e.mu.RLock()
	resolver := e.resolver
	e.mu.RUnlock()
	return resolver.SecurityIdentities(ctx, token)
}

// Hierarchy returns the shared role hierarchy
func (e *Engine) Hierarchy() *rolehierarchy.Hierarchy {
	return e.hierarchy
}

// Policy returns the current policy
func (e *Engine) Policy() *config.Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.policy
}

// Metrics returns the engine metrics, nil when disabled
func (e *Engine) Metrics() *observability.Metrics {
	return e.metrics
}

// Health probes the database and cache the engine opened itself
func (e *Engine) Health(ctx context.Context) observability.HealthStatus {
	return e.health.Check(ctx)
}

// OnFlush invalidates shared role caches for changes flushed outside a
// session
func (e *Engine) OnFlush(ctx context.Context, changes []invalidation.Change, collections []invalidation.CollectionChange) error {
	e.mu.RLock()
	trigger := e.trigger
	e.mu.RUnlock()
	return trigger.OnFlush(ctx, changes, collections)
}

// Close stops the policy watcher and releases connections
func (e *Engine) Close() error {
	e.mu.Lock()
	watcher := e.watcher
	e.watcher = nil
	closers := e.closers
	e.closers = nil
	e.mu.Unlock()

	var errs []error
	if watcher != nil {
		if err := watcher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
