package authz_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/platinummonkey/grantor/pkg/auth"
	"github.com/platinummonkey/grantor/pkg/authz"
	"github.com/platinummonkey/grantor/pkg/config"
	"github.com/platinummonkey/grantor/pkg/identity"
	"github.com/platinummonkey/grantor/pkg/invalidation"
	"github.com/platinummonkey/grantor/pkg/model"
	"github.com/platinummonkey/grantor/pkg/observability"
	"github.com/platinummonkey/grantor/pkg/permission"
	"github.com/platinummonkey/grantor/pkg/sharing"
	"github.com/platinummonkey/grantor/pkg/storage/sqlstore"
	"github.com/platinummonkey/grantor/pkg/testfixtures"
)

func testPolicy() *config.Policy {
	return &config.Policy{
		Permissions: []permission.Config{{
			Type:       "MockObject",
			Operations: []string{"view", "edit", "delete"},
			Aliases:    map[string]string{"read": "view"},
		}},
		Sharing: config.SharingPolicy{
			Subjects: []sharing.SubjectConfig{{Type: "MockObject", Visibility: sharing.VisibilityPrivate}},
			Identities: []sharing.IdentityConfig{
				{Type: "MockUser", Alias: "user", Roleable: true, Permissible: true},
			},
		},
		RoleHierarchy: map[string][]string{"ROLE_SUPER": {"ROLE_ADMIN"}},
	}
}

func setupStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	ctx := context.Background()

	db, err := sql.Open(sqlstore.DriverSQLite, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlstore.RunMigrations(ctx, db, nil))

	store := sqlstore.New(db)
	require.NoError(t, store.CreateRole(ctx, &model.Role{Name: "ROLE_USER"}))
	require.NoError(t, store.CreateRole(ctx, &model.Role{Name: "ROLE_ADMIN", Children: []string{"ROLE_USER"}}))
	require.NoError(t, store.CreateRole(ctx, &model.Role{Name: "ROLE_EDITOR"}))
	require.NoError(t, store.CreatePermission(ctx, &model.Permission{
		Operation: "view", Class: "MockObject", Roles: []string{"ROLE_USER"},
	}))
	require.NoError(t, store.CreatePermission(ctx, &model.Permission{
		Operation: "delete", Class: "MockObject", Roles: []string{"ROLE_ADMIN"},
	}))
	require.NoError(t, store.CreateSharing(ctx, &model.SharingEntry{
		SubjectClass:  "MockObject",
		SubjectID:     "doc-1",
		IdentityClass: "MockUser",
		IdentityName:  "user.test",
		Enabled:       true,
		Permissions:   []model.SharingPermission{{Operation: "edit"}},
	}))
	return store
}

func setupEngine(t *testing.T, cfg *config.Config, policy *config.Policy) (*authz.Engine, *sqlstore.Store) {
	t.Helper()
	store := setupStore(t)
	engine, err := authz.NewEngine(context.Background(), authz.Options{
		Config:    cfg,
		Policy:    policy,
		Providers: authz.Providers{Permissions: store, Sharing: store, Roles: store},
	})
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine, store
}

func newSession(t *testing.T, engine *authz.Engine) *authz.Session {
	t.Helper()
	session, err := engine.NewSession()
	require.NoError(t, err)
	return session
}

func isGranted(t *testing.T, session *authz.Session, token auth.Token, permission string, subject any) bool {
	t.Helper()
	granted, err := session.IsGranted(context.Background(), token, []string{permission}, subject)
	require.NoError(t, err)
	return granted
}

func TestSession_RolesAndSharing(t *testing.T) {
	engine, _ := setupEngine(t, nil, testPolicy())
	session := newSession(t, engine)
	user := &testfixtures.MockUser{Username: "user.test"}
	token := auth.NewToken(user, "ROLE_USER")
	doc1 := testfixtures.NewMockObject("doc-1")
	doc2 := testfixtures.NewMockObject("doc-2")

	assert.True(t, isGranted(t, session, token, "view", doc1), "granted by role")
	assert.True(t, isGranted(t, session, token, "perm_read", doc1), "prefixed alias")
	assert.True(t, isGranted(t, session, token, "edit", doc1), "granted by sharing")
	assert.False(t, isGranted(t, session, token, "edit", doc2))
	assert.False(t, isGranted(t, session, token, "delete", doc1))
	assert.True(t, isGranted(t, session, token, "anything", &testfixtures.MockGroup{Name: "staff"}),
		"unmanaged subjects are granted")

	require.NotNil(t, session.Sharing())
	sharings := session.Sharing().Sharings(identity.SubjectIdentity{Type: "MockObject", Identifier: "doc-1"})
	require.Len(t, sharings, 1)
	assert.Equal(t, "user.test", sharings[0].IdentityName)

	other := auth.NewToken(&testfixtures.MockUser{Username: "user.other"}, "ROLE_USER")
	assert.False(t, isGranted(t, session, other, "edit", doc1), "sharing is per identity")
	assert.True(t, isGranted(t, session, other, "view", doc1))
	assert.True(t, isGranted(t, session, token, "edit", doc1))
}

func TestSession_PreloadedSharingIsPerToken(t *testing.T) {
	engine, _ := setupEngine(t, nil, testPolicy())
	ctx := context.Background()
	doc := testfixtures.NewMockObject("doc-1")
	owner := auth.NewToken(&testfixtures.MockUser{Username: "user.test"}, "ROLE_USER")
	other := auth.NewToken(&testfixtures.MockUser{Username: "user.other"}, "ROLE_USER")

	session := newSession(t, engine)
	require.NoError(t, session.Preload(ctx, owner, []any{doc}))

	assert.False(t, isGranted(t, session, other, "edit", doc))
	assert.False(t, isGranted(t, session, other, "edit", doc), "a second check is still denied")
	assert.True(t, isGranted(t, session, owner, "edit", doc))
}

func TestSession_RoleHierarchy(t *testing.T) {
	engine, _ := setupEngine(t, nil, testPolicy())
	session := newSession(t, engine)
	doc := testfixtures.NewMockObject("doc-1")

	admin := auth.NewToken(&testfixtures.MockUser{Username: "admin"}, "ROLE_ADMIN")
	assert.True(t, isGranted(t, session, admin, "view", doc), "stored children are followed")
	assert.True(t, isGranted(t, session, admin, "delete", doc))

	super := auth.NewToken(&testfixtures.MockUser{Username: "root"}, "ROLE_SUPER")
	assert.True(t, isGranted(t, session, super, "view", doc), "policy edges chain into stored edges")

	sids, err := engine.SecurityIdentities(context.Background(), super)
	require.NoError(t, err)
	assert.Subset(t, identity.FilterRoles(sids), []string{"ROLE_SUPER", "ROLE_ADMIN", "ROLE_USER"})
	assert.Contains(t, identity.FilterRoles(sids), auth.RoleAuthenticatedFully)
}

func TestSession_DisabledChecks(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Authorization.PermissionsEnabled = false
	engine, _ := setupEngine(t, cfg, testPolicy())
	session := newSession(t, engine)

	token := auth.NewAnonymousToken()
	assert.True(t, isGranted(t, session, token, "delete", testfixtures.NewMockObject("doc-1")))
	assert.False(t, session.Permissions().IsEnabled())
}

func TestSession_SharingDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Authorization.SharingEnabled = false
	engine, _ := setupEngine(t, cfg, testPolicy())
	session := newSession(t, engine)

	token := auth.NewToken(&testfixtures.MockUser{Username: "user.test"}, "ROLE_USER")
	assert.False(t, isGranted(t, session, token, "edit", testfixtures.NewMockObject("doc-1")))
}

func TestSession_GlobalCheck(t *testing.T) {
	engine, store := setupEngine(t, nil, testPolicy())
	require.NoError(t, store.CreatePermission(context.Background(), &model.Permission{
		Operation: "create", Roles: []string{"ROLE_ADMIN"},
	}))
	session := newSession(t, engine)

	admin := auth.NewToken(&testfixtures.MockUser{Username: "admin"}, "ROLE_ADMIN")
	user := auth.NewToken(&testfixtures.MockUser{Username: "user.test"}, "ROLE_USER")
	assert.True(t, isGranted(t, session, admin, "create", nil))
	assert.False(t, isGranted(t, session, user, "create", nil))
}

func TestSession_Preload(t *testing.T) {
	engine, _ := setupEngine(t, nil, testPolicy())
	session := newSession(t, engine)
	ctx := context.Background()
	token := auth.NewToken(&testfixtures.MockUser{Username: "user.test"}, "ROLE_USER")

	objects := []any{testfixtures.NewMockObject("doc-1"), testfixtures.NewMockObject("doc-2")}
	require.NoError(t, session.Preload(ctx, token, objects))

	assert.Len(t, session.Sharing().Sharings(identity.SubjectIdentity{Type: "MockObject", Identifier: "doc-1"}), 1)
	assert.Empty(t, session.Sharing().Sharings(identity.SubjectIdentity{Type: "MockObject", Identifier: "doc-2"}))
}

func TestSession_PreloadWithoutToken(t *testing.T) {
	engine, _ := setupEngine(t, nil, testPolicy())
	session := newSession(t, engine)

	err := session.Permissions().PreloadPermissions(context.Background(), []any{testfixtures.NewMockObject("doc-1")})
	assert.ErrorIs(t, err, authz.ErrNoToken)
}

func TestSession_CommitInvalidatesRoleCaches(t *testing.T) {
	engine, store := setupEngine(t, nil, testPolicy())
	ctx := context.Background()
	doc := testfixtures.NewMockObject("doc-1")
	editor := auth.NewToken(&testfixtures.MockUser{Username: "user.editor"}, "ROLE_EDITOR")

	session := newSession(t, engine)
	assert.False(t, isGranted(t, session, editor, "view", doc))

	require.NoError(t, store.AddRoleChild(ctx, "ROLE_EDITOR", "ROLE_USER"))
	assert.False(t, isGranted(t, newSession(t, engine), editor, "view", doc), "reachable roles are cached")

	role := &testfixtures.MockRole{Name: "ROLE_EDITOR", Children: []string{"ROLE_USER"}}
	require.NoError(t, session.Commit(ctx, nil, []invalidation.CollectionChange{
		{Owner: role, Association: invalidation.AssociationChildren},
	}, nil))

	assert.True(t, isGranted(t, newSession(t, engine), editor, "view", doc))
}

func TestSession_CommitResetsSharing(t *testing.T) {
	engine, store := setupEngine(t, nil, testPolicy())
	ctx := context.Background()
	doc := testfixtures.NewMockObject("doc-2")
	token := auth.NewToken(&testfixtures.MockUser{Username: "user.test"}, "ROLE_USER")

	session := newSession(t, engine)
	assert.False(t, isGranted(t, session, token, "edit", doc))

	require.NoError(t, store.CreateSharing(ctx, &model.SharingEntry{
		SubjectClass:  "MockObject",
		SubjectID:     "doc-2",
		IdentityClass: "MockUser",
		IdentityName:  "user.test",
		Enabled:       true,
		Permissions:   []model.SharingPermission{{Operation: "edit"}},
	}))
	assert.False(t, isGranted(t, session, token, "edit", doc), "loaded grants are kept for the session")

	require.NoError(t, session.Commit(ctx, nil, nil, []any{doc}))
	assert.True(t, isGranted(t, session, token, "edit", doc))
}

func TestEngine_OnFlushIgnoresUnrelatedChanges(t *testing.T) {
	engine, _ := setupEngine(t, nil, testPolicy())
	ctx := context.Background()

	_, err := engine.Hierarchy().ReachableRoles(ctx, []string{"ROLE_ADMIN"})
	require.NoError(t, err)

	require.NoError(t, engine.OnFlush(ctx, []invalidation.Change{
		{Op: invalidation.OpUpdate, Object: testfixtures.NewMockObject("doc-1"), Fields: []string{"name"}},
	}, nil))

	_, found, err := engine.Hierarchy().Cache().Get(ctx, "user:ROLE_ADMIN")
	require.NoError(t, err)
	assert.True(t, found)

	require.NoError(t, engine.OnFlush(ctx, []invalidation.Change{
		{Op: invalidation.OpDelete, Object: &testfixtures.MockUser{Username: "gone"}},
	}, nil))
	_, found, err = engine.Hierarchy().Cache().Get(ctx, "user:ROLE_ADMIN")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestEngine_ReloadPolicy(t *testing.T) {
	engine, _ := setupEngine(t, nil, testPolicy())
	ctx := context.Background()
	doc := testfixtures.NewMockObject("doc-1")
	token := auth.NewToken(&testfixtures.MockUser{Username: "user.editor"}, "ROLE_EDITOR")

	before := newSession(t, engine)
	assert.False(t, isGranted(t, before, token, "view", doc))

	reloaded := testPolicy()
	reloaded.RoleHierarchy = map[string][]string{"ROLE_EDITOR": {"ROLE_USER"}}
	reloaded.SpecialRoles = []string{"ROLE_EVERYONE"}
	require.NoError(t, engine.ReloadPolicy(ctx, reloaded))

	assert.True(t, isGranted(t, newSession(t, engine), token, "view", doc))
	sids, err := engine.SecurityIdentities(ctx, token)
	require.NoError(t, err)
	assert.Contains(t, identity.FilterRoles(sids), "ROLE_EVERYONE")

	unmanaged := testPolicy()
	unmanaged.Permissions = nil
	require.NoError(t, engine.ReloadPolicy(ctx, unmanaged))
	assert.True(t, isGranted(t, newSession(t, engine), token, "delete", doc))
	assert.True(t, before.IsManaged(ctx, doc), "existing sessions keep their policy")

	invalid := testPolicy()
	invalid.Sharing.Subjects[0].Visibility = "secret"
	assert.Error(t, engine.ReloadPolicy(ctx, invalid))
	assert.ErrorIs(t, engine.ReloadPolicy(ctx, nil), config.ErrInvalidPolicy)
	assert.Same(t, unmanaged, engine.Policy())
}

func TestEngine_AddIdentitiesHook(t *testing.T) {
	engine, _ := setupEngine(t, nil, testPolicy())
	ctx := context.Background()
	token := auth.NewToken(&testfixtures.MockUser{Username: "user.test"})

	_, err := engine.SecurityIdentities(ctx, token)
	require.NoError(t, err)

	engine.AddIdentitiesHook(func(_ context.Context, _ auth.Token, sids []identity.SecurityIdentity) ([]identity.SecurityIdentity, error) {
		return identity.Merge(sids, []identity.SecurityIdentity{identity.RoleIdentity("ROLE_HOOKED")}), nil
	})
	sids, err := engine.SecurityIdentities(ctx, token)
	require.NoError(t, err)
	assert.Contains(t, identity.FilterRoles(sids), "ROLE_HOOKED")

	require.NoError(t, engine.ReloadPolicy(ctx, testPolicy()))
	sids, err = engine.SecurityIdentities(ctx, token)
	require.NoError(t, err)
	assert.Contains(t, identity.FilterRoles(sids), "ROLE_HOOKED", "hooks survive reloads")
}

func TestEngine_ConcurrentReloadAndHooks(t *testing.T) {
	engine, _ := setupEngine(t, nil, testPolicy())
	ctx := context.Background()
	token := auth.NewToken(&testfixtures.MockUser{Username: "user.test"})
	noop := func(_ context.Context, _ auth.Token, sids []identity.SecurityIdentity) ([]identity.SecurityIdentity, error) {
		return sids, nil
	}

	for i := 0; i < 20; i++ {
		reloaded := testPolicy()
		reloaded.SpecialRoles = []string{fmt.Sprintf("ROLE_RELOAD_%d", i)}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			engine.AddIdentitiesHook(noop)
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, engine.ReloadPolicy(ctx, reloaded))
		}()
		wg.Wait()

		require.Same(t, reloaded, engine.Policy(), "a hook registration never restores an older policy")
		sids, err := engine.SecurityIdentities(ctx, token)
		require.NoError(t, err)
		assert.Contains(t, identity.FilterRoles(sids), reloaded.SpecialRoles[0])
	}
}

func TestSession_PostLoadSeesPreHookFlag(t *testing.T) {
	engine, _ := setupEngine(t, nil, testPolicy())
	engine.AddPreHook(func(_ context.Context, event *auth.Event) {
		if user, ok := event.Token.User().(*testfixtures.MockUser); ok && user.Username == "user.audit" {
			event.PermissionEnabled = false
		}
	})
	resolutions := 0
	engine.AddPostHook(func(context.Context, *auth.Event) { resolutions++ })

	check := func(username string) bool {
		t.Helper()
		session := newSession(t, engine)
		var flags []bool
		session.Permissions().AddPostLoadHook(func(_ context.Context, event *permission.PostLoadEvent) {
			flags = append(flags, event.PermissionEnabled)
		})
		token := auth.NewToken(&testfixtures.MockUser{Username: username}, "ROLE_USER")
		assert.True(t, isGranted(t, session, token, "view", testfixtures.NewMockObject("doc-2")))
		require.Len(t, flags, 1)
		return flags[0]
	}

	assert.False(t, check("user.audit"))
	assert.False(t, check("user.audit"), "memoized identities keep the flag")
	assert.True(t, check("user.test"))
	assert.Equal(t, 2, resolutions)
}

func TestEngine_GroupIdentitiesFromSharing(t *testing.T) {
	engine, store := setupEngine(t, nil, func() *config.Policy {
		p := testPolicy()
		p.Sharing.Identities = append(p.Sharing.Identities,
			sharing.IdentityConfig{Type: "MockGroup", Alias: "group", Roleable: true})
		return p
	}())
	ctx := context.Background()
	require.NoError(t, store.CreatePermission(ctx, &model.Permission{
		Operation: "edit", Class: "MockObject", Contexts: []string{model.ContextSharing}, Roles: []string{"ROLE_EDITOR"},
	}))
	require.NoError(t, store.CreateSharing(ctx, &model.SharingEntry{
		SubjectClass:  "MockObject",
		SubjectID:     "doc-3",
		IdentityClass: "MockGroup",
		IdentityName:  "staff",
		Enabled:       true,
		Roles:         []string{"ROLE_EDITOR"},
	}))

	member := &testfixtures.MockUser{
		Username:  "member",
		GroupList: []*testfixtures.MockGroup{{Name: "staff"}},
	}
	token := auth.NewToken(member, "ROLE_USER")
	assert.True(t, isGranted(t, newSession(t, engine), token, "edit", testfixtures.NewMockObject("doc-3")),
		"role sharing through a group")
}

func TestNewEngine_Metrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	store := setupStore(t)
	engine, err := authz.NewEngine(context.Background(), authz.Options{
		Policy:    testPolicy(),
		Providers: authz.Providers{Permissions: store, Sharing: store, Roles: store},
		Registry:  registry,
	})
	require.NoError(t, err)
	defer engine.Close()
	require.NotNil(t, engine.Metrics())

	token := auth.NewToken(&testfixtures.MockUser{Username: "user.test"}, "ROLE_USER")
	session := newSession(t, engine)
	assert.True(t, isGranted(t, session, token, "view", testfixtures.NewMockObject("doc-1")))

	assert.Equal(t, float64(1), testutil.ToFloat64(
		engine.Metrics().DecisionsTotal.WithLabelValues("permission", "role", "granted")))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		engine.Metrics().CacheMissesTotal.WithLabelValues("security_identities")))
}

func TestNewEngine_Database(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.Driver = config.DriverSQLite
	cfg.Database.URL = ":memory:"
	cfg.Database.AutoMigrate = true

	engine, err := authz.NewEngine(context.Background(), authz.Options{Config: cfg, Policy: testPolicy()})
	require.NoError(t, err)
	defer engine.Close()

	token := auth.NewToken(&testfixtures.MockUser{Username: "user.test"}, "ROLE_USER")
	assert.False(t, isGranted(t, newSession(t, engine), token, "view", testfixtures.NewMockObject("doc-1")),
		"empty store grants nothing")

	health := engine.Health(context.Background())
	assert.Equal(t, observability.StatusHealthy, health.Status)
	assert.Contains(t, health.Dependencies, "database")
}

func TestNewEngine_Replicas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grantor.db")
	cfg := config.DefaultConfig()
	cfg.Database.Driver = config.DriverSQLite
	cfg.Database.URL = path
	cfg.Database.ReplicaURLs = []string{path}
	cfg.Database.ReplicaCheckSchedule = "@every 1s"
	cfg.Database.AutoMigrate = true

	engine, err := authz.NewEngine(context.Background(), authz.Options{Config: cfg, Policy: testPolicy()})
	require.NoError(t, err)

	token := auth.NewToken(&testfixtures.MockUser{Username: "user.test"}, "ROLE_USER")
	assert.False(t, isGranted(t, newSession(t, engine), token, "view", testfixtures.NewMockObject("doc-1")))
	assert.Equal(t, observability.StatusHealthy, engine.Health(context.Background()).Status)
	assert.NoError(t, engine.Close(), "the replica checks stop before the connections close")
}

func TestNewEngine_BadReplicaSchedule(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.Driver = config.DriverSQLite
	cfg.Database.URL = ":memory:"
	cfg.Database.ReplicaURLs = []string{":memory:"}
	cfg.Database.ReplicaCheckSchedule = "hourly"

	_, err := authz.NewEngine(context.Background(), authz.Options{Config: cfg, Policy: testPolicy()})
	assert.Error(t, err)
}

func TestNewEngine_OTel(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	cfg := config.DefaultConfig()
	cfg.Observability.OTelEnabled = true
	engine, _ := setupEngine(t, cfg, testPolicy())
	require.NotNil(t, engine)

	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, ok, "the engine installs an exporting tracer provider")
}

func TestNewEngine_NoProvider(t *testing.T) {
	_, err := authz.NewEngine(context.Background(), authz.Options{})
	assert.ErrorIs(t, err, authz.ErrNoPermissionProvider)
}

func TestNewEngine_InvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Cache.Type = "memcached"
	_, err := authz.NewEngine(context.Background(), authz.Options{Config: cfg})
	assert.Error(t, err)
}

func TestNewEngine_RedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.DefaultConfig()
	cfg.Cache.Type = config.CacheRedis
	cfg.Cache.RedisURL = "redis://" + mr.Addr()
	engine, _ := setupEngine(t, cfg, testPolicy())

	token := auth.NewToken(&testfixtures.MockUser{Username: "admin"}, "ROLE_ADMIN")
	assert.True(t, isGranted(t, newSession(t, engine), token, "view", testfixtures.NewMockObject("doc-1")))
	assert.NotEmpty(t, mr.Keys(), "reachable roles are stored in redis")

	require.NoError(t, engine.OnFlush(context.Background(), []invalidation.Change{
		{Op: invalidation.OpInsert, Object: &testfixtures.MockRole{Name: "ROLE_NEW"}},
	}, nil))
	assert.Empty(t, mr.Keys())

	assert.Equal(t, observability.StatusHealthy, engine.Health(context.Background()).Status)
	mr.Close()
	health := engine.Health(context.Background())
	assert.Equal(t, observability.StatusDegraded, health.Status, "the cache is optional")
	assert.Equal(t, observability.StatusUnhealthy, health.Dependencies["redis"].Status)
}

func TestNewEngine_PolicyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
permissions:
  - type: MockObject
    operations: [view]
special_roles: [ROLE_FILE]
`), 0o600))

	cfg := config.DefaultConfig()
	cfg.Authorization.PolicyPath = path
	cfg.Authorization.WatchPolicy = true
	engine, _ := setupEngine(t, cfg, nil)
	assert.Equal(t, []string{"ROLE_FILE"}, engine.Policy().SpecialRoles)

	require.NoError(t, os.WriteFile(path, []byte("special_roles: [ROLE_RELOADED]\n"), 0o600))
	require.Eventually(t, func() bool {
		roles := engine.Policy().SpecialRoles
		return len(roles) == 1 && roles[0] == "ROLE_RELOADED"
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, engine.Close())
	require.NoError(t, engine.Close())
}
