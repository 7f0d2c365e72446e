// Package authz wires the authorization engine together.
//
// An Engine is built once per process from configuration, a policy and the
// data providers. It owns the state shared between requests: the role
// hierarchy and its cache, memoized security identities and the invalidation
// trigger. Each request or unit of work opens a Session holding its own
// permission and sharing caches:
//
//	engine, err := authz.NewEngine(ctx, authz.Options{
//		Config:   cfg,
//		Logger:   logger,
//		Registry: registry,
//	})
//	defer engine.Close()
//
//	session, err := engine.NewSession()
//	granted, err := session.IsGranted(ctx, token, []string{"perm_view"}, document)
//
// After writing role or membership data, report the flushed changes so stale
// grants are dropped:
//
//	err = session.Commit(ctx, changes, collections, written)
//
// Without explicit providers the engine opens the configured database and
// uses the SQL store for permissions, sharing entries and role children.
package authz
