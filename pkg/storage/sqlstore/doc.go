// Package sqlstore persists permissions, roles and sharing entries in a SQL
// database and serves them to the permission and sharing managers.
//
// The same schema runs on PostgreSQL (lib/pq) and SQLite (go-sqlite3):
//
//	grantor_permissions          operation rows, optionally scoped to a class and field
//	grantor_roles                named roles
//	grantor_role_permissions     role -> permission
//	grantor_role_children        parent role -> child role (role hierarchy)
//	grantor_sharings             a subject instance shared with one identity
//	grantor_sharing_roles        sharing -> role
//	grantor_sharing_permissions  sharing -> permission
//
// Basic usage:
//
//	db, err := sql.Open("postgres", url)
//	if err := sqlstore.RunMigrations(ctx, db, logger); err != nil { ... }
//	store := sqlstore.New(db)
//
//	engine, err := authz.NewEngine(cfg, policy, authz.Providers{
//		Permissions: store,
//		Sharing:     store,
//		Roles:       store,
//	})
//
// Reads go to a replica when the store is built from a ConnectionManager with
// replicas configured.
package sqlstore
