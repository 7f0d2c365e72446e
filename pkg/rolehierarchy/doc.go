// Package rolehierarchy expands role sets through parent to child role edges.
//
// Edges come from the static policy and, optionally, from a RoleLoader backed
// by storage. Organization scoped role names (ROLE__org) expand through the
// edges of their base role and keep their organization suffix.
//
// Reachability results are cached through a cache.Adapter under a scope
// prefix: the current organization id, or UserScope outside organizations.
//
// Usage:
//
//	h := rolehierarchy.New(rolehierarchy.Config{
//		Edges: map[string][]string{"ROLE_ADMIN": {"ROLE_USER"}},
//		Cache: cache.NewMemoryAdapter(1024, time.Hour),
//	})
//	roles, err := h.ReachableRoles(ctx, []string{"ROLE_ADMIN"})
package rolehierarchy
