// Package permission decides whether a set of security identities is granted
// an operation on a subject, a field of a subject, or globally.
//
// The Manager combines three sources:
//
//   - role permissions loaded from a Provider, cached per role set
//   - permission configs registered per subject type (operations, aliases,
//     field configs and master delegation)
//   - per object sharing grants through an optional SharingManager
//
// A Manager is request scoped. Its caches are dropped with
// ResetPreloadPermissions for a set of objects, or Clear for everything.
//
// Example:
//
//	mgr := permission.NewManager(provider, permission.Options{Sharing: sharingMgr})
//	mgr.AddConfig(&permission.Config{Type: "Invoice", Operations: []string{"view", "edit"}})
//	granted, err := mgr.IsGranted(ctx, sids, []string{"view"}, invoice)
package permission
