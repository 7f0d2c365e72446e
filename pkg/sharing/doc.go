// Package sharing evaluates per object sharing grants.
//
// A sharing entry grants operations, or roles whose permissions then apply,
// on one subject instance to one identity, optionally inside a time window.
// The Manager loads the entries of many objects in one batch, caches them per
// subject and answers IsGranted from the cache.
//
// The cache of a subject goes through these states, each reached once:
//
//	UNSEEN -> PRELOADED -> ROLE-RESOLVED -> PERMISSIONS-RESOLVED
//
// ResetPreloadPermissions returns a subject to UNSEEN.
package sharing
