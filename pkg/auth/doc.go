// Package auth turns an authenticated token into the ordered list of security
// identities used by every permission check.
//
// # Resolution
//
// IdentityManager.SecurityIdentities builds the list in this order:
//
//  1. pre hooks may seed identities and set the permission enabled flag
//  2. the user identity, unless the token is anonymous
//  3. a role identity per role reachable from the token roles
//  4. add hooks may append identities; the list they return replaces the
//     working list
//  5. special roles missing from the list
//  6. the trust pseudo roles (IS_AUTHENTICATED_*)
//  7. post hooks observe the final list
//
// A nil token yields an empty list and runs no hook.
//
// # Caching
//
// CachingIdentityManager memoizes lists per token and per cache key
// contributions, until Invalidate is called:
//
//	manager := auth.NewCachingIdentityManager(auth.NewIdentityManager(auth.Options{
//		Hierarchy: hierarchy,
//	}), 4096, time.Minute)
//	sids, err := manager.SecurityIdentities(ctx, token)
package auth
