// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the module must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/grantor/pkg/contextkeys"
//	ctx = contextkeys.WithToken(ctx, token)
//	token := contextkeys.Token(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// TokenKey contains the authenticated token
	// Set by: callers of authz.Session before evaluating permissions
	// Required by: sharing identity resolution, authz.Session
	// Type: auth.Token
	TokenKey Key = "token"

	// OrgContextKey contains the current organizational context
	// Set by: orgs.WithContext
	// Used by: organizational identity expansion, role hierarchy cache prefixes
	// Type: *orgs.Context
	OrgContextKey Key = "org_context"

	// RequestIDKey contains request ID string (UUID)
	// Set by: authz.Session, observability layer
	// Used by: Logger
	// Type: string
	RequestIDKey Key = "request_id"

	// PermissionEnabledKey contains the permission flag carried by the last
	// identity resolution event
	// Set by: authz.Session
	// Written by: auth.IdentityManager, auth.CachingIdentityManager
	// Used by: permission.Manager post load events
	// Type: *bool
	PermissionEnabledKey Key = "permission_enabled"

	// LoggerKey contains *observability.Logger
	// Set by: observability.WithLogger
	// Used by: code that needs structured logging with request context
	// Type: *observability.Logger
	LoggerKey Key = "logger"
)

// WithToken adds the authenticated token to the context
func WithToken(ctx context.Context, token interface{}) context.Context {
	return context.WithValue(ctx, TokenKey, token)
}

// Token retrieves the authenticated token from the context
func Token(ctx context.Context) interface{} {
	return ctx.Value(TokenKey)
}

// WithOrgContext adds the organizational context to the context
func WithOrgContext(ctx context.Context, orgCtx interface{}) context.Context {
	return context.WithValue(ctx, OrgContextKey, orgCtx)
}

// OrgContext retrieves the organizational context
func OrgContext(ctx context.Context) interface{} {
	return ctx.Value(OrgContextKey)
}

// WithPermissionEnabled adds a holder for the permission flag of identity
// resolution, initialized to enabled
func WithPermissionEnabled(ctx context.Context, enabled bool) context.Context {
	return context.WithValue(ctx, PermissionEnabledKey, &enabled)
}

// SetPermissionEnabled records the flag in the holder of ctx, if any
func SetPermissionEnabled(ctx context.Context, enabled bool) {
	if flag, ok := ctx.Value(PermissionEnabledKey).(*bool); ok && flag != nil {
		*flag = enabled
	}
}

// PermissionEnabled returns the recorded flag and whether ctx has a holder
func PermissionEnabled(ctx context.Context) (bool, bool) {
	if flag, ok := ctx.Value(PermissionEnabledKey).(*bool); ok && flag != nil {
		return *flag, true
	}
	return false, false
}
