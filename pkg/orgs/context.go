package orgs

import (
	"context"

	"github.com/platinummonkey/grantor/pkg/contextkeys"
	"github.com/platinummonkey/grantor/pkg/identity"
	"github.com/platinummonkey/grantor/pkg/rolehierarchy"
)

// Context is the current organization of a request and the membership of the
// current user in it
type Context struct {
	Organization     identity.Organization
	OrganizationUser identity.OrganizationUser
}

// NewContext creates an organizational context. orgUser may be nil.
func NewContext(org identity.Organization, orgUser identity.OrganizationUser) *Context {
	return &Context{Organization: org, OrganizationUser: orgUser}
}

// IsOrganization reports whether a non personal organization is current
func (c *Context) IsOrganization() bool {
	return c != nil && c.Organization != nil && !c.Organization.IsUserOrganization()
}

// CacheScope is the cache prefix of derived role data: the organization id,
// or rolehierarchy.UserScope outside organizations
func (c *Context) CacheScope() string {
	if !c.IsOrganization() {
		return rolehierarchy.UserScope
	}
	return c.Organization.OrganizationID()
}

// WithContext stores the organizational context in ctx
func WithContext(ctx context.Context, orgCtx *Context) context.Context {
	return contextkeys.WithOrgContext(ctx, orgCtx)
}

// FromContext returns the organizational context of ctx, if any
func FromContext(ctx context.Context) (*Context, bool) {
	orgCtx, ok := contextkeys.OrgContext(ctx).(*Context)
	if !ok || orgCtx == nil || orgCtx.Organization == nil {
		return nil, false
	}
	return orgCtx, true
}

// CacheKeyContributor keys memoized identities by the current membership
func CacheKeyContributor(ctx context.Context) string {
	orgCtx, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	key := orgCtx.Organization.OrganizationID()
	if orgCtx.OrganizationUser != nil {
		if id, ok := orgCtx.OrganizationUser.(identity.Identifiable); ok {
			key += "/" + id.GetID()
		}
	}
	return key
}
