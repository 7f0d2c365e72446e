package orgs

import (
	"context"
	"fmt"

	"github.com/platinummonkey/grantor/pkg/auth"
	"github.com/platinummonkey/grantor/pkg/identity"
	"github.com/platinummonkey/grantor/pkg/rolehierarchy"
)

// Identities returns the organization identities of user. With a current
// organization only that organization is expanded, otherwise every
// organization of the user. Users without organization support yield none.
func Identities(ctx context.Context, user any, orgCtx *Context, hierarchy rolehierarchy.Resolver) ([]identity.SecurityIdentity, error) {
	if orgCtx != nil && orgCtx.Organization != nil {
		return currentIdentities(ctx, orgCtx, hierarchy)
	}

	if !identity.CapabilitiesOf(user).Has(identity.CapOrganizationalUser) {
		return []identity.SecurityIdentity{}, nil
	}

	var sids []identity.SecurityIdentity
	for _, orgUser := range user.(identity.OrganizationalUser).UserOrganizations() {
		if orgUser == nil || orgUser.Organization() == nil {
			continue
		}
		orgSids, err := membershipIdentities(ctx, orgUser.Organization(), orgUser, hierarchy)
		if err != nil {
			return nil, err
		}
		sids = identity.Merge(sids, orgSids)
	}
	if sids == nil {
		sids = []identity.SecurityIdentity{}
	}
	return sids, nil
}

func currentIdentities(ctx context.Context, orgCtx *Context, hierarchy rolehierarchy.Resolver) ([]identity.SecurityIdentity, error) {
	org := orgCtx.Organization
	if orgCtx.OrganizationUser != nil {
		return membershipIdentities(ctx, org, orgCtx.OrganizationUser, hierarchy)
	}
	if !org.IsUserOrganization() {
		return []identity.SecurityIdentity{}, nil
	}

	// a personal organization grants its own roles without suffix
	var sids []identity.SecurityIdentity
	if sid, err := identity.OrganizationIdentityFrom(org); err == nil {
		sids = append(sids, sid)
	}
	roles, err := reachable(ctx, hierarchy, dedupe(org.RoleNames()))
	if err != nil {
		return nil, err
	}
	return identity.Merge(sids, identity.RoleIdentities(roles)), nil
}

func membershipIdentities(ctx context.Context, org identity.Organization, orgUser identity.OrganizationUser, hierarchy rolehierarchy.Resolver) ([]identity.SecurityIdentity, error) {
	orgName := org.OrganizationName()
	var sids []identity.SecurityIdentity

	if sid, err := identity.OrganizationIdentityFrom(org); err == nil {
		sids = append(sids, sid)
	}

	if groupable, ok := orgUser.(identity.Groupable); ok {
		for _, group := range groupable.Groups() {
			sid, err := identity.NewGroupIdentity(identity.TypeOf(group), identity.OrganizationRoleName(group.GroupName(), orgName))
			if err != nil {
				continue
			}
			sids = append(sids, sid)
		}
	}

	names := dedupe(append(append([]string(nil), orgUser.RoleNames()...), org.RoleNames()...))
	roles := make([]string, 0, len(names))
	for _, name := range names {
		roles = append(roles, identity.OrganizationRoleName(name, orgName))
	}
	roles, err := reachable(ctx, hierarchy, roles)
	if err != nil {
		return nil, err
	}
	return identity.Merge(sids, identity.RoleIdentities(roles)), nil
}

// AddIdentitiesHook expands the token user with its group and organization
// identities
func AddIdentitiesHook(hierarchy rolehierarchy.Resolver) auth.AddHook {
	return func(ctx context.Context, token auth.Token, sids []identity.SecurityIdentity) ([]identity.SecurityIdentity, error) {
		user := token.User()
		if user == nil {
			return sids, nil
		}
		sids = identity.Merge(sids, GroupIdentities(user))

		orgCtx, _ := FromContext(ctx)
		orgSids, err := Identities(ctx, user, orgCtx, hierarchy)
		if err != nil {
			return nil, fmt.Errorf("failed to expand organization identities: %w", err)
		}
		return identity.Merge(sids, orgSids), nil
	}
}

// GroupIdentities returns the identities of the groups a user belongs to
// outside organizations
func GroupIdentities(user any) []identity.SecurityIdentity {
	groupable, ok := user.(identity.Groupable)
	if !ok {
		return nil
	}
	var sids []identity.SecurityIdentity
	for _, group := range groupable.Groups() {
		if sid, err := identity.GroupIdentityFrom(group); err == nil {
			sids = append(sids, sid)
		}
	}
	return sids
}

func reachable(ctx context.Context, hierarchy rolehierarchy.Resolver, roles []string) ([]string, error) {
	if hierarchy == nil || len(roles) == 0 {
		return roles, nil
	}
	expanded, err := hierarchy.ReachableRoles(ctx, roles)
	if err != nil {
		return nil, fmt.Errorf("failed to expand organization roles: %w", err)
	}
	return expanded, nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
