package orgs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/grantor/pkg/auth"
	"github.com/platinummonkey/grantor/pkg/identity"
	"github.com/platinummonkey/grantor/pkg/rolehierarchy"
	"github.com/platinummonkey/grantor/pkg/testfixtures"
)

func identifiers(sids []identity.SecurityIdentity) []string {
	out := make([]string, 0, len(sids))
	for _, sid := range sids {
		out = append(out, sid.Kind.String()+":"+sid.Identifier)
	}
	return out
}

func fixtures() (*testfixtures.MockUser, *testfixtures.MockOrganization, *testfixtures.MockOrganization) {
	user := &testfixtures.MockUser{Username: "user.test", Roles: []string{"ROLE_USER"}}
	acme := &testfixtures.MockOrganization{ID: "org-1", Name: "acme", Roles: []string{"ROLE_MEMBER"}}
	globex := &testfixtures.MockOrganization{ID: "org-2", Name: "globex"}

	acmeUser := testfixtures.NewOrganizationUser("ou-1", acme, user, "ROLE_ADMIN", "ROLE_MEMBER")
	acmeUser.GroupList = []*testfixtures.MockGroup{{Name: "editors"}}
	testfixtures.NewOrganizationUser("ou-2", globex, user, "ROLE_VIEWER")
	return user, acme, globex
}

func TestIdentities_AllOrganizations(t *testing.T) {
	user, _, _ := fixtures()
	hierarchy := rolehierarchy.Static{"ROLE_ADMIN": {"ROLE_EDITOR"}}

	sids, err := Identities(context.Background(), user, nil, hierarchy)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"organization:acme",
		"group:editors__acme",
		"role:ROLE_ADMIN__acme",
		"role:ROLE_MEMBER__acme",
		"role:ROLE_EDITOR__acme",
		"organization:globex",
		"role:ROLE_VIEWER__globex",
	}, identifiers(sids))
}

func TestIdentities_CurrentOrganization(t *testing.T) {
	user, acme, _ := fixtures()
	orgCtx := NewContext(acme, user.Organizations[0])

	sids, err := Identities(context.Background(), user, orgCtx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"organization:acme",
		"group:editors__acme",
		"role:ROLE_ADMIN__acme",
		"role:ROLE_MEMBER__acme",
	}, identifiers(sids))
}

func TestIdentities_PersonalOrganizationFallback(t *testing.T) {
	personal := &testfixtures.MockOrganization{ID: "org-3", Name: "user.test", Roles: []string{"ROLE_OWNER"}, UserOrg: true}

	sids, err := Identities(context.Background(), &testfixtures.MockUser{Username: "user.test"}, NewContext(personal, nil), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"organization:user.test", "role:ROLE_OWNER"}, identifiers(sids))

	team := &testfixtures.MockOrganization{ID: "org-4", Name: "team", Roles: []string{"ROLE_OWNER"}}
	sids, err = Identities(context.Background(), &testfixtures.MockUser{Username: "user.test"}, NewContext(team, nil), nil)
	require.NoError(t, err)
	assert.Empty(t, sids)
}

func TestIdentities_UnsupportedUser(t *testing.T) {
	sids, err := Identities(context.Background(), "not-a-user", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, sids)

	sids, err = Identities(context.Background(), &testfixtures.MockUser{Username: "loner"}, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, sids)
}

func TestAddIdentitiesHook(t *testing.T) {
	user, acme, _ := fixtures()
	user.GroupList = []*testfixtures.MockGroup{{Name: "staff"}}

	manager := auth.NewIdentityManager(auth.Options{})
	manager.AddIdentitiesHook(AddIdentitiesHook(nil))

	ctx := WithContext(context.Background(), NewContext(acme, user.Organizations[0]))
	sids, err := manager.SecurityIdentities(ctx, auth.NewToken(user, "ROLE_USER"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"user:user.test",
		"role:ROLE_USER",
		"group:staff",
		"organization:acme",
		"group:editors__acme",
		"role:ROLE_ADMIN__acme",
		"role:ROLE_MEMBER__acme",
		"role:" + auth.RoleAuthenticatedFully,
		"role:" + auth.RoleAuthenticatedRemembered,
		"role:" + auth.RoleAuthenticatedAnonymous,
	}, identifiers(sids))

	sids, err = manager.SecurityIdentities(context.Background(), auth.NewAnonymousToken())
	require.NoError(t, err)
	assert.Equal(t, []string{"role:" + auth.RoleAuthenticatedAnonymous}, identifiers(sids))
}

func TestContext(t *testing.T) {
	_, acme, _ := fixtures()

	_, ok := FromContext(context.Background())
	assert.False(t, ok)
	_, ok = FromContext(WithContext(context.Background(), NewContext(nil, nil)))
	assert.False(t, ok)

	ctx := WithContext(context.Background(), NewContext(acme, nil))
	orgCtx, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "org-1", orgCtx.CacheScope())
	assert.Equal(t, "org-1", rolehierarchy.Scope(ctx))
	assert.Equal(t, "org-1", CacheKeyContributor(ctx))

	personal := &testfixtures.MockOrganization{ID: "org-3", Name: "me", UserOrg: true}
	assert.Equal(t, rolehierarchy.UserScope, NewContext(personal, nil).CacheScope())
	assert.Equal(t, rolehierarchy.UserScope, (*Context)(nil).CacheScope())
	assert.Equal(t, "", CacheKeyContributor(context.Background()))

	user, _, _ := fixtures()
	ctx = WithContext(context.Background(), NewContext(acme, user.Organizations[0]))
	assert.Equal(t, "org-1/ou-1", CacheKeyContributor(ctx))
}
