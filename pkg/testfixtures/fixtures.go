// Package testfixtures provides domain objects implementing the identity
// capability interfaces, shared by the package tests.
package testfixtures

import "github.com/platinummonkey/grantor/pkg/identity"

// MockObject is a protected object with a generic identifier accessor
type MockObject struct {
	ID   string
	Name string
}

// NewMockObject returns an object with the given name as identifier
func NewMockObject(name string) *MockObject {
	return &MockObject{ID: name, Name: name}
}

func (o *MockObject) GetID() string { return o.ID }

// MockRole is a role with optional children and owning organization
type MockRole struct {
	Name     string
	Children []string
	Org      *MockOrganization
}

func (r *MockRole) RoleName() string     { return r.Name }
func (r *MockRole) ChildNames() []string { return r.Children }
func (r *MockRole) GetID() string        { return r.Name }

func (r *MockRole) Organization() identity.Organization {
	if r.Org == nil {
		return nil
	}
	return r.Org
}

// MockGroup is a group with roles
type MockGroup struct {
	Name  string
	Roles []string
}

func (g *MockGroup) GroupName() string   { return g.Name }
func (g *MockGroup) RoleNames() []string { return g.Roles }
func (g *MockGroup) GetID() string       { return g.Name }

// MockUser is a user that can belong to groups and organizations
type MockUser struct {
	Username      string
	Roles         []string
	GroupList     []*MockGroup
	Organizations []*MockOrganizationUser
}

func (u *MockUser) UserIdentifier() string { return u.Username }
func (u *MockUser) RoleNames() []string    { return u.Roles }
func (u *MockUser) GetID() string          { return u.Username }

func (u *MockUser) Groups() []identity.GroupAccount {
	groups := make([]identity.GroupAccount, 0, len(u.GroupList))
	for _, g := range u.GroupList {
		groups = append(groups, g)
	}
	return groups
}

func (u *MockUser) UserOrganizations() []identity.OrganizationUser {
	orgUsers := make([]identity.OrganizationUser, 0, len(u.Organizations))
	for _, ou := range u.Organizations {
		orgUsers = append(orgUsers, ou)
	}
	return orgUsers
}

// MockOrganization is an organization with its own roles
type MockOrganization struct {
	ID      string
	Name    string
	Roles   []string
	UserOrg bool
}

func (o *MockOrganization) OrganizationName() string { return o.Name }
func (o *MockOrganization) OrganizationID() string   { return o.ID }
func (o *MockOrganization) RoleNames() []string      { return o.Roles }
func (o *MockOrganization) IsUserOrganization() bool { return o.UserOrg }
func (o *MockOrganization) GetID() string            { return o.ID }

// MockOrganizationUser is the membership of a user in an organization
type MockOrganizationUser struct {
	ID        string
	Org       *MockOrganization
	User      *MockUser
	Roles     []string
	GroupList []*MockGroup
}

func (ou *MockOrganizationUser) GetID() string       { return ou.ID }
func (ou *MockOrganizationUser) RoleNames() []string { return ou.Roles }

func (ou *MockOrganizationUser) Organization() identity.Organization {
	if ou.Org == nil {
		return nil
	}
	return ou.Org
}

func (ou *MockOrganizationUser) OrganizationUser() identity.UserAccount {
	if ou.User == nil {
		return nil
	}
	return ou.User
}

func (ou *MockOrganizationUser) Groups() []identity.GroupAccount {
	groups := make([]identity.GroupAccount, 0, len(ou.GroupList))
	for _, g := range ou.GroupList {
		groups = append(groups, g)
	}
	return groups
}

// NewOrganizationUser links a user to an organization with organization roles
func NewOrganizationUser(id string, org *MockOrganization, user *MockUser, roles ...string) *MockOrganizationUser {
	ou := &MockOrganizationUser{ID: id, Org: org, User: user, Roles: roles}
	if user != nil {
		user.Organizations = append(user.Organizations, ou)
	}
	return ou
}
