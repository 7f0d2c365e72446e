package identity

import (
	"reflect"
	"sync"
)

// UserAccount is implemented by user objects able to provide a security identity
type UserAccount interface {
	UserIdentifier() string
}

// RoleAccount is implemented by role objects
type RoleAccount interface {
	RoleName() string
}

// GroupAccount is implemented by group objects
type GroupAccount interface {
	GroupName() string
}

// OrganizationAccount is implemented by organization objects
type OrganizationAccount interface {
	OrganizationName() string
}

// Roleable objects carry role names (users, organization users, organizations)
type Roleable interface {
	RoleNames() []string
}

// Groupable objects belong to groups
type Groupable interface {
	Groups() []GroupAccount
}

// HierarchicalRole is a role with child roles it implies
type HierarchicalRole interface {
	RoleAccount
	ChildNames() []string
}

// Organization is an organization with its own roles
type Organization interface {
	OrganizationAccount
	Roleable
	OrganizationID() string
	// IsUserOrganization reports whether the organization is the personal
	// organization of a single user.
	IsUserOrganization() bool
}

// Organizational objects are owned by an organization. A nil organization
// means the object belongs to no organization.
type Organizational interface {
	Organization() Organization
}

// OrganizationUser is the membership of a user in an organization
type OrganizationUser interface {
	Organizational
	Roleable
	OrganizationUser() UserAccount
}

// OrganizationalUser is a user that can belong to organizations
type OrganizationalUser interface {
	UserAccount
	UserOrganizations() []OrganizationUser
}

// Capability is a bit set of the capability interfaces an object implements
type Capability uint32

const (
	CapUser Capability = 1 << iota
	CapRole
	CapGroup
	CapOrganization
	CapRoleable
	CapGroupable
	CapHierarchicalRole
	CapOrganizational
	CapOrganizationUser
	CapOrganizationalUser
	CapSubjectIdentifiable
	CapIdentifiable
)

// Has reports whether all capabilities of c2 are present in c
func (c Capability) Has(c2 Capability) bool {
	return c&c2 == c2
}

var capabilityCache sync.Map // reflect.Type -> Capability

// CapabilitiesOf returns the capability set of obj. Interface satisfaction is a
// property of the dynamic type, so the set is computed once per type.
func CapabilitiesOf(obj any) Capability {
	if obj == nil {
		return 0
	}
	t := reflect.TypeOf(obj)
	if cached, ok := capabilityCache.Load(t); ok {
		return cached.(Capability)
	}

	var c Capability
	if _, ok := obj.(UserAccount); ok {
		c |= CapUser
	}
	if _, ok := obj.(RoleAccount); ok {
		c |= CapRole
	}
	if _, ok := obj.(GroupAccount); ok {
		c |= CapGroup
	}
	if _, ok := obj.(Organization); ok {
		c |= CapOrganization
	}
	if _, ok := obj.(Roleable); ok {
		c |= CapRoleable
	}
	if _, ok := obj.(Groupable); ok {
		c |= CapGroupable
	}
	if _, ok := obj.(HierarchicalRole); ok {
		c |= CapHierarchicalRole
	}
	if _, ok := obj.(Organizational); ok {
		c |= CapOrganizational
	}
	if _, ok := obj.(OrganizationUser); ok {
		c |= CapOrganizationUser
	}
	if _, ok := obj.(OrganizationalUser); ok {
		c |= CapOrganizationalUser
	}
	if _, ok := obj.(SubjectIdentifiable); ok {
		c |= CapSubjectIdentifiable
	}
	if _, ok := obj.(Identifiable); ok {
		c |= CapIdentifiable
	}

	capabilityCache.Store(t, c)
	return c
}

// Typed lets an object choose its own subject type tag
type Typed interface {
	SubjectType() string
}

var typeNameCache sync.Map // reflect.Type -> string

// TypeOf returns the type tag of an object: SubjectType() when implemented,
// otherwise the name of the Go type with pointers removed.
func TypeOf(obj any) string {
	if obj == nil {
		return ""
	}
	if typed, ok := obj.(Typed); ok {
		return typed.SubjectType()
	}
	t := reflect.TypeOf(obj)
	if cached, ok := typeNameCache.Load(t); ok {
		return cached.(string)
	}
	base := t
	for base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	name := base.Name()
	if name == "" {
		name = base.String()
	}
	typeNameCache.Store(t, name)
	return name
}
