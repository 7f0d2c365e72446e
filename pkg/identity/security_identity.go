package identity

import (
	"fmt"
	"strings"
)

// Kind is the variant of a security identity
type Kind int

const (
	KindUser Kind = iota + 1
	KindRole
	KindGroup
	KindOrganization
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindRole:
		return "role"
	case KindGroup:
		return "group"
	case KindOrganization:
		return "organization"
	default:
		return "unknown"
	}
}

// RoleType is the canonical type tag of role identities built from a bare role name.
const RoleType = "role"

// SecurityIdentity is a principal reference: a user, a role, a group or an organization.
// Two identities are equal when kind, type and identifier match.
type SecurityIdentity struct {
	Kind       Kind   `json:"kind"`
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
}

// NewSecurityIdentity validates and builds a security identity
func NewSecurityIdentity(kind Kind, typ, identifier string) (SecurityIdentity, error) {
	if typ == "" {
		return SecurityIdentity{}, ErrEmptyType
	}
	if identifier == "" {
		return SecurityIdentity{}, ErrEmptyIdentifier
	}
	return SecurityIdentity{Kind: kind, Type: typ, Identifier: identifier}, nil
}

// NewUserIdentity builds a user security identity
func NewUserIdentity(typ, username string) (SecurityIdentity, error) {
	return NewSecurityIdentity(KindUser, typ, username)
}

// NewRoleIdentity builds a role security identity. The generic role markers
// ("", "role", "Role") are normalized to RoleType.
func NewRoleIdentity(typ, name string) (SecurityIdentity, error) {
	return NewSecurityIdentity(KindRole, normalizeRoleType(typ), name)
}

// NewGroupIdentity builds a group security identity
func NewGroupIdentity(typ, name string) (SecurityIdentity, error) {
	return NewSecurityIdentity(KindGroup, typ, name)
}

// NewOrganizationIdentity builds an organization security identity
func NewOrganizationIdentity(typ, name string) (SecurityIdentity, error) {
	return NewSecurityIdentity(KindOrganization, typ, name)
}

// RoleIdentity builds a role identity for a bare role name. It panics on an empty
// name and is meant for constants and tests.
func RoleIdentity(name string) SecurityIdentity {
	sid, err := NewRoleIdentity(RoleType, name)
	if err != nil {
		panic(fmt.Sprintf("identity: role identity %q: %v", name, err))
	}
	return sid
}

func normalizeRoleType(typ string) string {
	if typ == "" || strings.EqualFold(typ, RoleType) {
		return RoleType
	}
	return typ
}

// Equals reports whether both identities reference the same principal
func (s SecurityIdentity) Equals(other SecurityIdentity) bool {
	return s.Kind == other.Kind && s.Type == other.Type && s.Identifier == other.Identifier
}

// IsRole reports whether the identity is role shaped
func (s SecurityIdentity) IsRole() bool {
	return s.Kind == KindRole
}

// String returns a representation such as "role(ROLE_USER)"
func (s SecurityIdentity) String() string {
	return fmt.Sprintf("%s(%s:%s)", s.Kind, s.Type, s.Identifier)
}

// UserIdentityFrom derives a user identity from a domain object
func UserIdentityFrom(obj any) (SecurityIdentity, error) {
	account, ok := obj.(UserAccount)
	if !ok {
		return SecurityIdentity{}, fmt.Errorf("%w: %T is not a user account", ErrUnsupportedAccount, obj)
	}
	return NewUserIdentity(TypeOf(obj), account.UserIdentifier())
}

// RoleIdentityFrom derives a role identity from a domain object
func RoleIdentityFrom(obj any) (SecurityIdentity, error) {
	account, ok := obj.(RoleAccount)
	if !ok {
		return SecurityIdentity{}, fmt.Errorf("%w: %T is not a role", ErrUnsupportedAccount, obj)
	}
	return NewRoleIdentity(TypeOf(obj), account.RoleName())
}

// GroupIdentityFrom derives a group identity from a domain object
func GroupIdentityFrom(obj any) (SecurityIdentity, error) {
	account, ok := obj.(GroupAccount)
	if !ok {
		return SecurityIdentity{}, fmt.Errorf("%w: %T is not a group", ErrUnsupportedAccount, obj)
	}
	return NewGroupIdentity(TypeOf(obj), account.GroupName())
}

// OrganizationIdentityFrom derives an organization identity from a domain object
func OrganizationIdentityFrom(obj any) (SecurityIdentity, error) {
	account, ok := obj.(OrganizationAccount)
	if !ok {
		return SecurityIdentity{}, fmt.Errorf("%w: %T is not an organization", ErrUnsupportedAccount, obj)
	}
	return NewOrganizationIdentity(TypeOf(obj), account.OrganizationName())
}

// OrganizationRoleName returns the organization scoped name of a role: ROLE__org
func OrganizationRoleName(role, organization string) string {
	return role + OrganizationSeparator + organization
}

// OrganizationSeparator joins a role or group name with its organization name
const OrganizationSeparator = "__"

// SplitOrganizationRole splits an organization scoped role name. ok is false
// when the name carries no organization suffix.
func SplitOrganizationRole(name string) (role, organization string, ok bool) {
	idx := strings.LastIndex(name, OrganizationSeparator)
	if idx <= 0 || idx+len(OrganizationSeparator) >= len(name) {
		return name, "", false
	}
	return name[:idx], name[idx+len(OrganizationSeparator):], true
}
