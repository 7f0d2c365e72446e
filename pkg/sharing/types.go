package sharing

import (
	"context"

	"github.com/platinummonkey/grantor/pkg/identity"
	"github.com/platinummonkey/grantor/pkg/model"
)

// Provider supplies and mutates sharing entries
type Provider interface {
	// PermissionRoles returns the named roles with their permissions
	PermissionRoles(ctx context.Context, roles []string) ([]model.Role, error)

	// SharingEntries returns the active entries of subjects. When sids is not
	// empty only entries granted to one of them are returned.
	SharingEntries(ctx context.Context, subjects []identity.SubjectIdentity, sids []identity.SecurityIdentity) ([]model.SharingEntry, error)

	// RenameIdentity renames the identity of every entry granted to it
	RenameIdentity(ctx context.Context, identityType, oldName, newName string) error

	// DeleteIdentity deletes every entry granted to an identity
	DeleteIdentity(ctx context.Context, identityType, name string) error

	// Deletes deletes entries by id
	Deletes(ctx context.Context, ids []string) error
}

// IdentityResolver returns the identities of the current requester, used to
// fetch only the entries granted to them
type IdentityResolver func(ctx context.Context) ([]identity.SecurityIdentity, error)

// ToggleHook is run after the manager is enabled or disabled
type ToggleHook func(enabled bool)

// subjectSharing is the PRELOADED state of a subject
type subjectSharing struct {
	sharings   []model.SharingEntry
	operations map[string]struct{}
}
