// Package invalidation decides when role derived caches must be dropped,
// from the changes flushed by a unit of work.
package invalidation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/platinummonkey/grantor/pkg/identity"
	"github.com/platinummonkey/grantor/pkg/observability"
	"github.com/platinummonkey/grantor/pkg/orgs"
	"github.com/platinummonkey/grantor/pkg/rolehierarchy"
)

// Op is the kind of a change
type Op int

const (
	OpInsert Op = iota + 1
	OpUpdate
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Association names whose collection changes invalidate role data
const (
	AssociationChildren = "children"
	AssociationGroups   = "groups"
)

// Change is an object created, updated or deleted by a unit of work. Fields
// lists the changed fields of an update.
type Change struct {
	Op     Op
	Object any
	Fields []string
}

// CollectionChange is an add or remove on an association of Owner
type CollectionChange struct {
	Owner       any
	Association string
}

// HierarchyInvalidator drops cached role reachability, in the given scopes
// when possible
type HierarchyInvalidator interface {
	Invalidate(ctx context.Context, prefixes ...string) error
}

// IdentityInvalidator drops memoized security identities
type IdentityInvalidator interface {
	Invalidate()
}

// Resetter drops the per object caches of a request
type Resetter interface {
	ResetPreloadPermissions(objects []any)
}

// Trigger applies the invalidation rules
type Trigger struct {
	hierarchy  HierarchyInvalidator
	identities IdentityInvalidator
	logger     *observability.Logger
}

// NewTrigger creates a trigger. Either invalidator may be nil.
func NewTrigger(hierarchy HierarchyInvalidator, identities IdentityInvalidator, logger *observability.Logger) *Trigger {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Trigger{hierarchy: hierarchy, identities: identities, logger: logger}
}

// OnFlush invalidates role derived caches when the changes touch roles.
// Eviction is scoped to the owning organizations when an organizational
// context is active, full otherwise. Memoized identities are always dropped.
func (t *Trigger) OnFlush(ctx context.Context, changes []Change, collections []CollectionChange) error {
	scopes := make(map[string]struct{})
	for _, change := range changes {
		if Invalidates(change) {
			scopes[ScopeOf(change.Object)] = struct{}{}
		}
	}
	for _, change := range collections {
		if InvalidatesCollection(change) {
			scopes[ScopeOf(change.Owner)] = struct{}{}
		}
	}
	if len(scopes) == 0 {
		return nil
	}

	if t.identities != nil {
		t.identities.Invalidate()
	}
	if t.hierarchy == nil {
		return nil
	}

	if _, ok := orgs.FromContext(ctx); !ok {
		t.logger.Debug("flushing role hierarchy cache")
		if err := t.hierarchy.Invalidate(ctx); err != nil {
			return fmt.Errorf("failed to invalidate role hierarchy: %w", err)
		}
		return nil
	}

	prefixes := make([]string, 0, len(scopes))
	for scope := range scopes {
		prefixes = append(prefixes, scope)
	}
	sort.Strings(prefixes)
	t.logger.WithField("prefixes", prefixes).Debug("evicting role hierarchy cache scopes")
	if err := t.hierarchy.Invalidate(ctx, prefixes...); err != nil {
		return fmt.Errorf("failed to invalidate role hierarchy: %w", err)
	}
	return nil
}

// AfterCommit drops the per object caches of the committed objects
func (t *Trigger) AfterCommit(_ context.Context, objects []any, resetters ...Resetter) {
	if len(objects) == 0 {
		return
	}
	for _, r := range resetters {
		r.ResetPreloadPermissions(objects)
	}
}

// Invalidates reports whether a change invalidates role derived caches: any
// insert or delete of a user, group, hierarchical role or organization user,
// and updates of their roles (or names, for hierarchical roles and
// organization users).
func Invalidates(change Change) bool {
	caps := identity.CapabilitiesOf(change.Object)
	named := caps.Has(identity.CapHierarchicalRole) || caps.Has(identity.CapOrganizationUser)
	if !named && !caps.Has(identity.CapUser) && !caps.Has(identity.CapGroup) {
		return false
	}
	if change.Op != OpUpdate {
		return true
	}
	for _, field := range change.Fields {
		switch strings.ToLower(field) {
		case "roles":
			return true
		case "name":
			if named {
				return true
			}
		}
	}
	return false
}

// InvalidatesCollection reports whether an association change invalidates
// role derived caches
func InvalidatesCollection(change CollectionChange) bool {
	caps := identity.CapabilitiesOf(change.Owner)
	switch strings.ToLower(change.Association) {
	case AssociationChildren:
		return caps.Has(identity.CapHierarchicalRole)
	case AssociationGroups:
		return caps.Has(identity.CapGroupable)
	}
	return false
}

// ScopeOf returns the cache scope owning obj: the id of its organization, or
// rolehierarchy.UserScope
func ScopeOf(obj any) string {
	if organizational, ok := obj.(identity.Organizational); ok {
		if org := organizational.Organization(); org != nil && !org.IsUserOrganization() {
			return org.OrganizationID()
		}
	}
	return rolehierarchy.UserScope
}
