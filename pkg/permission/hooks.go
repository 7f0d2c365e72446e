package permission

import (
	"context"

	"github.com/platinummonkey/grantor/pkg/identity"
)

// PreLoadEvent is passed to hooks before role permissions are fetched
type PreLoadEvent struct {
	SecurityIdentities []identity.SecurityIdentity
	Roles              []string
}

// PostLoadEvent exposes the permission map built for a role set
type PostLoadEvent struct {
	SecurityIdentities []identity.SecurityIdentity
	Roles              []string
	Permissions        Map
	PermissionEnabled  bool
}

// CheckEvent is passed to check hooks before role permissions are evaluated.
// A hook may set the decision with SetGranted.
type CheckEvent struct {
	SecurityIdentities []identity.SecurityIdentity
	Permissions        Map
	Operations         []string
	Subject            *identity.SubjectIdentity
	Field              string

	granted *bool
}

// SetGranted overrides the decision
func (e *CheckEvent) SetGranted(granted bool) {
	e.granted = &granted
}

// Granted returns the override and whether one was set
func (e *CheckEvent) Granted() (bool, bool) {
	if e.granted == nil {
		return false, false
	}
	return *e.granted, true
}

// PreLoadHook observes role permission loads
type PreLoadHook func(ctx context.Context, event *PreLoadEvent)

// PostLoadHook observes built permission maps
type PostLoadHook func(ctx context.Context, event *PostLoadEvent)

// CheckHook may override a decision. Hooks run in registration order and
// every hook sees the override set by the previous ones.
type CheckHook func(ctx context.Context, event *CheckEvent)
