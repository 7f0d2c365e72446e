package auth

import (
	"context"
	"fmt"

	"github.com/platinummonkey/grantor/pkg/contextkeys"
	"github.com/platinummonkey/grantor/pkg/identity"
	"github.com/platinummonkey/grantor/pkg/observability"
	"github.com/platinummonkey/grantor/pkg/rolehierarchy"
)

// Resolver returns the security identities of a token
type Resolver interface {
	SecurityIdentities(ctx context.Context, token Token) ([]identity.SecurityIdentity, error)
}

// Toggler is the permission switch turned off while identities are resolved
type Toggler interface {
	IsEnabled() bool
	SetEnabled(enabled bool)
}

// Event is passed to pre and post hooks. Pre hooks may seed
// SecurityIdentities and change PermissionEnabled.
type Event struct {
	Token              Token
	SecurityIdentities []identity.SecurityIdentity
	PermissionEnabled  bool
}

// PreHook runs before identities are resolved
type PreHook func(ctx context.Context, event *Event)

// AddHook returns the working list with its own identities added
type AddHook func(ctx context.Context, token Token, sids []identity.SecurityIdentity) ([]identity.SecurityIdentity, error)

// PostHook observes the final list
type PostHook func(ctx context.Context, event *Event)

// Options configures an IdentityManager
type Options struct {
	Hierarchy     rolehierarchy.Resolver
	TrustResolver TrustResolver
	SpecialRoles  []string
	Toggler       Toggler
	Logger        *observability.Logger
}

// IdentityManager resolves the security identities of tokens
type IdentityManager struct {
	hierarchy    rolehierarchy.Resolver
	trust        TrustResolver
	specialRoles []string
	toggler      Toggler
	logger       *observability.Logger

	preHooks  []PreHook
	addHooks  []AddHook
	postHooks []PostHook
}

// NewIdentityManager creates an identity manager
func NewIdentityManager(opts Options) *IdentityManager {
	m := &IdentityManager{
		hierarchy:    opts.Hierarchy,
		trust:        opts.TrustResolver,
		specialRoles: append([]string(nil), opts.SpecialRoles...),
		toggler:      opts.Toggler,
		logger:       opts.Logger,
	}
	if m.trust == nil {
		m.trust = DefaultTrustResolver{}
	}
	if m.logger == nil {
		m.logger = observability.NopLogger()
	}
	return m
}

// AddPreHook appends a pre hook
func (m *IdentityManager) AddPreHook(hook PreHook) {
	m.preHooks = append(m.preHooks, hook)
}

// AddIdentitiesHook appends an add hook
func (m *IdentityManager) AddIdentitiesHook(hook AddHook) {
	m.addHooks = append(m.addHooks, hook)
}

// AddPostHook appends a post hook
func (m *IdentityManager) AddPostHook(hook PostHook) {
	m.postHooks = append(m.postHooks, hook)
}

// AddSpecialRole registers a role given to every token
func (m *IdentityManager) AddSpecialRole(role string) {
	for _, r := range m.specialRoles {
		if r == role {
			return
		}
	}
	m.specialRoles = append(m.specialRoles, role)
}

// SetToggler sets the permission switch turned off during resolution
func (m *IdentityManager) SetToggler(toggler Toggler) {
	m.toggler = toggler
}

// SecurityIdentities returns the ordered identities of token
func (m *IdentityManager) SecurityIdentities(ctx context.Context, token Token) ([]identity.SecurityIdentity, error) {
	if token == nil {
		return []identity.SecurityIdentity{}, nil
	}

	event := &Event{Token: token, PermissionEnabled: true}
	if m.toggler != nil {
		event.PermissionEnabled = m.toggler.IsEnabled()
	}
	for _, hook := range m.preHooks {
		hook(ctx, event)
	}

	if m.toggler != nil {
		m.toggler.SetEnabled(false)
		defer func() { m.toggler.SetEnabled(event.PermissionEnabled) }()
	}

	sids, err := m.resolve(ctx, token, event.SecurityIdentities)
	if err != nil {
		return nil, err
	}

	event.SecurityIdentities = sids
	for _, hook := range m.postHooks {
		hook(ctx, event)
	}
	contextkeys.SetPermissionEnabled(ctx, event.PermissionEnabled)
	return event.SecurityIdentities, nil
}

func (m *IdentityManager) resolve(ctx context.Context, token Token, seed []identity.SecurityIdentity) ([]identity.SecurityIdentity, error) {
	sids := append([]identity.SecurityIdentity(nil), seed...)

	if !m.trust.IsAnonymous(token) {
		if sid, err := identity.UserIdentityFrom(token.User()); err == nil {
			sids = identity.Merge(sids, []identity.SecurityIdentity{sid})
		} else {
			m.logger.WithError(err).Debug("skipped user identity")
		}
	}

	roles := token.RoleNames()
	if m.hierarchy != nil && len(roles) > 0 {
		reachable, err := m.hierarchy.ReachableRoles(ctx, roles)
		if err != nil {
			return nil, fmt.Errorf("failed to expand token roles: %w", err)
		}
		roles = reachable
	}
	sids = identity.Merge(sids, identity.RoleIdentities(roles))

	for _, hook := range m.addHooks {
		added, err := hook(ctx, token, sids)
		if err != nil {
			return nil, err
		}
		sids = added
	}

	present := make(map[string]struct{})
	for _, role := range identity.FilterRoles(sids) {
		present[role] = struct{}{}
	}
	for _, role := range m.specialRoles {
		if _, ok := present[role]; !ok {
			sids = append(sids, identity.RoleIdentity(role))
			present[role] = struct{}{}
		}
	}

	return identity.Merge(sids, identity.RoleIdentities(trustRoles(m.trust, token))), nil
}
