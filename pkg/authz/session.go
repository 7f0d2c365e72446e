package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/grantor/pkg/auth"
	"github.com/platinummonkey/grantor/pkg/contextkeys"
	"github.com/platinummonkey/grantor/pkg/identity"
	"github.com/platinummonkey/grantor/pkg/invalidation"
	"github.com/platinummonkey/grantor/pkg/permission"
	"github.com/platinummonkey/grantor/pkg/sharing"
)

// ErrNoToken is returned when a sharing check runs without a token in context
var ErrNoToken = errors.New("no authentication token in context")

// Session is a request scoped unit of work. Its permission and sharing
// caches live until the session is discarded and are not safe for
// concurrent use. Sharing grants are cached for the identities of the last
// token checked; a check with another token reloads them.
type Session struct {
	ID string

	engine      *Engine
	trigger     *invalidation.Trigger
	permissions *permission.Manager
	sharing     *sharing.Manager
}

// NewSession creates a session bound to the current policy
func (e *Engine) NewSession() (*Session, error) {
	e.mu.RLock()
	policy := e.policy
	configs := e.permConfigs
	trigger := e.trigger
	e.mu.RUnlock()

	s := &Session{
		ID:      uuid.NewString(),
		engine:  e,
		trigger: trigger,
	}

	opts := permission.Options{
		Configs: configs,
		Logger:  e.logger.WithField("session_id", s.ID),
		Metrics: e.metrics,
		Tracer:  e.tracer,
	}
	if e.providers.Sharing != nil {
		manager, err := sharing.NewManager(e.providers.Sharing, sharing.Options{
			SubjectConfigs:   policy.Sharing.Subjects,
			IdentityConfigs:  policy.Sharing.Identities,
			IdentityResolver: e.tokenIdentities,
			Logger:           opts.Logger,
			Metrics:          e.metrics,
			Tracer:           e.tracer,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create sharing manager: %w", err)
		}
		manager.SetEnabled(e.cfg.Authorization.SharingEnabled)
		s.sharing = manager
		opts.Sharing = manager
	}

	s.permissions = permission.NewManager(e.providers.Permissions, opts)
	s.permissions.SetEnabled(e.cfg.Authorization.PermissionsEnabled)
	return s, nil
}

func (e *Engine) tokenIdentities(ctx context.Context) ([]identity.SecurityIdentity, error) {
	token, ok := contextkeys.Token(ctx).(auth.Token)
	if !ok || token == nil {
		return nil, ErrNoToken
	}
	return e.SecurityIdentities(ctx, token)
}

// IsGranted reports whether token holds any of the permissions on subject.
// A nil subject is a global check. The permission flag left by the identity
// pre hooks is reported to the post load hooks.
func (s *Session) IsGranted(ctx context.Context, token auth.Token, permissions []string, subject any) (bool, error) {
	ctx = contextkeys.WithPermissionEnabled(contextkeys.WithToken(ctx, token), true)
	sids, err := s.engine.SecurityIdentities(ctx, token)
	if err != nil {
		return false, fmt.Errorf("failed to resolve security identities: %w", err)
	}
	return s.permissions.IsGranted(ctx, sids, permissions, subject)
}

// IsManaged reports whether subject is under permission control
func (s *Session) IsManaged(ctx context.Context, subject any) bool {
	return s.permissions.IsManaged(ctx, subject)
}

// Preload loads the sharing grants of objects for token in batch
func (s *Session) Preload(ctx context.Context, token auth.Token, objects []any) error {
	return s.permissions.PreloadPermissions(contextkeys.WithToken(ctx, token), objects)
}

// Commit invalidates caches affected by flushed changes, then drops the
// session's sharing grants of the written objects
func (s *Session) Commit(ctx context.Context, changes []invalidation.Change, collections []invalidation.CollectionChange, objects []any) error {
	if err := s.trigger.OnFlush(ctx, changes, collections); err != nil {
		return err
	}
	s.trigger.AfterCommit(ctx, objects, s.permissions)
	return nil
}

// Permissions returns the session permission manager
func (s *Session) Permissions() *permission.Manager {
	return s.permissions
}

// Sharing returns the session sharing manager, nil without a sharing provider
func (s *Session) Sharing() *sharing.Manager {
	return s.sharing
}
