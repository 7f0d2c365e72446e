package sharing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/grantor/pkg/identity"
	"github.com/platinummonkey/grantor/pkg/model"
	"github.com/platinummonkey/grantor/pkg/observability"
)

const (
	managerName = "sharing"
	globalKey   = "_global"
)

// Options configures a Manager
type Options struct {
	SubjectConfigs   []SubjectConfig
	IdentityConfigs  []IdentityConfig
	IdentityResolver IdentityResolver
	Logger           *observability.Logger
	Metrics          *observability.Metrics
	Tracer           trace.Tracer
}

// Manager caches and evaluates sharing grants for one request or unit of
// work. It is not safe for concurrent use.
type Manager struct {
	provider Provider
	enabled  bool

	subjectConfigs   map[string]SubjectConfig
	identityConfigs  map[string]IdentityConfig
	identityAliases  map[string]string
	identityRoleable bool
	identityGranted  bool
	visibilities     map[string]Visibility

	// subject cache id -> class key -> field key -> operation
	sharing map[string]map[string]map[string]map[string]bool
	// subject cache id -> role names of its entries
	roleSharing map[string]map[string]struct{}
	// subject cache id -> loaded entries and their operations
	subjectSharing map[string]*subjectSharing

	resolver IdentityResolver
	// identities the cached entries were loaded for
	sids        []identity.SecurityIdentity
	identityKey string
	toggleHooks []ToggleHook

	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// NewManager creates an enabled sharing manager
func NewManager(provider Provider, opts Options) (*Manager, error) {
	m := &Manager{
		provider:        provider,
		enabled:         true,
		subjectConfigs:  make(map[string]SubjectConfig),
		identityConfigs: make(map[string]IdentityConfig),
		identityAliases: make(map[string]string),
		visibilities:    make(map[string]Visibility),
		resolver:        opts.IdentityResolver,
		logger:          opts.Logger,
		metrics:         opts.Metrics,
		tracer:          opts.Tracer,
	}
	if m.logger == nil {
		m.logger = observability.NopLogger()
	}
	m.Clear()

	for _, config := range opts.SubjectConfigs {
		m.AddSubjectConfig(config)
	}
	for _, config := range opts.IdentityConfigs {
		if err := m.AddIdentityConfig(config); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// AddSubjectConfig registers or replaces the config of a subject type
func (m *Manager) AddSubjectConfig(config SubjectConfig) {
	m.subjectConfigs[config.Type] = config
	m.visibilities = make(map[string]Visibility)
}

// HasSubjectConfig reports whether a subject type is configured
func (m *Manager) HasSubjectConfig(typ string) bool {
	_, ok := m.subjectConfigs[typ]
	return ok
}

// GetSubjectConfig returns the config of a subject type
func (m *Manager) GetSubjectConfig(typ string) (SubjectConfig, error) {
	config, ok := m.subjectConfigs[typ]
	if !ok {
		return SubjectConfig{}, fmt.Errorf("%w: %s", ErrSubjectConfigNotFound, typ)
	}
	return config, nil
}

// SubjectConfigs returns the registered subject configs
func (m *Manager) SubjectConfigs() []SubjectConfig {
	configs := make([]SubjectConfig, 0, len(m.subjectConfigs))
	for _, config := range m.subjectConfigs {
		configs = append(configs, config)
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].Type < configs[j].Type })
	return configs
}

// AddIdentityConfig registers the config of an identity type. An alias may
// only belong to one identity type.
func (m *Manager) AddIdentityConfig(config IdentityConfig) error {
	if config.Alias == "" {
		config.Alias = config.Type
	}
	if owner, ok := m.identityAliases[config.Alias]; ok && owner != config.Type {
		return fmt.Errorf("%w: %q is used by %s", ErrDuplicateAlias, config.Alias, owner)
	}
	if previous, ok := m.identityConfigs[config.Type]; ok {
		delete(m.identityAliases, previous.Alias)
	}

	m.identityConfigs[config.Type] = config
	m.identityAliases[config.Alias] = config.Type
	m.identityRoleable = m.identityRoleable || config.Roleable
	m.identityGranted = m.identityGranted || config.Permissible
	return nil
}

// HasIdentityConfig reports whether an identity type is configured
func (m *Manager) HasIdentityConfig(typ string) bool {
	_, ok := m.identityConfigs[typ]
	return ok
}

// GetIdentityConfig returns the config of an identity type
func (m *Manager) GetIdentityConfig(typ string) (IdentityConfig, error) {
	config, ok := m.identityConfigs[typ]
	if !ok {
		return IdentityConfig{}, fmt.Errorf("%w: %s", ErrIdentityConfigNotFound, typ)
	}
	return config, nil
}

// IdentityTypeByAlias resolves an identity alias to its type
func (m *Manager) IdentityTypeByAlias(alias string) (string, error) {
	typ, ok := m.identityAliases[alias]
	if !ok {
		return "", fmt.Errorf("%w: alias %s", ErrIdentityConfigNotFound, alias)
	}
	return typ, nil
}

// HasIdentityRoleable reports whether an identity type may carry roles
func (m *Manager) HasIdentityRoleable() bool {
	return m.identityRoleable
}

// HasIdentityPermissible reports whether an identity type may carry operations
func (m *Manager) HasIdentityPermissible() bool {
	return m.identityGranted
}

// SharingVisibility returns the visibility of the subject type, VisibilityNone
// when it has no config
func (m *Manager) SharingVisibility(subject identity.SubjectIdentity) Visibility {
	if v, ok := m.visibilities[subject.Type]; ok {
		return v
	}
	m.cacheSubjectVisibilities()
	if v, ok := m.visibilities[subject.Type]; ok {
		return v
	}
	m.visibilities[subject.Type] = VisibilityNone
	return VisibilityNone
}

func (m *Manager) cacheSubjectVisibilities() {
	for typ, config := range m.subjectConfigs {
		visibility := config.Visibility
		if visibility == "" {
			visibility = VisibilityNone
		}
		m.visibilities[typ] = visibility
	}
}

// IsEnabled reports whether sharing grants are consulted
func (m *Manager) IsEnabled() bool {
	return m.enabled
}

// SetEnabled toggles the manager and runs the toggle hooks on change
func (m *Manager) SetEnabled(enabled bool) {
	if m.enabled == enabled {
		return
	}
	m.enabled = enabled
	for _, hook := range m.toggleHooks {
		hook(enabled)
	}
}

// AddToggleHook appends a hook run when the manager is enabled or disabled
func (m *Manager) AddToggleHook(hook ToggleHook) {
	m.toggleHooks = append(m.toggleHooks, hook)
}

// PreloadPermissions loads in one batch the entries of the objects not yet
// cached, then resolves their roles. Objects that are not subjects, class
// subjects and types without visibility are skipped. The caches are dropped
// when the resolver returns other identities than the ones they were loaded
// for.
func (m *Manager) PreloadPermissions(ctx context.Context, objects []any) error {
	subjects := m.subjects(objects)

	if m.identityGranted {
		if err := m.resolveIdentities(ctx); err != nil {
			return err
		}
		var pending []identity.SubjectIdentity
		for _, s := range subjects {
			if _, cached := m.subjectSharing[s.CacheID()]; cached {
				continue
			}
			if m.SharingVisibility(s) == VisibilityNone {
				continue
			}
			pending = append(pending, s)
		}
		if len(pending) > 0 {
			if err := m.loadSharings(ctx, pending); err != nil {
				return err
			}
		}
	}

	return m.PreloadRolePermissions(ctx, subjects)
}

func (m *Manager) resolveIdentities(ctx context.Context) error {
	if m.resolver == nil {
		return nil
	}
	sids, err := m.resolver(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve sharing identities: %w", err)
	}
	key := identitiesKey(sids)
	if key == m.identityKey {
		return nil
	}
	if m.identityKey != "" {
		m.logger.WithField("identities", len(sids)).Debug("sharing identities changed, dropping cache")
		m.Clear()
	}
	m.sids = sids
	m.identityKey = key
	return nil
}

func (m *Manager) loadSharings(ctx context.Context, subjects []identity.SubjectIdentity) error {
	started := time.Now()
	ctx, span := observability.StartSpan(ctx, m.tracer, "sharing.sharing_entries",
		attribute.Int("grantor.subjects", len(subjects)))
	logger := observability.UpdateLoggerWithTraceContext(ctx, m.logger)
	entries, err := m.provider.SharingEntries(ctx, subjects, m.sids)
	observability.EndSpan(span, err)
	m.metrics.RecordFetch(managerName, "sharing_entries", err, started)
	if err != nil {
		return fmt.Errorf("failed to load sharing entries: %w", err)
	}

	for _, s := range subjects {
		m.subjectSharing[s.CacheID()] = &subjectSharing{operations: make(map[string]struct{})}
	}
	for _, entry := range entries {
		ss, ok := m.subjectSharing[entry.SubjectCacheID()]
		if !ok {
			continue
		}
		ss.sharings = append(ss.sharings, entry)
		for _, p := range entry.Permissions {
			ss.operations[p.Operation] = struct{}{}
		}
	}

	logger.WithFields(map[string]interface{}{
		"subjects": len(subjects),
		"entries":  len(entries),
	}).Debug("loaded sharing entries")
	return nil
}

// PreloadRolePermissions resolves the roles of the loaded entries of subjects
// into permissions, fetching every pending role in one batch
func (m *Manager) PreloadRolePermissions(ctx context.Context, subjects []identity.SubjectIdentity) error {
	if !m.identityRoleable {
		return nil
	}

	var pending []identity.SubjectIdentity
	roleSet := make(map[string]struct{})
	for _, s := range subjects {
		id := s.CacheID()
		ss, ok := m.subjectSharing[id]
		if !ok {
			continue
		}
		if _, resolved := m.sharing[id]; resolved {
			continue
		}
		if _, seen := m.roleSharing[id]; !seen {
			roles := make(map[string]struct{})
			for _, entry := range ss.sharings {
				for _, role := range entry.Roles {
					roles[role] = struct{}{}
				}
			}
			m.roleSharing[id] = roles
		}
		for role := range m.roleSharing[id] {
			roleSet[role] = struct{}{}
		}
		pending = append(pending, s)
	}
	if len(pending) == 0 {
		return nil
	}

	var roles []model.Role
	if len(roleSet) > 0 {
		names := make([]string, 0, len(roleSet))
		for role := range roleSet {
			names = append(names, role)
		}
		sort.Strings(names)

		var err error
		started := time.Now()
		spanCtx, span := observability.StartSpan(ctx, m.tracer, "sharing.permission_roles",
			attribute.Int("grantor.roles", len(names)))
		roles, err = m.provider.PermissionRoles(spanCtx, names)
		observability.EndSpan(span, err)
		m.metrics.RecordFetch(managerName, "permission_roles", err, started)
		if err != nil {
			return fmt.Errorf("failed to load sharing roles: %w", err)
		}
	}

	for _, s := range pending {
		id := s.CacheID()
		grants := make(map[string]map[string]map[string]bool)
		for _, role := range roles {
			if _, ok := m.roleSharing[id][role.Name]; !ok {
				continue
			}
			for _, p := range role.Permissions {
				fieldKey := mapKey(p.Field)
				if grants[s.Type] == nil {
					grants[s.Type] = make(map[string]map[string]bool)
				}
				if grants[s.Type][fieldKey] == nil {
					grants[s.Type][fieldKey] = make(map[string]bool)
				}
				grants[s.Type][fieldKey][p.Operation] = true
			}
		}
		m.sharing[id] = grants
	}
	return nil
}

// IsGranted reports whether a sharing entry grants operation on subject.
// Field checks are only answered by role sharing.
func (m *Manager) IsGranted(ctx context.Context, operation string, subject *identity.SubjectIdentity, field string) (bool, error) {
	if subject == nil {
		return false, nil
	}
	started := time.Now()
	if err := m.PreloadPermissions(ctx, []any{*subject}); err != nil {
		return false, err
	}

	id := subject.CacheID()
	if m.sharing[id][subject.Type][mapKey(field)][operation] {
		m.metrics.RecordDecision(managerName, "role", true, started)
		return true, nil
	}
	if field == "" {
		if ss, ok := m.subjectSharing[id]; ok {
			if _, granted := ss.operations[operation]; granted {
				m.metrics.RecordDecision(managerName, "direct", true, started)
				return true, nil
			}
		}
	}
	m.metrics.RecordDecision(managerName, "denied", false, started)
	return false, nil
}

// Sharings returns the loaded entries of a subject
func (m *Manager) Sharings(subject identity.SubjectIdentity) []model.SharingEntry {
	if ss, ok := m.subjectSharing[subject.CacheID()]; ok {
		return ss.sharings
	}
	return nil
}

// ResetPreloadPermissions returns the objects to the UNSEEN state. Objects
// that are not subjects are ignored.
func (m *Manager) ResetPreloadPermissions(objects []any) {
	for _, s := range m.subjects(objects) {
		id := s.CacheID()
		delete(m.sharing, id)
		delete(m.roleSharing, id)
		delete(m.subjectSharing, id)
	}
}

// Clear drops the cache of every subject
func (m *Manager) Clear() {
	m.sharing = make(map[string]map[string]map[string]map[string]bool)
	m.roleSharing = make(map[string]map[string]struct{})
	m.subjectSharing = make(map[string]*subjectSharing)
}

// RenameIdentity renames an identity in every entry
func (m *Manager) RenameIdentity(ctx context.Context, identityType, oldName, newName string) error {
	return m.provider.RenameIdentity(ctx, identityType, oldName, newName)
}

// DeleteIdentity deletes every entry granted to an identity
func (m *Manager) DeleteIdentity(ctx context.Context, identityType, name string) error {
	return m.provider.DeleteIdentity(ctx, identityType, name)
}

// Deletes deletes entries by id
func (m *Manager) Deletes(ctx context.Context, ids []string) error {
	return m.provider.Deletes(ctx, ids)
}

// subjects resolves objects to distinct instance subjects
func (m *Manager) subjects(objects []any) []identity.SubjectIdentity {
	seen := make(map[string]struct{}, len(objects))
	subjects := make([]identity.SubjectIdentity, 0, len(objects))
	for _, obj := range objects {
		s, err := identity.SubjectFrom(obj)
		if err != nil || s.IsClass() {
			continue
		}
		if _, ok := seen[s.CacheID()]; ok {
			continue
		}
		seen[s.CacheID()] = struct{}{}
		subjects = append(subjects, s)
	}
	return subjects
}

// identitiesKey is order independent, an empty list keys as "-"
func identitiesKey(sids []identity.SecurityIdentity) string {
	if len(sids) == 0 {
		return "-"
	}
	parts := make([]string, len(sids))
	for i, sid := range sids {
		parts[i] = sid.String()
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func mapKey(value string) string {
	if value == "" {
		return globalKey
	}
	return value
}
