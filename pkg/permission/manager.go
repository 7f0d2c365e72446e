package permission

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/grantor/pkg/contextkeys"
	"github.com/platinummonkey/grantor/pkg/identity"
	"github.com/platinummonkey/grantor/pkg/model"
	"github.com/platinummonkey/grantor/pkg/observability"
)

const managerName = "permission"

// Options configures a Manager
type Options struct {
	Sharing SharingManager
	Configs []*Config
	Logger  *observability.Logger
	Metrics *observability.Metrics
	Tracer  trace.Tracer
}

// Manager evaluates permissions for one request or unit of work. It is not
// safe for concurrent use.
type Manager struct {
	provider Provider
	sharing  SharingManager
	configs  map[string]*Config
	enabled  bool
	// sharing was enabled and got disabled by SetEnabled(false)
	sharingPaused bool

	// role set key -> permission map
	cache map[string]Map

	preLoadHooks  []PreLoadHook
	postLoadHooks []PostLoadHook
	checkHooks    []CheckHook

	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// NewManager creates an enabled permission manager
func NewManager(provider Provider, opts Options) *Manager {
	m := &Manager{
		provider: provider,
		sharing:  opts.Sharing,
		configs:  make(map[string]*Config),
		enabled:  true,
		cache:    make(map[string]Map),
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		tracer:   opts.Tracer,
	}
	if m.logger == nil {
		m.logger = observability.NopLogger()
	}
	for _, config := range opts.Configs {
		m.AddConfig(config)
	}
	return m
}

// AddConfig registers or replaces the config of a type
func (m *Manager) AddConfig(config *Config) {
	m.configs[config.Type] = config
}

// HasConfig reports whether a config exists for the type, and for the field
// when one is given
func (m *Manager) HasConfig(typ, field string) bool {
	config, ok := m.configs[typ]
	if !ok {
		return false
	}
	return field == "" || config.HasField(field)
}

// GetConfig returns the config of a type
func (m *Manager) GetConfig(typ string) (*Config, error) {
	config, ok := m.configs[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, typ)
	}
	return config, nil
}

// Configs returns the registered configs
func (m *Manager) Configs() map[string]*Config {
	return m.configs
}

// AddPreLoadHook appends a hook run before role permissions are fetched
func (m *Manager) AddPreLoadHook(hook PreLoadHook) {
	m.preLoadHooks = append(m.preLoadHooks, hook)
}

// AddPostLoadHook appends a hook run after a permission map is built
func (m *Manager) AddPostLoadHook(hook PostLoadHook) {
	m.postLoadHooks = append(m.postLoadHooks, hook)
}

// AddCheckHook appends a hook able to override decisions
func (m *Manager) AddCheckHook(hook CheckHook) {
	m.checkHooks = append(m.checkHooks, hook)
}

// IsEnabled reports whether permissions are enforced
func (m *Manager) IsEnabled() bool {
	return m.enabled
}

// SetEnabled toggles enforcement and clears caches on change. Disabling
// pauses an enabled sharing manager; enabling only resumes a sharing manager
// paused that way.
func (m *Manager) SetEnabled(enabled bool) {
	if m.enabled == enabled {
		return
	}
	m.enabled = enabled
	if m.sharing != nil {
		switch {
		case !enabled && m.sharing.IsEnabled():
			m.sharing.SetEnabled(false)
			m.sharingPaused = true
		case enabled && m.sharingPaused:
			m.sharing.SetEnabled(true)
			m.sharingPaused = false
		}
	}
	m.Clear()
}

// IsManaged reports whether a config covers the subject, after master resolution
func (m *Manager) IsManaged(ctx context.Context, subject any) bool {
	s, field, err := identity.SubjectAndField(subject)
	if err != nil || s == nil {
		return false
	}
	s, field, _, err = m.resolveMaster(ctx, s, field, nil)
	if err != nil {
		return false
	}
	return m.HasConfig(s.Type, field)
}

// IsGranted reports whether sids hold any of permissions on subject. subject
// is nil for global permissions, an object, a type name, a SubjectIdentity or
// a FieldVote. Subjects that cannot be resolved are denied without error.
func (m *Manager) IsGranted(ctx context.Context, sids []identity.SecurityIdentity, permissions []string, subject any) (bool, error) {
	started := time.Now()
	granted, source, err := m.isGranted(ctx, sids, permissions, subject)
	if err == nil {
		m.metrics.RecordDecision(managerName, source, granted, started)
	}
	return granted, err
}

func (m *Manager) isGranted(ctx context.Context, sids []identity.SecurityIdentity, permissions []string, subject any) (bool, string, error) {
	if !m.enabled {
		return true, "disabled", nil
	}

	s, field, err := identity.SubjectAndField(subject)
	if err != nil {
		m.logger.WithError(err).Warn("denied permission check on invalid subject")
		return false, "invalid_subject", nil
	}

	operations := make([]string, len(permissions))
	for i, p := range permissions {
		operations[i] = StripPrefix(p)
	}

	if s != nil {
		s, field, operations, err = m.resolveMaster(ctx, s, field, operations)
		if err != nil {
			if errors.Is(err, identity.ErrInvalidSubject) || errors.Is(err, identity.ErrPropertyNotFound) {
				m.logger.WithError(err).Warn("denied permission check on unresolvable master")
				return false, "invalid_subject", nil
			}
			return false, "", err
		}
		if !m.HasConfig(s.Type, field) {
			return true, "unmanaged", nil
		}
		operations = m.realPermissions(operations, s, field)
	}

	return m.doIsGranted(ctx, sids, operations, s, field)
}

func (m *Manager) doIsGranted(ctx context.Context, sids []identity.SecurityIdentity, operations []string, s *identity.SubjectIdentity, field string) (bool, string, error) {
	permissionMap, err := m.rolePermissions(ctx, sids)
	if err != nil {
		return false, "", err
	}

	if len(m.checkHooks) > 0 {
		event := &CheckEvent{
			SecurityIdentities: sids,
			Permissions:        permissionMap,
			Operations:         operations,
			Subject:            s,
			Field:              field,
		}
		for _, hook := range m.checkHooks {
			hook(ctx, event)
		}
		if granted, ok := event.Granted(); ok {
			return granted, "hook", nil
		}
	}

	class := ""
	if s != nil {
		class = s.Type
	}
	for _, operation := range operations {
		if permissionMap.Granted(class, field, operation) {
			return true, "role", nil
		}
	}

	if s != nil && m.sharing != nil && m.sharing.IsEnabled() && len(operations) > 0 {
		granted, err := m.sharing.IsGranted(ctx, operations[0], s, field)
		if err != nil {
			return false, "", fmt.Errorf("failed to check sharing: %w", err)
		}
		if granted {
			return true, "sharing", nil
		}
	}

	return false, "denied", nil
}

// GetRolePermissions lists the permissions applicable to subject with their
// state for role. Operations declared by the config but missing from stored
// rows are looked up in the config permissions and must exist.
func (m *Manager) GetRolePermissions(ctx context.Context, role string, subject any) ([]Checking, error) {
	s, field, err := identity.SubjectAndField(subject)
	if err != nil {
		return nil, err
	}

	contexts := []string{model.ContextRole}
	if _, _, ok := identity.SplitOrganizationRole(role); ok {
		contexts = []string{model.ContextOrganizationRole}
	}

	var vote *identity.FieldVote
	if s != nil {
		vote = &identity.FieldVote{Subject: *s, Field: field}
	}
	rows, err := m.fetch(ctx, "permissions_by_subject", func(ctx context.Context) ([]model.Permission, error) {
		return m.provider.PermissionsBySubject(ctx, vote, contexts)
	})
	if err != nil {
		return nil, err
	}

	sid, err := identity.NewRoleIdentity(identity.RoleType, role)
	if err != nil {
		return nil, err
	}
	permissionMap, err := m.rolePermissions(ctx, []identity.SecurityIdentity{sid})
	if err != nil {
		return nil, err
	}

	class := ""
	if s != nil {
		class = s.Type
	}
	seen := make(map[string]struct{}, len(rows))
	result := make([]Checking, 0, len(rows))
	add := func(p model.Permission) {
		seen[p.Operation] = struct{}{}
		result = append(result, Checking{
			Permission: p,
			Granted:    permissionMap.Granted(class, field, p.Operation),
			Locked:     p.IsConfig(),
		})
	}
	for _, p := range rows {
		if _, ok := seen[p.Operation]; ok {
			continue
		}
		add(p)
	}

	missing := m.missingConfigOperations(s, field, seen)
	if len(missing) == 0 {
		return result, nil
	}

	configRows, err := m.fetch(ctx, "config_permissions", func(ctx context.Context) ([]model.Permission, error) {
		return m.provider.ConfigPermissions(ctx, contexts)
	})
	if err != nil {
		return nil, err
	}
	for _, operation := range missing {
		p, ok := findConfigPermission(configRows, operation, field)
		if !ok {
			return nil, fmt.Errorf("%w: operation %q of %s", ErrRequiredPermissionNotFound, operation, class)
		}
		add(p)
	}
	return result, nil
}

func (m *Manager) missingConfigOperations(s *identity.SubjectIdentity, field string, seen map[string]struct{}) []string {
	if s == nil {
		return nil
	}
	config, ok := m.configs[s.Type]
	if !ok {
		return nil
	}
	var missing []string
	for _, operation := range config.OperationsFor(field) {
		if _, ok := seen[operation]; !ok {
			missing = append(missing, operation)
		}
	}
	return missing
}

func findConfigPermission(rows []model.Permission, operation, field string) (model.Permission, bool) {
	for _, p := range rows {
		if p.Operation != operation {
			continue
		}
		if (field == "" && p.Field == "") || (field != "" && p.Field == model.ConfigField) {
			return p, true
		}
	}
	return model.Permission{}, false
}

// PreloadPermissions loads the sharing grants of objects in one batch
func (m *Manager) PreloadPermissions(ctx context.Context, objects []any) error {
	if m.sharing == nil {
		return nil
	}
	return m.sharing.PreloadPermissions(ctx, objects)
}

// ResetPreloadPermissions drops the sharing grants cached for objects
func (m *Manager) ResetPreloadPermissions(objects []any) {
	if m.sharing != nil {
		m.sharing.ResetPreloadPermissions(objects)
	}
}

// Clear drops every cached permission map and sharing grant
func (m *Manager) Clear() {
	m.cache = make(map[string]Map)
	if m.sharing != nil {
		m.sharing.Clear()
	}
}

// resolveMaster swaps a subject for its master. Field permissions are mapped
// to master class permissions and the field is cleared.
func (m *Manager) resolveMaster(ctx context.Context, s *identity.SubjectIdentity, field string, operations []string) (*identity.SubjectIdentity, string, []string, error) {
	config, ok := m.configs[s.Type]
	if !ok || config.Master == "" {
		return s, field, operations, nil
	}

	master, err := m.masterSubject(ctx, s, config)
	if err != nil {
		return nil, "", nil, err
	}
	if master.Equals(*s) {
		return s, field, operations, nil
	}

	if field != "" {
		mapped := make([]string, len(operations))
		for i, operation := range operations {
			mapped[i] = config.MasterFieldMappingPermission(operation)
		}
		operations = mapped
		field = ""
	}
	return master, field, operations, nil
}

func (m *Manager) masterSubject(ctx context.Context, s *identity.SubjectIdentity, config *Config) (*identity.SubjectIdentity, error) {
	if s.Object != nil && !s.IsClass() {
		value, err := identity.PropertyValue(s.Object, config.Master)
		if err != nil {
			return nil, err
		}
		if value != nil {
			master, err := identity.SubjectFrom(value)
			if err != nil {
				return nil, err
			}
			return &master, nil
		}
	}

	started := time.Now()
	ctx, span := observability.StartSpan(ctx, m.tracer, "permission.master_class",
		attribute.String("grantor.subject_type", s.Type))
	class, err := m.provider.MasterClass(ctx, config)
	observability.EndSpan(span, err)
	m.metrics.RecordFetch(managerName, "master_class", err, started)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMasterNotFound, s.Type, err)
	}
	if class == "" {
		return nil, fmt.Errorf("%w: %s", ErrMasterNotFound, s.Type)
	}
	master := identity.ClassSubject(class)
	return &master, nil
}

// realPermissions translates aliases through the field config when the field
// has one, the type config otherwise
func (m *Manager) realPermissions(operations []string, s *identity.SubjectIdentity, field string) []string {
	config, ok := m.configs[s.Type]
	if !ok {
		return operations
	}
	fieldConfig, hasField := config.GetField(field)

	names := make([]string, len(operations))
	for i, operation := range operations {
		if hasField {
			names[i] = fieldConfig.MappingPermission(operation)
		} else {
			names[i] = config.MappingPermission(operation)
		}
	}
	return names
}

// rolePermissions returns the permission map of the role identities of sids,
// loading it once per role set
func (m *Manager) rolePermissions(ctx context.Context, sids []identity.SecurityIdentity) (Map, error) {
	roles := identity.FilterRoles(sids)
	key := roleSetKey(roles)
	if cached, ok := m.cache[key]; ok {
		m.metrics.RecordCacheLookup(managerName, true)
		return cached, nil
	}
	m.metrics.RecordCacheLookup(managerName, false)

	for _, hook := range m.preLoadHooks {
		hook(ctx, &PreLoadEvent{SecurityIdentities: sids, Roles: roles})
	}

	permissionMap := make(Map)
	if len(roles) > 0 {
		rows, err := m.fetch(ctx, "permissions", func(ctx context.Context) ([]model.Permission, error) {
			return m.provider.Permissions(ctx, roles)
		})
		if err != nil {
			return nil, err
		}
		for _, p := range rows {
			permissionMap.Add(p)
		}
	}

	enabled := m.enabled
	if flag, ok := contextkeys.PermissionEnabled(ctx); ok {
		enabled = flag
	}
	for _, hook := range m.postLoadHooks {
		hook(ctx, &PostLoadEvent{
			SecurityIdentities: sids,
			Roles:              roles,
			Permissions:        permissionMap,
			PermissionEnabled:  enabled,
		})
	}

	m.cache[key] = permissionMap
	return permissionMap, nil
}

func (m *Manager) fetch(ctx context.Context, operation string, fn func(context.Context) ([]model.Permission, error)) (rows []model.Permission, err error) {
	started := time.Now()
	ctx, span := observability.StartSpan(ctx, m.tracer, "permission."+operation)
	defer func() {
		span.SetAttributes(attribute.Int("grantor.rows", len(rows)))
		observability.EndSpan(span, err)
		m.metrics.RecordFetch(managerName, operation, err, started)
	}()

	rows, err = fn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", strings.ReplaceAll(operation, "_", " "), err)
	}
	observability.UpdateLoggerWithTraceContext(ctx, m.logger).WithFields(map[string]interface{}{
		"operation": operation,
		"rows":      len(rows),
	}).Debug("loaded permissions")
	return rows, nil
}

func roleSetKey(roles []string) string {
	sorted := append([]string(nil), roles...)
	sort.Strings(sorted)
	return strings.Join(sorted, "|")
}
