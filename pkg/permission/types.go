package permission

import (
	"context"

	"github.com/platinummonkey/grantor/pkg/identity"
	"github.com/platinummonkey/grantor/pkg/model"
)

// GlobalKey is the map key used for a missing class or field
const GlobalKey = "_global"

// Provider supplies permission rows
type Provider interface {
	// Permissions returns every permission granted to one of roles
	Permissions(ctx context.Context, roles []string) ([]model.Permission, error)

	// PermissionsBySubject returns the permissions applicable to a subject,
	// or the global permissions when subject is nil
	PermissionsBySubject(ctx context.Context, subject *identity.FieldVote, contexts []string) ([]model.Permission, error)

	// ConfigPermissions returns the config level default permissions
	ConfigPermissions(ctx context.Context, contexts []string) ([]model.Permission, error)

	// MasterClass returns the type of the master of config
	MasterClass(ctx context.Context, config *Config) (string, error)
}

// SharingManager is the sharing grant source consulted after role permissions
type SharingManager interface {
	IsEnabled() bool
	SetEnabled(enabled bool)
	IsGranted(ctx context.Context, operation string, subject *identity.SubjectIdentity, field string) (bool, error)
	PreloadPermissions(ctx context.Context, objects []any) error
	ResetPreloadPermissions(objects []any)
	Clear()
}

// Checking is the state of one permission for a role
type Checking struct {
	Permission model.Permission `json:"permission"`
	Granted    bool             `json:"granted"`
	// Locked permissions come from config and cannot be changed per role
	Locked bool `json:"locked"`
}

// Map is the lookup built from role permissions:
// class key -> field key -> operation -> granted
type Map map[string]map[string]map[string]bool

// MapKey normalizes a class or field to its map key
func MapKey(value string) string {
	if value == "" {
		return GlobalKey
	}
	return value
}

// Add records a granted permission row
func (m Map) Add(p model.Permission) {
	classKey, fieldKey := MapKey(p.Class), MapKey(p.Field)
	if m[classKey] == nil {
		m[classKey] = make(map[string]map[string]bool)
	}
	if m[classKey][fieldKey] == nil {
		m[classKey][fieldKey] = make(map[string]bool)
	}
	m[classKey][fieldKey][p.Operation] = true
}

// Has looks up an exact class and field key
func (m Map) Has(classKey, fieldKey, operation string) bool {
	return m[classKey][fieldKey][operation]
}

// Granted reports whether operation is granted on class and field. Config
// rows apply to every class and field. Global rows also satisfy class level
// checks.
func (m Map) Granted(class, field, operation string) bool {
	classKeys := []string{GlobalKey}
	if class != "" {
		classKeys = []string{class, model.ConfigClass}
		if field == "" {
			classKeys = append(classKeys, GlobalKey)
		}
	}
	fieldKeys := []string{MapKey(field)}
	if field != "" {
		fieldKeys = append(fieldKeys, model.ConfigField)
	}

	for _, classKey := range classKeys {
		for _, fieldKey := range fieldKeys {
			if m.Has(classKey, fieldKey, operation) {
				return true
			}
		}
	}
	return false
}
