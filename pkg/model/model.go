// Package model holds the records exchanged with permission and sharing
// providers.
package model

import "time"

// Permission contexts scope which permission rows apply to an evaluation
const (
	ContextRole             = "role"
	ContextOrganizationRole = "organization_role"
	ContextSharing          = "sharing"
)

// Sentinels tagging config level rows: a row with Class == ConfigClass applies
// to every managed class, a row with Field == ConfigField to every field.
const (
	ConfigClass = "_config_class"
	ConfigField = "_config_field"
)

// Permission is a stored permission row
type Permission struct {
	ID        string   `json:"id"`
	Operation string   `json:"operation"`
	Class     string   `json:"class,omitempty"` // empty for global permissions
	Field     string   `json:"field,omitempty"`
	Contexts  []string `json:"contexts,omitempty"`
	Roles     []string `json:"roles,omitempty"` // names of the roles granted this permission
}

// IsGlobal reports whether the permission is not scoped to a class
func (p Permission) IsGlobal() bool {
	return p.Class == ""
}

// IsConfig reports whether the permission is a config level default row
func (p Permission) IsConfig() bool {
	return p.Class == ConfigClass || p.Field == ConfigField
}

// HasContext reports whether the permission is relevant in one of contexts.
// Rows without contexts are relevant everywhere.
func (p Permission) HasContext(contexts ...string) bool {
	if len(p.Contexts) == 0 || len(contexts) == 0 {
		return true
	}
	for _, want := range contexts {
		for _, have := range p.Contexts {
			if want == have {
				return true
			}
		}
	}
	return false
}

// GrantedTo reports whether the permission is assigned to the role
func (p Permission) GrantedTo(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Role is a role with its permissions loaded
type Role struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Type        string       `json:"type,omitempty"`
	Permissions []Permission `json:"permissions,omitempty"`
	Children    []string     `json:"children,omitempty"`
}

// SharingPermission is a direct operation granted by a sharing entry
type SharingPermission struct {
	Operation string `json:"operation"`
	Field     string `json:"field,omitempty"`
}

// SharingEntry grants operations or roles on one subject instance to one identity
type SharingEntry struct {
	ID            string              `json:"id"`
	SubjectClass  string              `json:"subject_class"`
	SubjectID     string              `json:"subject_id"`
	IdentityClass string              `json:"identity_class"`
	IdentityName  string              `json:"identity_name"`
	Enabled       bool                `json:"enabled"`
	StartedAt     *time.Time          `json:"started_at,omitempty"`
	EndedAt       *time.Time          `json:"ended_at,omitempty"`
	Roles         []string            `json:"roles,omitempty"`
	Permissions   []SharingPermission `json:"permissions,omitempty"`
}

// SubjectCacheID is the cache key of the shared subject
func (e SharingEntry) SubjectCacheID() string {
	return e.SubjectClass + ":" + e.SubjectID
}

// IsActive reports whether the entry is enabled and inside its time window
func (e SharingEntry) IsActive(now time.Time) bool {
	if !e.Enabled {
		return false
	}
	if e.StartedAt != nil && e.StartedAt.After(now) {
		return false
	}
	if e.EndedAt != nil && e.EndedAt.Before(now) {
		return false
	}
	return true
}
