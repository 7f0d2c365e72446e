package sharing

import (
	"fmt"
	"strings"
)

// Visibility controls whether a subject type takes part in sharing
type Visibility string

const (
	VisibilityNone    Visibility = "none"
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// ParseVisibility parses a visibility name, case insensitively
func ParseVisibility(s string) (Visibility, error) {
	switch v := Visibility(strings.ToLower(s)); v {
	case VisibilityNone, VisibilityPublic, VisibilityPrivate:
		return v, nil
	case "":
		return VisibilityNone, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidVisibility, s)
	}
}

// SubjectConfig is the sharing config of a subject type
type SubjectConfig struct {
	Type       string     `yaml:"type" json:"type"`
	Visibility Visibility `yaml:"visibility" json:"visibility"`
}

// IdentityConfig is the sharing config of an identity type
type IdentityConfig struct {
	Type  string `yaml:"type" json:"type"`
	Alias string `yaml:"alias" json:"alias"`
	// Roleable entries of this identity type may carry roles
	Roleable bool `yaml:"roleable" json:"roleable"`
	// Permissible entries of this identity type may carry operations
	Permissible bool `yaml:"permissible" json:"permissible"`
}
