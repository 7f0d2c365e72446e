package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/grantor/pkg/permission"
	"github.com/platinummonkey/grantor/pkg/sharing"
)

// ErrInvalidPolicy is returned when a policy document fails validation
var ErrInvalidPolicy = errors.New("invalid policy")

// Policy is the declarative authorization policy: which types are managed,
// how they share, and how roles imply each other
type Policy struct {
	Permissions   []permission.Config `yaml:"permissions"`
	Associations  []Association       `yaml:"associations"`
	Sharing       SharingPolicy       `yaml:"sharing"`
	RoleHierarchy map[string][]string `yaml:"role_hierarchy"`
	SpecialRoles  []string            `yaml:"special_roles"`
}

// Association declares that Property of Class references objects of Target.
// Masters are resolved through associations.
type Association struct {
	Class    string `yaml:"class"`
	Property string `yaml:"property"`
	Target   string `yaml:"target"`
}

// SharingPolicy declares the shareable subjects and the identities they can
// be shared with
type SharingPolicy struct {
	Subjects   []sharing.SubjectConfig  `yaml:"subjects"`
	Identities []sharing.IdentityConfig `yaml:"identities"`
}

// LoadPolicy reads and validates a policy file
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes and validates a YAML policy document
func ParsePolicy(data []byte) (*Policy, error) {
	var policy Policy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &policy, nil
}

// Validate checks the policy and normalizes it: field configs take their
// name from their key, visibilities are lower cased and identity aliases
// default to their type.
func (p *Policy) Validate() error {
	types := make(map[string]struct{}, len(p.Permissions))
	for i := range p.Permissions {
		cfg := &p.Permissions[i]
		if cfg.Type == "" {
			return fmt.Errorf("%w: permission config %d has no type", ErrInvalidPolicy, i)
		}
		if _, ok := types[cfg.Type]; ok {
			return fmt.Errorf("%w: duplicate permission config for %s", ErrInvalidPolicy, cfg.Type)
		}
		types[cfg.Type] = struct{}{}

		for name, field := range cfg.Fields {
			if field.Field == "" {
				field.Field = name
				cfg.Fields[name] = field
			}
		}
	}

	for i, a := range p.Associations {
		if a.Class == "" || a.Property == "" || a.Target == "" {
			return fmt.Errorf("%w: association %d needs a class, a property and a target", ErrInvalidPolicy, i)
		}
	}

	for i := range p.Sharing.Subjects {
		subject := &p.Sharing.Subjects[i]
		if subject.Type == "" {
			return fmt.Errorf("%w: sharing subject %d has no type", ErrInvalidPolicy, i)
		}
		visibility, err := sharing.ParseVisibility(string(subject.Visibility))
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidPolicy, subject.Type, err)
		}
		subject.Visibility = visibility
	}

	aliases := make(map[string]string, len(p.Sharing.Identities))
	for i := range p.Sharing.Identities {
		id := &p.Sharing.Identities[i]
		if id.Type == "" {
			return fmt.Errorf("%w: sharing identity %d has no type", ErrInvalidPolicy, i)
		}
		if id.Alias == "" {
			id.Alias = id.Type
		}
		if other, ok := aliases[id.Alias]; ok && other != id.Type {
			return fmt.Errorf("%w: alias %q used by %s and %s", ErrInvalidPolicy, id.Alias, other, id.Type)
		}
		aliases[id.Alias] = id.Type
	}

	for role, children := range p.RoleHierarchy {
		if role == "" {
			return fmt.Errorf("%w: role hierarchy has an empty role", ErrInvalidPolicy)
		}
		for _, child := range children {
			if child == "" {
				return fmt.Errorf("%w: role %s has an empty child", ErrInvalidPolicy, role)
			}
		}
	}

	for _, role := range p.SpecialRoles {
		if role == "" {
			return fmt.Errorf("%w: empty special role", ErrInvalidPolicy)
		}
	}
	return nil
}
