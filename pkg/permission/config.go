package permission

import "strings"

// PermissionPrefix is accepted in front of permission names and stripped
const PermissionPrefix = "perm_"

// FieldConfig declares the operations valid on one field of a type
type FieldConfig struct {
	Field      string            `yaml:"field" json:"field"`
	Operations []string          `yaml:"operations" json:"operations"`
	Aliases    map[string]string `yaml:"aliases" json:"aliases,omitempty"`
}

// HasOperation reports whether the field declares operation
func (f *FieldConfig) HasOperation(operation string) bool {
	return contains(f.Operations, operation)
}

// MappingPermission translates an alias to its real permission name
func (f *FieldConfig) MappingPermission(permission string) string {
	return mapping(f.Aliases, permission)
}

// Config is the permission config of a subject type
type Config struct {
	Type       string                 `yaml:"type" json:"type"`
	Operations []string               `yaml:"operations" json:"operations"`
	Aliases    map[string]string      `yaml:"aliases" json:"aliases,omitempty"`
	Fields     map[string]FieldConfig `yaml:"fields" json:"fields,omitempty"`

	// Master is the property path of the subject the permissions of this
	// type resolve against. Delegation is one level deep.
	Master string `yaml:"master" json:"master,omitempty"`

	// MasterFieldMapping maps field permissions of this type to class
	// permissions of the master type
	MasterFieldMapping map[string]string `yaml:"master_field_mapping" json:"master_field_mapping,omitempty"`
}

// HasOperation reports whether the type declares operation
func (c *Config) HasOperation(operation string) bool {
	return contains(c.Operations, operation)
}

// HasField reports whether a field config is registered
func (c *Config) HasField(field string) bool {
	_, ok := c.Fields[field]
	return ok
}

// GetField returns the config of a field
func (c *Config) GetField(field string) (*FieldConfig, bool) {
	f, ok := c.Fields[field]
	if !ok {
		return nil, false
	}
	return &f, true
}

// AddField registers a field config
func (c *Config) AddField(field FieldConfig) {
	if c.Fields == nil {
		c.Fields = make(map[string]FieldConfig)
	}
	c.Fields[field.Field] = field
}

// MappingPermission translates an alias to its real permission name
func (c *Config) MappingPermission(permission string) string {
	return mapping(c.Aliases, permission)
}

// MasterFieldMappingPermission translates a field permission to the class
// permission of the master. Unmapped permissions are kept.
func (c *Config) MasterFieldMappingPermission(permission string) string {
	return mapping(c.MasterFieldMapping, permission)
}

// OperationsFor returns the declared operations of the type, or of one of its fields
func (c *Config) OperationsFor(field string) []string {
	if field == "" {
		return c.Operations
	}
	if f, ok := c.Fields[field]; ok {
		return f.Operations
	}
	return nil
}

// StripPrefix removes the perm_ prefix of a permission name
func StripPrefix(permission string) string {
	return strings.TrimPrefix(permission, PermissionPrefix)
}

func mapping(aliases map[string]string, permission string) string {
	if name, ok := aliases[permission]; ok {
		return name
	}
	return permission
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
