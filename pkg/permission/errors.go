package permission

import "errors"

var (
	// ErrConfigNotFound is returned when no config is registered for a type
	ErrConfigNotFound = errors.New("permission config not found")

	// ErrRequiredPermissionNotFound is returned when a config declares an
	// operation with no stored permission row
	ErrRequiredPermissionNotFound = errors.New("required permission not found")

	// ErrMasterNotFound is returned when the master of a subject cannot be resolved
	ErrMasterNotFound = errors.New("master subject not found")
)
