package sqlstore

import "errors"

var (
	// ErrRoleNotFound is returned when a referenced role does not exist
	ErrRoleNotFound = errors.New("role not found")

	// ErrUnsupportedDriver is returned for drivers other than postgres and sqlite3
	ErrUnsupportedDriver = errors.New("unsupported database driver")

	// ErrInvalidEntry is returned when a record misses required parts
	ErrInvalidEntry = errors.New("invalid entry")
)
