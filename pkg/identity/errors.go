package identity

import "errors"

var (
	// ErrEmptyType is returned when an identity is built without a type.
	ErrEmptyType = errors.New("identity type is empty")

	// ErrEmptyIdentifier is returned when an identity is built without an identifier.
	ErrEmptyIdentifier = errors.New("identity identifier is empty")

	// ErrInvalidSubject is returned when a value cannot be turned into a subject identity.
	ErrInvalidSubject = errors.New("invalid subject identity")

	// ErrUnsupportedAccount is returned when an object cannot provide a security identity.
	ErrUnsupportedAccount = errors.New("object does not support security identity derivation")

	// ErrPropertyNotFound is returned when a property path cannot be resolved.
	ErrPropertyNotFound = errors.New("property not found")
)
