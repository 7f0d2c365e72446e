package sharing

import "errors"

var (
	ErrDuplicateAlias         = errors.New("sharing identity alias already registered")
	ErrSubjectConfigNotFound  = errors.New("sharing subject config not found")
	ErrIdentityConfigNotFound = errors.New("sharing identity config not found")
	ErrInvalidVisibility      = errors.New("invalid sharing visibility")
)
