package finding

import "errors"

var (
	ErrEmptyTitle      = errors.New("finding title cannot be empty")
	ErrInvalidSeverity = errors.New("invalid finding severity")
	ErrInvalidStatus   = errors.New("invalid finding status")
	ErrCVSSOutOfRange  = errors.New("cvss score must be between 0.0 and 10.0")
)
