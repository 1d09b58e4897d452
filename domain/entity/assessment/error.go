package assessment

import "errors"

var (
	// State transition errors
	ErrInvalidStateTransition = errors.New("invalid assessment state transition")
	ErrStateConflict          = errors.New("assessment state conflict")
	ErrAlreadyTerminal        = errors.New("assessment already in a terminal state")

	// Validation errors
	ErrEmptyProjectID   = errors.New("project id cannot be empty")
	ErrEmptyName        = errors.New("assessment name cannot be empty")
	ErrInvalidType      = errors.New("invalid assessment type")
	ErrInvalidTarget    = errors.New("invalid assessment target type")
	ErrInvalidTargetURL = errors.New("target url must be an absolute http(s) url")
	ErrEmptyCreator     = errors.New("creator user id cannot be empty")
)
