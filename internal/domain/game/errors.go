package game

import "errors"

// Sentinel kinds for session setup errors.
var (
	ErrUnknownMode       = errors.New("unknown session mode")
	ErrUnknownDifficulty = errors.New("unknown difficulty level")
	ErrMissingPatient    = errors.New("patient id is required")
	ErrSessionActive     = errors.New("a session is already playing")
)
