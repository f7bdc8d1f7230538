package scoring

import "errors"

// Sentinel kinds for scoring errors.
var (
	ErrInvalidWeight    = errors.New("invalid weight")
	ErrUnknownActivity  = errors.New("unknown activity type")
	ErrUnknownDiagnosis = errors.New("unknown diagnosis")
	ErrUnknownStage     = errors.New("unknown stage")
)
