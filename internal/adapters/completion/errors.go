package completion

import "errors"

// Sentinel kinds for completion errors.
var (
	ErrCompletion     = errors.New("text completion failed")
	ErrEmptyResponse  = errors.New("text completion returned no content")
	ErrInvalidEmojis  = errors.New("completion did not return a JSON array of emojis")
	ErrMissingJobName = errors.New("profession is required")
)
