package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted         = errors.New("service not started")
	ErrBackpressure       = errors.New("submission queue is full")
	ErrInvalidSubmission  = errors.New("invalid submission")
	ErrSessionNotFound    = errors.New("session not found")
	ErrTooManySessions    = errors.New("too many live sessions")
	ErrClassifierDisabled = errors.New("mri classifier is not configured")
	ErrCompletionDisabled = errors.New("text completion is not configured")
)
