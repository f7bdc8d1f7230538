package queue

import "errors"

// Sentinel kinds for queue errors.
var (
	ErrClosed = errors.New("submission queue closed")
	ErrFull   = errors.New("submission queue full")
)
