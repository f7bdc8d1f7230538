package repository

import "errors"

// Sentinel kinds for ledger errors.
var (
	ErrNotFound        = errors.New("no ledger entry for patient")
	ErrMissingPatient  = errors.New("ledger entry has no patient id")
	ErrInvalidActivity = errors.New("ledger entry has unknown activity type")
	ErrUnknownDriver   = errors.New("unknown ledger driver")
	ErrClosed          = errors.New("ledger is closed")
)
