package config

import "errors"

// Sentinel error kinds for this package.
var (
	// ErrInvalidConfig wraps every validation problem found in a loaded config.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig reports an unreadable config file or a failed unmarshal.
	ErrLoadConfig = errors.New("load config failed")
)
