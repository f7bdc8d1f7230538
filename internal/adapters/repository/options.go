package repository

import (
	"time"

	"github.com/fres-sudo/neuravia/pkg/logger"
)

type options struct {
	metricsUpdateInterval time.Duration
	now                   func() time.Time
	log                   logger.Logger
}

func defaultOptions() options {
	return options{
		metricsUpdateInterval: 5 * time.Second,
		now:                   time.Now,
		log:                   logger.Nop(),
	}
}

// Option applies a configuration option to a ledger store.
type Option func(*options)

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(o *options) {
		if interval > 0 {
			o.metricsUpdateInterval = interval
		}
	}
}

// WithClock sets the time source used to stamp entries without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}
