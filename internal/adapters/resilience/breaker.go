// Package resilience wraps outbound calls in circuit breakers.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/fres-sudo/neuravia/pkg/logger"
	"github.com/fres-sudo/neuravia/pkg/metrics"
	"github.com/sony/gobreaker"
)

// Default breaker configuration constants.
const (
	defaultMaxRequests      = 1
	defaultInterval         = 30 * time.Second
	defaultOpenTimeout      = 15 * time.Second
	defaultFailureThreshold = 5
)

// BreakerConfig tunes a circuit breaker. Zero values select defaults.
type BreakerConfig struct {
	MaxRequests      uint32        // probes allowed while half-open
	Interval         time.Duration // closed-state counter reset period
	OpenTimeout      time.Duration // time spent open before probing
	FailureThreshold uint32        // consecutive failures that trip the breaker
}

// NewBreaker builds a breaker for service that reports state changes to the
// log and to the breaker state gauge. Cancelled calls are not failures.
func NewBreaker(service string, cfg BreakerConfig, log logger.Logger) *gobreaker.CircuitBreaker {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = defaultMaxRequests
	}
	if cfg.Interval == 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = defaultOpenTimeout
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if log == nil {
		log = logger.Nop()
	}

	metrics.UpdateBreakerState(service, int(gobreaker.StateClosed))
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        service,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.UpdateBreakerState(name, int(to))
			log.Warn(context.Background(), "circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
	})
}

// IsOpen reports whether err was produced by a breaker refusing the call.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
