// Package worker folds queued submissions into the score ledger.
package worker

import (
	"context"

	"github.com/fres-sudo/neuravia/internal/domain/model"
	"github.com/fres-sudo/neuravia/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithOnError registers a callback for submissions that could not be recorded.
func WithOnError(fn func(ctx context.Context, s model.Submission, err error)) Option {
	return func(w *InMemoryWorker) {
		w.onError = fn
	}
}

// WithOnRecorded registers a callback for every appended ledger entry.
func WithOnRecorded(fn func(ctx context.Context, s model.Submission, e model.LedgerEntry)) Option {
	return func(w *InMemoryWorker) {
		w.onRecorded = fn
	}
}
