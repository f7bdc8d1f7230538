package service

import (
	"time"

	"github.com/fres-sudo/neuravia/internal/adapters/repository"
	"github.com/fres-sudo/neuravia/internal/domain/game"
	"github.com/fres-sudo/neuravia/internal/domain/model"
	"github.com/fres-sudo/neuravia/internal/domain/scoring"
	"github.com/fres-sudo/neuravia/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of ledger workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the submission queue capacity.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the submission deduplication cache size.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size >= 0 {
			s.dedupeSize = size
		}
	}
}

// WithDatabase selects the ledger backend opened by Start.
func WithDatabase(driver, dsn string) Option {
	return func(s *Service) {
		s.dbDriver = driver
		s.dbDSN = dsn
	}
}

// WithLedger uses an already opened ledger instead of opening one.
func WithLedger(l repository.Ledger) Option {
	return func(s *Service) {
		s.ledger = l
	}
}

// WithWeights overrides the default weight of some activity types.
func WithWeights(weights map[model.ActivityType]float64) Option {
	return func(s *Service) {
		s.weights = weights
	}
}

// WithWeightPolicy sets the policy applied to caller supplied weights.
func WithWeightPolicy(p scoring.WeightPolicy) Option {
	return func(s *Service) {
		if p != "" {
			s.weightPolicy = p
		}
	}
}

// WithSettings sets the difficulty table new sessions start with.
func WithSettings(t game.SettingsTable) Option {
	return func(s *Service) {
		if t != nil {
			s.settings = t
		}
	}
}

// WithTickInterval sets the clock period of hosted sessions.
func WithTickInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.tickInterval = d
		}
	}
}

// WithResponseTimeout bounds the respond phase of every round, in ticks.
func WithResponseTimeout(ticks int) Option {
	return func(s *Service) {
		if ticks > 0 {
			s.responseTimeout = ticks
		}
	}
}

// WithMaxLiveSessions caps the number of concurrently hosted sessions.
func WithMaxLiveSessions(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLive = n
		}
	}
}

// WithClassifier sets the MRI classifier.
func WithClassifier(c Classifier) Option {
	return func(s *Service) {
		s.classifier = c
	}
}

// WithCompleter sets the text completion client used for notes
// adjustments and emoji generation.
func WithCompleter(c Completer) Option {
	return func(s *Service) {
		s.completer = c
	}
}

// WithEmojiCacheSize bounds the profession emoji cache.
func WithEmojiCacheSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.emojiCacheSize = n
		}
	}
}

// WithClock sets the wall clock used for session timing.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
