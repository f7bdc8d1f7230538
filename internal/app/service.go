// Package service composes the ledger, the scoring engine, the submission
// pipeline and the live game session host into the operations the HTTP API
// exposes.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fres-sudo/neuravia/internal/adapters/classifier"
	"github.com/fres-sudo/neuravia/internal/adapters/completion"
	eventqueue "github.com/fres-sudo/neuravia/internal/adapters/mq/queue"
	workerpool "github.com/fres-sudo/neuravia/internal/adapters/mq/worker"
	"github.com/fres-sudo/neuravia/internal/adapters/repository"
	"github.com/fres-sudo/neuravia/internal/domain/dedupe"
	"github.com/fres-sudo/neuravia/internal/domain/game"
	"github.com/fres-sudo/neuravia/internal/domain/model"
	"github.com/fres-sudo/neuravia/internal/domain/scoring"
	"github.com/fres-sudo/neuravia/internal/domain/types"
	"github.com/fres-sudo/neuravia/pkg/logger"
	"github.com/fres-sudo/neuravia/pkg/metrics"
)

// Service defaults.
const (
	defaultWorkerCount     = 1
	defaultQueueSize       = 1024
	defaultDedupeSize      = 50_000
	defaultTickInterval    = time.Second
	defaultMaxLiveSessions = 256
	defaultEmojiCacheSize  = 256
	finishedSessionCache   = 1024

	// DefaultHistoryLimit is used when a history query gives no limit.
	DefaultHistoryLimit = 10
)

// Classifier scores MRI scans.
type Classifier interface {
	Classify(ctx context.Context, filename string, image []byte) (classifier.Classification, error)
}

// Completer answers free-text prompts.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Service implements the API dependencies for the Boost score and the
// hosted game sessions.
type Service struct {
	mu sync.RWMutex

	// Core components
	ledger   repository.Ledger
	engine   *scoring.Engine
	deduper  dedupe.Deduper
	queue    eventqueue.Queue
	pool     *workerpool.Pool
	emojis   *completion.EmojiGenerator
	sessions *sessionHost

	// External clients
	classifier Classifier
	completer  Completer

	// Configuration
	workerCount     int
	queueSize       int
	dedupeSize      int
	dbDriver        string
	dbDSN           string
	weights         map[model.ActivityType]float64
	weightPolicy    scoring.WeightPolicy
	settings        game.SettingsTable
	tickInterval    time.Duration
	responseTimeout int
	maxLive         int
	emojiCacheSize  int
	now             func() time.Time

	// State
	started bool
	runCtx  context.Context
	cancel  context.CancelFunc

	logger logger.Logger
}

// New creates a new service with the given options.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:     defaultWorkerCount,
		queueSize:       defaultQueueSize,
		dedupeSize:      defaultDedupeSize,
		dbDriver:        repository.DriverMemory,
		weightPolicy:    scoring.WeightPolicyClamp,
		settings:        game.DefaultSettings(),
		tickInterval:    defaultTickInterval,
		responseTimeout: game.DefaultResponseTimeout,
		maxLive:         defaultMaxLiveSessions,
		emojiCacheSize:  defaultEmojiCacheSize,
		now:             time.Now,
		logger:          logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the ledger and starts the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting neuravia service...")

	if s.ledger == nil {
		ledger, err := repository.Open(ctx, s.dbDriver, s.dbDSN, repository.WithLogger(s.logger.Named("ledger")))
		if err != nil {
			return fmt.Errorf("open ledger: %w", err)
		}
		s.ledger = ledger
		s.logger.Info(ctx, "ledger opened", logger.String("driver", s.dbDriver))
	}

	engineOpts := []scoring.Option{scoring.WithWeightPolicy(s.weightPolicy)}
	if s.weights != nil {
		engineOpts = append(engineOpts, scoring.WithWeights(s.weights))
	}
	if s.completer != nil {
		engineOpts = append(engineOpts, scoring.WithAdjuster(scoring.NewCompletionAdjuster(s.completer)))
		s.emojis = completion.NewEmojiGenerator(s.completer, s.emojiCacheSize)
	}
	s.engine = scoring.NewEngine(engineOpts...)

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))

	finished, err := lru.New[string, game.Snapshot](finishedSessionCache)
	if err != nil {
		return fmt.Errorf("session cache: %w", err)
	}
	s.sessions = newSessionHost(s.maxLive, finished)

	// Workers outlive the caller's context so Stop can drain the queue.
	s.runCtx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s,
		workerpool.WithLogger(s.logger.Named("worker")),
		workerpool.WithOnError(s.onRecordError),
	)
	s.pool.Start(s.runCtx)

	s.started = true
	s.logger.Info(ctx, "neuravia service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Bool("completion", s.completer != nil),
		logger.Bool("classifier", s.classifier != nil),
	)
	return nil
}

// Stop aborts live sessions, drains the submission queue and closes the
// ledger.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping neuravia service...")

	if n := s.sessions.abortAll(); n > 0 {
		s.logger.Info(ctx, "aborted live sessions", logger.Int("count", n))
	}
	metrics.UpdateLiveSessions(0)

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool did not drain", logger.Error(err))
	}
	s.cancel()

	if err := s.ledger.Close(); err != nil {
		s.logger.Error(ctx, "closing ledger", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "neuravia service stopped")
}

// running returns ErrNotStarted until Start has succeeded.
func (s *Service) running() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// Record folds a submission into the patient's Boost score: it reads the
// latest score, applies the weighted update and appends the ledger entry.
// The read and the append are not atomic; two concurrent records for the
// same patient may both build on the same previous score.
func (s *Service) Record(ctx context.Context, sub model.Submission) (model.LedgerEntry, error) {
	start := time.Now()

	previous := 0.0
	latest, err := s.ledger.Latest(ctx, sub.PatientID)
	switch {
	case err == nil:
		previous = latest.NewScore
	case errors.Is(err, repository.ErrNotFound):
	default:
		metrics.RecordErrorByComponent("service", "latest")
		return model.LedgerEntry{}, fmt.Errorf("read latest score: %w", err)
	}

	res, err := s.engine.Score(ctx, scoring.Input{
		PatientID:     sub.PatientID,
		ActivityType:  sub.ActivityType,
		PreviousScore: previous,
		ActivityValue: sub.ActivityValue,
		Weight:        sub.Weight,
	})
	if err != nil {
		metrics.RecordScoringError()
		return model.LedgerEntry{}, fmt.Errorf("%w: %w", ErrInvalidSubmission, err)
	}

	entry, err := s.ledger.Append(ctx, model.LedgerEntry{
		PatientID:     sub.PatientID,
		ActivityType:  sub.ActivityType,
		PreviousScore: previous,
		ActivityValue: res.ActivityValue,
		Weight:        res.Weight,
		NewScore:      res.NewScore,
		Metadata:      sub.Metadata,
	})
	if err != nil {
		metrics.RecordErrorByComponent("service", "append")
		return model.LedgerEntry{}, fmt.Errorf("append ledger entry: %w", err)
	}

	metrics.RecordScoringLatency(float64(time.Since(start).Microseconds()) / 1000)
	s.logger.Debug(ctx, "ledger entry appended",
		logger.String("patient_id", entry.PatientID),
		logger.String("activity", string(entry.ActivityType)),
		logger.Float64("previous", entry.PreviousScore),
		logger.Float64("new_score", entry.NewScore),
	)
	return entry, nil
}

// enqueue hands a submission to the worker pool. Submissions are
// deduplicated by ID; a duplicate is acknowledged without being queued.
func (s *Service) enqueue(ctx context.Context, sub model.Submission) (bool, error) {
	if s.deduper.SeenAndRecord(ctx, sub.ID) {
		metrics.RecordSubmissionDuplicate()
		return true, nil
	}
	if err := s.queue.Enqueue(ctx, sub); err != nil {
		// Let the client retry the same submission.
		s.deduper.Unrecord(ctx, sub.ID)
		if errors.Is(err, eventqueue.ErrFull) || errors.Is(err, eventqueue.ErrClosed) {
			return false, fmt.Errorf("%w: %w", ErrBackpressure, err)
		}
		return false, err
	}
	return false, nil
}

func (s *Service) onRecordError(ctx context.Context, sub model.Submission, err error) {
	s.deduper.Unrecord(ctx, sub.ID)
	s.logger.Error(ctx, "submission not recorded",
		logger.String("submission_id", sub.ID),
		logger.String("patient_id", sub.PatientID),
		logger.Error(err),
	)
}

// LatestScore returns the patient's current Boost score.
func (s *Service) LatestScore(ctx context.Context, patientID string) (types.LatestScore, error) {
	if err := s.running(); err != nil {
		return types.LatestScore{}, err
	}
	if patientID == "" {
		return types.LatestScore{}, fmt.Errorf("%w: %w", ErrInvalidSubmission, repository.ErrMissingPatient)
	}
	out := types.LatestScore{PatientID: patientID}
	entry, err := s.ledger.Latest(ctx, patientID)
	if errors.Is(err, repository.ErrNotFound) {
		return out, nil
	}
	if err != nil {
		return out, err
	}
	out.Score = entry.NewScore
	out.HasScore = true
	out.UpdatedAt = entry.Timestamp
	return out, nil
}

// History lists the patient's ledger entries, newest first. A filter
// without a limit returns DefaultHistoryLimit entries.
func (s *Service) History(ctx context.Context, patientID string, filter types.HistoryFilter) ([]model.LedgerEntry, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	if filter.ActivityType != "" && !filter.ActivityType.Valid() {
		return nil, fmt.Errorf("%w: unknown activity type %q", ErrInvalidSubmission, filter.ActivityType)
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultHistoryLimit
	}
	return s.ledger.History(ctx, patientID, filter)
}

// Emojis picks emojis for a profession.
func (s *Service) Emojis(ctx context.Context, profession string) ([]string, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	if s.emojis == nil {
		return nil, ErrCompletionDisabled
	}
	return s.emojis.Emojis(ctx, profession)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}
	if !s.started {
		return stats
	}

	ctx := context.Background()
	stats["queueLength"] = s.queue.Len(ctx)
	stats["workersBusy"] = s.pool.Busy()
	stats["dedupeEntries"] = s.deduper.Size()
	stats["ledgerEntries"] = s.ledger.Count(ctx)
	stats["liveSessions"] = s.sessions.len()
	return stats
}
