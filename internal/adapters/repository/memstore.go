package repository

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/fres-sudo/neuravia/internal/domain/model"
	"github.com/fres-sudo/neuravia/internal/domain/types"
	"github.com/fres-sudo/neuravia/pkg/metrics"
	"github.com/google/uuid"
)

// MemoryStore is an in-memory Ledger. Entries are kept per patient in
// append order.
type MemoryStore struct {
	opts options

	mu        sync.RWMutex
	byPatient map[string][]model.LedgerEntry
	total     int
	closed    bool

	wg       sync.WaitGroup
	stopChan chan struct{}
}

// NewMemoryStore constructs an in-memory ledger. The background metrics
// updater stops when ctx is cancelled or Close is called.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		opts:      defaultOptions(),
		byPatient: make(map[string][]model.LedgerEntry),
		stopChan:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(&s.opts)
	}

	startMetricsUpdater(ctx, &s.wg, s.stopChan, s.opts.metricsUpdateInterval, s.Count)
	return s
}

// Append implements Ledger.Append.
func (s *MemoryStore) Append(ctx context.Context, entry model.LedgerEntry) (model.LedgerEntry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if err := validate(entry); err != nil {
		metrics.RecordErrorByComponent("repository", "invalid_entry")
		return model.LedgerEntry{}, err
	}
	entry = s.stamp(entry)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return model.LedgerEntry{}, ErrClosed
	}
	s.byPatient[entry.PatientID] = append(s.byPatient[entry.PatientID], entry)
	s.total++
	s.mu.Unlock()

	metrics.RecordLedgerAppend(string(entry.ActivityType), entry.ActivityValue)
	return copyEntry(entry), nil
}

// Latest implements Ledger.Latest.
func (s *MemoryStore) Latest(ctx context.Context, patientID string) (model.LedgerEntry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.byPatient[patientID]
	if len(entries) == 0 {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.LedgerEntry{}, ErrNotFound
	}
	return copyEntry(entries[len(entries)-1]), nil
}

// History implements Ledger.History.
func (s *MemoryStore) History(ctx context.Context, patientID string, filter types.HistoryFilter) ([]model.LedgerEntry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.byPatient[patientID]
	out := make([]model.LedgerEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		if filter.ActivityType != "" && entries[i].ActivityType != filter.ActivityType {
			continue
		}
		out = append(out, copyEntry(entries[i]))
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// Count implements Ledger.Count.
func (s *MemoryStore) Count(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}

// Close stops the metrics updater. Appends after Close fail with ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.stopChan)
	}
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

func (s *MemoryStore) stamp(entry model.LedgerEntry) model.LedgerEntry {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.opts.now().UTC()
	}
	return copyEntry(entry)
}

// copyEntry detaches the metadata map so callers cannot mutate stored entries.
func copyEntry(e model.LedgerEntry) model.LedgerEntry {
	if e.Metadata != nil {
		e.Metadata = maps.Clone(e.Metadata)
	}
	return e
}

// startMetricsUpdater periodically publishes the ledger size.
func startMetricsUpdater(ctx context.Context, wg *sync.WaitGroup, stop <-chan struct{}, every time.Duration, count func(context.Context) int) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				metrics.UpdateRepositoryRecordsTotal(count(ctx))
			}
		}
	}()
}
