package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fres-sudo/neuravia/internal/domain/game"
	"github.com/fres-sudo/neuravia/internal/domain/model"
	"github.com/fres-sudo/neuravia/internal/domain/scoring"
	"github.com/fres-sudo/neuravia/pkg/logger"
	"github.com/fres-sudo/neuravia/pkg/metrics"
)

// SessionRequest starts a hosted session.
type SessionRequest struct {
	PatientID string       `json:"patient_id"`
	Mode      string       `json:"mode"`
	Profile   game.Profile `json:"profile"`
}

// liveSession owns one game.Machine. The mutex serialises ticks, player
// actions and teardown; the ticker goroutine is the session's clock and
// exits when stop is closed.
type liveSession struct {
	id      string
	mode    game.Mode
	mu      sync.Mutex
	machine *game.Machine
	subs    map[chan game.Snapshot]struct{}

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func newLiveSession(id string, mode game.Mode) *liveSession {
	return &liveSession{
		id:   id,
		mode: mode,
		subs: make(map[chan game.Snapshot]struct{}),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// run ticks the machine until the session stops playing or halt is called.
// finished is called once the machine leaves the playing state on a tick.
func (ls *liveSession) run(every time.Duration, finished func(*liveSession)) {
	defer close(ls.done)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ls.stop:
			return
		case <-t.C:
			if !ls.tick() {
				finished(ls)
				return
			}
		}
	}
}

func (ls *liveSession) tick() bool {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.machine.Tick()
	ls.publishLocked()
	return ls.machine.State() == game.StatePlaying
}

func (ls *liveSession) halt() {
	ls.stopOnce.Do(func() { close(ls.stop) })
}

// publishLocked pushes the current snapshot to every subscriber. A slow
// subscriber only ever sees the newest snapshot.
func (ls *liveSession) publishLocked() {
	if len(ls.subs) == 0 {
		return
	}
	snap := ls.machine.Snapshot()
	for ch := range ls.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func (ls *liveSession) closeSubsLocked() {
	for ch := range ls.subs {
		close(ch)
		delete(ls.subs, ch)
	}
}

// abort ends the machine's session and stops the clock. The returned
// snapshot keeps the session's position at the time it was aborted.
func (ls *liveSession) abort() (game.Snapshot, bool) {
	ls.mu.Lock()
	final := ls.machine.Snapshot()
	aborted := ls.machine.EndSession()
	if aborted {
		final.State = game.StateAborted
		final.ShowInstructions = false
		final.Round = nil
	}
	ls.closeSubsLocked()
	ls.mu.Unlock()
	ls.halt()
	return final, aborted
}

func (ls *liveSession) snapshot() game.Snapshot {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.machine.Snapshot()
}

// sessionHost indexes live sessions and keeps the final snapshot of
// finished ones for late readers.
type sessionHost struct {
	mu       sync.Mutex
	live     map[string]*liveSession
	finished *lru.Cache[string, game.Snapshot]
	maxLive  int
}

func newSessionHost(maxLive int, finished *lru.Cache[string, game.Snapshot]) *sessionHost {
	return &sessionHost{
		live:     make(map[string]*liveSession),
		finished: finished,
		maxLive:  maxLive,
	}
}

func (h *sessionHost) add(ls *liveSession) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.live) >= h.maxLive {
		return ErrTooManySessions
	}
	h.live[ls.id] = ls
	metrics.UpdateLiveSessions(len(h.live))
	return nil
}

func (h *sessionHost) get(id string) (*liveSession, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ls, ok := h.live[id]
	return ls, ok
}

// remove drops a live session and reports whether this call removed it.
func (h *sessionHost) remove(id string, final game.Snapshot) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.live[id]; !ok {
		return false
	}
	delete(h.live, id)
	h.finished.Add(id, final)
	metrics.UpdateLiveSessions(len(h.live))
	return true
}

func (h *sessionHost) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.live)
}

// abortAll ends every live session and waits for their clocks to stop.
func (h *sessionHost) abortAll() int {
	h.mu.Lock()
	all := make([]*liveSession, 0, len(h.live))
	for _, ls := range h.live {
		all = append(all, ls)
	}
	h.mu.Unlock()

	n := 0
	for _, ls := range all {
		final, aborted := ls.abort()
		<-ls.done
		if h.remove(ls.id, final) && aborted {
			metrics.RecordSessionAborted(string(ls.mode))
			n++
		}
	}
	return n
}

// StartSession starts a hosted session and its clock.
func (s *Service) StartSession(ctx context.Context, req SessionRequest) (game.Snapshot, error) {
	if err := s.running(); err != nil {
		return game.Snapshot{}, err
	}
	if err := requirePatient(req.PatientID); err != nil {
		return game.Snapshot{}, err
	}
	mode, err := game.ParseMode(req.Mode)
	if err != nil {
		return game.Snapshot{}, fmt.Errorf("%w: %w", ErrInvalidSubmission, err)
	}
	profile := req.Profile
	if profile.Difficulty, err = game.ParseDifficulty(string(profile.Difficulty)); err != nil {
		return game.Snapshot{}, fmt.Errorf("%w: %w", ErrInvalidSubmission, err)
	}

	ls := newLiveSession(uuid.NewString(), mode)
	ls.machine = game.NewMachine(
		game.WithSettings(s.settings),
		game.WithResponseTimeout(s.responseTimeout),
		game.WithClock(s.now),
		game.WithOnComplete(s.onSessionComplete),
	)
	if err := ls.machine.StartSession(ls.id, strings.TrimSpace(req.PatientID), mode, profile); err != nil {
		return game.Snapshot{}, fmt.Errorf("%w: %w", ErrInvalidSubmission, err)
	}
	if err := s.sessions.add(ls); err != nil {
		return game.Snapshot{}, err
	}
	go ls.run(s.tickInterval, s.finishSession)

	metrics.RecordSessionStarted(string(mode))
	s.logger.Info(ctx, "session started",
		logger.String("session_id", ls.id),
		logger.String("patient_id", req.PatientID),
		logger.String("mode", string(mode)),
		logger.String("difficulty", string(profile.Difficulty)),
	)
	return ls.snapshot(), nil
}

// Session returns the current view of a live or recently finished session.
func (s *Service) Session(_ context.Context, id string) (game.Snapshot, error) {
	if err := s.running(); err != nil {
		return game.Snapshot{}, err
	}
	if ls, ok := s.sessions.get(id); ok {
		return ls.snapshot(), nil
	}
	if snap, ok := s.sessions.finished.Get(id); ok {
		return snap, nil
	}
	return game.Snapshot{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
}

// withSession runs fn under the session lock and finishes the session when
// fn completed it.
func (s *Service) withSession(id string, fn func(m *game.Machine) bool) (bool, game.Snapshot, error) {
	if err := s.running(); err != nil {
		return false, game.Snapshot{}, err
	}
	ls, ok := s.sessions.get(id)
	if !ok {
		return false, game.Snapshot{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	ls.mu.Lock()
	applied := fn(ls.machine)
	snap := ls.machine.Snapshot()
	if applied {
		ls.publishLocked()
	}
	playing := ls.machine.State() == game.StatePlaying
	ls.mu.Unlock()

	if !playing {
		s.finishSession(ls)
	}
	return applied, snap, nil
}

// Act forwards a player input to the session's active round. Inputs that
// do not fit the current phase are ignored and reported as not applied.
func (s *Service) Act(_ context.Context, id string, a game.Action) (bool, game.Snapshot, error) {
	return s.withSession(id, func(m *game.Machine) bool { return m.Act(a) })
}

// DismissInstructions closes the instructions shown before a game's first
// round.
func (s *Service) DismissInstructions(_ context.Context, id string) (bool, game.Snapshot, error) {
	return s.withSession(id, func(m *game.Machine) bool { return m.DismissInstructions() })
}

// UpdateSettings replaces the session's difficulty table. A round waiting
// for settings starts immediately.
func (s *Service) UpdateSettings(_ context.Context, id string, t game.SettingsTable) (game.Snapshot, error) {
	if len(t) == 0 {
		return game.Snapshot{}, fmt.Errorf("%w: empty settings table", ErrInvalidSubmission)
	}
	_, snap, err := s.withSession(id, func(m *game.Machine) bool {
		m.UpdateSettings(t)
		return true
	})
	return snap, err
}

// EndSession aborts a live session. Nothing is recorded for it.
func (s *Service) EndSession(ctx context.Context, id string) (game.Snapshot, error) {
	if err := s.running(); err != nil {
		return game.Snapshot{}, err
	}
	ls, ok := s.sessions.get(id)
	if !ok {
		return game.Snapshot{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	final, aborted := ls.abort()
	if s.sessions.remove(id, final) && aborted {
		metrics.RecordSessionAborted(string(ls.mode))
		s.logger.Info(ctx, "session aborted", logger.String("session_id", id))
	}
	return final, nil
}

// Subscribe streams snapshots of a live session. The channel receives the
// current snapshot immediately and is closed when the session ends; cancel
// detaches early.
func (s *Service) Subscribe(_ context.Context, id string) (<-chan game.Snapshot, func(), error) {
	if err := s.running(); err != nil {
		return nil, nil, err
	}
	ls, ok := s.sessions.get(id)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	ch := make(chan game.Snapshot, 1)
	ls.mu.Lock()
	ch <- ls.machine.Snapshot()
	if ls.machine.State() == game.StatePlaying {
		ls.subs[ch] = struct{}{}
	} else {
		close(ch)
	}
	ls.mu.Unlock()

	cancel := func() {
		ls.mu.Lock()
		defer ls.mu.Unlock()
		if _, ok := ls.subs[ch]; ok {
			delete(ls.subs, ch)
			close(ch)
		}
	}
	return ch, cancel, nil
}

// finishSession retires a session that left the playing state on its own.
func (s *Service) finishSession(ls *liveSession) {
	ls.mu.Lock()
	final := ls.machine.Snapshot()
	ls.closeSubsLocked()
	ls.mu.Unlock()
	ls.halt()

	if s.sessions.remove(ls.id, final) && final.State == game.StateCompleted {
		metrics.RecordSessionCompleted(string(ls.mode))
	}
}

// onSessionComplete runs under the session lock when the last round of a
// session has been advanced. It reduces the session to an activity value
// and queues it for the ledger, keyed by session id.
func (s *Service) onSessionComplete(sess *game.Session) {
	ctx := s.runCtx
	summary := sess.Summary(s.now())
	value := scoring.NormalizeGamePlayed(summary)

	for _, t := range game.Order {
		for _, r := range sess.RawData[t] {
			metrics.RecordRoundResolved(string(t), r.Correct)
		}
	}

	sub := model.Submission{
		ID:            sess.ID,
		PatientID:     sess.PatientID,
		ActivityType:  model.ActivityGamePlayed,
		ActivityValue: value,
		Metadata: map[string]any{
			"session_id":   sess.ID,
			"mode":         string(sess.Mode),
			"difficulty":   string(sess.Profile.Difficulty),
			"raw_score":    sess.Score,
			"total_rounds": sess.TotalRounds,
			"summary":      summary,
			"rounds":       sess.RawData,
			"source":       "hosted",
		},
	}

	dup, err := s.enqueue(ctx, sub)
	switch {
	case err == nil && dup:
		s.logger.Warn(ctx, "completed session already submitted", logger.String("session_id", sess.ID))
	case errors.Is(err, ErrBackpressure):
		// A finished session is never dropped; record it inline instead.
		s.logger.Warn(ctx, "queue full, recording session inline", logger.String("session_id", sess.ID))
		if _, err := s.Record(ctx, sub); err != nil {
			s.logger.Error(ctx, "recording completed session", logger.String("session_id", sess.ID), logger.Error(err))
		}
	case err != nil:
		s.logger.Error(ctx, "queueing completed session", logger.String("session_id", sess.ID), logger.Error(err))
	default:
		s.logger.Info(ctx, "session completed",
			logger.String("session_id", sess.ID),
			logger.String("patient_id", sess.PatientID),
			logger.Float64("activity_value", value),
		)
	}
}
