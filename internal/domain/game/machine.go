package game

import (
	"math/rand"
	"time"
)

// Option configures a Machine.
type Option func(*Machine)

// WithSettings sets the difficulty table.
func WithSettings(t SettingsTable) Option {
	return func(m *Machine) {
		if t != nil {
			m.settings = t
		}
	}
}

// WithResponseTimeout bounds the respond phase of every round, in ticks.
func WithResponseTimeout(ticks int) Option {
	return func(m *Machine) {
		if ticks > 0 {
			m.responseTimeout = ticks
		}
	}
}

// WithRand sets the randomness source used for round layouts.
func WithRand(r *rand.Rand) Option {
	return func(m *Machine) {
		if r != nil {
			m.rng = r
		}
	}
}

// WithClock sets the wall clock used for session timing.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// WithOnComplete registers a hook called once when a session completes.
// Aborted sessions never reach it.
func WithOnComplete(fn func(*Session)) Option {
	return func(m *Machine) {
		m.onComplete = fn
	}
}

// Machine drives one session at a time: it owns the session, the round phase
// machines and the instructions interstitial.
type Machine struct {
	settings        SettingsTable
	responseTimeout int
	rng             *rand.Rand
	now             func() time.Time
	onComplete      func(*Session)

	state        State
	session      *Session
	rounds       map[Type]Round
	active       Round
	instructions bool
}

// NewMachine creates an idle machine.
func NewMachine(opts ...Option) *Machine {
	m := &Machine{
		settings:        DefaultSettings(),
		responseTimeout: DefaultResponseTimeout,
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
		now:             time.Now,
		state:           StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the lifecycle state of the machine.
func (m *Machine) State() State { return m.state }

// Session returns the current or last completed session, nil when idle or
// after an abort.
func (m *Machine) Session() *Session { return m.session }

// StartSession creates a session and starts its first game.
func (m *Machine) StartSession(id, patientID string, mode Mode, profile Profile) error {
	if m.state == StatePlaying {
		return ErrSessionActive
	}
	s, err := NewSession(id, patientID, mode, profile, m.now())
	if err != nil {
		return err
	}
	cfg := roundConfig{rng: m.rng, responseTimeout: m.responseTimeout}
	m.rounds = make(map[Type]Round, GameCount)
	for _, t := range Order {
		c := cfg
		c.assets = profile.CustomAssets[t]
		m.rounds[t] = newRound(t, c)
	}
	m.session = s
	m.state = StatePlaying
	m.startGame()
	return nil
}

func newRound(t Type, cfg roundConfig) Round {
	switch t {
	case HawkEye:
		return newHawkEye(cfg)
	case TodoList:
		return newTodoList(cfg)
	case FlashingMemory:
		return newFlashingMemory(cfg)
	default:
		return newSceneCrasher(cfg)
	}
}

// startGame activates the round of the current game. The first time a game
// type comes up the instructions are shown before the round begins.
func (m *Machine) startGame() {
	if m.active != nil {
		m.active.Stop()
	}
	t := m.session.CurrentGame()
	m.active = m.rounds[t]
	if m.session.FirstPlay(t) {
		m.instructions = true
		return
	}
	m.instructions = false
	m.resetActive()
}

// resetActive rebuilds the active round for the current round number.
func (m *Machine) resetActive() {
	m.active.Reset(m.session.CurrentRound, m.settings.Lookup(m.session.Profile.Difficulty))
}

// DismissInstructions closes the interstitial and begins the round.
func (m *Machine) DismissInstructions() bool {
	if m.state != StatePlaying || !m.instructions {
		return false
	}
	m.instructions = false
	m.resetActive()
	return true
}

// UpdateSettings replaces the difficulty table. A round idling in the
// loading phase starts as soon as its settings resolve.
func (m *Machine) UpdateSettings(t SettingsTable) {
	if t == nil {
		return
	}
	m.settings = t
	if m.state == StatePlaying && !m.instructions && m.active.Phase() == PhaseLoading {
		m.resetActive()
	}
}

// Tick advances the active round by one tick. It does nothing unless a
// round is running.
func (m *Machine) Tick() {
	if m.state != StatePlaying || m.instructions {
		return
	}
	m.active.Tick()
	m.sync()
}

// Act forwards a player input to the active round.
func (m *Machine) Act(a Action) bool {
	if m.state != StatePlaying || m.instructions {
		return false
	}
	ok := m.active.Act(a)
	m.sync()
	return ok
}

// sync records a freshly resolved round and advances once its result has
// been shown.
func (m *Machine) sync() {
	if out, ok := m.active.Outcome(); ok {
		m.session.CompleteGame(RoundRecord{
			Score:     out.Score,
			Correct:   out.Correct,
			TimeSpent: out.Ticks,
			Details:   out.Details,
		})
	}
	if m.active.Finished() {
		m.NextGame()
	}
}

// CompleteGame records a round result directly, bypassing the phase machine.
func (m *Machine) CompleteGame(roundScore int, details map[string]any) bool {
	if m.state != StatePlaying {
		return false
	}
	best := Rewards[m.session.CurrentGame()].Correct
	return m.session.CompleteGame(RoundRecord{
		Score:   roundScore,
		Correct: roundScore >= best,
		Details: details,
	})
}

// NextGame advances the session. Past the last round the session completes
// and the completion hook runs.
func (m *Machine) NextGame() bool {
	if m.state != StatePlaying || !m.session.NextGame(m.now()) {
		return false
	}
	if m.session.State == StateCompleted {
		m.active.Stop()
		m.instructions = false
		m.state = StateCompleted
		if m.onComplete != nil {
			m.onComplete(m.session)
		}
		return true
	}
	m.startGame()
	return true
}

// EndSession aborts the session from any state. Timers stop and the session
// is discarded without a result.
func (m *Machine) EndSession() bool {
	if m.active != nil {
		m.active.Stop()
	}
	if m.state != StatePlaying {
		return false
	}
	m.session.End(m.now())
	m.session = nil
	m.active = nil
	m.rounds = nil
	m.instructions = false
	m.state = StateAborted
	return true
}

// Snapshot is a read-only view of the machine for clients.
type Snapshot struct {
	State            State   `json:"state"`
	SessionID        string  `json:"session_id,omitempty"`
	PatientID        string  `json:"patient_id,omitempty"`
	Mode             Mode    `json:"mode,omitempty"`
	CurrentRound     int     `json:"current_round"`
	TotalRounds      int     `json:"total_rounds"`
	CurrentGameIndex int     `json:"current_game_index"`
	CurrentGame      Type    `json:"current_game,omitempty"`
	Score            int     `json:"score"`
	Progress         float64 `json:"progress"`
	ShowInstructions bool    `json:"show_instructions"`
	Round            *View   `json:"round,omitempty"`
}

// Snapshot returns the current view.
func (m *Machine) Snapshot() Snapshot {
	snap := Snapshot{State: m.state}
	s := m.session
	if s == nil {
		return snap
	}
	snap.SessionID = s.ID
	snap.PatientID = s.PatientID
	snap.Mode = s.Mode
	snap.CurrentRound = s.CurrentRound
	snap.TotalRounds = s.TotalRounds
	snap.CurrentGameIndex = s.CurrentGameIndex
	snap.CurrentGame = s.CurrentGame()
	snap.Score = s.Score
	snap.Progress = s.Progress()
	snap.ShowInstructions = m.instructions
	if m.state == StatePlaying && !m.instructions {
		v := m.active.View()
		snap.Round = &v
	}
	return snap
}
