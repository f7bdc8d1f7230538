package game

import "math/rand"

// Phase is the step a round is in.
type Phase string

// Round phases. Not every game uses Hidden or Moving.
const (
	PhaseLoading  Phase = "loading"
	PhaseMemorize Phase = "memorize"
	PhaseHidden   Phase = "hidden"
	PhaseMoving   Phase = "moving"
	PhaseRespond  Phase = "respond"
	PhaseResult   Phase = "result"
)

// Round timing shared by every game, in ticks.
const (
	DefaultResponseTimeout = 30
	ResultTicks            = 2
)

// Action is one player input. Target is a marker index for SceneCrasher and
// HawkEye, a task id for TodoList and a grid cell (0-8) for FlashingMemory.
type Action struct {
	Target int `json:"target"`
}

// Outcome is the resolved result of a round.
type Outcome struct {
	Correct  bool           `json:"correct"`
	Score    int            `json:"score"`
	TimedOut bool           `json:"timed_out,omitempty"`
	Ticks    int            `json:"ticks"`
	Details  map[string]any `json:"details,omitempty"`
}

// Point is a marker position in percent of the play area.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Task is one TodoList entry. ID is the task's rank in the original order.
type Task struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
}

// View is what a client needs to render the active round.
type View struct {
	Game          Type     `json:"game"`
	Round         int      `json:"round"`
	Phase         Phase    `json:"phase"`
	TimeRemaining int      `json:"time_remaining"`
	Markers       []Point  `json:"markers,omitempty"`
	Highlight     *int     `json:"highlight,omitempty"`
	Tasks         []Task   `json:"tasks,omitempty"`
	Grid          []int    `json:"grid,omitempty"`
	Progress      int      `json:"progress"`
	Outcome       *Outcome `json:"outcome,omitempty"`
}

// Round is the phase machine of one game type. A Round is reused across the
// rounds of its game; Reset rebuilds it whenever the round number changes.
type Round interface {
	Type() Type
	// Reset prepares the round identified by number. Calling it again with
	// the same number and settings keeps the current state.
	Reset(number int, s Settings)
	// Tick advances the countdown by one tick.
	Tick()
	// Act applies a player input and reports whether it was accepted.
	Act(a Action) bool
	Phase() Phase
	// Outcome returns the result once the round has been resolved.
	Outcome() (Outcome, bool)
	// Finished reports whether the result has been shown long enough.
	Finished() bool
	View() View
	// Stop cancels any running countdown.
	Stop()
}

// roundConfig carries what every game needs besides its settings.
type roundConfig struct {
	rng             *rand.Rand
	responseTimeout int
	assets          Assets
}

// base holds the state and transitions shared by every game.
type base struct {
	game     Type
	cfg      roundConfig
	number   int
	settings Settings
	phase    Phase
	timer    Timer
	handle   Handle
	started  bool
	spent    int
	outcome  *Outcome
	finished bool
}

func newBase(t Type, cfg roundConfig) base {
	if cfg.responseTimeout <= 0 {
		cfg.responseTimeout = DefaultResponseTimeout
	}
	return base{game: t, cfg: cfg, phase: PhaseLoading}
}

func (b *base) Type() Type   { return b.game }
func (b *base) Phase() Phase { return b.phase }
func (b *base) Stop()        { b.timer.Stop() }

func (b *base) Finished() bool { return b.finished }

func (b *base) Outcome() (Outcome, bool) {
	if b.outcome == nil {
		return Outcome{}, false
	}
	return *b.outcome, true
}

// reset clears all phase state for round number. It reports whether the
// caller should build a fresh layout: false means the round is unchanged or
// the settings are not resolved yet and the round idles in PhaseLoading.
func (b *base) reset(number int, s Settings) bool {
	if number == b.number && s == b.settings && b.phase != PhaseLoading {
		return false
	}
	b.timer.Stop()
	b.handle = Handle{}
	b.number = number
	b.settings = s
	b.started = false
	b.spent = 0
	b.outcome = nil
	b.finished = false
	b.phase = PhaseLoading
	return s.Resolved()
}

// begin enters the memorize phase once per round.
func (b *base) begin(ticks int) {
	if b.started {
		return
	}
	b.started = true
	b.enter(PhaseMemorize, ticks)
}

// enter switches phase and replaces the countdown.
func (b *base) enter(p Phase, ticks int) {
	b.handle.Stop()
	b.phase = p
	b.handle = b.timer.Start(ticks)
}

func (b *base) respond() {
	b.enter(PhaseRespond, b.cfg.responseTimeout)
}

// resolve fixes the outcome of the round and shows the result.
func (b *base) resolve(correct bool, details map[string]any) {
	if b.outcome != nil {
		return
	}
	reward := Rewards[b.game]
	score := reward.Incorrect
	if correct {
		score = reward.Correct
	}
	b.outcome = &Outcome{Correct: correct, Score: score, Ticks: b.spent, Details: details}
	b.enter(PhaseResult, ResultTicks)
}

// tick runs the shared part of a tick and reports whether the countdown of a
// game specific phase (memorize, hidden, moving) just expired.
func (b *base) tick() bool {
	if b.finished || b.phase == PhaseLoading {
		return false
	}
	if b.phase == PhaseRespond {
		b.spent++
	}
	if !b.timer.Tick() {
		return false
	}
	switch b.phase {
	case PhaseRespond:
		b.resolve(false, map[string]any{"timed_out": true})
		b.outcome.TimedOut = true
		return false
	case PhaseResult:
		b.finished = true
		return false
	}
	return true
}

// accepting reports whether player input should be considered.
func (b *base) accepting() bool {
	return b.phase == PhaseRespond && b.outcome == nil
}

func (b *base) view() View {
	v := View{
		Game:          b.game,
		Round:         b.number,
		Phase:         b.phase,
		TimeRemaining: b.timer.Remaining(),
	}
	if b.outcome != nil {
		o := *b.outcome
		v.Outcome = &o
	}
	return v
}

// Play area layout: markers sit at the centre of distinct cells so they never
// overlap.
const (
	layoutCols = 6
	layoutRows = 5
)

func cellPoint(cell int) Point {
	col, row := cell%layoutCols, cell/layoutCols
	return Point{
		X: col*100/layoutCols + 50/layoutCols,
		Y: row*100/layoutRows + 50/layoutRows,
	}
}

// scatter picks n distinct cells of the play area.
func scatter(rng *rand.Rand, n int) []int {
	n = min(n, layoutCols*layoutRows)
	return rng.Perm(layoutCols * layoutRows)[:n]
}

func clampPercent(v int) int {
	return max(5, min(95, v))
}
