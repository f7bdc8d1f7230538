// Package game implements the mini-game session machine: a session sequences
// four game types over a fixed number of rounds, each round runs a small
// phase machine driven by a countdown timer, and a finished session reduces
// to a scoring.GameSummary.
//
// Nothing in this package is safe for concurrent use. Callers serialise
// ticks, player actions and teardown themselves.
package game

import (
	"fmt"
	"strings"
)

// Type identifies one of the four mini-games.
type Type string

// Game types in play order.
const (
	SceneCrasher   Type = "scene-crasher"
	HawkEye        Type = "hawk-eye"
	TodoList       Type = "todo-list"
	FlashingMemory Type = "flashing-memory"
)

// Order is the fixed play order of a session.
var Order = [...]Type{SceneCrasher, HawkEye, TodoList, FlashingMemory}

// GameCount is the number of game types in a session.
const GameCount = len(Order)

// Reward is the score of a correct and an incorrect round.
type Reward struct {
	Correct   int
	Incorrect int
}

// Rewards per game type.
var Rewards = map[Type]Reward{
	SceneCrasher:   {Correct: 15, Incorrect: 0},
	HawkEye:        {Correct: 15, Incorrect: 5},
	TodoList:       {Correct: 15, Incorrect: 8},
	FlashingMemory: {Correct: 20, Incorrect: 5},
}

// Mode selects how many rounds each game is played.
type Mode string

// Session modes.
const (
	ModeShort Mode = "short"
	ModeLong  Mode = "long"
)

// RoundsPerGame returns 3 for short sessions and 10 for long ones.
func (m Mode) RoundsPerGame() int {
	if m == ModeLong {
		return 10
	}
	return 3
}

// ParseMode converts s into a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeShort, ModeLong:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Difficulty is the player's difficulty level.
type Difficulty string

// Difficulty levels.
const (
	DifficultyMild     Difficulty = "mild"
	DifficultyModerate Difficulty = "moderate"
	DifficultySevere   Difficulty = "severe"
)

// ParseDifficulty converts s into a Difficulty.
func ParseDifficulty(s string) (Difficulty, error) {
	switch d := Difficulty(strings.ToLower(strings.TrimSpace(s))); d {
	case DifficultyMild, DifficultyModerate, DifficultySevere:
		return d, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDifficulty, s)
}

// Assets is a cosmetic asset set for one game.
type Assets struct {
	Background string   `json:"background,omitempty"`
	Items      []string `json:"items,omitempty"`
}

// Profile is the player profile attached to a session.
type Profile struct {
	Profession   string          `json:"profession"`
	Difficulty   Difficulty      `json:"difficulty"`
	CustomAssets map[Type]Assets `json:"custom_assets,omitempty"`
}

// Settings are the per-round parameters resolved from a difficulty level.
// TimerDuration is counted in ticks.
type Settings struct {
	TimerDuration int `json:"timer_duration"`
	ItemCount     int `json:"item_count"`
}

// Resolved reports whether the settings can drive a round.
func (s Settings) Resolved() bool {
	return s.TimerDuration > 0 && s.ItemCount > 0
}

// SettingsTable maps difficulty levels to round settings.
type SettingsTable map[Difficulty]Settings

// DefaultSettings is the stock difficulty table.
func DefaultSettings() SettingsTable {
	return SettingsTable{
		DifficultyMild:     {TimerDuration: 5, ItemCount: 4},
		DifficultyModerate: {TimerDuration: 8, ItemCount: 3},
		DifficultySevere:   {TimerDuration: 12, ItemCount: 2},
	}
}

// Lookup returns the settings for d. The zero Settings (unresolved) is
// returned when d is missing from the table.
func (t SettingsTable) Lookup(d Difficulty) Settings {
	return t[d]
}

// RoundRecord is the telemetry kept for one finished round.
type RoundRecord struct {
	RoundNumber int            `json:"round_number"`
	Score       int            `json:"score"`
	Correct     bool           `json:"correct"`
	TimeSpent   int            `json:"time_spent_ticks"`
	Details     map[string]any `json:"details,omitempty"`
}
