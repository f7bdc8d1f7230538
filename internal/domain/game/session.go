package game

import (
	"time"

	"github.com/fres-sudo/neuravia/internal/domain/scoring"
)

// State is the lifecycle state of a session.
type State string

// Session states.
const (
	StateIdle      State = "idle"
	StatePlaying   State = "playing"
	StateCompleted State = "completed"
	StateAborted   State = "aborted"
)

// Session is one play session of all four games. It is created playing and
// ends either completed (every round advanced) or aborted.
type Session struct {
	ID               string                 `json:"id"`
	PatientID        string                 `json:"patient_id"`
	Mode             Mode                   `json:"mode"`
	Profile          Profile                `json:"profile"`
	TotalRounds      int                    `json:"total_rounds"`
	CurrentRound     int                    `json:"current_round"`
	CurrentGameIndex int                    `json:"current_game_index"`
	Score            int                    `json:"score"`
	GamesCompleted   map[Type]int           `json:"games_completed"`
	RawData          map[Type][]RoundRecord `json:"raw_data"`
	StartTime        time.Time              `json:"start_time"`
	EndTime          time.Time              `json:"end_time,omitzero"`
	State            State                  `json:"state"`

	recordedRound int
}

// NewSession creates a playing session positioned on round 1 of the first
// game.
func NewSession(id, patientID string, mode Mode, profile Profile, now time.Time) (*Session, error) {
	if patientID == "" {
		return nil, ErrMissingPatient
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	return &Session{
		ID:               id,
		PatientID:        patientID,
		Mode:             mode,
		Profile:          profile,
		TotalRounds:      GameCount * mode.RoundsPerGame(),
		CurrentRound:     1,
		CurrentGameIndex: 0,
		GamesCompleted:   make(map[Type]int, GameCount),
		RawData:          make(map[Type][]RoundRecord, GameCount),
		StartTime:        now,
		State:            StatePlaying,
	}, nil
}

// RoundsPerGame returns how many consecutive rounds each game is played.
func (s *Session) RoundsPerGame() int { return s.Mode.RoundsPerGame() }

// CurrentGame returns the game type of the current round.
func (s *Session) CurrentGame() Type { return Order[s.CurrentGameIndex] }

// FirstPlay reports whether t has not been completed yet in this session.
func (s *Session) FirstPlay(t Type) bool { return s.GamesCompleted[t] == 0 }

// CompleteGame records the result of the current round. It is a no-op when
// the session is not playing or the round was already recorded.
func (s *Session) CompleteGame(rec RoundRecord) bool {
	if s == nil || s.State != StatePlaying || s.recordedRound == s.CurrentRound {
		return false
	}
	game := s.CurrentGame()
	rec.RoundNumber = s.CurrentRound
	s.RawData[game] = append(s.RawData[game], rec)
	s.Score += rec.Score
	s.GamesCompleted[game]++
	s.recordedRound = s.CurrentRound
	return true
}

// NextGame advances to the next round. Advancing from the last round
// completes the session. It is a no-op unless the session is playing.
func (s *Session) NextGame(now time.Time) bool {
	if s == nil || s.State != StatePlaying {
		return false
	}
	if s.CurrentRound >= s.TotalRounds {
		s.State = StateCompleted
		s.EndTime = now
		return true
	}
	s.CurrentRound++
	s.CurrentGameIndex = (s.CurrentRound - 1) / s.RoundsPerGame()
	return true
}

// End aborts a playing session.
func (s *Session) End(now time.Time) bool {
	if s == nil || s.State != StatePlaying {
		return false
	}
	s.State = StateAborted
	s.EndTime = now
	return true
}

// RoundsRecorded returns how many rounds have a result.
func (s *Session) RoundsRecorded() int {
	n := 0
	for _, rounds := range s.RawData {
		n += len(rounds)
	}
	return n
}

// Progress returns the fraction of rounds with a result.
func (s *Session) Progress() float64 {
	if s.TotalRounds == 0 {
		return 0
	}
	return float64(s.RoundsRecorded()) / float64(s.TotalRounds)
}

// Summary reduces the session to what scoring needs. Each round score is
// expressed as a percentage of its game's best reward so that games with
// different reward scales weigh the same; the session average is the mean of
// the per game averages.
func (s *Session) Summary(now time.Time) scoring.GameSummary {
	end := s.EndTime
	if end.IsZero() {
		end = now
	}
	summary := scoring.GameSummary{
		PerGameAverageScores: []float64{},
		SessionDurationMs:    max(0, end.Sub(s.StartTime).Milliseconds()),
	}
	var total float64
	for _, t := range Order {
		rounds := s.RawData[t]
		if len(rounds) == 0 {
			continue
		}
		best := float64(Rewards[t].Correct)
		var sum float64
		for _, r := range rounds {
			sum += float64(r.Score) / best * 100
		}
		avg := sum / float64(len(rounds))
		summary.PerGameAverageScores = append(summary.PerGameAverageScores, avg)
		total += avg
	}
	summary.GamesCompletedCount = len(summary.PerGameAverageScores)
	if summary.GamesCompletedCount > 0 {
		summary.AverageScorePerGame = total / float64(summary.GamesCompletedCount)
	}
	return summary
}
