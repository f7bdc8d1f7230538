package scoring

import "math"

// MRI severity classes in probability vector order.
const (
	ClassHealthy = iota
	ClassMild
	ClassModerate
	ClassSevere
	ClassCount
)

// classScores maps each severity class to its contribution.
var classScores = [ClassCount]float64{100, 70, 40, 10}

// NormalizeMRIUpload turns a [healthy, mild, moderate, severe] probability
// vector into a single value. Missing entries count as 0 and extra entries
// are ignored; the vector is not required to sum to 1.
func NormalizeMRIUpload(probabilities []float64) float64 {
	var sum float64
	for i, p := range probabilities {
		if i >= ClassCount {
			break
		}
		if math.IsNaN(p) {
			continue
		}
		sum += p * classScores[i]
	}
	return Clamp(sum, MinScore, MaxScore)
}

// Likert bounds used by the weekly form.
const (
	likertMin   = 1
	likertScale = 25 // (5 - 1) * 25 = 100
)

// NormalizeWeeklyForm maps the mean of 1-5 ratings linearly onto 0-100.
// An empty form scores 0.
func NormalizeWeeklyForm(responses []int) float64 {
	if len(responses) == 0 {
		return MinScore
	}
	var sum int
	for _, r := range responses {
		sum += r
	}
	mean := float64(sum) / float64(len(responses))
	return Clamp((mean-likertMin)*likertScale, MinScore, MaxScore)
}

// Game session scoring constants.
const (
	TotalGameTypes      = 4
	completionBonus     = 10.0
	consistencyBonusCap = 15.0
	sessionBudgetMs     = 300_000 // five minutes
	penaltyPerMinuteMs  = 60_000
)

// GameSummary is a finished session reduced to what scoring needs.
type GameSummary struct {
	AverageScorePerGame  float64   `json:"average_score_per_game"`
	GamesCompletedCount  int       `json:"games_completed_count"`
	PerGameAverageScores []float64 `json:"per_game_average_scores"`
	SessionDurationMs    int64     `json:"session_duration_ms"`
}

// Variance returns the mean squared deviation of PerGameAverageScores around
// AverageScorePerGame. No games means no variance.
func (s GameSummary) Variance() float64 {
	if len(s.PerGameAverageScores) == 0 {
		return 0
	}
	var acc float64
	for _, v := range s.PerGameAverageScores {
		d := v - s.AverageScorePerGame
		acc += d * d
	}
	return acc / float64(len(s.PerGameAverageScores))
}

// NormalizeGamePlayed starts from the average per-game score, adds the
// completion and consistency bonuses, then subtracts one point per minute
// spent beyond the five minute budget.
func NormalizeGamePlayed(s GameSummary) float64 {
	value := s.AverageScorePerGame
	if s.GamesCompletedCount >= TotalGameTypes {
		value += completionBonus
	}
	value += math.Max(0, consistencyBonusCap-s.Variance())
	value -= math.Max(0, float64(s.SessionDurationMs-sessionBudgetMs)/penaltyPerMinuteMs)
	return Clamp(value, MinScore, MaxScore)
}
