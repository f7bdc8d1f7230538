package simulate

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"github.com/fres-sudo/neuravia/internal/domain/scoring"
	"github.com/fres-sudo/neuravia/pkg/logger"
)

// Constants for random number generation.
const (
	randomFloatDivisor = 1000000
	profileDivisor     = 4
)

// Constants for summary generation ranges.
const (
	strongAverageMin   = 70.0
	strongAverageRange = 30.0
	steadyAverageMin   = 40.0
	steadyAverageRange = 30.0
	weakAverageMin     = 0.0
	weakAverageRange   = 40.0
	scoreSpread        = 20.0
	fastSessionMs      = 120_000
	slowSessionMs      = 900_000
)

// Constants for performance profile cases.
const (
	caseStrongPlayer = 0
	caseSteadyPlayer = 1
	caseWeakPlayer   = 2
	caseMixedPlayer  = 3
)

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

// getRandomInt returns a random int in [0, n).
func getRandomInt(n int) int {
	if n <= 0 {
		return 0
	}
	v, _ := rand.Int(rand.Reader, big.NewInt(int64(n)))
	return int(v.Int64())
}

// generatePatients returns unique patient ids.
func generatePatients(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = "sim-" + uuid.NewString()
	}
	return ids
}

// generateGames creates GamesPerPatient results for every patient.
func generateGames(ctx context.Context, config *Config, patients []string, stats *Stats) ([]GameSubmission, error) {
	total := len(patients) * config.GamesPerPatient
	logger.Get().Info(ctx, "generating game results", logger.Int("patients", len(patients)), logger.Int("games", total))

	games := make([]GameSubmission, 0, total)
	for _, patientID := range patients {
		for i := 0; i < config.GamesPerPatient; i++ {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("context cancelled during generation: %w", err)
			}
			games = append(games, generateSingleGame(patientID, config.Mode))
		}
	}

	stats.GamesGenerated = len(games)
	logger.Get().Info(ctx, "generated game results", logger.Int("count", len(games)))
	return games, nil
}

// generateSingleGame creates one game result for patientID.
func generateSingleGame(patientID, mode string) GameSubmission {
	summary := generateSummary()
	return GameSubmission{
		PatientID: patientID,
		SessionID: "sim-session-" + uuid.NewString(),
		Mode:      mode,
		Summary:   summary,
		Expected:  scoring.NormalizeGamePlayed(summary),
	}
}

// generateSummary creates a session summary with a varied performance profile.
func generateSummary() scoring.GameSummary {
	completed := scoring.TotalGameTypes
	if getRandomInt(5) == 0 {
		completed = getRandomInt(scoring.TotalGameTypes)
	}

	var base float64
	switch getRandomInt(profileDivisor) {
	case caseStrongPlayer:
		base = strongAverageMin + getRandomFloat()*strongAverageRange
	case caseSteadyPlayer:
		base = steadyAverageMin + getRandomFloat()*steadyAverageRange
	case caseWeakPlayer:
		base = weakAverageMin + getRandomFloat()*weakAverageRange
	case caseMixedPlayer:
		base = getRandomFloat() * scoring.MaxScore
	}

	perGame := make([]float64, completed)
	var sum float64
	for i := range perGame {
		v := scoring.Clamp(base+(getRandomFloat()-0.5)*scoreSpread, scoring.MinScore, scoring.MaxScore)
		perGame[i] = v
		sum += v
	}
	avg := 0.0
	if completed > 0 {
		avg = sum / float64(completed)
	}

	duration := int64(fastSessionMs + getRandomFloat()*(slowSessionMs-fastSessionMs))
	return scoring.GameSummary{
		AverageScorePerGame:  avg,
		GamesCompletedCount:  completed,
		PerGameAverageScores: perGame,
		SessionDurationMs:    duration,
	}
}
