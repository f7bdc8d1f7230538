package simulate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fres-sudo/neuravia/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	reportPermission    = 0600
)

// ErrInvalidConfig reports a simulation config that cannot run.
var ErrInvalidConfig = errors.New("invalid simulation config")

// Validate checks that the run is possible and verifiable.
func (c *Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("%w: base url is required", ErrInvalidConfig)
	case c.Patients < 1:
		return fmt.Errorf("%w: at least one patient is required", ErrInvalidConfig)
	case c.GamesPerPatient < 0 || c.HostedSessions < 0:
		return fmt.Errorf("%w: counts must not be negative", ErrInvalidConfig)
	case c.Workers < 1:
		return fmt.Errorf("%w: at least one worker is required", ErrInvalidConfig)
	case c.ResendRatio < 0 || c.ResendRatio > 1:
		return fmt.Errorf("%w: resend ratio must be within [0, 1]", ErrInvalidConfig)
	}
	perPatient := c.GamesPerPatient + (c.HostedSessions+c.Patients-1)/c.Patients
	if perPatient > historyLimit {
		return fmt.Errorf("%w: %d games per patient exceed the verifiable history of %d",
			ErrInvalidConfig, perPatient, historyLimit)
	}
	return nil
}

// Run executes the complete simulation.
func Run(ctx context.Context, config *Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	stats := &Stats{
		StartTime: time.Now(),
	}

	logger.Get().Info(ctx, "starting neuravia simulation",
		logger.String("baseURL", config.BaseURL),
		logger.Int("patients", config.Patients),
		logger.Int("gamesPerPatient", config.GamesPerPatient),
		logger.Int("hostedSessions", config.HostedSessions),
		logger.Int("workers", config.Workers),
		logger.String("timeout", config.Timeout.String()),
		logger.String("logFile", config.LogFile),
		logger.Any("verbose", config.Verbose))

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, config); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Generate patients and their client-side game results
	patients := generatePatients(config.Patients)
	games, err := generateGames(ctx, config, patients, stats)
	if err != nil {
		return fmt.Errorf("game generation failed: %w", err)
	}

	// Step 3: Report them concurrently
	if err := submitGames(ctx, config, games, stats); err != nil {
		return fmt.Errorf("game submission failed: %w", err)
	}

	// Step 4: Play hosted sessions over the stream
	sessions, err := playSessions(ctx, config, patients, stats)
	if err != nil {
		return fmt.Errorf("hosted sessions failed: %w", err)
	}

	// Step 5: Verify the ledger
	verifyErr := verifyLedger(ctx, config, games, sessions, stats)

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	// Step 6: Save the report
	if err := saveReport(ctx, config, Report{Games: games, Sessions: sessions, Stats: *stats}); err != nil {
		logger.Get().Warn(ctx, "failed to save report", logger.Error(err))
	}

	displayFinalStats(stats)

	if verifyErr != nil {
		return fmt.Errorf("ledger verification failed: %w", verifyErr)
	}
	logger.Get().Info(ctx, "simulation completed successfully")
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, config *Config) error {
	logger.Get().Info(ctx, "checking service health")

	client := newHTTPClient(config.BaseURL, config.Timeout)
	resp, err := client.Get(ctx, "/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	if err := decodeResponse(resp, nil); err != nil {
		return err
	}
	if resp.StatusCode != StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}

	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// saveReport writes the run report as JSON.
func saveReport(ctx context.Context, config *Config, report Report) error {
	filename := config.OutputFile
	if filename == "" {
		timestamp := time.Now().Format("20060102_150405")
		filename = "simulation_" + timestamp + ".json"
	}

	dir := filepath.Dir(filename)
	if dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(filename, data, reportPermission); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	logger.Get().Info(ctx, "report saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats prints the final run statistics.
func displayFinalStats(stats *Stats) {
	var acceptRate, gamesPerSecond float64

	if stats.GamesSubmitted > 0 {
		acceptRate = float64(stats.GamesAccepted) / float64(stats.GamesSubmitted) * PercentageMultiplier
	}

	if stats.Duration > 0 {
		gamesPerSecond = float64(stats.GamesSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("gamesGenerated", stats.GamesGenerated),
		logger.Int("gamesSubmitted", stats.GamesSubmitted),
		logger.Int("gamesAccepted", stats.GamesAccepted),
		logger.Int("gamesDuplicate", stats.GamesDuplicate),
		logger.Int("gamesFailed", stats.GamesFailed),
		logger.Int("sessionsPlayed", stats.SessionsPlayed),
		logger.Int("sessionsFailed", stats.SessionsFailed),
		logger.Int("entriesVerified", stats.EntriesVerified),
		logger.Int("entriesMissing", stats.EntriesMissing),
		logger.Int("entriesMismatch", stats.EntriesMismatch),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("acceptRate", acceptRate),
		logger.Float64("gamesPerSecond", gamesPerSecond))
}
