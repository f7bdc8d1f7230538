package simulate

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/fres-sudo/neuravia/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) error {
	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "simulation_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, file)
	if err := logger.InitWith(logger.FormatText, multiWriter); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log.SetOutput(multiWriter)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the simulator.
func ShowHelp() {
	os.Stdout.WriteString(`Neuravia Simulator
==================

Plays cognitive game sessions against a running service and verifies that
every finished session lands in the patient's Boost ledger exactly once.

Usage:
  go run ./cmd/simulate [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -patients int
        Number of simulated patients (default 20)
  -games int
        Client-side game results reported per patient (default 5)
  -hosted int
        Hosted sessions played over the websocket stream (default 2)
  -mode string
        Hosted session mode: short or long (default "short")
  -difficulty string
        Hosted session difficulty: mild, moderate or severe (default "mild")
  -resend float
        Fraction of game results sent twice (default 0.1)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -settle duration
        How long to wait for the ledger to catch up (default 30s)
  -output string
        Output file for the run report (default: simulation_TIMESTAMP.json)
  -log string
        Log file for run output (default: simulation_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Run with default settings
  go run ./cmd/simulate

  # Report many results without hosted sessions
  go run ./cmd/simulate -patients 200 -games 20 -hosted 0

  # Play long sessions at severe difficulty
  go run ./cmd/simulate -hosted 4 -mode long -difficulty severe -verbose
`)
}
