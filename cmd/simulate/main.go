package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/fres-sudo/neuravia/internal/simulate"
)

// Default configuration constants.
const (
	defaultPatients        = 20
	defaultGamesPerPatient = 5
	defaultHostedSessions  = 2
	defaultResendRatio     = 0.1
	defaultWorkers         = 2 // multiplier for runtime.NumCPU()
	defaultTimeout         = 30 * time.Second
	defaultSettleTimeout   = 30 * time.Second
	defaultRunTimeout      = 30 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		patients   = flag.Int("patients", defaultPatients, "Number of simulated patients")
		games      = flag.Int("games", defaultGamesPerPatient, "Client-side game results reported per patient")
		hosted     = flag.Int("hosted", defaultHostedSessions, "Hosted sessions played over the websocket stream")
		mode       = flag.String("mode", "short", "Hosted session mode: short or long")
		difficulty = flag.String("difficulty", "mild", "Hosted session difficulty")
		resend     = flag.Float64("resend", defaultResendRatio, "Fraction of game results sent twice")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		settle     = flag.Duration("settle", defaultSettleTimeout, "How long to wait for the ledger to catch up")
		outputFile = flag.String("output", "", "Output file for the run report (default: simulation_TIMESTAMP.json)")
		logFile    = flag.String("log", "", "Log file for run output (default: simulation_TIMESTAMP.log)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulate.ShowHelp()
		return
	}

	if err := simulate.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	config := &simulate.Config{
		BaseURL:         *baseURL,
		Patients:        *patients,
		GamesPerPatient: *games,
		HostedSessions:  *hosted,
		Mode:            *mode,
		Difficulty:      *difficulty,
		Workers:         *workers,
		Timeout:         *timeout,
		SettleTimeout:   *settle,
		ResendRatio:     *resend,
		OutputFile:      *outputFile,
		LogFile:         *logFile,
		Verbose:         *verbose,
	}

	if err := simulate.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		cancel()
		stop()
		os.Exit(1)
	}
}
