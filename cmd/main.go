package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/fres-sudo/neuravia/internal/adapters/classifier"
	"github.com/fres-sudo/neuravia/internal/adapters/completion"
	"github.com/fres-sudo/neuravia/internal/adapters/http/api"
	"github.com/fres-sudo/neuravia/internal/adapters/http/swagger"
	app "github.com/fres-sudo/neuravia/internal/app"
	"github.com/fres-sudo/neuravia/internal/config"
	"github.com/fres-sudo/neuravia/internal/domain/scoring"
	"github.com/fres-sudo/neuravia/pkg/logger"
	"github.com/fres-sudo/neuravia/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	if err := logger.Init(); err != nil {
		// Logger isn't available yet.
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}

// run loads configuration, serves HTTP until ctx is done, then shuts down.
func run(ctx context.Context) error {
	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.InitWith(cfg.LogFormat, os.Stdout); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	metrics.Configure(
		metrics.WithMetricsEnabled(cfg.MetricsEnabled),
		metrics.WithRefreshInterval(time.Duration(cfg.MetricsRefreshMS)*time.Millisecond),
	)

	opts, err := serviceOptions(cfg, log)
	if err != nil {
		return err
	}
	svc := app.New(opts...)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx, metrics.RefreshInterval())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, svc, log),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("database", cfg.Database.Driver),
			logger.Bool("metrics", cfg.MetricsEnabled),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// serviceOptions translates configuration into service options.
func serviceOptions(cfg *config.Config, log logger.Logger) ([]app.Option, error) {
	weights, err := cfg.ActivityWeights()
	if err != nil {
		return nil, fmt.Errorf("weights: %w", err)
	}
	policy, err := scoring.ParseWeightPolicy(cfg.WeightPolicy)
	if err != nil {
		return nil, fmt.Errorf("weight_policy: %w", err)
	}
	settings, err := cfg.SettingsTable()
	if err != nil {
		return nil, fmt.Errorf("difficulty: %w", err)
	}

	opts := []app.Option{
		app.WithLogger(log.Named("service")),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithDatabase(cfg.Database.Driver, cfg.Database.DSN),
		app.WithWeights(weights),
		app.WithWeightPolicy(policy),
		app.WithSettings(settings),
		app.WithTickInterval(cfg.TickInterval()),
		app.WithResponseTimeout(cfg.Session.ResponseTimeoutTicks),
		app.WithMaxLiveSessions(cfg.Session.MaxLive),
		app.WithEmojiCacheSize(cfg.EmojiCacheSize),
	}

	if cfg.Classifier.URL != "" {
		opts = append(opts, app.WithClassifier(classifier.New(
			classifier.WithURL(cfg.Classifier.URL),
			classifier.WithTimeout(config.Millis(cfg.Classifier.TimeoutMS)),
			classifier.WithLogger(log.Named("classifier")),
		)))
	}

	if cfg.Completion.BaseURL != "" {
		opts = append(opts, app.WithCompleter(completion.New(
			completion.WithBaseURL(cfg.Completion.BaseURL),
			completion.WithAPIKey(cfg.Completion.APIKey),
			completion.WithModel(cfg.Completion.Model),
			completion.WithTimeout(config.Millis(cfg.Completion.TimeoutMS)),
			completion.WithRateLimit(cfg.Completion.RatePerSecond, cfg.Completion.Burst),
			completion.WithLogger(log.Named("completion")),
		)))
	} else {
		log.Warn(context.Background(), "completion client disabled; notes adjustments fall back and emojis are unavailable")
	}

	return opts, nil
}

// newMux registers the API reference and business routes.
func newMux(ctx context.Context, svc *app.Service, log logger.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc, api.WithLogger(log.Named("api"))).Register(ctx, mux)
	return mux
}

// startSystemMetricsUpdater samples runtime metrics every interval.
func startSystemMetricsUpdater(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
