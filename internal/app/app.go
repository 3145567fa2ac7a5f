package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"queue-wait-monitor/internal/alerting"
	"queue-wait-monitor/internal/config"
	"queue-wait-monitor/internal/estimator"
	"queue-wait-monitor/internal/metrics"
	"queue-wait-monitor/internal/scheduler"
	"queue-wait-monitor/internal/server"
	"queue-wait-monitor/internal/service"
	"queue-wait-monitor/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// estimatorConfig maps the file-level tunables onto one counter pipeline.
func (a *App) estimatorConfig() estimator.Config {
	return estimator.Config{
		WindowCapacity:    a.Config.Window.Capacity,
		EventLogRetention: a.Config.Window.EventLogRetention,
		Rate: estimator.RateConfig{
			HalfLife:          a.Config.Estimator.HalfLife,
			TrendThresholdPct: a.Config.Estimator.TrendThresholdPct,
			MinInterval:       a.Config.Estimator.MinInterval,
		},
		Anomaly: estimator.AnomalyConfig{
			SlowdownSigma:    a.Config.Anomaly.SlowdownSigma,
			StallMultiple:    a.Config.Anomaly.StallMultiple,
			InstabilityRatio: a.Config.Anomaly.InstabilityRatio,
		},
		Predictor: estimator.PredictorConfig{
			ReferenceDepth:  a.Config.Predictor.ReferenceDepth,
			TrendAdjustment: a.Config.Predictor.TrendAdjustment,
		},
	}
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running monitoring service: the HTTP interface for
// ingestion and queries plus the refresh scheduler that surfaces stalls.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	registry, err := estimator.NewRegistry(a.estimatorConfig(), a.Logger)
	if err != nil {
		return err
	}

	promRegistry := prometheus.NewRegistry()
	m := metrics.New(promRegistry)

	var eventStore storage.EventStore
	var snapshotStore storage.SnapshotStore
	var alertStore storage.AlertStore
	if store != nil {
		eventStore = store
		snapshotStore = store
		alertStore = store
	}

	svc := service.New(a.Config, registry, eventStore, snapshotStore, alertStore, a.newNotifier(), m, a.Logger)

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.RefreshInterval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	srv := server.New(a.Config, svc, promRegistry, a.Logger)

	refresh := func(ctx context.Context, tick time.Time) error {
		if store != nil {
			unlock, acquired, err := store.TryAdvisoryLock(ctx, a.Config.Scheduler.AdvisoryLockKey)
			if err != nil {
				return err
			}
			if !acquired {
				a.Logger.Debug().Time("tick", tick).Msg("refresh lock held elsewhere; skipping tick")
				return nil
			}
			defer unlock()
		}
		return svc.Refresh(ctx, tick)
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- sched.Run(ctx, refresh)
	}()
	go func() {
		errCh <- srv.Start()
	}()

	a.Logger.Info().Msg("starting monitoring service")

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error().Err(err).Msg("http server shutdown failed")
	}

	if runErr != nil {
		a.Logger.Error().Err(runErr).Msg("service terminated with error")
		return runErr
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// ExportOptions hold parameters for exporting historical snapshots.
type ExportOptions struct {
	CounterID string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	CounterID string
	Limit     int
}

// SimulateOptions configure the synthetic shift run.
type SimulateOptions struct {
	Hours           int
	BaseServiceTime time.Duration
	Seed            int64
	DisplayEvery    int
}

// ReplayOptions configure reprocessing of stored events.
type ReplayOptions struct {
	CounterID string
	From      time.Time
	To        time.Time
	DryRun    bool
}
