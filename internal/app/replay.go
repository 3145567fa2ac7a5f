package app

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"queue-wait-monitor/internal/estimator"
	"queue-wait-monitor/internal/storage"
)

// Replay reprocesses stored completion events through a fresh pipeline and
// rewrites the derived snapshots. Useful after retuning thresholds: the
// event log is the source of truth, snapshots are recomputable.
func (a *App) Replay(ctx context.Context, opts ReplayOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot replay")
	}
	if closeStore != nil {
		defer closeStore()
	}

	counterID := opts.CounterID
	if counterID == "" {
		counterID = a.Config.App.DefaultCounter
	}

	if !opts.From.Before(opts.To) {
		return errors.New("replay range is empty; check --from/--to")
	}

	events, err := store.ListEventsBetween(ctx, counterID, opts.From.UTC(), opts.To.UTC())
	if err != nil {
		return err
	}
	if len(events) == 0 {
		a.Logger.Info().Str("counter", counterID).Msg("no events found for replay window")
		return nil
	}

	if opts.DryRun {
		a.Logger.Warn().Msg("replay dry-run: recomputed snapshots will not be written")
	}

	monitor, err := estimator.NewMonitor(counterID, a.estimatorConfig(), a.Logger)
	if err != nil {
		return err
	}

	processed := 0
	failed := 0
	for _, record := range events {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ev := estimator.CompletionEvent{
			ID:        record.EventID,
			Timestamp: record.Timestamp,
		}
		_, snap, err := monitor.Ingest(ev)
		if err != nil {
			failed++
			a.Logger.Error().Err(err).Time("timestamp", record.Timestamp).Msg("replay failed for event")
			continue
		}
		processed++

		if opts.DryRun {
			continue
		}
		if err := a.persistReplaySnapshot(ctx, store, snap); err != nil {
			a.Logger.Error().Err(err).Time("timestamp", record.Timestamp).Msg("failed to write recomputed snapshot")
		}
	}

	a.Logger.Info().Int("processed", processed).Int("failed", failed).Msg("replay finished")
	if failed > 0 {
		return errors.New("some events failed to replay; check logs")
	}
	return nil
}

func (a *App) persistReplaySnapshot(ctx context.Context, store *storage.Store, snap estimator.StatusSnapshot) error {
	record := storage.SnapshotRecord{
		CounterID:   snap.CounterID,
		GeneratedAt: snap.GeneratedAt,
		Known:       snap.Known,
		Confidence:  string(snap.Estimate.Confidence),
	}
	for _, f := range snap.Flags {
		record.Flags = append(record.Flags, string(f.Kind))
	}
	if snap.Known {
		record.RatePerMin = decimal.NewFromFloat(snap.Rate.Rate)
		record.MeanInterval = decimal.NewFromFloat(snap.Rate.MeanInterval.Seconds())
		record.Trend = string(snap.Rate.Trend)
		record.WaitMinutes = decimal.NewFromFloat(snap.Estimate.Minutes)
	}

	_, err := store.InsertSnapshot(ctx, record)
	return err
}
