package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"queue-wait-monitor/internal/display"
	"queue-wait-monitor/internal/estimator"
	"queue-wait-monitor/internal/simulation"
)

// Simulate feeds a synthetic shift through a fresh estimation pipeline and
// prints the display board as the day unfolds. No persistence or alerting
// is involved; this exercises the estimator against generated patterns the
// pipeline knows nothing about.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	if opts.Hours <= 0 {
		return errors.New("simulation hours must be positive")
	}
	if opts.DisplayEvery <= 0 {
		opts.DisplayEvery = 1
	}

	monitor, err := estimator.NewMonitor("simulated", a.estimatorConfig(), a.Logger)
	if err != nil {
		return err
	}

	start := time.Now().UTC().Truncate(time.Hour)
	generator := simulation.NewGenerator(opts.Hours, opts.BaseServiceTime, opts.Seed)
	completions := generator.Generate(start)

	a.Logger.Info().
		Int("completions", len(completions)).
		Int("hours", opts.Hours).
		Dur("base_service_time", opts.BaseServiceTime).
		Msg("starting simulated shift")

	flagged := 0
	for i, completion := range completions {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ev := estimator.CompletionEvent{
			ID:        fmt.Sprintf("sim-%d", completion.CustomerID),
			Timestamp: completion.Timestamp,
		}
		_, snap, err := monitor.Ingest(ev)
		if err != nil {
			return err
		}

		if len(snap.Flags) > 0 {
			flagged++
			for _, flag := range snap.Flags {
				a.Logger.Warn().
					Str("kind", string(flag.Kind)).
					Str("severity", flag.Severity.String()).
					Time("at", flag.DetectedAt).
					Msg(flag.Detail)
			}
		}

		if (i+1)%opts.DisplayEvery == 0 {
			fmt.Fprintln(os.Stdout, display.Render(snap))
			fmt.Fprintln(os.Stdout)
		}
	}

	snap, ok := monitor.Status()
	if !ok {
		return errors.New("simulation produced no snapshots")
	}

	fmt.Fprintln(os.Stdout, "=== end of shift ===")
	fmt.Fprintln(os.Stdout, display.Render(snap))
	a.Logger.Info().
		Int("completions", len(completions)).
		Int("flagged_snapshots", flagged).
		Msg("simulated shift finished")
	return nil
}
