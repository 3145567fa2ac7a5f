package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
)

// Show prints recent status snapshots for one counter.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show snapshots")
	}
	if closeStore != nil {
		defer closeStore()
	}

	counterID := opts.CounterID
	if counterID == "" {
		counterID = a.Config.App.DefaultCounter
	}

	snapshots, err := store.ListRecentSnapshots(ctx, counterID, opts.Limit)
	if err != nil {
		return err
	}
	if len(snapshots) == 0 {
		fmt.Fprintln(os.Stdout, "no snapshots found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tKnown\tRate/min\tMean Int (s)\tTrend\tWait (min)\tConfidence\tFlags")

	for _, snap := range snapshots {
		rate, mean, wait, trend := "-", "-", "-", "-"
		if snap.Known {
			rate = formatDecimal(snap.RatePerMin, 3)
			mean = formatDecimal(snap.MeanInterval, 1)
			wait = formatDecimal(snap.WaitMinutes, 1)
			trend = snap.Trend
		}
		fmt.Fprintf(
			writer,
			"%s\t%t\t%s\t%s\t%s\t%s\t%s\t%s\n",
			snap.GeneratedAt.UTC().Format(time.RFC3339),
			snap.Known,
			rate,
			mean,
			trend,
			wait,
			snap.Confidence,
			strings.Join(snap.Flags, ","),
		)
	}

	writer.Flush()
	return nil
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
