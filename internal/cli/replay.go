package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"queue-wait-monitor/internal/app"
)

var (
	replayCounter string
	replayFrom    string
	replayTo      string
	replayDryRun  bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Reprocess stored events through a fresh pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayFrom == "" || replayTo == "" {
			return fmt.Errorf("--from and --to must be provided")
		}

		from, err := time.Parse(time.RFC3339, replayFrom)
		if err != nil {
			return fmt.Errorf("invalid --from value: %w", err)
		}

		to, err := time.Parse(time.RFC3339, replayTo)
		if err != nil {
			return fmt.Errorf("invalid --to value: %w", err)
		}

		if !from.Before(to) {
			return fmt.Errorf("--from must be before --to")
		}

		opts := app.ReplayOptions{
			CounterID: replayCounter,
			From:      from,
			To:        to,
			DryRun:    replayDryRun,
		}

		return getApp().Replay(cmd.Context(), opts)
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayCounter, "counter", "", "Counter to replay (defaults to config)")
	replayCmd.Flags().StringVar(&replayFrom, "from", "", "Start timestamp (RFC3339, inclusive)")
	replayCmd.Flags().StringVar(&replayTo, "to", "", "End timestamp (RFC3339, exclusive)")
	replayCmd.Flags().BoolVar(&replayDryRun, "dry-run", false, "Run without writing recomputed snapshots")
}
