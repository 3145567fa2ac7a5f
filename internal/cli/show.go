package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"queue-wait-monitor/internal/app"
)

var (
	showCounter string
	showLimit   int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent status snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			CounterID: showCounter,
			Limit:     showLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showCounter, "counter", "", "Counter to display (defaults to config)")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of snapshots to display")
}
