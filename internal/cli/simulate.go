package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"queue-wait-monitor/internal/app"
)

var (
	simulateHours        int
	simulateBaseService  time.Duration
	simulateSeed         int64
	simulateDisplayEvery int
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a synthetic shift through the estimation pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getApp().Config

		opts := app.SimulateOptions{
			Hours:           cfg.Simulation.Hours,
			BaseServiceTime: cfg.Simulation.BaseServiceTime,
			Seed:            cfg.Simulation.Seed,
			DisplayEvery:    cfg.Simulation.DisplayEvery,
		}
		if cmd.Flags().Changed("hours") {
			opts.Hours = simulateHours
		}
		if cmd.Flags().Changed("base-service-time") {
			opts.BaseServiceTime = simulateBaseService
		}
		if cmd.Flags().Changed("seed") {
			opts.Seed = simulateSeed
		}
		if cmd.Flags().Changed("display-every") {
			opts.DisplayEvery = simulateDisplayEvery
		}

		if opts.Hours <= 0 || opts.BaseServiceTime <= 0 {
			return errors.New("--hours and --base-service-time must be positive")
		}

		return getApp().Simulate(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().IntVar(&simulateHours, "hours", 8, "Shift length in hours")
	simulateCmd.Flags().DurationVar(&simulateBaseService, "base-service-time", 4*time.Minute, "Base service time per customer")
	simulateCmd.Flags().Int64Var(&simulateSeed, "seed", 0, "Deterministic seed (0 uses current time)")
	simulateCmd.Flags().IntVar(&simulateDisplayEvery, "display-every", 5, "Print the display board every N completions")
}
