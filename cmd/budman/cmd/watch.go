package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"budman/internal/pipeline"
)

var (
	watchSettle     time.Duration
	watchCategorize bool
)

// watchCmd runs intake automatically as exports land in the raw folders
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the raw folders and take in new exports automatically",
	Long: `Watch monitors each institution's raw folder and runs intake when a
new export stops changing. The settle delay avoids reading half-written
downloads. Runs until interrupted.

Examples:
  budman watch
  budman watch --fi boa --settle 5s --categorize`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().DurationVar(&watchSettle, "settle", 0, "write-settle delay before taking in a new export (default from settings)")
	watchCmd.Flags().BoolVar(&watchCategorize, "categorize", false, "categorize after each triggered intake")
}

func runWatch(cmd *cobra.Command, args []string) error {
	p, err := buildPipeline()
	if err != nil {
		return err
	}

	g, err := newGenerator()
	if err != nil {
		return err
	}

	settle := watchSettle
	if settle <= 0 {
		settle = Settings().Settle
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = p.Watch(ctx, pipeline.WatchOptions{
		FI:         Settings().FI,
		Settle:     settle,
		Categorize: watchCategorize,
		OnRun: func(results []*pipeline.IntakeResult, runErr error) {
			if runErr != nil {
				return
			}
			g.Intake(results, cmd.OutOrStdout())
		},
	})
	if err == context.Canceled {
		return nil
	}
	return err
}
