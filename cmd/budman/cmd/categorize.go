package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"budman/pkg/logger"
)

var categorizeLogAll bool

// categorizeCmd applies the institution rule catalogs to staged workbooks
var categorizeCmd = &cobra.Command{
	Use:   "categorize",
	Short: "Categorize staged transaction workbooks",
	Long: `Categorize applies each institution's regex rule catalog to the
workbooks in its incoming folder. Categorized copies land in the
categorized folder; rows no rule matches are collected into Other.xlsx in
the working folder for review. The run report includes a per-category
histogram.

Examples:
  budman categorize
  budman categorize --fi boa --output-format json`,
	RunE: runCategorize,
}

func init() {
	rootCmd.AddCommand(categorizeCmd)
	categorizeCmd.Flags().BoolVar(&categorizeLogAll, "log-all", false, "log every row's categorization decision")
}

func runCategorize(cmd *cobra.Command, args []string) error {
	if categorizeLogAll {
		log, err := logger.NewLogger(logger.DebugConfig())
		if err != nil {
			return err
		}
		logger.SetGlobalLogger(log)
	}

	p, err := buildPipeline()
	if err != nil {
		return err
	}

	results, err := p.Categorize(context.Background(), Settings().FI)
	if err != nil {
		return err
	}

	g, err := newGenerator()
	if err != nil {
		return err
	}
	return g.Categorize(results, cmd.OutOrStdout())
}
