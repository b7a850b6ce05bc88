package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

// intakeCmd converts raw exports into staged transaction workbooks
var intakeCmd = &cobra.Command{
	Use:   "intake",
	Short: "Take in new bank exports from the raw folders",
	Long: `Intake scans each institution's raw folder for bank exports (CSV or
xlsx) that have not been staged yet, converts them into transaction
workbooks in the incoming folder, and registers them in the budget store.
Raw exports are never modified or removed.

Examples:
  budman intake
  budman intake --fi boa`,
	RunE: runIntake,
}

func init() {
	rootCmd.AddCommand(intakeCmd)
}

func runIntake(cmd *cobra.Command, args []string) error {
	p, err := buildPipeline()
	if err != nil {
		return err
	}

	results, err := p.Intake(context.Background(), Settings().FI)
	if err != nil {
		return err
	}

	g, err := newGenerator()
	if err != nil {
		return err
	}
	return g.Intake(results, cmd.OutOrStdout())
}
