package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var checkRegisterFile string

// applyChecksCmd resolves parked check transactions from a check register
var applyChecksCmd = &cobra.Command{
	Use:   "apply-checks",
	Short: "Categorize check transactions from a check register",
	Long: `Apply-checks reads a check register CSV (check number, pay-to) and
rewrites check transactions parked in the "Banking.Checks to Categorize"
category across the categorized workbooks. A check is rewritten when its
pay-to name matches a payee in the institution's catalog; the rest stay
parked for the next pass.

Examples:
  budman apply-checks --register checks.csv
  budman apply-checks --register checks.csv --fi boa`,
	RunE: runApplyChecks,
}

func init() {
	rootCmd.AddCommand(applyChecksCmd)
	applyChecksCmd.Flags().StringVarP(&checkRegisterFile, "register", "r", "", "check register CSV file (required)")
	applyChecksCmd.MarkFlagRequired("register")
}

func runApplyChecks(cmd *cobra.Command, args []string) error {
	p, err := buildPipeline()
	if err != nil {
		return err
	}

	results, err := p.ApplyChecks(context.Background(), Settings().FI, checkRegisterFile)
	if err != nil {
		return err
	}

	g, err := newGenerator()
	if err != nil {
		return err
	}
	return g.ApplyChecks(results, cmd.OutOrStdout())
}
