package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var finalizeForce bool

// finalizeCmd moves fully categorized workbooks into the finalized folder
var finalizeCmd = &cobra.Command{
	Use:   "finalize",
	Short: "Finalize fully categorized workbooks",
	Long: `Finalize copies workbooks from the categorized folder into the
finalized folder. A workbook that still carries uncategorized rows is
refused unless --force is given.

Examples:
  budman finalize
  budman finalize --fi boa --force`,
	RunE: runFinalize,
}

func init() {
	rootCmd.AddCommand(finalizeCmd)
	finalizeCmd.Flags().BoolVar(&finalizeForce, "force", false, "finalize workbooks that still have uncategorized rows")
}

func runFinalize(cmd *cobra.Command, args []string) error {
	p, err := buildPipeline()
	if err != nil {
		return err
	}

	results, err := p.Finalize(context.Background(), Settings().FI, finalizeForce)
	if err != nil {
		return err
	}

	g, err := newGenerator()
	if err != nil {
		return err
	}
	return g.Finalize(results, cmd.OutOrStdout())
}
