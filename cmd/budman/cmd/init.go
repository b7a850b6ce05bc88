package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"budman/internal/category"
	"budman/internal/pipeline"
	"budman/internal/store"
	"budman/pkg/errors"
	"budman/pkg/logger"
)

var initForce bool

// initCmd bootstraps a budget folder: store document, stage folders and a
// starter catalog per institution
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a budget folder",
	Long: `Init creates a new budget store in the budget folder, builds the
staging tree (raw, incoming, working, categorized, finalized) for each
tracked institution, and seeds a starter category catalog.

Examples:
  budman init --budget-folder ~/budget
  budman init --force`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "replace an existing budget store")
}

func runInit(cmd *cobra.Command, args []string) error {
	s := Settings()

	if err := os.MkdirAll(s.BudgetFolder, 0755); err != nil {
		return errors.FileError(errors.CodeDirectoryError, s.BudgetFolder, err)
	}

	storePath := s.StorePath()
	if _, err := os.Stat(storePath); err == nil && !initForce {
		return errors.FileError(errors.CodeFileExists, storePath, nil).
			WithSuggestion("a budget store already exists here; use --force to replace it")
	}

	st := store.Template(s.BudgetFolder)
	if err := st.SaveAs(storePath); err != nil {
		return err
	}

	catalogs := category.NewManager(s.CatalogPath(), logger.GetGlobalLogger())
	p := pipeline.New(st, catalogs, logger.GetGlobalLogger())
	if err := p.EnsureTree(); err != nil {
		return err
	}

	for _, fi := range st.Institutions {
		path, err := catalogs.SeedCatalog(fi.Key)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Seeded catalog %s\n", path)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Initialized budget store %s\n", storePath)
	return nil
}
