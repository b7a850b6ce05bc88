package cmd

import (
	"budman/internal/category"
	"budman/internal/pipeline"
	"budman/internal/report"
	"budman/internal/store"
	"budman/pkg/logger"
)

// openStore loads the budget store named by the resolved settings
func openStore() (*store.Store, error) {
	return store.Load(Settings().StorePath())
}

// buildPipeline wires a pipeline over the configured store and catalogs
func buildPipeline() (*pipeline.Pipeline, error) {
	st, err := openStore()
	if err != nil {
		return nil, err
	}
	catalogs := category.NewManager(Settings().CatalogPath(), logger.GetGlobalLogger())
	return pipeline.New(st, catalogs, logger.GetGlobalLogger()), nil
}

// newGenerator builds a report generator from the resolved settings
func newGenerator() (*report.Generator, error) {
	return report.NewGenerator(&report.Config{
		Format:        report.OutputFormat(Settings().OutputFormat),
		TopCategories: Settings().TopCategories,
	})
}
