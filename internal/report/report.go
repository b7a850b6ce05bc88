// Package report renders pipeline run results and budget store contents for
// the console, as JSON for scripting, or as CSV for spreadsheets.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"budman/internal/category"
	"budman/internal/pipeline"
	"budman/internal/store"
)

// OutputFormat represents the supported report output formats.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// Config holds report rendering options
type Config struct {
	// Output format
	Format OutputFormat `json:"format"`

	// TopCategories caps the histogram rows shown on the console;
	// zero or negative shows all of them
	TopCategories int `json:"top_categories"`

	// IncludeSkipped lists raw exports intake skipped as already staged
	IncludeSkipped bool `json:"include_skipped"`
}

// DefaultConfig returns the default report configuration
func DefaultConfig() *Config {
	return &Config{
		Format:         FormatConsole,
		TopCategories:  15,
		IncludeSkipped: false,
	}
}

// Validate validates the report configuration
func (c *Config) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	return nil
}

// Generator renders reports in the configured format
type Generator struct {
	config *Config
}

// NewGenerator creates a report generator with the specified configuration
func NewGenerator(config *Config) (*Generator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}
	return &Generator{config: config}, nil
}

// Intake renders the results of an intake run
func (g *Generator) Intake(results []*pipeline.IntakeResult, writer io.Writer) error {
	switch g.config.Format {
	case FormatJSON:
		return encodeJSON(results, writer)
	case FormatCSV:
		w := csv.NewWriter(writer)
		defer w.Flush()
		if err := w.Write([]string{"fi", "source", "workbook", "rows", "row_errors"}); err != nil {
			return err
		}
		for _, result := range results {
			for _, file := range result.Files {
				record := []string{result.FI, file.Source, file.Workbook,
					strconv.Itoa(file.Rows), strconv.Itoa(file.RowErrors)}
				if err := w.Write(record); err != nil {
					return err
				}
			}
		}
		return nil
	}

	fmt.Fprintf(writer, "INTAKE\n")
	for _, result := range results {
		fmt.Fprintf(writer, "\n[%s]\n", result.FI)
		if len(result.Files) == 0 {
			fmt.Fprintf(writer, "  no new exports\n")
		}
		for _, file := range result.Files {
			fmt.Fprintf(writer, "  %s -> %s (%d rows", file.Source, file.Workbook, file.Rows)
			if file.RowErrors > 0 {
				fmt.Fprintf(writer, ", %d skipped", file.RowErrors)
			}
			fmt.Fprintf(writer, ")\n")
		}
		if g.config.IncludeSkipped {
			for _, name := range result.Skipped {
				fmt.Fprintf(writer, "  %s already staged\n", name)
			}
		}
	}
	return nil
}

// Categorize renders the results of a categorize run, including the
// per-category histogram
func (g *Generator) Categorize(results []*pipeline.CategorizeResult, writer io.Writer) error {
	switch g.config.Format {
	case FormatJSON:
		return encodeJSON(g.categorizeDocument(results), writer)
	case FormatCSV:
		w := csv.NewWriter(writer)
		defer w.Flush()
		if err := w.Write([]string{"fi", "category", "count"}); err != nil {
			return err
		}
		for _, result := range results {
			for _, cc := range result.Histogram.Sorted() {
				if err := w.Write([]string{result.FI, cc.Category, strconv.Itoa(cc.Count)}); err != nil {
					return err
				}
			}
		}
		return nil
	}

	fmt.Fprintf(writer, "CATEGORIZATION REPORT\n")
	fmt.Fprintf(writer, "Generated: %s\n", time.Now().Format(time.RFC3339))

	for _, result := range results {
		fmt.Fprintf(writer, "\n[%s]\n", result.FI)
		fmt.Fprintf(writer, "Transactions:\n")
		fmt.Fprintf(writer, "  Total:     %d\n", result.Total)
		fmt.Fprintf(writer, "  Matched:   %d (%.1f%%)\n",
			result.Matched, percentage(result.Matched, result.Total))
		fmt.Fprintf(writer, "  Unmatched: %d (%.1f%%)\n",
			result.Unmatched, percentage(result.Unmatched, result.Total))
		fmt.Fprintf(writer, "  Elapsed:   %v\n", result.Elapsed.Round(time.Millisecond))

		sorted := result.Histogram.Sorted()
		shown := len(sorted)
		if g.config.TopCategories > 0 && shown > g.config.TopCategories {
			shown = g.config.TopCategories
		}
		if shown == 0 {
			continue
		}

		fmt.Fprintf(writer, "\nCategories:\n")
		tw := tabwriter.NewWriter(writer, 2, 4, 2, ' ', 0)
		for _, cc := range sorted[:shown] {
			fmt.Fprintf(tw, "  %s\t%d\t%.1f%%\n", cc.Category, cc.Count, percentage(cc.Count, result.Total))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if rest := len(sorted) - shown; rest > 0 {
			fmt.Fprintf(writer, "  (%d more categories)\n", rest)
		}
	}
	return nil
}

// categorizeDocument shapes categorize results for JSON output, expanding
// the histogram into sorted rows
func (g *Generator) categorizeDocument(results []*pipeline.CategorizeResult) []map[string]interface{} {
	docs := make([]map[string]interface{}, 0, len(results))
	for _, result := range results {
		docs = append(docs, map[string]interface{}{
			"fi":         result.FI,
			"workbooks":  result.Workbooks,
			"total":      result.Total,
			"matched":    result.Matched,
			"unmatched":  result.Unmatched,
			"elapsed_ms": result.Elapsed.Milliseconds(),
			"histogram":  result.Histogram.Sorted(),
		})
	}
	return docs
}

// Finalize renders the results of a finalize run
func (g *Generator) Finalize(results []*pipeline.FinalizeResult, writer io.Writer) error {
	if g.config.Format == FormatJSON {
		return encodeJSON(results, writer)
	}

	fmt.Fprintf(writer, "FINALIZE\n")
	for _, result := range results {
		fmt.Fprintf(writer, "\n[%s]\n", result.FI)
		for _, name := range result.Finalized {
			fmt.Fprintf(writer, "  finalized %s\n", name)
		}
		for _, blocked := range result.Blocked {
			fmt.Fprintf(writer, "  refused %s: %d uncategorized rows (use --force to override)\n",
				blocked.Name, blocked.Unmatched)
		}
		if len(result.Finalized) == 0 && len(result.Blocked) == 0 {
			fmt.Fprintf(writer, "  nothing to finalize\n")
		}
	}
	return nil
}

// ApplyChecks renders the results of a check register pass
func (g *Generator) ApplyChecks(results []*pipeline.ApplyChecksResult, writer io.Writer) error {
	if g.config.Format == FormatJSON {
		return encodeJSON(results, writer)
	}

	fmt.Fprintf(writer, "CHECK REGISTER\n")
	for _, result := range results {
		fmt.Fprintf(writer, "\n[%s]\n", result.FI)
		fmt.Fprintf(writer, "  Workbooks:   %d\n", result.Workbooks)
		fmt.Fprintf(writer, "  Checks:      %d\n", result.Checks)
		fmt.Fprintf(writer, "  Rewritten:   %d\n", result.Rewritten)
		fmt.Fprintf(writer, "  No register: %d\n", result.NoRegister)
		fmt.Fprintf(writer, "  No category: %d\n", result.NoCategory)
	}
	return nil
}

// StoreSummary renders a budget store overview: identity, institutions,
// workflows and the workbook registry
func (g *Generator) StoreSummary(st *store.Store, writer io.Writer) error {
	if g.config.Format == FormatJSON {
		return encodeJSON(st, writer)
	}

	fmt.Fprintf(writer, "BUDGET STORE %s\n", st.ID)
	fmt.Fprintf(writer, "Folder:   %s\n", st.BudgetFolder)
	fmt.Fprintf(writer, "Modified: %s by %s\n", st.Modified.Format(time.RFC3339), st.ModifiedBy)

	fmt.Fprintf(writer, "\nInstitutions:\n")
	tw := tabwriter.NewWriter(writer, 2, 4, 2, ' ', 0)
	for _, fi := range st.Institutions {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", fi.Key, fi.Name, fi.Folder)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(writer, "\nWorkflows:\n")
	tw = tabwriter.NewWriter(writer, 2, 4, 2, ' ', 0)
	for _, wf := range st.Workflows {
		fmt.Fprintf(tw, "  %s\t%s -> %s\n", wf.Key, wf.Input, wf.Output)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(writer, "\nWorkbooks: %d registered\n", len(st.Workbooks))
	return nil
}

// Workbooks renders the workbook registry for an institution; an empty
// fiKey lists every institution's workbooks
func (g *Generator) Workbooks(st *store.Store, fiKey string, writer io.Writer) error {
	var books []*store.Workbook
	if fiKey == "" {
		books = st.Workbooks
	} else {
		books = st.WorkbooksFor(fiKey, "")
	}

	if g.config.Format == FormatJSON {
		return encodeJSON(books, writer)
	}

	tw := tabwriter.NewWriter(writer, 2, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "FI\tNAME\tWORKFLOW\tPURPOSE\tPATH\n")
	for _, wb := range books {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", wb.FI, wb.Name, wb.Workflow, wb.Purpose, wb.Path)
	}
	return tw.Flush()
}

// Categories renders an institution's category tree down to maxLevel
func (g *Generator) Categories(catalog *category.Catalog, maxLevel int, writer io.Writer) error {
	tree := category.ExtractTree(catalog)

	switch g.config.Format {
	case FormatJSON:
		return encodeJSON(catalog, writer)
	case FormatCSV:
		return csv.NewWriter(writer).WriteAll(tree.CSV())
	}

	_, err := io.WriteString(writer, tree.Render(maxLevel))
	return err
}

func encodeJSON(v interface{}, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
