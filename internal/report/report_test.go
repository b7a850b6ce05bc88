package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"budman/internal/category"
	"budman/internal/models"
	"budman/internal/pipeline"
	"budman/internal/store"
)

func testCategorizeResults() []*pipeline.CategorizeResult {
	hist := category.NewHistogram()
	for i := 0; i < 5; i++ {
		hist.Add("Food.Groceries")
	}
	for i := 0; i < 3; i++ {
		hist.Add("Home.Utilities.Electric")
	}
	hist.Add(category.FallbackCategory)

	return []*pipeline.CategorizeResult{
		{
			FI: "boa",
			Workbooks: []pipeline.CategorizedWorkbook{
				{Name: "march.xlsx", Rows: 9, Matched: 8, Unmatched: 1},
			},
			Total:     9,
			Matched:   8,
			Unmatched: 1,
			Elapsed:   42 * time.Millisecond,
			Histogram: hist,
		},
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() error = %v", err)
	}

	bad := &Config{Format: "yaml"}
	if err := bad.Validate(); err == nil {
		t.Error("Validate() should reject unknown formats")
	}

	if _, err := NewGenerator(bad); err == nil {
		t.Error("NewGenerator() should reject invalid configs")
	}
}

func TestCategorizeConsoleReport(t *testing.T) {
	g, err := NewGenerator(nil)
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}

	var buf bytes.Buffer
	if err := g.Categorize(testCategorizeResults(), &buf); err != nil {
		t.Fatalf("Categorize() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"CATEGORIZATION REPORT",
		"[boa]",
		"Total:     9",
		"Matched:   8 (88.9%)",
		"Unmatched: 1 (11.1%)",
		"Food.Groceries",
		"Home.Utilities.Electric",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("console report missing %q:\n%s", want, out)
		}
	}

	// histogram is sorted by count descending
	if strings.Index(out, "Food.Groceries") > strings.Index(out, "Home.Utilities.Electric") {
		t.Errorf("histogram not sorted by count:\n%s", out)
	}
}

func TestCategorizeTopCategoriesCap(t *testing.T) {
	g, err := NewGenerator(&Config{Format: FormatConsole, TopCategories: 1})
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}

	var buf bytes.Buffer
	if err := g.Categorize(testCategorizeResults(), &buf); err != nil {
		t.Fatalf("Categorize() error = %v", err)
	}
	out := buf.String()

	if strings.Contains(out, "Home.Utilities.Electric") {
		t.Errorf("capped report should omit categories past the top 1:\n%s", out)
	}
	if !strings.Contains(out, "(2 more categories)") {
		t.Errorf("capped report missing remainder line:\n%s", out)
	}
}

func TestCategorizeJSONReport(t *testing.T) {
	g, err := NewGenerator(&Config{Format: FormatJSON})
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}

	var buf bytes.Buffer
	if err := g.Categorize(testCategorizeResults(), &buf); err != nil {
		t.Fatalf("Categorize() error = %v", err)
	}

	var docs []map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &docs); err != nil {
		t.Fatalf("JSON report does not parse: %v\n%s", err, buf.String())
	}
	if len(docs) != 1 {
		t.Fatalf("JSON report has %d documents, want 1", len(docs))
	}
	if docs[0]["fi"] != "boa" {
		t.Errorf("fi = %v, want boa", docs[0]["fi"])
	}
	if docs[0]["total"] != float64(9) {
		t.Errorf("total = %v, want 9", docs[0]["total"])
	}
	if _, ok := docs[0]["histogram"].([]interface{}); !ok {
		t.Errorf("histogram missing from JSON report: %v", docs[0])
	}
}

func TestCategorizeCSVReport(t *testing.T) {
	g, err := NewGenerator(&Config{Format: FormatCSV})
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}

	var buf bytes.Buffer
	if err := g.Categorize(testCategorizeResults(), &buf); err != nil {
		t.Fatalf("Categorize() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if lines[0] != "fi,category,count" {
		t.Errorf("CSV header = %q", lines[0])
	}
	if len(lines) != 4 {
		t.Errorf("CSV has %d lines, want header + 3 rows:\n%s", len(lines), buf.String())
	}
	if lines[1] != "boa,Food.Groceries,5" {
		t.Errorf("first CSV row = %q", lines[1])
	}
}

func TestIntakeConsoleReport(t *testing.T) {
	results := []*pipeline.IntakeResult{
		{
			FI: "boa",
			Files: []pipeline.IntakeFile{
				{Source: "march.csv", Workbook: "march.xlsx", Rows: 12, RowErrors: 2},
			},
			Skipped: []string{"feb.csv"},
		},
	}

	g, err := NewGenerator(&Config{Format: FormatConsole, IncludeSkipped: true})
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}

	var buf bytes.Buffer
	if err := g.Intake(results, &buf); err != nil {
		t.Fatalf("Intake() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"march.csv -> march.xlsx (12 rows, 2 skipped)",
		"feb.csv already staged",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("intake report missing %q:\n%s", want, out)
		}
	}
}

func TestFinalizeConsoleReport(t *testing.T) {
	results := []*pipeline.FinalizeResult{
		{
			FI:        "boa",
			Finalized: []string{"feb.xlsx"},
			Blocked:   []pipeline.BlockedWorkbook{{Name: "march.xlsx", Unmatched: 3}},
		},
	}

	g, err := NewGenerator(nil)
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}

	var buf bytes.Buffer
	if err := g.Finalize(results, &buf); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, "finalized feb.xlsx") {
		t.Errorf("finalize report missing finalized workbook:\n%s", out)
	}
	if !strings.Contains(out, "refused march.xlsx: 3 uncategorized rows") {
		t.Errorf("finalize report missing refusal:\n%s", out)
	}
}

func TestStoreSummaryAndWorkbooks(t *testing.T) {
	st := store.Template("/budget")
	st.RegisterWorkbook("march.xlsx", store.TypeTransactions, "boa",
		store.WorkflowIntake, store.PurposeOutput, "boa/incoming/march.xlsx")

	g, err := NewGenerator(nil)
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}

	var buf bytes.Buffer
	if err := g.StoreSummary(st, &buf); err != nil {
		t.Fatalf("StoreSummary() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"BUDGET STORE", "Bank of America", "Workbooks: 1 registered"} {
		if !strings.Contains(out, want) {
			t.Errorf("store summary missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := g.Workbooks(st, "boa", &buf); err != nil {
		t.Fatalf("Workbooks() error = %v", err)
	}
	if !strings.Contains(buf.String(), "boa/incoming/march.xlsx") {
		t.Errorf("workbook listing missing path:\n%s", buf.String())
	}

	buf.Reset()
	if err := g.Workbooks(st, "acmebank", &buf); err != nil {
		t.Fatalf("Workbooks() error = %v", err)
	}
	if strings.Contains(buf.String(), "march.xlsx") {
		t.Errorf("listing for another institution should be empty:\n%s", buf.String())
	}
}

func TestCategoriesRendering(t *testing.T) {
	catalog := category.NewCatalog("boa")
	for _, name := range []string{"Food.Groceries", "Food.Restaurants", "Home.Utilities.Electric"} {
		if err := catalog.Add(models.NewCategory(name, ".")); err != nil {
			t.Fatalf("Add(%s) error = %v", name, err)
		}
	}

	g, err := NewGenerator(nil)
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}

	var buf bytes.Buffer
	if err := g.Categories(catalog, 2, &buf); err != nil {
		t.Fatalf("Categories() error = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Groceries") || !strings.Contains(out, "Utilities") {
		t.Errorf("tree render missing level-2 nodes:\n%s", out)
	}
	if strings.Contains(out, "Electric") {
		t.Errorf("tree render at level 2 should omit level-3 nodes:\n%s", out)
	}

	csvGen, err := NewGenerator(&Config{Format: FormatCSV})
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}
	buf.Reset()
	if err := csvGen.Categories(catalog, 3, &buf); err != nil {
		t.Fatalf("Categories() error = %v", err)
	}
	if !strings.Contains(buf.String(), "Budget Category,Level1,Level2,Level3") {
		t.Errorf("category CSV missing header:\n%s", buf.String())
	}
}
