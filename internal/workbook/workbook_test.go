package workbook

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"budman/internal/models"
)

func sampleTransactions() []*models.Transaction {
	groceries := models.NewTransaction(
		time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		"COSTCO WHSE #0423",
		"USD",
		decimal.NewFromFloat(-87.12),
		"Checking-1234",
	)
	groceries.BudgetCategory = "Food.Groceries"
	groceries.Level1 = "Food"
	groceries.Level2 = "Groceries"
	groceries.DebitOrCredit = models.TransactionTypeDebit
	groceries.YearMonth = "2025-03-Mar"
	groceries.Essential = true
	groceries.Rule = 0

	payroll := models.NewTransaction(
		time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		"DIRECT DEP PAYROLL",
		"USD",
		decimal.NewFromFloat(2500.00),
		"Checking-1234",
	)

	return []*models.Transaction{groceries, payroll}
}

func TestWriteReadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.xlsx")
	original := sampleTransactions()

	if err := Write(path, original); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	loaded, err := Read(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	if len(loaded) != len(original) {
		t.Fatalf("expected %d transactions, got %d", len(original), len(loaded))
	}

	got := loaded[0]
	want := original[0]
	if !got.Equals(want) {
		t.Errorf("identifying fields changed: %s vs %s", got, want)
	}
	if got.BudgetCategory != "Food.Groceries" {
		t.Errorf("unexpected category %q", got.BudgetCategory)
	}
	if got.Level1 != "Food" || got.Level2 != "Groceries" {
		t.Errorf("unexpected levels %q %q", got.Level1, got.Level2)
	}
	if got.DebitOrCredit != models.TransactionTypeDebit {
		t.Errorf("unexpected flag %s", got.DebitOrCredit)
	}
	if got.YearMonth != "2025-03-Mar" {
		t.Errorf("unexpected year-month %q", got.YearMonth)
	}
	if !got.Essential {
		t.Error("expected essential flag preserved")
	}
	if got.Rule != 0 {
		t.Errorf("expected rule 0, got %d", got.Rule)
	}

	// Uncategorized row keeps its -1 rule index
	if loaded[1].Rule != -1 {
		t.Errorf("expected rule -1, got %d", loaded[1].Rule)
	}
	if loaded[1].BudgetCategory != "" {
		t.Errorf("expected empty category, got %q", loaded[1].BudgetCategory)
	}
}

func TestWriteSheetName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.xlsx")
	if err := Write(path, sampleTransactions()); err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 1 || sheets[0] != SheetName {
		t.Errorf("expected single %s sheet, got %v", SheetName, sheets)
	}

	rows, err := f.GetRows(SheetName)
	if err != nil {
		t.Fatal(err)
	}
	for i, col := range Columns {
		if rows[0][i] != col {
			t.Errorf("column %d: expected %s, got %s", i, col, rows[0][i])
		}
	}
}

func TestWriteEmptyWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.xlsx")
	if err := Write(path, nil); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	txs, err := Read(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(txs) != 0 {
		t.Errorf("expected no transactions, got %d", len(txs))
	}
}

func TestCheckSchemaRenamesLoneSheet(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), "Worksheet"); err != nil {
		t.Fatal(err)
	}

	if err := CheckSchema(f); err != nil {
		t.Fatalf("expected lone sheet to be renamed, got %v", err)
	}

	sheets := f.GetSheetList()
	if len(sheets) != 1 || sheets[0] != SheetName {
		t.Errorf("expected renamed sheet, got %v", sheets)
	}
}

func TestCheckSchemaRejectsExtraSheets(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		t.Fatal(err)
	}
	if _, err := f.NewSheet("Scratch"); err != nil {
		t.Fatal(err)
	}

	if err := CheckSchema(f); err == nil {
		t.Fatal("expected error for extra sheet")
	}
}

func TestCheckColumnsAppendsMissing(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		t.Fatal(err)
	}
	// Intake-era workbook: export columns only
	partial := []interface{}{ColDate, ColOriginalDescription, ColCurrency, ColAmount, ColAccountName}
	if err := f.SetSheetRow(SheetName, "A1", &partial); err != nil {
		t.Fatal(err)
	}

	added, err := CheckColumns(f)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if len(added) != len(Columns)-len(partial) {
		t.Fatalf("expected %d added columns, got %d: %v", len(Columns)-len(partial), len(added), added)
	}

	rows, err := f.GetRows(SheetName)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows[0]) != len(Columns) {
		t.Fatalf("expected %d header cells, got %d", len(Columns), len(rows[0]))
	}

	// Second pass finds nothing to add
	added, err = CheckColumns(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(added) != 0 {
		t.Errorf("expected no additions on second pass, got %v", added)
	}
}

func TestRepairFixesForeignWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foreign.xlsx")

	f := excelize.NewFile()
	header := []interface{}{ColDate, ColOriginalDescription, ColCurrency, ColAmount, ColAccountName}
	if err := f.SetSheetRow(f.GetSheetName(0), "A1", &header); err != nil {
		t.Fatal(err)
	}
	row := []interface{}{"03/14/2025", "COSTCO WHSE #0423", "USD", "-87.12", "Checking-1234"}
	if err := f.SetSheetRow(f.GetSheetName(0), "A2", &row); err != nil {
		t.Fatal(err)
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	f.Close()

	added, err := Repair(path)
	if err != nil {
		t.Fatalf("repair failed: %v", err)
	}
	if len(added) != len(Columns)-len(header) {
		t.Fatalf("expected %d added columns, got %d: %v", len(Columns)-len(header), len(added), added)
	}

	// The sheet rename and appended columns must be saved back
	loaded, err := Read(path)
	if err != nil {
		t.Fatalf("read after repair failed: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(loaded))
	}

	added, err = Repair(path)
	if err != nil {
		t.Fatalf("second repair failed: %v", err)
	}
	if len(added) != 0 {
		t.Errorf("expected nothing to add on second pass, got %v", added)
	}
}

func TestReadMissingRequiredColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.xlsx")

	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		t.Fatal(err)
	}
	header := []interface{}{"Date", "Memo"}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		t.Fatal(err)
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	f.Close()

	if _, err := Read(path); err == nil {
		t.Fatal("expected error for missing required columns")
	}
}

func TestReadMissingFile(t *testing.T) {
	if _, err := Read(filepath.Join(t.TempDir(), "nope.xlsx")); err == nil {
		t.Fatal("expected error for missing workbook")
	}
}
