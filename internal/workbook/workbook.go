// Package workbook reads and writes transaction workbooks: xlsx files with a
// single TransactionData sheet whose columns the categorization stages fill
// in as a workbook moves through the pipeline.
package workbook

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"budman/internal/models"
	"budman/pkg/errors"
	"budman/pkg/logger"
)

// SheetName is the only sheet a transaction workbook carries
const SheetName = "TransactionData"

// Canonical column order for the TransactionData sheet
const (
	ColDate                = "Date"
	ColOriginalDescription = "Original Description"
	ColCurrency            = "Currency"
	ColAmount              = "Amount"
	ColAccountName         = "Account Name"
	ColBudgetCategory      = "Budget Category"
	ColAccountCode         = "Account Code"
	ColLevel1              = "Level1"
	ColLevel2              = "Level2"
	ColLevel3              = "Level3"
	ColDebitOrCredit       = "DebitOrCredit"
	ColYearMonth           = "YearMonth"
	ColPayee               = "Payee"
	ColEssential           = "Essential"
	ColRule                = "Rule"
)

// Columns lists the canonical column order
var Columns = []string{
	ColDate,
	ColOriginalDescription,
	ColCurrency,
	ColAmount,
	ColAccountName,
	ColBudgetCategory,
	ColAccountCode,
	ColLevel1,
	ColLevel2,
	ColLevel3,
	ColDebitOrCredit,
	ColYearMonth,
	ColPayee,
	ColEssential,
	ColRule,
}

// RequiredColumns are the columns a workbook must carry before
// categorization can run
var RequiredColumns = []string{
	ColDate,
	ColOriginalDescription,
	ColCurrency,
	ColAmount,
	ColAccountName,
}

// columnWidths sets readable widths for the wide text columns
var columnWidths = map[string]float64{
	ColDate:                12,
	ColOriginalDescription: 60,
	ColAmount:              12,
	ColAccountName:         20,
	ColBudgetCategory:      32,
	ColLevel1:              16,
	ColLevel2:              16,
	ColLevel3:              16,
	ColYearMonth:           13,
	ColPayee:               24,
}

// Write creates an xlsx workbook at path with one TransactionData sheet
// holding the given transactions in canonical column order.
func Write(path string, txs []*models.Transaction) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "naming workbook sheet", err)
	}

	header := make([]interface{}, len(Columns))
	for i, col := range Columns {
		header[i] = col
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "writing workbook header", err)
	}

	for i, tx := range txs {
		row := transactionRow(tx)
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return errors.InternalError(errors.CodeUnexpectedError, "computing workbook cell", err)
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return errors.InternalError(errors.CodeUnexpectedError, "writing workbook row", err)
		}
	}

	for i, col := range Columns {
		width, ok := columnWidths[col]
		if !ok {
			continue
		}
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return errors.InternalError(errors.CodeUnexpectedError, "computing workbook column", err)
		}
		if err := f.SetColWidth(SheetName, name, name, width); err != nil {
			return errors.InternalError(errors.CodeUnexpectedError, "sizing workbook column", err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}

	return nil
}

func transactionRow(tx *models.Transaction) []interface{} {
	amount, _ := tx.Amount.Float64()
	return []interface{}{
		tx.Date.Format("2006-01-02"),
		tx.OriginalDescription,
		tx.Currency,
		amount,
		tx.AccountName,
		tx.BudgetCategory,
		tx.AccountCode,
		tx.Level1,
		tx.Level2,
		tx.Level3,
		string(tx.DebitOrCredit),
		tx.YearMonth,
		tx.Payee,
		strconv.FormatBool(tx.Essential),
		tx.Rule,
	}
}

// Repair fixes a workbook in place so categorization can read it: a lone
// mistitled sheet is renamed and missing canonical columns are appended to
// the header row. It returns the names of the columns it added.
func Repair(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if err := CheckSchema(f); err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryValidation, errors.CodeInvalidFormat, path)
	}
	renamed := len(sheets) == 1 && sheets[0] != SheetName

	added, err := CheckColumns(f)
	if err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryValidation, errors.CodeInvalidFormat, path)
	}

	if renamed || len(added) > 0 {
		if err := f.Save(); err != nil {
			return nil, errors.FileError(errors.CodeFileCorrupted, path, err)
		}
	}

	return added, nil
}

// Read loads the transactions out of a workbook. The schema is checked
// first; a repairable sheet title is fixed in memory but not written back.
func Read(path string) ([]*models.Transaction, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	defer f.Close()

	if err := CheckSchema(f); err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryValidation, errors.CodeInvalidFormat, path)
	}

	rows, err := f.GetRows(SheetName)
	if err != nil {
		return nil, errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	if len(rows) == 0 {
		return nil, errors.ValidationError(errors.CodeMissingField, "header", "", nil).
			WithContext("file", path)
	}

	colIndex := headerIndex(rows[0])
	for _, col := range RequiredColumns {
		if _, ok := colIndex[col]; !ok {
			return nil, errors.ParseError(errors.CodeMissingColumn, path, 1, col, "", nil)
		}
	}

	txs := make([]*models.Transaction, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if isEmptyRow(row) {
			continue
		}
		tx, err := rowTransaction(row, colIndex)
		if err != nil {
			return nil, errors.ParseError(errors.CodeInvalidData, path, i+2, "", "", err)
		}
		txs = append(txs, tx)
	}

	return txs, nil
}

func headerIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.TrimSpace(col)] = i
	}
	return index
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func cellValue(row []string, colIndex map[string]int, col string) string {
	i, ok := colIndex[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func rowTransaction(row []string, colIndex map[string]int) (*models.Transaction, error) {
	date, err := models.ParseTimeWithFormats(cellValue(row, colIndex, ColDate))
	if err != nil {
		return nil, fmt.Errorf("date: %w", err)
	}

	amount, err := models.ParseDecimalFromString(cellValue(row, colIndex, ColAmount))
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}

	tx := models.NewTransaction(
		date,
		cellValue(row, colIndex, ColOriginalDescription),
		cellValue(row, colIndex, ColCurrency),
		amount,
		cellValue(row, colIndex, ColAccountName),
	)

	tx.BudgetCategory = cellValue(row, colIndex, ColBudgetCategory)
	tx.AccountCode = cellValue(row, colIndex, ColAccountCode)
	tx.Level1 = cellValue(row, colIndex, ColLevel1)
	tx.Level2 = cellValue(row, colIndex, ColLevel2)
	tx.Level3 = cellValue(row, colIndex, ColLevel3)
	tx.YearMonth = cellValue(row, colIndex, ColYearMonth)
	tx.Payee = cellValue(row, colIndex, ColPayee)
	tx.Essential = models.ParseEssential(cellValue(row, colIndex, ColEssential))

	if v := cellValue(row, colIndex, ColDebitOrCredit); v != "" {
		flag, err := models.ParseTransactionType(v)
		if err != nil {
			return nil, err
		}
		tx.DebitOrCredit = flag
	}

	if v := cellValue(row, colIndex, ColRule); v != "" {
		rule, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("rule: %w", err)
		}
		tx.Rule = rule
	}

	return tx, nil
}

// CheckSchema enforces the single-sheet contract: exactly one sheet named
// TransactionData. A workbook with one mistitled sheet gets its sheet
// renamed; anything else is rejected.
func CheckSchema(f *excelize.File) error {
	sheets := f.GetSheetList()

	if len(sheets) == 1 {
		if sheets[0] == SheetName {
			return nil
		}
		log := logger.GetGlobalLogger().WithComponent("workbook")
		log.WithFields(logger.Fields{
			"sheet": sheets[0],
		}).Warn("Renaming lone mistitled sheet")
		return f.SetSheetName(sheets[0], SheetName)
	}

	for _, sheet := range sheets {
		if sheet == SheetName {
			return errors.ValidationError(errors.CodeInvalidFormat, "sheets", strings.Join(sheets, ", "), nil).
				WithSuggestion(fmt.Sprintf("a transaction workbook carries only the %s sheet", SheetName))
		}
	}

	return errors.ValidationError(errors.CodeInvalidFormat, "sheets", strings.Join(sheets, ", "), nil).
		WithSuggestion(fmt.Sprintf("expected a single sheet named %s", SheetName))
}

// CheckColumns verifies the canonical columns and appends any missing ones
// to the header row, returning the names it added. Data cells in appended
// columns stay empty for categorization to fill.
func CheckColumns(f *excelize.File) ([]string, error) {
	rows, err := f.GetRows(SheetName)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("workbook has no header row")
	}

	have := headerIndex(rows[0])
	next := len(rows[0])

	var added []string
	for _, col := range Columns {
		if _, ok := have[col]; ok {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(next+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(SheetName, cell, col); err != nil {
			return nil, err
		}
		added = append(added, col)
		next++
	}

	return added, nil
}
