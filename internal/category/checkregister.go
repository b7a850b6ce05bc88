package category

import (
	"encoding/csv"
	"io"
	"os"
	"regexp"
	"strings"

	"budman/internal/models"
	"budman/pkg/errors"
)

// ChecksToCategorize is the parking category for check transactions whose
// payee is unknown until the check register identifies them.
const ChecksToCategorize = "Banking.Checks to Categorize"

// checkNumberPattern extracts the check number from a bank description such
// as "Check 1234" or "Check x5678". Bank exports sometimes pad the number
// with x characters.
var checkNumberPattern = regexp.MustCompile(`(?i)Check\s*x*(\d{1,6})`)

// ExtractCheckNumber pulls the check number out of a transaction description,
// returning empty when the description is not a check.
func ExtractCheckNumber(description string) string {
	m := checkNumberPattern.FindStringSubmatch(description)
	if m == nil {
		return ""
	}
	return strings.TrimLeft(m[1], "0")
}

// Register maps check numbers to the party a check was written to. It is
// loaded from a CSV the user maintains by hand from their check book.
type Register struct {
	entries map[string]string
}

// NewRegister creates an empty check register
func NewRegister() *Register {
	return &Register{entries: make(map[string]string)}
}

// Len returns the number of register entries
func (r *Register) Len() int {
	return len(r.entries)
}

// PayTo returns the pay-to party recorded for a check number
func (r *Register) PayTo(checkNumber string) (string, bool) {
	payTo, ok := r.entries[strings.TrimLeft(checkNumber, "0")]
	return payTo, ok
}

// Add records a check number → pay-to entry
func (r *Register) Add(checkNumber, payTo string) {
	r.entries[strings.TrimLeft(strings.TrimSpace(checkNumber), "0")] = strings.TrimSpace(payTo)
}

// LoadRegister reads a check register CSV with two columns: check number and
// pay-to. A header row is detected and skipped when the first field is not
// numeric.
func LoadRegister(path string) (*Register, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		return nil, errors.FileError(errors.CodeFilePermission, path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	register := NewRegister()
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.ParseError(errors.CodeInvalidFormat, path, line+1, "", "", err)
		}
		line++

		if len(record) < 2 {
			continue
		}
		number := strings.TrimSpace(record[0])
		payTo := strings.TrimSpace(record[1])
		if number == "" || payTo == "" {
			continue
		}
		if line == 1 && !isNumeric(number) {
			// header row
			continue
		}
		if !isNumeric(number) {
			return nil, errors.ParseError(errors.CodeInvalidData, path, line, "check number", number, nil)
		}
		register.Add(number, payTo)
	}

	if register.Len() == 0 {
		return nil, errors.ParseError(errors.CodeInvalidFormat, path, line, "", "", nil).
			WithSuggestion("the register needs at least one 'check number,pay to' row")
	}

	return register, nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// ApplyResult summarizes one check register pass
type ApplyResult struct {
	Checks     int // transactions in the checks parking category
	Rewritten  int // checks resolved to a real category
	NoRegister int // checks whose number is not in the register
	NoCategory int // checks whose pay-to has no category mapping
}

// Apply rewrites transactions parked in ChecksToCategorize using the register
// and a pay-to → category map (usually Catalog.PayeeCategories). Checks whose
// number or pay-to cannot be resolved are left for manual review.
func (r *Register) Apply(txs []*models.Transaction, payeeCategories map[string]string) ApplyResult {
	var result ApplyResult

	for _, tx := range txs {
		if tx.BudgetCategory != ChecksToCategorize {
			continue
		}
		result.Checks++

		number := ExtractCheckNumber(tx.OriginalDescription)
		if number == "" {
			result.NoRegister++
			continue
		}

		payTo, ok := r.PayTo(number)
		if !ok {
			result.NoRegister++
			continue
		}

		fullName, ok := payeeCategories[payTo]
		if !ok {
			result.NoCategory++
			continue
		}

		tx.BudgetCategory = fullName
		tx.Level1, tx.Level2, tx.Level3 = models.SplitCategoryLevels(fullName)
		tx.Payee = payTo
		result.Rewritten++
	}

	return result
}
