package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType represents the debit/credit flag of a transaction
type TransactionType string

const (
	// TransactionTypeDebit represents money leaving the account
	TransactionTypeDebit TransactionType = "debit"
	// TransactionTypeCredit represents money entering the account
	TransactionTypeCredit TransactionType = "credit"
)

// String returns the string representation of TransactionType
func (t TransactionType) String() string {
	return string(t)
}

// IsValid checks if the transaction type is valid
func (t TransactionType) IsValid() bool {
	return t == TransactionTypeDebit || t == TransactionTypeCredit
}

// YearMonthLayout is the layout used for the YearMonth grouping column,
// e.g. "2025-03-Mar".
const YearMonthLayout = "2006-01-Jan"

// Transaction represents one bank transaction as it flows through the
// staging pipeline. The first group of fields comes from the institution
// export; the rest are filled in by categorization.
type Transaction struct {
	Date                time.Time       `json:"date"`
	OriginalDescription string          `json:"original_description"`
	Currency            string          `json:"currency"`
	Amount              decimal.Decimal `json:"amount"`
	AccountName         string          `json:"account_name"`

	BudgetCategory string          `json:"budget_category,omitempty"`
	AccountCode    string          `json:"account_code,omitempty"`
	Level1         string          `json:"level1,omitempty"`
	Level2         string          `json:"level2,omitempty"`
	Level3         string          `json:"level3,omitempty"`
	DebitOrCredit  TransactionType `json:"debit_or_credit,omitempty"`
	YearMonth      string          `json:"year_month,omitempty"`
	Payee          string          `json:"payee,omitempty"`
	Essential      bool            `json:"essential,omitempty"`
	Rule           int             `json:"rule"`
}

// NewTransaction creates a new Transaction from export fields. The Rule
// index starts at -1, meaning no categorization rule has matched yet.
func NewTransaction(date time.Time, description, currency string, amount decimal.Decimal, accountName string) *Transaction {
	return &Transaction{
		Date:                date,
		OriginalDescription: description,
		Currency:            currency,
		Amount:              amount,
		AccountName:         accountName,
		Rule:                -1,
	}
}

// ID returns the stable transaction identifier: the first 12 hex characters
// of the SHA-256 digest over date|description|currency|amount|account.
func (t *Transaction) ID() string {
	key := strings.Join([]string{
		t.Date.Format("2006-01-02"),
		t.OriginalDescription,
		t.Currency,
		t.Amount.String(),
		t.AccountName,
	}, "|")
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:12]
}

// Type returns the debit/credit flag derived from the amount sign.
// Negative amounts are debits.
func (t *Transaction) Type() TransactionType {
	if t.Amount.IsNegative() {
		return TransactionTypeDebit
	}
	return TransactionTypeCredit
}

// FormatYearMonth returns the YearMonth grouping value for the transaction date
func (t *Transaction) FormatYearMonth() string {
	return t.Date.Format(YearMonthLayout)
}

// Validate performs basic validation on the Transaction
func (t *Transaction) Validate() error {
	if t.Date.IsZero() {
		return fmt.Errorf("transaction date cannot be zero")
	}

	if strings.TrimSpace(t.OriginalDescription) == "" {
		return fmt.Errorf("transaction description cannot be empty")
	}

	if t.DebitOrCredit != "" && !t.DebitOrCredit.IsValid() {
		return fmt.Errorf("invalid debit/credit flag: %s", t.DebitOrCredit)
	}

	return nil
}

// IsCategorized reports whether categorization has assigned a real category.
// Transactions that fell through to the Other bucket do not count.
func (t *Transaction) IsCategorized() bool {
	return t.BudgetCategory != "" && t.Rule >= 0
}

// String returns a string representation of the Transaction
func (t *Transaction) String() string {
	return fmt.Sprintf("Transaction{ID: %s, Date: %s, Amount: %s, Description: %q, Category: %s}",
		t.ID(), t.Date.Format("2006-01-02"), t.Amount.String(), t.OriginalDescription, t.BudgetCategory)
}

// MarshalJSON implements custom JSON marshaling for Transaction
func (t *Transaction) MarshalJSON() ([]byte, error) {
	type Alias Transaction
	return json.Marshal(&struct {
		ID     string `json:"id"`
		Date   string `json:"date"`
		Amount string `json:"amount"`
		*Alias
	}{
		ID:     t.ID(),
		Date:   t.Date.Format("2006-01-02"),
		Amount: t.Amount.String(),
		Alias:  (*Alias)(t),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for Transaction
func (t *Transaction) UnmarshalJSON(data []byte) error {
	type Alias Transaction
	aux := &struct {
		Date   string `json:"date"`
		Amount string `json:"amount"`
		*Alias
	}{
		Alias: (*Alias)(t),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	t.Amount, err = decimal.NewFromString(aux.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount format: %w", err)
	}

	t.Date, err = ParseTimeWithFormats(aux.Date)
	if err != nil {
		return fmt.Errorf("invalid date format: %w", err)
	}

	return nil
}

// Equals compares two Transaction instances on their identifying fields
func (t *Transaction) Equals(other *Transaction) bool {
	if other == nil {
		return false
	}

	return t.Date.Equal(other.Date) &&
		t.OriginalDescription == other.OriginalDescription &&
		t.Currency == other.Currency &&
		t.Amount.Equal(other.Amount) &&
		t.AccountName == other.AccountName
}

// Category represents one budget category in an institution's catalog.
// FullName is the dotted hierarchical name, e.g. "Housing.Utilities.Electric".
type Category struct {
	ID          string `json:"id"`
	FullName    string `json:"full_name"`
	Level1      string `json:"level1"`
	Level2      string `json:"level2,omitempty"`
	Level3      string `json:"level3,omitempty"`
	Payee       string `json:"payee,omitempty"`
	Description string `json:"description,omitempty"`
	Essential   bool   `json:"essential,omitempty"`
	Pattern     string `json:"pattern"`
}

// NewCategory creates a Category from a full dotted name and a match pattern,
// deriving the ID and the level fields.
func NewCategory(fullName, pattern string) *Category {
	l1, l2, l3 := SplitCategoryLevels(fullName)
	return &Category{
		ID:       CategoryID(fullName),
		FullName: fullName,
		Level1:   l1,
		Level2:   l2,
		Level3:   l3,
		Pattern:  pattern,
	}
}

// CategoryID returns the stable category identifier: the first 8 hex
// characters of the SHA-256 digest of the full category name.
func CategoryID(fullName string) string {
	sum := sha256.Sum256([]byte(fullName))
	return hex.EncodeToString(sum[:])[:8]
}

// SplitCategoryLevels splits a dotted category name into up to three levels.
// The split happens on the first two dots only; a name with more than three
// levels keeps the tail folded into the third level.
func SplitCategoryLevels(fullName string) (level1, level2, level3 string) {
	parts := strings.SplitN(fullName, ".", 3)
	level1 = strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		level2 = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 {
		level3 = strings.TrimSpace(parts[2])
	}
	return level1, level2, level3
}

// Validate performs basic validation on the Category
func (c *Category) Validate() error {
	if strings.TrimSpace(c.FullName) == "" {
		return fmt.Errorf("category full name cannot be empty")
	}
	if strings.TrimSpace(c.Pattern) == "" {
		return fmt.Errorf("category %q has no match pattern", c.FullName)
	}
	if c.ID != "" && c.ID != CategoryID(c.FullName) {
		return fmt.Errorf("category %q has mismatched ID %s", c.FullName, c.ID)
	}
	return nil
}

// String returns a string representation of the Category
func (c *Category) String() string {
	return fmt.Sprintf("Category{ID: %s, Name: %s, Pattern: %q}", c.ID, c.FullName, c.Pattern)
}

// Utility functions for type conversion and validation

// ParseDecimalFromString parses a decimal amount from string, stripping
// currency symbols and thousands separators. A value wrapped in parentheses
// parses as negative, matching common bank export conventions.
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	if negative {
		d = d.Neg()
	}

	return d, nil
}

// ParseTransactionType parses a debit/credit flag from string
func ParseTransactionType(s string) (TransactionType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBIT", "D", "DR":
		return TransactionTypeDebit, nil
	case "CREDIT", "C", "CR":
		return TransactionTypeCredit, nil
	default:
		return "", fmt.Errorf("invalid transaction type '%s': must be debit or credit", s)
	}
}

// ParseTimeWithFormats attempts to parse a date from string using the formats
// commonly seen in institution exports
func ParseTimeWithFormats(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("time string cannot be empty")
	}

	formats := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02",
		"01/02/2006 15:04:05",
		"01/02/2006",
		"1/2/2006",
		"2006/01/02",
		"Jan 2, 2006",
		"January 2, 2006",
	}

	var lastErr error
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse time '%s': %w", s, lastErr)
}

// ParseEssential parses the Essential column value from a workbook cell
func ParseEssential(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "1":
		return true
	default:
		return false
	}
}
