package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func testTransaction() *Transaction {
	return NewTransaction(
		time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		"COSTCO WHSE #0423",
		"USD",
		decimal.NewFromFloat(-87.12),
		"Checking-1234",
	)
}

func TestTransactionID(t *testing.T) {
	tx := testTransaction()

	id := tx.ID()
	if len(id) != 12 {
		t.Errorf("expected 12-char ID, got %d chars: %s", len(id), id)
	}
	for _, c := range id {
		if !strings.ContainsRune("0123456789abcdef", c) {
			t.Errorf("expected lowercase hex ID, got %s", id)
			break
		}
	}

	// Same identifying fields produce the same ID
	if other := testTransaction(); other.ID() != id {
		t.Errorf("expected stable ID, got %s and %s", id, other.ID())
	}

	// Categorization fields do not participate in the ID
	tx.BudgetCategory = "Food.Groceries"
	tx.Rule = 3
	if tx.ID() != id {
		t.Error("expected ID to ignore categorization fields")
	}

	// Any identifying field changes the ID
	changed := testTransaction()
	changed.OriginalDescription = "COSTCO WHSE #0424"
	if changed.ID() == id {
		t.Error("expected different description to produce different ID")
	}
}

func TestTransactionType(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		want   TransactionType
	}{
		{"negative amount is debit", "-42.00", TransactionTypeDebit},
		{"positive amount is credit", "1250.00", TransactionTypeCredit},
		{"zero amount is credit", "0", TransactionTypeCredit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, err := decimal.NewFromString(tt.amount)
			if err != nil {
				t.Fatalf("bad test amount: %v", err)
			}
			tx := testTransaction()
			tx.Amount = amount
			if got := tx.Type(); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestFormatYearMonth(t *testing.T) {
	tx := testTransaction()
	if got := tx.FormatYearMonth(); got != "2025-03-Mar" {
		t.Errorf("expected 2025-03-Mar, got %s", got)
	}

	tx.Date = time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
	if got := tx.FormatYearMonth(); got != "2024-12-Dec" {
		t.Errorf("expected 2024-12-Dec, got %s", got)
	}
}

func TestTransactionValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Transaction)
		wantErr bool
	}{
		{"valid transaction", func(tx *Transaction) {}, false},
		{"zero date", func(tx *Transaction) { tx.Date = time.Time{} }, true},
		{"empty description", func(tx *Transaction) { tx.OriginalDescription = "  " }, true},
		{"bad debit/credit flag", func(tx *Transaction) { tx.DebitOrCredit = "withdrawal" }, true},
		{"valid debit flag", func(tx *Transaction) { tx.DebitOrCredit = TransactionTypeDebit }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := testTransaction()
			tt.mutate(tx)
			err := tx.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}
}

func TestIsCategorized(t *testing.T) {
	tx := testTransaction()
	if tx.IsCategorized() {
		t.Error("expected fresh transaction to be uncategorized")
	}

	tx.BudgetCategory = "Other"
	tx.Rule = -1
	if tx.IsCategorized() {
		t.Error("expected Other fallback to count as uncategorized")
	}

	tx.BudgetCategory = "Food.Groceries"
	tx.Rule = 2
	if !tx.IsCategorized() {
		t.Error("expected rule-matched transaction to be categorized")
	}
}

func TestTransactionJSONRoundtrip(t *testing.T) {
	tx := testTransaction()
	tx.BudgetCategory = "Food.Groceries"
	tx.Level1 = "Food"
	tx.Level2 = "Groceries"
	tx.Rule = 1

	data, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"amount":"-87.12"`) {
		t.Errorf("expected amount serialized as string, got %s", data)
	}
	if !strings.Contains(string(data), `"id":"`+tx.ID()+`"`) {
		t.Errorf("expected ID in JSON output, got %s", data)
	}

	var back Transaction
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !back.Equals(tx) {
		t.Errorf("roundtrip changed transaction: %s vs %s", back.String(), tx.String())
	}
	if back.BudgetCategory != "Food.Groceries" {
		t.Errorf("expected category to survive roundtrip, got %s", back.BudgetCategory)
	}
}

func TestSplitCategoryLevels(t *testing.T) {
	tests := []struct {
		name     string
		fullName string
		l1, l2   string
		l3       string
	}{
		{"three levels", "Housing.Utilities.Electric", "Housing", "Utilities", "Electric"},
		{"two levels", "Food.Groceries", "Food", "Groceries", ""},
		{"one level", "Other", "Other", "", ""},
		{"four levels fold into level3", "A.B.C.D", "A", "B", "C.D"},
		{"whitespace trimmed", " Food . Groceries ", "Food", "Groceries", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l1, l2, l3 := SplitCategoryLevels(tt.fullName)
			if l1 != tt.l1 || l2 != tt.l2 || l3 != tt.l3 {
				t.Errorf("expected (%q, %q, %q), got (%q, %q, %q)",
					tt.l1, tt.l2, tt.l3, l1, l2, l3)
			}
		})
	}
}

func TestCategoryID(t *testing.T) {
	id := CategoryID("Food.Groceries")
	if len(id) != 8 {
		t.Errorf("expected 8-char ID, got %d chars: %s", len(id), id)
	}
	if CategoryID("Food.Groceries") != id {
		t.Error("expected stable category ID")
	}
	if CategoryID("Food.Restaurants") == id {
		t.Error("expected distinct IDs for distinct names")
	}
}

func TestNewCategory(t *testing.T) {
	cat := NewCategory("Housing.Utilities.Electric", `(?i)DUKE ENERGY`)

	if cat.ID != CategoryID("Housing.Utilities.Electric") {
		t.Errorf("unexpected ID %s", cat.ID)
	}
	if cat.Level1 != "Housing" || cat.Level2 != "Utilities" || cat.Level3 != "Electric" {
		t.Errorf("unexpected levels: %q %q %q", cat.Level1, cat.Level2, cat.Level3)
	}
	if err := cat.Validate(); err != nil {
		t.Errorf("expected valid category, got %v", err)
	}
}

func TestCategoryValidate(t *testing.T) {
	tests := []struct {
		name     string
		category *Category
		wantErr  bool
	}{
		{"valid", NewCategory("Food.Groceries", "COSTCO"), false},
		{"empty name", &Category{FullName: "", Pattern: "X"}, true},
		{"empty pattern", &Category{FullName: "Food", Pattern: ""}, true},
		{"stale ID", &Category{ID: "deadbeef", FullName: "Food", Pattern: "X"}, true},
		{"no ID is allowed", &Category{FullName: "Food", Pattern: "X"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.category.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}
}

func TestParseDecimalFromString(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain amount", "123.45", "123.45", false},
		{"negative amount", "-50.25", "-50.25", false},
		{"dollar sign", "$123.45", "123.45", false},
		{"thousands separators", "1,234,567.89", "1234567.89", false},
		{"dollar and commas", "$1,234.56", "1234.56", false},
		{"parentheses negative", "(87.12)", "-87.12", false},
		{"parentheses with dollar", "($1,250.00)", "-1250", false},
		{"whitespace", "  42.00  ", "42", false},
		{"empty string", "", "", true},
		{"garbage", "abc", "", true},
		{"double decimal", "12.3.4", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDecimalFromString(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q, got %s", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error for %q: %v", tt.input, err)
			}
			if got.String() != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestParseTransactionType(t *testing.T) {
	tests := []struct {
		input   string
		want    TransactionType
		wantErr bool
	}{
		{"debit", TransactionTypeDebit, false},
		{"DEBIT", TransactionTypeDebit, false},
		{"DR", TransactionTypeDebit, false},
		{"d", TransactionTypeDebit, false},
		{"credit", TransactionTypeCredit, false},
		{"CR", TransactionTypeCredit, false},
		{" c ", TransactionTypeCredit, false},
		{"withdrawal", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTransactionType(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error for %q: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestParseTimeWithFormats(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{"ISO date", "2025-03-14", time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), false},
		{"US date", "03/14/2025", time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), false},
		{"US date no padding", "3/4/2025", time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC), false},
		{"long form", "March 14, 2025", time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), false},
		{"empty", "", time.Time{}, true},
		{"garbage", "not a date", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimeWithFormats(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error for %q: %v", tt.input, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestParseEssential(t *testing.T) {
	truthy := []string{"true", "TRUE", "yes", "Y", "1", " true "}
	for _, s := range truthy {
		if !ParseEssential(s) {
			t.Errorf("expected %q to parse as essential", s)
		}
	}

	falsy := []string{"false", "no", "0", "", "maybe"}
	for _, s := range falsy {
		if ParseEssential(s) {
			t.Errorf("expected %q to parse as non-essential", s)
		}
	}
}
