package parsers

import (
	"fmt"
	"strings"

	"budman/pkg/errors"
)

// InstitutionConfig describes how to read one institution's export format:
// which columns carry which fields, the date format, and defaults for fields
// the export does not provide.
type InstitutionConfig struct {
	Key               string            `json:"key"`
	Name              string            `json:"name"`
	DateColumn        string            `json:"date_column"`
	DescriptionColumn string            `json:"description_column"`
	AmountColumn      string            `json:"amount_column"`
	CurrencyColumn    string            `json:"currency_column,omitempty"`
	AccountColumn     string            `json:"account_column,omitempty"`
	DateFormat        string            `json:"date_format,omitempty"`
	HasHeader         bool              `json:"has_header"`
	Delimiter         rune              `json:"delimiter,omitempty"`
	ColumnAliases     map[string]string `json:"column_aliases,omitempty"`
	DefaultCurrency   string            `json:"default_currency,omitempty"`
	DefaultAccount    string            `json:"default_account,omitempty"`
	Description       string            `json:"description,omitempty"`
}

// Validate checks if the institution configuration is usable
func (ic *InstitutionConfig) Validate() error {
	if strings.TrimSpace(ic.Key) == "" {
		return fmt.Errorf("institution key cannot be empty")
	}

	if strings.TrimSpace(ic.DateColumn) == "" {
		return fmt.Errorf("date column cannot be empty")
	}

	if strings.TrimSpace(ic.DescriptionColumn) == "" {
		return fmt.Errorf("description column cannot be empty")
	}

	if strings.TrimSpace(ic.AmountColumn) == "" {
		return fmt.Errorf("amount column cannot be empty")
	}

	return nil
}

// GetColumnName returns the actual column name for a standard field,
// checking aliases first
func (ic *InstitutionConfig) GetColumnName(standardName string) string {
	if alias, exists := ic.ColumnAliases[standardName]; exists {
		return alias
	}

	switch standardName {
	case "date":
		return ic.DateColumn
	case "description":
		return ic.DescriptionColumn
	case "amount":
		return ic.AmountColumn
	case "currency":
		return ic.CurrencyColumn
	case "account":
		return ic.AccountColumn
	default:
		return standardName
	}
}

// RequiredColumns returns the columns the export must carry
func (ic *InstitutionConfig) RequiredColumns() []string {
	return []string{
		ic.GetColumnName("date"),
		ic.GetColumnName("description"),
		ic.GetColumnName("amount"),
	}
}

// Predefined institution profiles

var (
	// BofAConfig matches the checking/savings export from Bank of America:
	// MM/DD/YYYY dates, amounts with thousands separators, a running balance
	// column the parser ignores.
	BofAConfig = &InstitutionConfig{
		Key:               "boa",
		Name:              "Bank of America",
		DateColumn:        "Date",
		DescriptionColumn: "Description",
		AmountColumn:      "Amount",
		DateFormat:        "01/02/2006",
		HasHeader:         true,
		Delimiter:         ',',
		DefaultCurrency:   "USD",
		DefaultAccount:    "boa-checking",
		Description:       "Bank of America checking/savings export",
	}

	// MerrillConfig matches the brokerage cash-activity export
	MerrillConfig = &InstitutionConfig{
		Key:               "merrill",
		Name:              "Merrill Lynch",
		DateColumn:        "Trade Date",
		DescriptionColumn: "Description",
		AmountColumn:      "Amount",
		DateFormat:        "01/02/2006",
		HasHeader:         true,
		Delimiter:         ',',
		ColumnAliases: map[string]string{
			"account": "Account Nickname",
		},
		DefaultCurrency: "USD",
		DefaultAccount:  "merrill-cma",
		Description:     "Merrill Lynch cash activity export",
	}

	// GenericConfig handles exports that already use plain column names
	GenericConfig = &InstitutionConfig{
		Key:               "generic",
		Name:              "Generic",
		DateColumn:        "date",
		DescriptionColumn: "description",
		AmountColumn:      "amount",
		CurrencyColumn:    "currency",
		AccountColumn:     "account",
		HasHeader:         true,
		Delimiter:         ',',
		DefaultCurrency:   "USD",
		Description:       "Generic export with date/description/amount columns",
	}
)

// GetInstitutionConfig returns a predefined institution profile by key
func GetInstitutionConfig(key string) *InstitutionConfig {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "boa":
		return BofAConfig
	case "merrill":
		return MerrillConfig
	case "generic":
		return GenericConfig
	default:
		return nil
	}
}

// ListInstitutionConfigs returns all predefined institution profiles
func ListInstitutionConfigs() []*InstitutionConfig {
	return []*InstitutionConfig{
		BofAConfig,
		MerrillConfig,
		GenericConfig,
	}
}

// AutoDetectInstitutionConfig picks the profile whose required columns all
// appear in the headers, falling back to the generic profile
func AutoDetectInstitutionConfig(headers []string) *InstitutionConfig {
	headerMap := make(map[string]bool)
	for _, header := range headers {
		headerMap[strings.ToLower(strings.TrimSpace(header))] = true
	}

	for _, config := range ListInstitutionConfigs() {
		matched := true
		for _, col := range config.RequiredColumns() {
			if !headerMap[strings.ToLower(col)] {
				matched = false
				break
			}
		}
		if matched {
			return config
		}
	}

	return GenericConfig
}

// DetectExportConfig reads the header row of a CSV export and picks the
// institution profile whose required columns it carries.
func DetectExportConfig(path string) (*InstitutionConfig, error) {
	parser := NewBaseParser(DefaultParseConfig())
	file, reader, err := parser.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	headers, err := reader.Read()
	if err != nil {
		return nil, errors.ParseError(errors.CodeMissingColumn, path, 1, "header", "", err)
	}

	return AutoDetectInstitutionConfig(cleanHeaders(headers)), nil
}
