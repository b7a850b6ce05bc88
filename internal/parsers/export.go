package parsers

import (
	"context"
	"io"
	"time"

	"budman/internal/models"
	"budman/pkg/errors"
	"budman/pkg/logger"
)

// ExportParser reads one institution's export files into model transactions
type ExportParser struct {
	config     *InstitutionConfig
	baseParser *BaseParser
	logger     logger.Logger
}

// NewExportParser creates a parser for the given institution profile
func NewExportParser(config *InstitutionConfig) (*ExportParser, error) {
	if config == nil {
		config = GenericConfig
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "institution", config.Key, err)
	}

	delimiter := config.Delimiter
	if delimiter == 0 {
		delimiter = ','
	}

	parseConfig := DefaultParseConfig()
	parseConfig.HasHeader = config.HasHeader
	parseConfig.Delimiter = delimiter

	return &ExportParser{
		config:     config,
		baseParser: NewBaseParser(parseConfig),
		logger:     logger.GetGlobalLogger().WithComponent("export_parser").WithField("fi", config.Key),
	}, nil
}

// Config returns the institution profile the parser was built with
func (ep *ExportParser) Config() *InstitutionConfig {
	return ep.config
}

// ParseFile reads an export file into transactions. Rows that fail to parse
// are recorded in the stats and skipped; the whole file fails only when the
// headers are wrong or no row parses at all.
func (ep *ExportParser) ParseFile(ctx context.Context, filePath string) ([]*models.Transaction, *ParseStats, error) {
	ep.logger.WithField("file_path", filePath).Info("Parsing export file")

	file, reader, err := ep.baseParser.OpenFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	parseCtx := NewParseContext(ctx)
	stats := NewParseStats()

	if err := ep.baseParser.ReadHeaders(reader, parseCtx, ep.config.RequiredColumns()); err != nil {
		return nil, stats, err
	}

	var transactions []*models.Transaction
	for {
		record, err := ep.baseParser.ReadRecord(reader, parseCtx)
		if err == io.EOF {
			break
		}
		if err != nil {
			if budmanErr, ok := errors.AsBudmanError(err); ok && budmanErr.Category == errors.CategoryInternal {
				// cancelled
				return nil, stats, err
			}
			parseCtx.AddError(0, "record", "", "unreadable CSV record", err)
			continue
		}

		stats.RecordsParsed++

		tx, parseErr := ep.parseRecord(record, parseCtx)
		if parseErr != nil {
			parseCtx.Errors = append(parseCtx.Errors, parseErr)
			parseCtx.ErrorCount++
			continue
		}

		transactions = append(transactions, tx)
		stats.RecordsValid++
	}

	stats.TotalLines = parseCtx.LineNumber
	stats.Errors = parseCtx.Errors
	stats.ErrorCount = parseCtx.ErrorCount

	ep.logger.WithFields(logger.Fields{
		"file_path": filePath,
		"parsed":    stats.RecordsParsed,
		"valid":     stats.RecordsValid,
		"errors":    stats.ErrorCount,
	}).Info("Finished parsing export file")

	if stats.RecordsParsed > 0 && stats.RecordsValid == 0 {
		return nil, stats, errors.ParseError(
			errors.CodeInvalidFormat, filePath, stats.TotalLines, "", "", stats.Summary(filePath),
		).WithSuggestion("no row parsed; check the institution profile against the export format")
	}

	return transactions, stats, nil
}

// parseRecord converts one CSV record into a transaction
func (ep *ExportParser) parseRecord(record []string, parseCtx *ParseContext) (*models.Transaction, *ParseError) {
	dateStr, err := ep.baseParser.GetFieldValue(record, parseCtx, ep.config.GetColumnName("date"))
	if err != nil {
		return nil, ep.fieldError(parseCtx, "date", "", err)
	}

	date, err := ep.parseDate(dateStr)
	if err != nil {
		return nil, ep.fieldError(parseCtx, "date", dateStr, err)
	}

	description, err := ep.baseParser.GetFieldValue(record, parseCtx, ep.config.GetColumnName("description"))
	if err != nil {
		return nil, ep.fieldError(parseCtx, "description", "", err)
	}
	if description == "" {
		return nil, ep.fieldError(parseCtx, "description", "", nil)
	}

	amountStr, err := ep.baseParser.GetFieldValue(record, parseCtx, ep.config.GetColumnName("amount"))
	if err != nil {
		return nil, ep.fieldError(parseCtx, "amount", "", err)
	}

	amount, err := models.ParseDecimalFromString(amountStr)
	if err != nil {
		return nil, ep.fieldError(parseCtx, "amount", amountStr, err)
	}

	currency := ep.config.DefaultCurrency
	if ep.config.GetColumnName("currency") != "" {
		if v, err := ep.baseParser.GetFieldValue(record, parseCtx, ep.config.GetColumnName("currency")); err == nil && v != "" {
			currency = v
		}
	}
	if currency == "" {
		currency = "USD"
	}

	account := ep.config.DefaultAccount
	if ep.config.GetColumnName("account") != "" {
		if v, err := ep.baseParser.GetFieldValue(record, parseCtx, ep.config.GetColumnName("account")); err == nil && v != "" {
			account = v
		}
	}
	if account == "" {
		account = ep.config.Key
	}

	return models.NewTransaction(date, description, currency, amount, account), nil
}

// parseDate parses with the institution's declared format first, falling
// back to the shared multi-format parser. Institutions occasionally change
// their export date format between downloads.
func (ep *ExportParser) parseDate(s string) (time.Time, error) {
	if ep.config.DateFormat != "" {
		if t, err := time.Parse(ep.config.DateFormat, s); err == nil {
			return t, nil
		}
	}
	return models.ParseTimeWithFormats(s)
}

func (ep *ExportParser) fieldError(parseCtx *ParseContext, field, value string, err error) *ParseError {
	message := "invalid " + field
	if value == "" && err == nil {
		message = "missing " + field
	}
	return &ParseError{
		Line:    parseCtx.LineNumber,
		Field:   field,
		Value:   value,
		Message: message,
		Err:     err,
	}
}
