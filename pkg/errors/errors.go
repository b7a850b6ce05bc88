package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryFile          ErrorCategory = "file"
	CategoryParse         ErrorCategory = "parse"
	CategoryValidation    ErrorCategory = "validation"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryPipeline      ErrorCategory = "pipeline"
	CategoryStore         ErrorCategory = "store"
	CategoryInternal      ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// File errors
	CodeFileNotFound   ErrorCode = "file_not_found"
	CodeFilePermission ErrorCode = "file_permission"
	CodeFileCorrupted  ErrorCode = "file_corrupted"
	CodeFileExists     ErrorCode = "file_exists"
	CodeDirectoryError ErrorCode = "directory_error"

	// Parse errors
	CodeInvalidFormat ErrorCode = "invalid_format"
	CodeMissingColumn ErrorCode = "missing_column"
	CodeInvalidData   ErrorCode = "invalid_data"
	CodeEncodingError ErrorCode = "encoding_error"

	// Validation errors
	CodeInvalidAmount   ErrorCode = "invalid_amount"
	CodeInvalidDate     ErrorCode = "invalid_date"
	CodeMissingField    ErrorCode = "missing_field"
	CodeInvalidCategory ErrorCode = "invalid_category"
	CodeInvalidPattern  ErrorCode = "invalid_pattern"

	// Configuration errors
	CodeInvalidConfig      ErrorCode = "invalid_config"
	CodeMissingConfig      ErrorCode = "missing_config"
	CodeUnknownInstitution ErrorCode = "unknown_institution"

	// Pipeline errors
	CodeStageConflict     ErrorCode = "stage_conflict"
	CodeIntakeFailed      ErrorCode = "intake_failed"
	CodeCategorizeFailed  ErrorCode = "categorize_failed"
	CodeFinalizeBlocked   ErrorCode = "finalize_blocked"
	CodeWorkbookNotStaged ErrorCode = "workbook_not_staged"

	// Store errors
	CodeStoreNotFound  ErrorCode = "store_not_found"
	CodeStoreCorrupted ErrorCode = "store_corrupted"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// BudmanError is the base error type for all application errors
type BudmanError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *BudmanError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *BudmanError) Unwrap() error {
	return e.Cause
}

// GetExitCode returns an appropriate exit code for the error
func (e *BudmanError) GetExitCode() int {
	switch e.Category {
	case CategoryFile:
		return 2
	case CategoryParse, CategoryValidation:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryPipeline, CategoryInternal:
		return 5
	case CategoryStore:
		return 6
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *BudmanError) WithContext(key string, value interface{}) *BudmanError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *BudmanError) WithSuggestion(suggestion string) *BudmanError {
	e.Suggestion = suggestion
	return e
}

// New creates a new BudmanError
func New(category ErrorCategory, code ErrorCode, message string) *BudmanError {
	return &BudmanError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with BudmanError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *BudmanError {
	if err == nil {
		return nil
	}

	return &BudmanError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// stackTracer interface for extracting stack traces
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// Specific error constructors

// FileError creates a file-related error
func FileError(code ErrorCode, path string, err error) *BudmanError {
	var message string
	var suggestion string

	switch code {
	case CodeFileNotFound:
		message = fmt.Sprintf("file not found: %s", path)
		suggestion = "check if the file path is correct and the file exists"
	case CodeFilePermission:
		message = fmt.Sprintf("permission denied accessing file: %s", path)
		suggestion = "check file permissions and ensure you have read access"
	case CodeFileCorrupted:
		message = fmt.Sprintf("file appears to be corrupted: %s", path)
		suggestion = "verify the file integrity and try using a backup copy"
	case CodeFileExists:
		message = fmt.Sprintf("file already exists: %s", path)
		suggestion = "remove the existing file or choose a different destination"
	case CodeDirectoryError:
		message = fmt.Sprintf("directory error: %s", path)
		suggestion = "ensure the directory exists and is accessible"
	default:
		message = fmt.Sprintf("file error: %s", path)
		suggestion = "check the file and try again"
	}

	var result *BudmanError
	if err != nil {
		result = Wrap(err, CategoryFile, code, message)
	} else {
		result = New(CategoryFile, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("file_path", path)
}

// ParseError creates a parsing-related error
func ParseError(code ErrorCode, file string, line int, column string, value string, err error) *BudmanError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidFormat:
		message = fmt.Sprintf("invalid format in file %s at line %d, column '%s': '%s'", file, line, column, value)
		suggestion = "check the export format and ensure it matches the institution profile"
	case CodeMissingColumn:
		message = fmt.Sprintf("missing required column '%s' in file %s", column, file)
		suggestion = "verify the export has all required columns with correct headers"
	case CodeInvalidData:
		message = fmt.Sprintf("invalid data in file %s at line %d, column '%s': '%s'", file, line, column, value)
		suggestion = "correct the data format or remove the invalid entry"
	case CodeEncodingError:
		message = fmt.Sprintf("encoding error in file %s at line %d", file, line)
		suggestion = "ensure the file is saved in UTF-8 encoding"
	default:
		message = fmt.Sprintf("parse error in file %s at line %d", file, line)
		suggestion = "check the file format and data integrity"
	}

	var result *BudmanError
	if err != nil {
		result = Wrap(err, CategoryParse, code, message)
	} else {
		result = New(CategoryParse, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("file", file).
		WithContext("line", line).
		WithContext("column", column).
		WithContext("value", value)
}

// ValidationError creates a validation-related error
func ValidationError(code ErrorCode, field string, value interface{}, err error) *BudmanError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidAmount:
		message = fmt.Sprintf("invalid amount in field '%s': %v", field, value)
		suggestion = "ensure amounts are valid decimal numbers (e.g., '12.34')"
	case CodeInvalidDate:
		message = fmt.Sprintf("invalid date in field '%s': %v", field, value)
		suggestion = "use date format YYYY-MM-DD or MM/DD/YYYY"
	case CodeMissingField:
		message = fmt.Sprintf("required field '%s' is missing or empty", field)
		suggestion = "provide a value for this required field"
	case CodeInvalidCategory:
		message = fmt.Sprintf("invalid budget category in field '%s': %v", field, value)
		suggestion = "budget categories use up to three dot-separated levels (e.g., 'Food.Groceries')"
	case CodeInvalidPattern:
		message = fmt.Sprintf("invalid match pattern in field '%s': %v", field, value)
		suggestion = "check the regular expression syntax of the category rule"
	default:
		message = fmt.Sprintf("validation error in field '%s': %v", field, value)
		suggestion = "check the field value and format"
	}

	var result *BudmanError
	if err != nil {
		result = Wrap(err, CategoryValidation, code, message)
	} else {
		result = New(CategoryValidation, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("field", field).
		WithContext("value", value)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *BudmanError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidConfig:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
		suggestion = "check the configuration documentation for valid values"
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "provide this configuration setting or use a config file"
	case CodeUnknownInstitution:
		message = fmt.Sprintf("unknown financial institution: %v", value)
		suggestion = "add the institution to the budget store or check the --fi flag"
	default:
		message = fmt.Sprintf("configuration error: %s", setting)
		suggestion = "check your configuration and try again"
	}

	var result *BudmanError
	if err != nil {
		result = Wrap(err, CategoryConfiguration, code, message)
	} else {
		result = New(CategoryConfiguration, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("setting", setting).
		WithContext("value", value)
}

// PipelineError creates a staging-pipeline-related error
func PipelineError(code ErrorCode, stage string, err error) *BudmanError {
	var message string
	var suggestion string

	switch code {
	case CodeStageConflict:
		message = fmt.Sprintf("stage conflict in %s", stage)
		suggestion = "a workbook with the same name already exists in the target stage"
	case CodeIntakeFailed:
		message = fmt.Sprintf("intake failed during %s", stage)
		suggestion = "check the raw export file and the institution profile"
	case CodeCategorizeFailed:
		message = fmt.Sprintf("categorization failed during %s", stage)
		suggestion = "check the category catalog and the workbook columns"
	case CodeFinalizeBlocked:
		message = fmt.Sprintf("finalization blocked for %s", stage)
		suggestion = "categorize the remaining 'Other' rows or use --force"
	case CodeWorkbookNotStaged:
		message = fmt.Sprintf("workbook not found in stage %s", stage)
		suggestion = "run the preceding pipeline stage first"
	default:
		message = fmt.Sprintf("pipeline error in stage %s", stage)
		suggestion = "review the stage folders and the budget store"
	}

	var result *BudmanError
	if err != nil {
		result = Wrap(err, CategoryPipeline, code, message)
	} else {
		result = New(CategoryPipeline, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("stage", stage)
}

// StoreError creates a budget-store-related error
func StoreError(code ErrorCode, path string, err error) *BudmanError {
	var message string
	var suggestion string

	switch code {
	case CodeStoreNotFound:
		message = fmt.Sprintf("budget store not found: %s", path)
		suggestion = "run 'budman init' to create a budget store"
	case CodeStoreCorrupted:
		message = fmt.Sprintf("budget store could not be decoded: %s", path)
		suggestion = "the store is a JSON document; restore a backup or re-run init"
	default:
		message = fmt.Sprintf("budget store error: %s", path)
		suggestion = "check the store file and try again"
	}

	var result *BudmanError
	if err != nil {
		result = Wrap(err, CategoryStore, code, message)
	} else {
		result = New(CategoryStore, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("store_path", path)
}

// InternalError creates an internal error
func InternalError(code ErrorCode, operation string, err error) *BudmanError {
	message := fmt.Sprintf("internal error during %s", operation)
	suggestion := "this is likely a bug - please report it with the error details"

	var result *BudmanError
	if err != nil {
		result = Wrap(err, CategoryInternal, code, message)
	} else {
		result = New(CategoryInternal, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("operation", operation)
}

// ErrorSummary provides a summary of multiple errors
type ErrorSummary struct {
	Total        int                   `json:"total"`
	ByCategory   map[ErrorCategory]int `json:"by_category"`
	ByCode       map[ErrorCode]int     `json:"by_code"`
	Errors       []*BudmanError        `json:"errors"`
	SampleErrors []*BudmanError        `json:"sample_errors,omitempty"`
}

// NewErrorSummary creates a new error summary
func NewErrorSummary(errors []*BudmanError) *ErrorSummary {
	summary := &ErrorSummary{
		Total:      len(errors),
		ByCategory: make(map[ErrorCategory]int),
		ByCode:     make(map[ErrorCode]int),
		Errors:     errors,
	}
	if len(errors) == 0 {
		summary.Errors = []*BudmanError{}
		return summary
	}

	for _, err := range errors {
		summary.ByCategory[err.Category]++
		summary.ByCode[err.Code]++
	}

	maxSamples := 5
	if len(errors) > maxSamples {
		summary.SampleErrors = errors[:maxSamples]
	} else {
		summary.SampleErrors = errors
	}

	return summary
}

// Error returns a formatted error message for the summary
func (es *ErrorSummary) Error() string {
	if es.Total == 0 {
		return "no errors"
	}

	if es.Total == 1 {
		return es.Errors[0].Error()
	}

	var categories []string
	for category, count := range es.ByCategory {
		categories = append(categories, fmt.Sprintf("%s: %d", category, count))
	}

	return fmt.Sprintf("%d errors occurred (%s)", es.Total, strings.Join(categories, ", "))
}

// HasCategory checks if the summary contains errors of the given category
func (es *ErrorSummary) HasCategory(category ErrorCategory) bool {
	count, exists := es.ByCategory[category]
	return exists && count > 0
}

// HasCode checks if the summary contains errors with the given code
func (es *ErrorSummary) HasCode(code ErrorCode) bool {
	count, exists := es.ByCode[code]
	return exists && count > 0
}

// GetExitCode returns the highest priority exit code from all errors
func (es *ErrorSummary) GetExitCode() int {
	if es.Total == 0 {
		return 0
	}

	maxCode := 1
	for _, err := range es.Errors {
		if code := err.GetExitCode(); code > maxCode {
			maxCode = code
		}
	}

	return maxCode
}

// Utility functions

// IsBudmanError checks if an error is a BudmanError
func IsBudmanError(err error) bool {
	_, ok := err.(*BudmanError)
	return ok
}

// AsBudmanError extracts a BudmanError from an error chain
func AsBudmanError(err error) (*BudmanError, bool) {
	var budmanErr *BudmanError
	if errors.As(err, &budmanErr) {
		return budmanErr, true
	}
	return nil, false
}

// AsErrorSummary extracts an ErrorSummary from an error chain
func AsErrorSummary(err error) (*ErrorSummary, bool) {
	var summary *ErrorSummary
	if errors.As(err, &summary) {
		return summary, true
	}
	return nil, false
}

// WrapIfNeeded wraps an error if it's not already a BudmanError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *BudmanError {
	if err == nil {
		return nil
	}

	if budmanErr, ok := AsBudmanError(err); ok {
		return budmanErr
	}

	return Wrap(err, category, code, message)
}
