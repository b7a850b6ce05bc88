package cmd

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"budman/pkg/errors"
	"budman/pkg/logger"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	logger  logger.Logger
	verbose bool
}

// NewCLIErrorHandler creates a new CLI error handler
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: Settings().Verbose,
	}
}

// HandleError prints a user-friendly message for the error and returns the
// process exit code
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Error("Command failed")

	if budmanErr, ok := errors.AsBudmanError(err); ok {
		return h.handleBudmanError(budmanErr)
	}

	return h.handleGenericError(err)
}

func (h *CLIErrorHandler) handleBudmanError(err *errors.BudmanError) int {
	fmt.Fprintf(os.Stderr, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		fmt.Fprintf(os.Stderr, "\nContext:\n")
		for key, value := range err.Context {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", key, value)
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(os.Stderr, "\nSuggestion: %s\n", err.Suggestion)
	}

	summary, hasSummary := errors.AsErrorSummary(err)
	if hasSummary {
		h.printErrorSummary(summary)
	}

	helpCategory := err.Category
	if hasSummary && summary.HasCategory(errors.CategoryParse) {
		helpCategory = errors.CategoryParse
	}
	if help := h.getCategoryHelp(helpCategory); help != "" {
		fmt.Fprintf(os.Stderr, "\n%s\n", help)
	}

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(os.Stderr, "\nUnderlying error: %v\n", err.Cause)
	}

	code := err.GetExitCode()
	if hasSummary && summary.GetExitCode() > code {
		code = summary.GetExitCode()
	}
	return code
}

// printErrorSummary lists a sample of the accumulated row errors
func (h *CLIErrorHandler) printErrorSummary(summary *errors.ErrorSummary) {
	fmt.Fprintf(os.Stderr, "\nRow errors (%d total):\n", summary.Total)
	for _, rowErr := range summary.SampleErrors {
		fmt.Fprintf(os.Stderr, "  %s\n", rowErr.Message)
	}
	if remaining := summary.Total - len(summary.SampleErrors); remaining > 0 {
		fmt.Fprintf(os.Stderr, "  (%d more)\n", remaining)
	}
	if summary.HasCode(errors.CodeInvalidData) {
		fmt.Fprintf(os.Stderr, "\nSuggestion: check the export's date and amount formats against the institution profile\n")
	}
}

func (h *CLIErrorHandler) handleGenericError(err error) int {
	if h.isFileNotFoundError(err) {
		fmt.Fprintf(os.Stderr, "Error: File not found\n")
		fmt.Fprintf(os.Stderr, "Suggestion: Check if the file path is correct and the file exists\n")
		return 2
	}

	if h.isPermissionError(err) {
		fmt.Fprintf(os.Stderr, "Error: Permission denied\n")
		fmt.Fprintf(os.Stderr, "Suggestion: Check file permissions and ensure you have read access\n")
		return 2
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)

	if !h.verbose {
		fmt.Fprintf(os.Stderr, "\nFor more details, run with --verbose\n")
	}

	return 1
}

// getCategoryHelp returns category-specific help text
func (h *CLIErrorHandler) getCategoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryFile:
		return `File error help:
• Check if the file exists and is readable
• Verify the file path is correct (use absolute paths if needed)
• Ensure you have proper permissions to access the file`

	case errors.CategoryParse:
		return `Parse error help:
• Verify the export file format and column headers
• Check for encoding issues (files must be UTF-8)
• Look at the reported line number in the export file`

	case errors.CategoryValidation:
		return `Validation error help:
• Check the reported field and value against the expected format
• Dates use formats like 01/02/2006 or 2006-01-02
• Category names use up to three dot-separated levels, like Food.Groceries`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Check budman.yaml and BUDMAN_* environment variables
• Verify --budget-folder points at an initialized budget folder
• Run budman init to bootstrap a new budget folder`

	case errors.CategoryPipeline:
		return `Pipeline error help:
• Check the stage folders under the budget folder for partial output
• Re-run the failed stage; completed workbooks are skipped
• Use budman show workbooks to inspect the registry`

	case errors.CategoryStore:
		return `Store error help:
• Verify the budget store file exists (budman init creates it)
• Check the store for JSON syntax errors if it was hand-edited
• Pass --store if the store lives outside the budget folder`
	}
	return ""
}

func (h *CLIErrorHandler) isFileNotFoundError(err error) bool {
	if os.IsNotExist(err) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such file")
}

func (h *CLIErrorHandler) isPermissionError(err error) bool {
	if os.IsPermission(err) {
		return true
	}
	if pathErr, ok := err.(*os.PathError); ok {
		return pathErr.Err == syscall.EACCES
	}
	return false
}
