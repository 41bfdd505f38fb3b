package ux

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	ocerrors "github.com/opencall/opencall/internal/errors"
)

// ErrorWithSuggestion wraps an error with helpful recovery suggestions
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface
func (e *ErrorWithSuggestion) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%v\n\n💡 Suggestion: %s", e.Err, e.Suggestion)
	}
	return e.Err.Error()
}

// Unwrap provides access to the underlying error
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// NewErrorWithSuggestion creates a new error with a suggestion
func NewErrorWithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}

// EnhanceError adds a recovery suggestion to errors that do not carry
// one already.
func EnhanceError(err error) error {
	if err == nil {
		return nil
	}

	var withSuggestion *ErrorWithSuggestion
	if errors.As(err, &withSuggestion) {
		return err
	}
	var ocErr *ocerrors.OpenCallError
	if errors.As(err, &ocErr) && len(ocErr.Suggestions) > 0 {
		return err
	}

	var apiErr *ocerrors.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Kind {
		case ocerrors.KindTransport:
			return NewErrorWithSuggestion(err,
				"Check that the API is reachable and that api.base_url (OPENCALL_API_BASE_URL) is correct")
		case ocerrors.KindTimeout:
			return NewErrorWithSuggestion(err,
				"The server did not answer in time; retry or raise api.timeout")
		case ocerrors.KindAuthentication:
			return NewErrorWithSuggestion(err,
				"Your session is missing or expired. Run 'opencall login'")
		case ocerrors.KindValidation:
			return err
		}
		if apiErr.Status == 403 {
			return NewErrorWithSuggestion(err,
				"Your account is not allowed to do this; check 'opencall status' for your role")
		}
		return err
	}

	errMsg := err.Error()
	if strings.Contains(errMsg, "permission denied") {
		return NewErrorWithSuggestion(err,
			"Check permissions on the session directory (session.path) or choose another backend")
	}

	return err
}

// FormatError provides consistent error formatting with context
func FormatError(err error, context string) error {
	if err == nil {
		return nil
	}

	enhanced := EnhanceError(err)
	if context != "" {
		return fmt.Errorf("%s: %w", context, enhanced)
	}
	return enhanced
}

// PrintError writes err to w prefixed with a styled "Error:" label.
func PrintError(w io.Writer, err error, noColor bool) {
	if err == nil {
		return
	}
	label := lipgloss.NewRenderer(w).NewStyle()
	if !noColor {
		label = label.Foreground(lipgloss.Color("1")).Bold(true)
	}
	fmt.Fprintf(w, "%s %v\n", label.Render("Error:"), EnhanceError(err))
}
