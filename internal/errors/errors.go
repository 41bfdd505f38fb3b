package errors

import (
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// API errors (API-001 to API-099), see APIError
	ErrCodeAPITransport      ErrorCode = "API-001"
	ErrCodeAPITimeout        ErrorCode = "API-002"
	ErrCodeAPIHTTP           ErrorCode = "API-003"
	ErrCodeAPIAuthentication ErrorCode = "API-004"
	ErrCodeAPIValidation     ErrorCode = "API-005"
	ErrCodeAPIEncode         ErrorCode = "API-006"
	ErrCodeAPIDecode         ErrorCode = "API-007"

	// Session errors (SESSION-001 to SESSION-099)
	ErrCodeSessionNotAuthenticated ErrorCode = "SESSION-001"
	ErrCodeSessionInvalidLogin     ErrorCode = "SESSION-002"
	ErrCodeSessionNotPersisted     ErrorCode = "SESSION-003"
	ErrCodeSessionInvariant        ErrorCode = "SESSION-004"

	// Store errors (STORE-001 to STORE-099)
	ErrCodeStoreUnavailable ErrorCode = "STORE-001"
	ErrCodeStoreRead        ErrorCode = "STORE-002"
	ErrCodeStoreWrite       ErrorCode = "STORE-003"
	ErrCodeStoreDecrypt     ErrorCode = "STORE-004"

	// Configuration errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigInvalid ErrorCode = "CONFIG-001"
	ErrCodeConfigRead    ErrorCode = "CONFIG-002"

	// File I/O errors (IO-001 to IO-099)
	ErrCodeFileNotFound    ErrorCode = "IO-001"
	ErrCodeFileReadFailed  ErrorCode = "IO-002"
	ErrCodeFileWriteFailed ErrorCode = "IO-003"

	// Command-line usage errors (CLI-001 to CLI-099)
	ErrCodeInvalidArguments ErrorCode = "CLI-001"
)

// OpenCallError is a coded error with optional suggestions and documentation
type OpenCallError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	DocsURL     string
	Cause       error
}

// Error implements the error interface
func (e *OpenCallError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	if e.DocsURL != "" {
		b.WriteString(fmt.Sprintf("\n\nDocumentation: %s", e.DocsURL))
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *OpenCallError) Unwrap() error {
	return e.Cause
}

// New creates a new OpenCallError
func New(code ErrorCode, message string) *OpenCallError {
	return &OpenCallError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new OpenCallError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *OpenCallError {
	return &OpenCallError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *OpenCallError) WithSuggestion(suggestion string) *OpenCallError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *OpenCallError) WithSuggestions(suggestions ...string) *OpenCallError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithDocs adds a documentation URL to the error
func (e *OpenCallError) WithDocs(url string) *OpenCallError {
	e.DocsURL = url
	return e
}

// NewNotAuthenticatedError is returned by commands that need a stored session
func NewNotAuthenticatedError() *OpenCallError {
	return New(ErrCodeSessionNotAuthenticated, "not logged in").
		WithSuggestion("Run 'opencall login' to authenticate")
}

// NewInvalidLoginResponseError reports a login response without both tokens
func NewInvalidLoginResponseError(missing string) *OpenCallError {
	return New(ErrCodeSessionInvalidLogin, fmt.Sprintf("invalid login response: missing %s", missing)).
		WithSuggestion("Check that the API base URL points at the OpenCall server")
}

// NewSessionNotPersistedError reports a login whose tokens did not reach the durable store
func NewSessionNotPersistedError(backend string, cause error) *OpenCallError {
	return Wrap(ErrCodeSessionNotPersisted, fmt.Sprintf("tokens were not persisted to the %s session store", backend), cause).
		WithSuggestion("Check that the session path is writable").
		WithSuggestion("Run 'opencall status' to inspect the stored session")
}

// NewStoreUnavailableError reports a session backend that cannot be reached
func NewStoreUnavailableError(backend string, cause error) *OpenCallError {
	return Wrap(ErrCodeStoreUnavailable, fmt.Sprintf("%s session store is unavailable", backend), cause)
}

// NewStoreDecryptError reports an encrypted session file that cannot be opened
func NewStoreDecryptError(path string, cause error) *OpenCallError {
	return Wrap(ErrCodeStoreDecrypt, fmt.Sprintf("failed to decrypt session file: %s", path), cause).
		WithSuggestion("Check OPENCALL_SESSION_PASSPHRASE").
		WithSuggestion("Delete the file and log in again if the passphrase was lost")
}

// NewConfigInvalidError reports a configuration value that failed validation
func NewConfigInvalidError(key, details string) *OpenCallError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration %s: %s", key, details)).
		WithSuggestion(fmt.Sprintf("Set %s in config.yaml or OPENCALL_%s", key, strings.ToUpper(strings.ReplaceAll(key, ".", "_"))))
}

// NewFileNotFoundError creates a file not found error
func NewFileNotFoundError(path string) *OpenCallError {
	return New(ErrCodeFileNotFound, fmt.Sprintf("file not found: %s", path)).
		WithSuggestion("Check if the file path is correct").
		WithSuggestion("Verify the file exists and you have read permissions")
}
