package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies an APIError.
type Kind int

const (
	// KindTransport is a network failure before any HTTP response was read.
	KindTransport Kind = iota + 1
	// KindTimeout is a request that exceeded its deadline.
	KindTimeout
	// KindHTTP is a completed non-2xx response.
	KindHTTP
	// KindAuthentication is a 401 that survived the refresh-and-retry path.
	KindAuthentication
	// KindValidation is a non-2xx response carrying per-field messages.
	KindValidation
)

// Status values for errors that never produced an HTTP status.
const (
	StatusTransport = 0
	StatusTimeout   = -1
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindTimeout:
		return "timeout"
	case KindHTTP:
		return "http"
	case KindAuthentication:
		return "authentication"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Code maps the kind onto the coded error namespace.
func (k Kind) Code() ErrorCode {
	switch k {
	case KindTransport:
		return ErrCodeAPITransport
	case KindTimeout:
		return ErrCodeAPITimeout
	case KindAuthentication:
		return ErrCodeAPIAuthentication
	case KindValidation:
		return ErrCodeAPIValidation
	default:
		return ErrCodeAPIHTTP
	}
}

// kindSentinel lets callers match a kind with errors.Is.
type kindSentinel Kind

func (s kindSentinel) Error() string {
	return "api " + Kind(s).String() + " error"
}

// Sentinels for errors.Is. ErrHTTP also matches validation and
// authentication errors since both come from completed HTTP responses.
var (
	ErrTransport      error = kindSentinel(KindTransport)
	ErrTimeout        error = kindSentinel(KindTimeout)
	ErrHTTP           error = kindSentinel(KindHTTP)
	ErrAuthentication error = kindSentinel(KindAuthentication)
	ErrValidation     error = kindSentinel(KindValidation)
)

// APIError is the single error type returned by the request pipeline.
type APIError struct {
	Kind    Kind
	Status  int
	Message string

	// Data is the parsed response body, if any.
	Data any

	// Fields holds per-field messages for KindValidation.
	Fields map[string]string

	Cause error
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Cause != nil && e.Kind == KindTransport {
		return fmt.Sprintf("[%s] %s: %v", e.Code(), e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s (status %d)", e.Code(), e.Message, e.Status)
}

// Unwrap returns the transport-level cause
func (e *APIError) Unwrap() error {
	return e.Cause
}

// Is matches the kind sentinels.
func (e *APIError) Is(target error) bool {
	s, ok := target.(kindSentinel)
	if !ok {
		return false
	}
	if Kind(s) == e.Kind {
		return true
	}
	return Kind(s) == KindHTTP && (e.Kind == KindValidation || e.Kind == KindAuthentication)
}

// Code returns the coded identifier of the error kind
func (e *APIError) Code() ErrorCode {
	return e.Kind.Code()
}

// NewTransportError wraps a network failure.
func NewTransportError(cause error) *APIError {
	msg := "Network error"
	if cause != nil {
		msg = cause.Error()
	}
	return &APIError{Kind: KindTransport, Status: StatusTransport, Message: msg, Cause: cause}
}

// NewTimeoutError reports a request that exceeded timeout.
func NewTimeoutError(timeoutMs int64, cause error) *APIError {
	return &APIError{
		Kind:    KindTimeout,
		Status:  StatusTimeout,
		Message: fmt.Sprintf("Request timeout after %dms", timeoutMs),
		Cause:   cause,
	}
}

// NewAuthenticationError reports a session that could not be refreshed.
func NewAuthenticationError(message string, data any) *APIError {
	if message == "" {
		message = "Authentication failed. Please login again."
	}
	return &APIError{Kind: KindAuthentication, Status: 401, Message: message, Data: data}
}

// AsAPIError extracts an APIError from an error chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsTransient reports whether err is a transport or timeout failure that a
// caller might reasonably retry later.
func IsTransient(err error) bool {
	return stderrors.Is(err, ErrTransport) || stderrors.Is(err, ErrTimeout)
}

// StatusOf returns the status carried by an APIError, or StatusTransport.
func StatusOf(err error) int {
	if apiErr, ok := AsAPIError(err); ok {
		return apiErr.Status
	}
	return StatusTransport
}
