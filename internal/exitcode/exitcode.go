package exitcode

import (
	"errors"
	"os"
	"strings"

	ocerrors "github.com/opencall/opencall/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// ValidationError indicates the server rejected the input
	ValidationError = 3

	// SessionError indicates the session could not be stored or read
	SessionError = 4

	// AuthError indicates an authentication failure or a missing login
	AuthError = 5

	// NetworkError indicates a transport failure or a timeout
	NetworkError = 6

	// ConfigError indicates invalid or unreadable configuration
	ConfigError = 7

	// Interrupted indicates the user cancelled with SIGINT or SIGTERM
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	Exit(DetermineExitCode(err))
}

// DetermineExitCode maps an error onto an exit code. Typed errors are
// mapped by kind or code; anything else falls back to its message.
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	var apiErr *ocerrors.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Kind {
		case ocerrors.KindTransport, ocerrors.KindTimeout:
			return NetworkError
		case ocerrors.KindAuthentication:
			return AuthError
		case ocerrors.KindValidation:
			return ValidationError
		default:
			return GeneralError
		}
	}

	var ocErr *ocerrors.OpenCallError
	if errors.As(err, &ocErr) {
		code := string(ocErr.Code)
		switch {
		case ocErr.Code == ocerrors.ErrCodeSessionNotAuthenticated,
			ocErr.Code == ocerrors.ErrCodeSessionInvalidLogin:
			return AuthError
		case strings.HasPrefix(code, "SESSION-"), strings.HasPrefix(code, "STORE-"):
			return SessionError
		case strings.HasPrefix(code, "CONFIG-"):
			return ConfigError
		case strings.HasPrefix(code, "CLI-"):
			return UsageError
		default:
			return GeneralError
		}
	}

	errMsg := strings.ToLower(err.Error())

	// Usage errors reported by cobra
	if strings.Contains(errMsg, "invalid flag") || strings.Contains(errMsg, "unknown command") {
		return UsageError
	}
	if strings.Contains(errMsg, "unknown flag") || strings.Contains(errMsg, "unknown shorthand flag") {
		return UsageError
	}
	if strings.Contains(errMsg, "required flag") || strings.Contains(errMsg, "accepts ") {
		return UsageError
	}

	return GeneralError
}

// GetExitCodeDescription returns a human-readable description of an exit code
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags or arguments)"
	case ValidationError:
		return "Validation error"
	case SessionError:
		return "Session storage error"
	case AuthError:
		return "Authentication error"
	case NetworkError:
		return "Network error"
	case ConfigError:
		return "Configuration error"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}
