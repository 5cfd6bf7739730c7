package exitcode

import (
	"os"
	"strings"

	"github.com/felixgeelhaar/lostfound/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// ValidationError indicates input rejected locally or by the backend
	ValidationError = 3

	// NotFound indicates the requested item or user does not exist
	NotFound = 4

	// AuthError indicates an authentication or authorization failure
	AuthError = 5

	// NetworkError indicates a network connectivity issue
	NetworkError = 6

	// ServerError indicates the backend failed
	ServerError = 7

	// Interrupted indicates the command was cancelled by a signal
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	if err == nil {
		Exit(Success)
		return
	}

	code := DetermineExitCode(err)
	Exit(code)
}

// DetermineExitCode maps an error to an exit code. Failures are mapped by
// kind; other errors come from cobra and are classified by message.
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	if _, ok := errors.As(err); ok {
		switch errors.KindOf(err) {
		case errors.KindUnauthenticated, errors.KindForbidden:
			return AuthError
		case errors.KindValidation:
			return ValidationError
		case errors.KindNotFound:
			return NotFound
		case errors.KindNetwork:
			return NetworkError
		case errors.KindServerError:
			return ServerError
		default:
			return GeneralError
		}
	}

	errMsg := strings.ToLower(err.Error())

	// Usage errors
	if strings.Contains(errMsg, "invalid flag") || strings.Contains(errMsg, "unknown command") {
		return UsageError
	}
	if strings.Contains(errMsg, "unknown flag") || strings.Contains(errMsg, "unknown shorthand flag") {
		return UsageError
	}
	if strings.Contains(errMsg, "required flag") || strings.Contains(errMsg, "accepts") && strings.Contains(errMsg, "arg(s)") {
		return UsageError
	}

	// Default to general error
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
		return "Invalid input"
	case NotFound:
		return "Not found"
	case AuthError:
		return "Authentication error"
	case NetworkError:
		return "Network error"
	case ServerError:
		return "Server error"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}
