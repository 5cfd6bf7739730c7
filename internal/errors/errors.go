package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failure. Callers branch on Kind only; the status code,
// error code and cause are diagnostics.
type Kind string

// Failure kinds
const (
	KindUnauthenticated Kind = "unauthenticated"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindValidation      Kind = "validation"
	KindNetwork         Kind = "network"
	KindServerError     Kind = "server_error"
	KindUnknown         Kind = "unknown"
)

// Kinds lists every failure kind in a stable order.
var Kinds = []Kind{
	KindUnauthenticated,
	KindForbidden,
	KindNotFound,
	KindValidation,
	KindNetwork,
	KindServerError,
	KindUnknown,
}

// String returns the string representation of the kind
func (k Kind) String() string {
	return string(k)
}

// Retryable reports whether retrying the same call can succeed without the
// user changing anything.
func (k Kind) Retryable() bool {
	return k == KindNetwork || k == KindServerError
}

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Session errors (AUTH-001 to AUTH-099)
	ErrCodeAuthRequired           ErrorCode = "AUTH-001"
	ErrCodeAuthInvalidCredentials ErrorCode = "AUTH-002"
	ErrCodeAuthTokenInvalid       ErrorCode = "AUTH-003"
	ErrCodeAuthNotConfirmed       ErrorCode = "AUTH-004"
	ErrCodeAuthAdminRequired      ErrorCode = "AUTH-005"

	// Registration errors (REG-001 to REG-099)
	ErrCodeRegInvalidInput   ErrorCode = "REG-001"
	ErrCodeRegAccountExists  ErrorCode = "REG-002"
	ErrCodeRegNoPending      ErrorCode = "REG-003"
	ErrCodeRegCodeMismatch   ErrorCode = "REG-004"
	ErrCodeRegCodeExpired    ErrorCode = "REG-005"
	ErrCodeRegPasswordPolicy ErrorCode = "REG-006"

	// Input validation errors (INPUT-001 to INPUT-099)
	ErrCodeInputInvalid     ErrorCode = "INPUT-001"
	ErrCodeInputImageTooBig ErrorCode = "INPUT-002"
	ErrCodeInputImageType   ErrorCode = "INPUT-003"

	// Backend errors (API-001 to API-099)
	ErrCodeAPIUnauthorized ErrorCode = "API-001"
	ErrCodeAPIForbidden    ErrorCode = "API-002"
	ErrCodeAPINotFound     ErrorCode = "API-003"
	ErrCodeAPIRejected     ErrorCode = "API-004"
	ErrCodeAPIServer       ErrorCode = "API-005"
	ErrCodeAPIUnreachable  ErrorCode = "API-006"
	ErrCodeAPIUnexpected   ErrorCode = "API-007"

	// Identity provider errors (IDP-001 to IDP-099)
	ErrCodeIdentityUnavailable ErrorCode = "IDP-001"
	ErrCodeIdentityRejected    ErrorCode = "IDP-002"

	// Local storage errors (IO-001 to IO-099)
	ErrCodeFileReadFailed  ErrorCode = "IO-001"
	ErrCodeFileWriteFailed ErrorCode = "IO-002"
)

// Failure is the terminal result of every failed operation.
type Failure struct {
	Kind        Kind
	Code        ErrorCode
	Message     string
	Status      int
	Suggestions []string
	Cause       error
}

// Error implements the error interface
func (e *Failure) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Status != 0 {
		b.WriteString(fmt.Sprintf(" (status %d)", e.Status))
	}

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *Failure) Unwrap() error {
	return e.Cause
}

// New creates a new Failure
func New(kind Kind, code ErrorCode, message string) *Failure {
	return &Failure{
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new Failure wrapping an existing error
func Wrap(kind Kind, code ErrorCode, message string, cause error) *Failure {
	return &Failure{
		Kind:    kind,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the failure
func (e *Failure) WithSuggestion(suggestion string) *Failure {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the failure
func (e *Failure) WithSuggestions(suggestions ...string) *Failure {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithStatus records the raw HTTP status that produced the failure
func (e *Failure) WithStatus(status int) *Failure {
	e.Status = status
	return e
}

// KindOf returns the kind of err. Errors that are not a *Failure are
// KindUnknown; nil has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var f *Failure
	if stderrors.As(err, &f) {
		return f.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is a failure of the given kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// As extracts the *Failure from err, if any
func As(err error) (*Failure, bool) {
	var f *Failure
	if stderrors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// Common constructors for frequently used failures

// Validation creates a local input validation failure
func Validation(message string) *Failure {
	return New(KindValidation, ErrCodeInputInvalid, message).
		WithSuggestion("Fix the input and try again")
}

// Validationf creates a local input validation failure with a formatted message
func Validationf(format string, args ...any) *Failure {
	return Validation(fmt.Sprintf(format, args...))
}

// AuthRequired creates the failure returned when an operation needs a signed-in user
func AuthRequired(operation string) *Failure {
	return New(KindUnauthenticated, ErrCodeAuthRequired, fmt.Sprintf("%s requires a signed-in user", operation)).
		WithSuggestion("Run 'lostfound auth login' to sign in")
}

// AdminRequired creates the failure returned when an operation needs the administrator role
func AdminRequired(operation string) *Failure {
	return New(KindForbidden, ErrCodeAuthAdminRequired, fmt.Sprintf("%s requires administrator privileges", operation)).
		WithSuggestion("Sign in with an account in the administrators group")
}

// Network creates a failure for a request that never received a response
func Network(operation string, cause error) *Failure {
	return Wrap(KindNetwork, ErrCodeAPIUnreachable, fmt.Sprintf("%s: no response from server", operation), cause).
		WithSuggestion("Check your network connection and retry")
}

// FromStatus maps an HTTP status code onto the failure taxonomy.
// 2xx statuses are not failures and map to KindUnknown if passed here.
func FromStatus(status int, message string) *Failure {
	if message == "" {
		message = http.StatusText(status)
		if message == "" {
			message = fmt.Sprintf("unexpected status %d", status)
		}
	}

	var f *Failure
	switch {
	case status == http.StatusUnauthorized:
		f = New(KindUnauthenticated, ErrCodeAPIUnauthorized, message).
			WithSuggestion("Your session may have expired; sign in again")
	case status == http.StatusForbidden:
		f = New(KindForbidden, ErrCodeAPIForbidden, message)
	case status == http.StatusNotFound:
		f = New(KindNotFound, ErrCodeAPINotFound, message)
	case status >= 400 && status < 500:
		f = New(KindValidation, ErrCodeAPIRejected, message).
			WithSuggestion("Fix the input and try again")
	case status >= 500 && status < 600:
		f = New(KindServerError, ErrCodeAPIServer, message).
			WithSuggestion("The server failed; retry in a moment")
	default:
		f = New(KindUnknown, ErrCodeAPIUnexpected, message)
	}
	return f.WithStatus(status)
}
