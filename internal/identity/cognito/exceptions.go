package cognito

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/felixgeelhaar/lostfound/internal/errors"
)

type exceptionBody struct {
	Type    string `json:"__type"`
	Message string `json:"message"`
	Upper   string `json:"Message"`
}

// exceptionKinds maps Cognito exception names onto failure kinds and codes.
var exceptionKinds = map[string]struct {
	kind errors.Kind
	code errors.ErrorCode
}{
	"UsernameExistsException":        {errors.KindValidation, errors.ErrCodeRegAccountExists},
	"AliasExistsException":           {errors.KindValidation, errors.ErrCodeRegAccountExists},
	"InvalidPasswordException":       {errors.KindValidation, errors.ErrCodeRegPasswordPolicy},
	"CodeMismatchException":          {errors.KindValidation, errors.ErrCodeRegCodeMismatch},
	"ExpiredCodeException":           {errors.KindValidation, errors.ErrCodeRegCodeExpired},
	"InvalidParameterException":      {errors.KindValidation, errors.ErrCodeRegInvalidInput},
	"NotAuthorizedException":         {errors.KindUnauthenticated, errors.ErrCodeAuthInvalidCredentials},
	"UserNotFoundException":          {errors.KindUnauthenticated, errors.ErrCodeAuthInvalidCredentials},
	"UserNotConfirmedException":      {errors.KindUnauthenticated, errors.ErrCodeAuthNotConfirmed},
	"PasswordResetRequiredException": {errors.KindUnauthenticated, errors.ErrCodeAuthInvalidCredentials},
	"TooManyRequestsException":       {errors.KindServerError, errors.ErrCodeIdentityUnavailable},
	"LimitExceededException":         {errors.KindServerError, errors.ErrCodeIdentityUnavailable},
	"TooManyFailedAttemptsException": {errors.KindServerError, errors.ErrCodeIdentityUnavailable},
	"InternalErrorException":         {errors.KindServerError, errors.ErrCodeIdentityUnavailable},
	"ResourceNotFoundException":      {errors.KindNotFound, errors.ErrCodeIdentityRejected},
}

var exceptionSuggestions = map[errors.ErrorCode]string{
	errors.ErrCodeRegAccountExists:       "Sign in instead, or register with another email",
	errors.ErrCodeRegPasswordPolicy:      "Use a longer password with upper and lower case letters, digits and symbols",
	errors.ErrCodeRegCodeMismatch:        "Check the code in the email and try again",
	errors.ErrCodeRegCodeExpired:         "Run 'lostfound auth resend' to get a new code",
	errors.ErrCodeAuthInvalidCredentials: "Check your email and password",
	errors.ErrCodeAuthNotConfirmed:       "Run 'lostfound auth confirm' with the code from your email",
	errors.ErrCodeIdentityUnavailable:    "Wait a moment and retry",
}

// mapException turns a non-200 JSON protocol response into a Failure
func mapException(status int, headerType string, body []byte) *errors.Failure {
	var exc exceptionBody
	_ = json.Unmarshal(body, &exc)

	name := exceptionName(exc.Type)
	if name == "" {
		name = exceptionName(headerType)
	}
	message := exc.Message
	if message == "" {
		message = exc.Upper
	}
	if message == "" {
		message = name
	}

	var f *errors.Failure
	if mapped, ok := exceptionKinds[name]; ok {
		f = errors.New(mapped.kind, mapped.code, message)
		if s, ok := exceptionSuggestions[mapped.code]; ok {
			f.WithSuggestion(s)
		}
	} else if status >= http.StatusInternalServerError {
		f = errors.New(errors.KindServerError, errors.ErrCodeIdentityUnavailable, message)
	} else {
		f = errors.New(errors.KindUnknown, errors.ErrCodeIdentityRejected, message)
	}
	if f.Message == "" {
		f.Message = http.StatusText(status)
	}
	return f.WithStatus(status)
}

// exceptionName strips the namespace and any ":" suffix from an error type,
// e.g. "com.amazonaws.cognito#NotAuthorizedException:http://..." becomes
// "NotAuthorizedException".
func exceptionName(t string) string {
	if i := strings.LastIndex(t, "#"); i >= 0 {
		t = t[i+1:]
	}
	if i := strings.Index(t, ":"); i >= 0 {
		t = t[:i]
	}
	return strings.TrimSpace(t)
}
