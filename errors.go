package authengine

import (
	"errors"
	"net/http"
)

// Kind sentinels. Every *Error returned by the Engine unwraps to exactly one
// of these, so callers branch with errors.Is.
var (
	// ErrNotFound reports that the referenced account does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredential reports a password mismatch.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrNotAuthenticated reports a missing, mismatched or expired session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrForbidden reports insufficient privilege.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict reports a duplicate username.
	ErrConflict = errors.New("conflict")
	// ErrInvalidInput reports a username or password policy violation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrRateLimited reports that the login throttle rejected the attempt.
	ErrRateLimited = errors.New("rate limited")
	// ErrEngineNotReady reports a nil or unbuilt Engine, or a backing store failure.
	ErrEngineNotReady = errors.New("engine not ready")
)

// Error is the tagged failure returned by every Engine operation. Message is
// safe to show to the caller; Code is the HTTP-style status for the kind.
type Error struct {
	Message string
	Code    int
	kind    error
	cause   error
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes the kind sentinel and, for store failures, the cause.
func (e *Error) Unwrap() []error {
	if e.cause != nil {
		return []error{e.kind, e.cause}
	}
	return []error{e.kind}
}

// Kind returns the sentinel this error belongs to.
func (e *Error) Kind() error {
	return e.kind
}

// NewError builds an *Error of the given kind. Collaborators layered on the
// Engine (bookings, the HTTP surface) use it to stay within one taxonomy.
func NewError(kind error, message string) *Error {
	return &Error{Message: message, Code: codeFor(kind), kind: kind}
}

func internalError(message string, cause error) *Error {
	return &Error{
		Message: message,
		Code:    http.StatusInternalServerError,
		kind:    ErrEngineNotReady,
		cause:   cause,
	}
}

// StatusCode maps err to an HTTP status. nil maps to 200 and unrecognized
// errors to 500.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return http.StatusInternalServerError
}

func codeFor(kind error) int {
	switch kind {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrInvalidCredential, ErrNotAuthenticated:
		return http.StatusUnauthorized
	case ErrForbidden:
		return http.StatusForbidden
	case ErrConflict:
		return http.StatusConflict
	case ErrInvalidInput:
		return http.StatusBadRequest
	case ErrRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

const (
	msgUserNotFound      = "User does not exist."
	msgInvalidPassword   = "Invalid password."
	msgNotLoggedIn       = "You are not logged in."
	msgNoPermission      = "You do not have permission to do this."
	msgUserExists        = "User already exists."
	msgUsernameTooShort  = "Username must be at least %d characters long."
	msgPasswordTooShort  = "Password must be at least %d characters long."
	msgPasswordNoDigit   = "Password must contain at least one number."
	msgPasswordNoUpper   = "Password must contain at least one uppercase letter."
	msgInvalidLevel      = "Privilege level must be 0, 1 or 2."
	msgTooManyAttempts   = "Too many failed login attempts. Try again later."
	msgStoreUnavailable  = "Credential store unavailable."
	msgEngineUnavailable = "Authentication engine not ready."
)
