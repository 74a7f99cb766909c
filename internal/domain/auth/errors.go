package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Session-layer errors. Messages match the wording identity backends use on the
// wire so that a message received from the API can be mapped back to a sentinel.
var (
	ErrInvalidCredentials    = errors.New("Invalid login credentials")
	ErrEmailNotConfirmed     = errors.New("Email not confirmed")
	ErrUserAlreadyRegistered = errors.New("User already registered")
	ErrRateLimited           = errors.New("Too many requests")
	ErrSignUpUnsupported     = errors.New("Sign up is not supported by this identity provider")
	ErrNoSession             = errors.New("Not authenticated")
)

// Machine-readable codes carried in API error bodies.
const (
	CodeInvalidCredentials    = "invalid_credentials"
	CodeEmailNotConfirmed     = "email_not_confirmed"
	CodeUserAlreadyRegistered = "user_already_registered"
	CodeRateLimited           = "rate_limited"
	CodeSignUpUnsupported     = "signup_unsupported"
	CodeNotAuthenticated      = "not_authenticated"
	CodeValidation            = "validation_failed"
)

var codeToErr = map[string]error{
	CodeInvalidCredentials:    ErrInvalidCredentials,
	CodeEmailNotConfirmed:     ErrEmailNotConfirmed,
	CodeUserAlreadyRegistered: ErrUserAlreadyRegistered,
	CodeRateLimited:           ErrRateLimited,
	CodeSignUpUnsupported:     ErrSignUpUnsupported,
	CodeNotAuthenticated:      ErrNoSession,
}

// ErrorCode returns the API code for a session-layer error, or "" when err is
// not one of the known sentinels.
func ErrorCode(err error) string {
	for code, sentinel := range codeToErr {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return CodeValidation
	}
	return ""
}

// ErrorFromCode converts an API error body back into an error value.
// Known codes yield their sentinel so callers can use errors.Is.
func ErrorFromCode(code, message string) error {
	if sentinel, ok := codeToErr[code]; ok {
		return sentinel
	}
	if code == CodeValidation {
		return &ValidationError{Message: message}
	}
	if strings.TrimSpace(message) == "" {
		message = "request failed"
	}
	return errors.New(message)
}

// friendlyMessages maps backend wording to text suitable for end users.
// Order matters: the first fragment contained in the error text wins.
var friendlyMessages = []struct {
	fragment string
	message  string
}{
	{"Email not confirmed", "Your account is being set up. Please wait a moment and try again."},
	{"Invalid login credentials", "Invalid email or password. Please check your credentials and try again."},
	{"User already registered", "An account with this email already exists. Please sign in instead."},
	{"row-level security", "Account setup in progress. Please try again in a moment."},
	{"Too many requests", "Too many sign-in attempts. Please wait a moment and try again."},
}

// FriendlyMessage returns the user-facing text for a session-layer error.
// Unknown errors are returned verbatim; a nil error yields "".
func FriendlyMessage(err error) string {
	if err == nil {
		return ""
	}
	text := err.Error()
	for _, fm := range friendlyMessages {
		if strings.Contains(text, fm.fragment) {
			return fm.message
		}
	}
	return text
}

// Profile fetch errors. Resolvers absorb these; they are never shown to users.
var (
	// ErrMalformedProfile means the payload parsed but is not a usable profile.
	ErrMalformedProfile = errors.New("malformed profile payload")
	// ErrProfileDecode means the payload could not be parsed at all.
	ErrProfileDecode = errors.New("decode profile payload")
)

// StatusError is a non-success API response.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

// Unwrap exposes the sentinel for known codes so errors.Is works across the wire.
func (e *StatusError) Unwrap() error {
	if sentinel, ok := codeToErr[e.Code]; ok {
		return sentinel
	}
	return nil
}
