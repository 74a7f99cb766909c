package auth

import (
	"errors"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// ValidationError reports input that must be corrected before submission.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string { return e.Message }

// SignInInput is the payload for a password sign-in.
type SignInInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks the sign-in payload.
func (r SignInInput) Validate() error {
	return asValidationError(validation.ValidateStruct(&r,
		validation.Field(&r.Email,
			validation.Required.Error("Invalid email address"),
			is.Email.Error("Invalid email address"),
		),
		validation.Field(&r.Password, validation.Required.Error("Password is required")),
	))
}

// Sanitize returns a copy with user-visible fields cleaned.
func (r SignInInput) Sanitize() SignInInput {
	r.Email = SanitizeInput(r.Email)
	return r
}

// SignUpInput is the payload for account registration.
type SignUpInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

// Validate checks the sign-up payload.
func (r SignUpInput) Validate() error {
	return asValidationError(validation.ValidateStruct(&r,
		validation.Field(&r.Email,
			validation.Required.Error("Invalid email address"),
			is.Email.Error("Invalid email address"),
		),
		validation.Field(&r.Password,
			validation.Required.Error("Password must be at least 8 characters"),
			validation.Length(8, 0).Error("Password must be at least 8 characters"),
		),
		validation.Field(&r.FullName,
			validation.Required.Error("Full name must be at least 2 characters"),
			validation.Length(2, 0).Error("Full name must be at least 2 characters"),
		),
	))
}

// Sanitize returns a copy with user-visible fields cleaned.
// Passwords are left untouched.
func (r SignUpInput) Sanitize() SignUpInput {
	r.Email = SanitizeInput(r.Email)
	r.FullName = SanitizeInput(r.FullName)
	return r
}

// Metadata returns the identity metadata recorded at sign-up.
func (r SignUpInput) Metadata() map[string]any {
	return map[string]any{MetadataFullName: r.FullName}
}

// SanitizeInput trims whitespace and strips angle brackets.
func SanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.NewReplacer("<", "", ">", "").Replace(s)
}

func asValidationError(err error) error {
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if !errors.As(err, &errs) {
		return &ValidationError{Message: err.Error()}
	}
	fields := make(map[string]string, len(errs))
	keys := make([]string, 0, len(errs))
	for k, v := range errs {
		fields[k] = v.Error()
		keys = append(keys, k)
	}
	sort.Strings(keys)
	// Report the first field in a stable order so the message is deterministic.
	return &ValidationError{Message: fields[keys[0]], Fields: fields}
}
