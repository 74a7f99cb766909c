package errors

import (
	"errors"
	"testing"
)

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Wrap(cause, ErrCodeUnavailable, "Database is unavailable.")

	if err.Error() != "Database is unavailable.: dial tcp: refused" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected errors.Is to find the cause")
	}
	if !IsUnavailable(err) {
		t.Errorf("expected unavailable code")
	}
	if Wrap(nil, ErrCodeInternal, "x") != nil {
		t.Errorf("Wrap(nil) should be nil")
	}
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		name string
		err  error
		fn   func(error) bool
	}{
		{"not found", NotFoundf("profile %s not found", "u1"), IsNotFound},
		{"validation", Validation("bad"), IsValidation},
		{"conflict", &AppError{Code: ErrCodeConflict}, IsConflict},
		{"timeout", Wrapf(errors.New("slow"), ErrCodeTimeout, "lookup %d", 1), IsTimeout},
		{"canceled", &AppError{Code: ErrCodeCanceled}, IsCanceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.fn(tt.err) {
				t.Errorf("predicate returned false for %v", tt.err)
			}
		})
	}

	if GetCode(errors.New("plain")) != "" {
		t.Errorf("expected empty code for non-AppError")
	}
	if NotFoundf("profile %s not found", "u1").Error() != "profile u1 not found" {
		t.Errorf("unexpected NotFoundf message")
	}
}
