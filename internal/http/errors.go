package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	domainauth "github.com/fintrack/fintrack-api/internal/domain/auth"
)

var errInternal = errors.New("Internal server error")

// authErrorStatus maps session-layer sentinels to HTTP statuses.
var authErrorStatus = []struct {
	err    error
	status int
}{
	{domainauth.ErrInvalidCredentials, http.StatusUnauthorized},
	{domainauth.ErrEmailNotConfirmed, http.StatusUnauthorized},
	{domainauth.ErrNoSession, http.StatusUnauthorized},
	{domainauth.ErrUserAlreadyRegistered, http.StatusBadRequest},
	{domainauth.ErrSignUpUnsupported, http.StatusBadRequest},
	{domainauth.ErrRateLimited, http.StatusTooManyRequests},
}

// writeAuthError renders a service error. Known session-layer and validation
// errors keep their wire message so clients can map them back; anything else
// is logged and reported as a 500.
func writeAuthError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var verr *domainauth.ValidationError
	if errors.As(err, &verr) {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: domainauth.CodeValidation, Err: verr})
		return
	}
	for _, m := range authErrorStatus {
		if errors.Is(err, m.err) {
			WriteError(w, ErrorParams{Code: m.status, ErrCode: domainauth.ErrorCode(m.err), Err: m.err})
			return
		}
	}
	logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "internal", Err: errInternal})
}

// writeUnauthenticated writes the standard 401 body.
func writeUnauthenticated(w http.ResponseWriter) {
	WriteError(w, ErrorParams{
		Code:    http.StatusUnauthorized,
		ErrCode: domainauth.CodeNotAuthenticated,
		Err:     domainauth.ErrNoSession,
	})
}
