package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fintrack/fintrack-api/internal/service"
)

// RateLimitChecker records a hit against an identifier.
type RateLimitChecker interface {
	Check(ctx context.Context, identifier string) (service.RateLimitDecision, error)
}

// RateLimitHandlers exposes the auth limiter to clients that want to check
// before submitting credentials.
type RateLimitHandlers struct {
	Svc    RateLimitChecker
	Logger *slog.Logger
}

type rateLimitRequest struct {
	Identifier string `json:"identifier"`
}

// Check records one attempt for the identifier and reports whether it is allowed.
// POST /api/auth/rate-limit.
func (h *RateLimitHandlers) Check(w http.ResponseWriter, r *http.Request) {
	var req rateLimitRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	decision, err := h.Svc.Check(r.Context(), req.Identifier)
	switch {
	case errors.Is(err, service.ErrIdentifierRequired):
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "identifier_required", Err: err})
		return
	case err != nil:
		logger := h.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.ErrorContext(r.Context(), "rate limit check failed", "error", err)
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "internal", Err: errInternal})
		return
	}
	WriteJSON(w, http.StatusOK, decision)
}
