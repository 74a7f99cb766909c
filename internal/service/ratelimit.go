package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fintrack/fintrack-api/internal/observability/metrics"
	"github.com/fintrack/fintrack-api/internal/observability/statsd"
	"github.com/fintrack/fintrack-api/internal/ports"
)

// ErrIdentifierRequired is returned for a blank rate-limit identifier.
var ErrIdentifierRequired = errors.New("Identifier required")

// Messages returned with a rate-limit decision.
const (
	MessageAllowed  = "Request allowed"
	MessageExceeded = "Rate limit exceeded"
)

// RateLimitDecision is the outcome of one check.
type RateLimitDecision struct {
	Allowed bool   `json:"allowed"`
	Message string `json:"message"`
}

// RateLimitServiceOptions groups dependencies for RateLimitService.
type RateLimitServiceOptions struct {
	Limiter ports.RateLimiter
	// Name tags metrics and logs, e.g. "auth" or "api".
	Name    string
	Metrics statsd.Sink
	Logger  *slog.Logger
}

// RateLimitService answers whether an identifier may proceed.
type RateLimitService struct {
	limiter ports.RateLimiter
	name    string
	metrics statsd.Sink
	logger  *slog.Logger
}

// NewRateLimitService constructs a RateLimitService.
func NewRateLimitService(opts RateLimitServiceOptions) *RateLimitService {
	if opts.Limiter == nil {
		panic("NewRateLimitService: Limiter is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := opts.Name
	if name == "" {
		name = "auth"
	}
	return &RateLimitService{
		limiter: opts.Limiter,
		name:    name,
		metrics: opts.Metrics,
		logger:  logger.With("component", "ratelimit", "limiter", name),
	}
}

// Check records a hit for identifier and reports the decision.
func (s *RateLimitService) Check(ctx context.Context, identifier string) (RateLimitDecision, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return RateLimitDecision{}, ErrIdentifierRequired
	}

	allowed, err := s.limiter.Allow(ctx, identifier)
	if err != nil {
		return RateLimitDecision{}, fmt.Errorf("rate limit %s: %w", s.name, err)
	}
	metrics.EmitRateLimitDecision(s.metrics, s.name, allowed)

	if !allowed {
		s.logger.DebugContext(ctx, "rate limit exceeded", "identifier", identifier)
		return RateLimitDecision{Allowed: false, Message: MessageExceeded}, nil
	}
	return RateLimitDecision{Allowed: true, Message: MessageAllowed}, nil
}

// Reset clears the window for identifier.
func (s *RateLimitService) Reset(ctx context.Context, identifier string) error {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return ErrIdentifierRequired
	}
	if err := s.limiter.Reset(ctx, identifier); err != nil {
		return fmt.Errorf("reset %s limiter: %w", s.name, err)
	}
	return nil
}
