package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	domainauth "github.com/fintrack/fintrack-api/internal/domain/auth"
	"github.com/fintrack/fintrack-api/internal/observability/metrics"
	"github.com/fintrack/fintrack-api/internal/observability/statsd"
	"github.com/fintrack/fintrack-api/internal/ports"
)

// DefaultSessionTTL applies when AuthServiceOptions.SessionTTL is not set.
const DefaultSessionTTL = 24 * time.Hour

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Provider ports.IdentityProvider
	Sessions ports.SessionStore
	// Limiter throttles sign-in attempts per email. Optional.
	Limiter    ports.RateLimiter
	SessionTTL time.Duration
	Metrics    statsd.Sink
	Logger     *slog.Logger
	Now        func() time.Time
}

// AuthService orchestrates password sign-in, sign-up and session persistence.
type AuthService struct {
	provider ports.IdentityProvider
	sessions ports.SessionStore
	limiter  ports.RateLimiter
	ttl      time.Duration
	metrics  statsd.Sink
	logger   *slog.Logger
	now      func() time.Time
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &AuthService{
		provider: opts.Provider,
		sessions: opts.Sessions,
		limiter:  opts.Limiter,
		ttl:      ttl,
		metrics:  opts.Metrics,
		logger:   logger.With("component", "auth_service"),
		now:      now,
	}
}

// SignIn verifies credentials and persists a new session.
func (s *AuthService) SignIn(ctx context.Context, in domainauth.SignInInput) (*domainauth.Session, error) {
	in = in.Sanitize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	if err := s.checkSignInLimit(ctx, in.Email); err != nil {
		metrics.EmitAuthEvent(s.metrics, "signin", "rate_limited")
		return nil, err
	}

	identity, err := s.provider.Authenticate(ctx, in.Email, in.Password)
	if err != nil {
		metrics.EmitAuthEvent(s.metrics, "signin", "failure")
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	now := s.now()
	identity.IssuedAt = now
	identity.RefreshedAt = time.Time{}
	sess := domainauth.Session{
		ID:        generateSessionID(),
		Identity:  identity,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		metrics.EmitAuthEvent(s.metrics, "signin", "failure")
		return nil, fmt.Errorf("save session: %w", err)
	}

	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, signInKey(in.Email)); err != nil {
			s.logger.WarnContext(ctx, "reset sign-in limiter", "error", err)
		}
	}
	metrics.EmitAuthEvent(s.metrics, "signin", "success")
	return &sess, nil
}

// SignUp registers an account. It does not create a session.
func (s *AuthService) SignUp(ctx context.Context, in domainauth.SignUpInput) (domainauth.Identity, error) {
	in = in.Sanitize()
	if err := in.Validate(); err != nil {
		return domainauth.Identity{}, err
	}

	identity, err := s.provider.Register(ctx, in.Email, in.Password, in.Metadata())
	if err != nil {
		metrics.EmitAuthEvent(s.metrics, "signup", "failure")
		return domainauth.Identity{}, fmt.Errorf("register: %w", err)
	}
	metrics.EmitAuthEvent(s.metrics, "signup", "success")
	return identity, nil
}

// GetSession retrieves a live session by ID. Missing and expired sessions
// yield domainauth.ErrNoSession.
func (s *AuthService) GetSession(ctx context.Context, sessionID string) (*domainauth.Session, error) {
	if sessionID == "" {
		return nil, domainauth.ErrNoSession
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, domainauth.ErrNoSession
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	if session.Expired(s.now()) {
		if deleteErr := s.sessions.Delete(ctx, sessionID); deleteErr != nil {
			return nil, errors.Join(domainauth.ErrNoSession, fmt.Errorf("delete session: %w", deleteErr))
		}
		return nil, domainauth.ErrNoSession
	}

	return &session, nil
}

// Refresh extends a live session by the configured TTL.
func (s *AuthService) Refresh(ctx context.Context, sessionID string) (*domainauth.Session, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	session.Identity.RefreshedAt = now
	session.ExpiresAt = now.Add(s.ttl)
	if err := s.sessions.Save(ctx, *session); err != nil {
		metrics.EmitAuthEvent(s.metrics, "refresh", "failure")
		return nil, fmt.Errorf("save session: %w", err)
	}
	metrics.EmitAuthEvent(s.metrics, "refresh", "success")
	return session, nil
}

// SignOut removes a session.
func (s *AuthService) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil // Nothing to sign out
	}

	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	metrics.EmitAuthEvent(s.metrics, "signout", "success")
	return nil
}

// checkSignInLimit fails open when the limiter itself errors.
func (s *AuthService) checkSignInLimit(ctx context.Context, email string) error {
	if s.limiter == nil {
		return nil
	}
	allowed, err := s.limiter.Allow(ctx, signInKey(email))
	if err != nil {
		s.logger.WarnContext(ctx, "sign-in limiter unavailable", "error", err)
		return nil
	}
	metrics.EmitRateLimitDecision(s.metrics, "signin", allowed)
	if !allowed {
		return domainauth.ErrRateLimited
	}
	return nil
}

func signInKey(email string) string {
	return "signin:" + strings.ToLower(email)
}

// generateSessionID creates a random session ID.
func generateSessionID() string {
	// UUIDs are URL-safe and carry 122 bits of randomness.
	return uuid.New().String()
}
