package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	domainauth "github.com/fintrack/fintrack-api/internal/domain/auth"
	apperrors "github.com/fintrack/fintrack-api/internal/errors"
	obserrors "github.com/fintrack/fintrack-api/internal/observability/errors"
	"github.com/fintrack/fintrack-api/internal/observability/metrics"
	"github.com/fintrack/fintrack-api/internal/observability/statsd"
	"github.com/fintrack/fintrack-api/internal/ports"
)

// DefaultProfileLookupTimeout bounds the users table lookup and insert.
const DefaultProfileLookupTimeout = 5 * time.Second

// ProfileServiceOptions groups dependencies for ProfileService.
type ProfileServiceOptions struct {
	Repo    ports.ProfileRepository
	Timeout time.Duration
	Metrics statsd.Sink
	Logger  *slog.Logger
	Now     func() time.Time
}

// ProfileService returns the stored profile for an identity, creating it on
// first sight. It never fails: any store problem yields the fallback profile.
type ProfileService struct {
	repo    ports.ProfileRepository
	timeout time.Duration
	metrics statsd.Sink
	logger  *slog.Logger
	now     func() time.Time
	group   singleflight.Group
}

// NewProfileService constructs a ProfileService.
func NewProfileService(opts ProfileServiceOptions) *ProfileService {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultProfileLookupTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &ProfileService{
		repo:    opts.Repo,
		timeout: timeout,
		metrics: opts.Metrics,
		logger:  logger.With("component", "profile_service"),
		now:     now,
	}
}

// Lookup returns the profile for id. Concurrent lookups for the same id share
// one round trip to the store.
func (s *ProfileService) Lookup(ctx context.Context, id domainauth.Identity) domainauth.Profile {
	if id.ID == "" || s.repo == nil {
		return domainauth.FallbackProfile(id, s.now())
	}

	v, _, _ := s.group.Do(id.ID, func() (any, error) {
		return s.lookup(ctx, id), nil
	})
	return v.(domainauth.Profile)
}

func (s *ProfileService) lookup(ctx context.Context, id domainauth.Identity) domainauth.Profile {
	start := s.now()
	// Detached from the caller so one canceled request does not fail the
	// callers sharing this flight.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	record := func(result, failure string) {
		metrics.EmitProfileResolution(s.metrics, metrics.ProfileResolution{
			Tier:     "server",
			Result:   result,
			Failure:  failure,
			Duration: s.now().Sub(start),
		})
	}

	p, err := s.repo.GetByID(ctx, id.ID)
	switch {
	case err == nil && p.Valid():
		record(metrics.ResolutionRemote, "")
		return p
	case err == nil:
		s.logger.WarnContext(ctx, "stored profile has no id", "user_id", id.ID)
		record(metrics.ResolutionFallback, "malformed")
		return domainauth.FallbackProfile(id, s.now())
	case !errors.Is(err, ports.ErrNotFound):
		failure := storeFailure(err)
		s.logger.WarnContext(ctx, "profile lookup failed, using fallback",
			"user_id", id.ID, "failure", failure, "error", err)
		record(metrics.ResolutionFallback, failure)
		return domainauth.FallbackProfile(id, s.now())
	}

	fallback := domainauth.FallbackProfile(id, s.now())
	created, err := s.repo.Insert(ctx, fallback)
	if err != nil {
		failure := storeFailure(err)
		s.logger.WarnContext(ctx, "profile insert failed, using fallback",
			"user_id", id.ID, "failure", failure, "error", err)
		record(metrics.ResolutionFallback, failure)
		return fallback
	}
	if !created.Valid() {
		record(metrics.ResolutionFallback, "malformed")
		return fallback
	}
	s.logger.InfoContext(ctx, "profile created", "user_id", id.ID)
	record(metrics.ResolutionCreated, "")
	return created
}

func storeFailure(err error) string {
	if kind := obserrors.Kind(err); kind != "" {
		return kind
	}
	if code := apperrors.GetCode(err); code != "" {
		return string(code)
	}
	return "store"
}
