package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	domainauth "github.com/fintrack/fintrack-api/internal/domain/auth"
	obserrors "github.com/fintrack/fintrack-api/internal/observability/errors"
	"github.com/fintrack/fintrack-api/internal/observability/metrics"
	"github.com/fintrack/fintrack-api/internal/observability/statsd"
	"github.com/fintrack/fintrack-api/internal/ports"
)

// DefaultResolveTimeout bounds the remote profile fetch.
const DefaultResolveTimeout = 3 * time.Second

// Failure classes reported by ProfileResolver.
const (
	FailureTimeout   = "timeout"
	FailureCanceled  = "canceled"
	FailureNetwork   = "network"
	FailureStatus    = "status"
	FailureParse     = "parse"
	FailureMalformed = "malformed"
)

// ProfileResolverOptions groups dependencies for ProfileResolver.
type ProfileResolverOptions struct {
	Fetcher ports.ProfileFetcher
	Timeout time.Duration
	Metrics statsd.Sink
	Logger  *slog.Logger
	Now     func() time.Time
}

// ProfileResolver turns an identity into a profile on the client side.
type ProfileResolver struct {
	fetcher ports.ProfileFetcher
	timeout time.Duration
	metrics statsd.Sink
	logger  *slog.Logger
	now     func() time.Time
}

// NewProfileResolver constructs a ProfileResolver.
func NewProfileResolver(opts ProfileResolverOptions) *ProfileResolver {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &ProfileResolver{
		fetcher: opts.Fetcher,
		timeout: timeout,
		metrics: opts.Metrics,
		logger:  logger.With("component", "profile_resolver"),
		now:     now,
	}
}

// Resolve fetches the stored profile for id within the resolver timeout.
// Any failure yields the profile synthesized from id; the failure class is
// logged and counted but never returned.
func (r *ProfileResolver) Resolve(ctx context.Context, id domainauth.Identity) domainauth.Profile {
	start := r.now()
	fallback := domainauth.FallbackProfile(id, start)
	if r.fetcher == nil {
		return fallback
	}

	fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	p, err := r.fetcher.FetchProfile(fetchCtx)
	if err == nil && !p.Valid() {
		err = domainauth.ErrMalformedProfile
	}
	if err == nil {
		metrics.EmitProfileResolution(r.metrics, metrics.ProfileResolution{
			Tier:     "client",
			Result:   metrics.ResolutionRemote,
			Duration: r.now().Sub(start),
		})
		return p
	}

	failure := ClassifyResolveFailure(err)
	attrs := []any{"user_id", id.ID, "failure", failure, "error", err}
	if failure == FailureCanceled || failure == FailureTimeout {
		r.logger.DebugContext(ctx, "profile fetch aborted, using fallback", attrs...)
	} else {
		r.logger.WarnContext(ctx, "profile fetch failed, using fallback", attrs...)
	}
	metrics.EmitProfileResolution(r.metrics, metrics.ProfileResolution{
		Tier:     "client",
		Result:   metrics.ResolutionFallback,
		Failure:  failure,
		Duration: r.now().Sub(start),
	})

	fallback.UpdatedAt = r.now()
	return fallback
}

// ClassifyResolveFailure maps a fetch error onto a failure class.
func ClassifyResolveFailure(err error) string {
	var se *domainauth.StatusError
	switch {
	case errors.Is(err, domainauth.ErrMalformedProfile):
		return FailureMalformed
	case errors.Is(err, domainauth.ErrProfileDecode):
		return FailureParse
	case errors.As(err, &se):
		return FailureStatus
	}
	switch obserrors.Kind(err) {
	case obserrors.KindTimeout:
		return FailureTimeout
	case obserrors.KindCanceled:
		return FailureCanceled
	}
	return FailureNetwork
}
