package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/fintrack/fintrack-api/config"
	redisadapter "github.com/fintrack/fintrack-api/internal/adapters/redis"
	"github.com/fintrack/fintrack-api/internal/data"
	"github.com/fintrack/fintrack-api/internal/observability/statsd"
	"github.com/fintrack/fintrack-api/internal/ports"
	"github.com/fintrack/fintrack-api/internal/service"
)

// ServiceContainer holds the services the HTTP layer depends on.
type ServiceContainer struct {
	Auth      *service.AuthService
	Profiles  *service.ProfileService
	RateLimit *service.RateLimitService
	Limiters  Limiters
	Metrics   statsd.Sink
}

// ServiceDeps holds the infrastructure services are built from.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Provider    ports.IdentityProvider
	// Metrics is optional; see BuildMetrics.
	Metrics statsd.Sink
	Logger  *slog.Logger
}

// BuildMetrics returns a StatsD sink when metrics are enabled, or nil.
// Failing to dial the sink is logged and metrics stay off.
func BuildMetrics(cfg config.ObservabilityMetricsConfig, logger *slog.Logger) *statsd.Client {
	if !cfg.IsEnabled() {
		return nil
	}
	client, err := statsd.NewClient(statsd.Config{
		Enabled: true,
		Address: cfg.StatsdAddress,
		Prefix:  cfg.Prefix,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to initialise statsd client", "error", err)
		return nil
	}
	return client
}

// NewServices wires repositories, stores and limiters into the services.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	if deps.Provider == nil {
		return ServiceContainer{}, errors.New("identity provider is required")
	}
	if deps.RedisClient == nil {
		return ServiceContainer{}, errors.New("redis client is required for sessions")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	limiters, err := BuildLimiters(cfg.RateLimit, deps.RedisClient)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build limiters: %w", err)
	}

	var repo ports.ProfileRepository
	if deps.DB != nil {
		repo = data.NewProfileRepo(deps.DB)
	} else {
		logger.Warn("no database configured; profiles will always be synthesized from the session")
	}

	return ServiceContainer{
		Auth: service.NewAuthService(service.AuthServiceOptions{
			Provider:   deps.Provider,
			Sessions:   redisadapter.NewSessionStoreWithPrefix(deps.RedisClient, "session:"),
			Limiter:    limiters.Auth,
			SessionTTL: cfg.Auth.SessionTTL,
			Metrics:    deps.Metrics,
			Logger:     logger,
		}),
		Profiles: service.NewProfileService(service.ProfileServiceOptions{
			Repo:    repo,
			Timeout: cfg.Auth.ProfileLookupTimeout,
			Metrics: deps.Metrics,
			Logger:  logger,
		}),
		RateLimit: service.NewRateLimitService(service.RateLimitServiceOptions{
			Limiter: limiters.Auth,
			Name:    "auth",
			Metrics: deps.Metrics,
			Logger:  logger,
		}),
		Limiters: limiters,
		Metrics:  deps.Metrics,
	}, nil
}
