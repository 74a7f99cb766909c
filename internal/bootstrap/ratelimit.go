package bootstrap

import (
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fintrack/fintrack-api/config"
	"github.com/fintrack/fintrack-api/internal/adapters/ratelimit"
	redisadapter "github.com/fintrack/fintrack-api/internal/adapters/redis"
	"github.com/fintrack/fintrack-api/internal/ports"
)

// Limiters holds the two fixed-window limiters the API uses.
type Limiters struct {
	// Auth throttles sign-in attempts and explicit rate-limit checks per identifier.
	Auth ports.RateLimiter
	// API throttles every /api/ request per client address.
	API ports.RateLimiter
}

// BuildLimiters creates limiters on the configured backend. The redis backend
// requires a client.
func BuildLimiters(cfg config.RateLimitConfig, client redis.UniversalClient) (Limiters, error) {
	newLimiter := func(name string, limit int, window time.Duration) (ports.RateLimiter, error) {
		switch cfg.Backend {
		case config.RateLimitBackendMemory:
			m, err := ratelimit.NewMemory(ratelimit.MemoryOptions{MaxRequests: limit, Window: window})
			if err != nil {
				return nil, err
			}
			return m, nil
		case config.RateLimitBackendRedis, "":
			if client == nil {
				return nil, errors.New("redis rate limit backend requires a redis client")
			}
			l, err := redisadapter.NewRateLimiter(client, redisadapter.RateLimiterOptions{
				Prefix:      "ratelimit:" + name + ":",
				MaxRequests: limit,
				Window:      window,
			})
			if err != nil {
				return nil, err
			}
			return l, nil
		default:
			return nil, fmt.Errorf("unsupported rate limit backend %q", cfg.Backend)
		}
	}

	auth, err := newLimiter("auth", cfg.AuthMaxRequests, cfg.AuthWindow)
	if err != nil {
		return Limiters{}, fmt.Errorf("auth limiter: %w", err)
	}
	api, err := newLimiter("api", cfg.APIMaxRequests, cfg.APIWindow)
	if err != nil {
		return Limiters{}, fmt.Errorf("api limiter: %w", err)
	}
	return Limiters{Auth: auth, API: api}, nil
}
