package config

import (
	"fmt"
	"strings"
	"time"
)

// RateLimitBackend selects where fixed-window counters are kept.
type RateLimitBackend string

const (
	// RateLimitBackendRedis shares counters across server instances.
	RateLimitBackendRedis RateLimitBackend = "redis"
	// RateLimitBackendMemory keeps counters in process memory.
	RateLimitBackendMemory RateLimitBackend = "memory"
)

// UnmarshalText implements encoding.TextUnmarshaler for RateLimitBackend.
func (b *RateLimitBackend) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "redis", "memory":
		*b = RateLimitBackend(v)
		return nil
	default:
		return fmt.Errorf("invalid RateLimitBackend: %q (valid options: redis, memory)", v)
	}
}

// RateLimitConfig controls the auth and API fixed-window limiters.
type RateLimitConfig struct {
	Backend RateLimitBackend `env:"RATE_LIMIT_BACKEND" envDefault:"redis"`

	// Auth limits sign-in attempts and /api/auth/rate-limit checks per identifier.
	AuthMaxRequests int           `env:"RATE_LIMIT_AUTH_MAX"    envDefault:"5"`
	AuthWindow      time.Duration `env:"RATE_LIMIT_AUTH_WINDOW" envDefault:"60s"`

	// API limits all /api/ requests per client address.
	APIMaxRequests int           `env:"RATE_LIMIT_API_MAX"    envDefault:"100"`
	APIWindow      time.Duration `env:"RATE_LIMIT_API_WINDOW" envDefault:"60s"`
}

// Sanitize applies guardrails to rate limit configuration values.
func (c *RateLimitConfig) Sanitize() {
	if c.Backend == "" {
		c.Backend = RateLimitBackendRedis
	}
	if c.AuthMaxRequests <= 0 {
		c.AuthMaxRequests = 5
	}
	if c.AuthWindow <= 0 {
		c.AuthWindow = time.Minute
	}
	if c.APIMaxRequests <= 0 {
		c.APIMaxRequests = 100
	}
	if c.APIWindow <= 0 {
		c.APIWindow = time.Minute
	}
}
