package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fintrack/fintrack-api/internal/ports"
)

var _ ports.RateLimiter = (*RateLimiter)(nil)

// fixedWindowScript increments the counter and starts the window on the first hit.
var fixedWindowScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// RateLimiterOptions configures a RateLimiter.
type RateLimiterOptions struct {
	// Prefix namespaces counter keys, e.g. "ratelimit:auth:".
	Prefix      string
	MaxRequests int
	Window      time.Duration
}

// RateLimiter is a fixed-window counter shared by all server instances.
// The window for an identifier starts at its first hit and lasts Window.
type RateLimiter struct {
	client redis.UniversalClient
	opts   RateLimiterOptions
}

// NewRateLimiter creates a Redis-backed fixed-window limiter.
func NewRateLimiter(client redis.UniversalClient, opts RateLimiterOptions) (*RateLimiter, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if opts.MaxRequests <= 0 {
		return nil, fmt.Errorf("max requests must be positive, got %d", opts.MaxRequests)
	}
	if opts.Window <= 0 {
		return nil, fmt.Errorf("window must be positive, got %s", opts.Window)
	}
	if opts.Prefix == "" {
		opts.Prefix = "ratelimit:"
	}
	return &RateLimiter{client: client, opts: opts}, nil
}

// Allow records a hit for identifier and reports whether it is within the limit.
func (l *RateLimiter) Allow(ctx context.Context, identifier string) (bool, error) {
	key, err := l.key(identifier)
	if err != nil {
		return false, err
	}
	n, err := fixedWindowScript.Run(ctx, l.client, []string{key}, l.opts.Window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("redis rate limit: %w", err)
	}
	return n <= int64(l.opts.MaxRequests), nil
}

// Reset clears the window for identifier.
func (l *RateLimiter) Reset(ctx context.Context, identifier string) error {
	key, err := l.key(identifier)
	if err != nil {
		return err
	}
	if err := l.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis rate limit reset: %w", err)
	}
	return nil
}

func (l *RateLimiter) key(identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", errors.New("rate limit identifier is required")
	}
	return l.opts.Prefix + identifier, nil
}
