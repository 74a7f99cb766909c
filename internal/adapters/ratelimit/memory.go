// Package ratelimit provides an in-process fixed-window limiter for single
// instance deployments and tests.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fintrack/fintrack-api/internal/ports"
)

var _ ports.RateLimiter = (*Memory)(nil)

// MemoryOptions configures a Memory limiter.
type MemoryOptions struct {
	MaxRequests int
	Window      time.Duration
	// Now overrides the clock; defaults to time.Now.
	Now func() time.Time
}

type window struct {
	count   int
	resetAt time.Time
}

// Memory is a fixed-window counter held in process memory.
// The window for an identifier starts at its first hit.
type Memory struct {
	mu      sync.Mutex
	windows map[string]*window
	max     int
	window  time.Duration
	now     func() time.Time
	hits    int
}

// NewMemory creates an in-memory limiter.
func NewMemory(opts MemoryOptions) (*Memory, error) {
	if opts.MaxRequests <= 0 {
		return nil, fmt.Errorf("max requests must be positive, got %d", opts.MaxRequests)
	}
	if opts.Window <= 0 {
		return nil, fmt.Errorf("window must be positive, got %s", opts.Window)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Memory{
		windows: make(map[string]*window),
		max:     opts.MaxRequests,
		window:  opts.Window,
		now:     now,
	}, nil
}

// Allow records a hit for identifier and reports whether it is within the limit.
func (m *Memory) Allow(_ context.Context, identifier string) (bool, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return false, errors.New("rate limit identifier is required")
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.hits++
	if m.hits%1024 == 0 {
		m.sweepLocked(now)
	}

	w, ok := m.windows[identifier]
	if !ok || !now.Before(w.resetAt) {
		m.windows[identifier] = &window{count: 1, resetAt: now.Add(m.window)}
		return true, nil
	}
	if w.count >= m.max {
		return false, nil
	}
	w.count++
	return true, nil
}

// Reset clears the window for identifier.
func (m *Memory) Reset(_ context.Context, identifier string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.windows, strings.TrimSpace(identifier))
	return nil
}

// Len returns the number of tracked identifiers.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

// sweepLocked drops expired windows so idle identifiers do not accumulate.
func (m *Memory) sweepLocked(now time.Time) {
	for k, w := range m.windows {
		if !now.Before(w.resetAt) {
			delete(m.windows, k)
		}
	}
}
