package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestNewMemory_Validation(t *testing.T) {
	_, err := NewMemory(MemoryOptions{MaxRequests: 0, Window: time.Minute})
	assert.Error(t, err)
	_, err = NewMemory(MemoryOptions{MaxRequests: 1})
	assert.Error(t, err)
}

func TestMemory_FixedWindow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l, err := NewMemory(MemoryOptions{MaxRequests: 5, Window: 60 * time.Second, Now: clock.Now})
	require.NoError(t, err)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		ok, err := l.Allow(ctx, "a@b.com")
		require.NoError(t, err)
		assert.True(t, ok, "hit %d", i)
	}
	ok, err := l.Allow(ctx, "a@b.com")
	require.NoError(t, err)
	assert.False(t, ok)

	// Still inside the window anchored at the first hit.
	clock.Advance(59 * time.Second)
	ok, _ = l.Allow(ctx, "a@b.com")
	assert.False(t, ok)

	clock.Advance(time.Second)
	ok, _ = l.Allow(ctx, "a@b.com")
	assert.True(t, ok, "new window after 60s")
}

func TestMemory_Reset(t *testing.T) {
	l, err := NewMemory(MemoryOptions{MaxRequests: 1, Window: time.Minute})
	require.NoError(t, err)
	ctx := context.Background()

	ok, _ := l.Allow(ctx, "k")
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, "k")
	assert.False(t, ok)

	require.NoError(t, l.Reset(ctx, "k"))
	ok, _ = l.Allow(ctx, "k")
	assert.True(t, ok)
}

func TestMemory_RequiresIdentifier(t *testing.T) {
	l, err := NewMemory(MemoryOptions{MaxRequests: 1, Window: time.Minute})
	require.NoError(t, err)
	_, err = l.Allow(context.Background(), "")
	assert.Error(t, err)
}

func TestMemory_SweepsExpiredWindows(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	l, err := NewMemory(MemoryOptions{MaxRequests: 1, Window: time.Second, Now: clock.Now})
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 1023; i++ {
		_, err := l.Allow(ctx, fmt.Sprintf("id-%d", i))
		require.NoError(t, err)
	}
	assert.Equal(t, 1023, l.Len())

	clock.Advance(2 * time.Second)
	_, err = l.Allow(ctx, "trigger")
	require.NoError(t, err)
	assert.Equal(t, 1, l.Len())
}

func TestMemory_ConcurrentHitsNeverExceedLimit(t *testing.T) {
	l, err := NewMemory(MemoryOptions{MaxRequests: 5, Window: time.Minute})
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.Allow(context.Background(), "shared")
			if err == nil && ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 5, allowed)
}
