package ports_test

import (
	"testing"

	mocks "github.com/fintrack/fintrack-api/internal/mocks/auth"
	"github.com/fintrack/fintrack-api/internal/ports"
)

// This test only verifies that our mocks conform to the ports at compile time.
func TestMocksImplementPorts(t *testing.T) {
	t.Helper()

	var _ ports.IdentityProvider = (*mocks.StaticIdentityProvider)(nil)
	var _ ports.SessionStore = (*mocks.MemorySessionStore)(nil)
	var _ ports.SessionSource = (*mocks.FakeSessionSource)(nil)
	var _ ports.RateLimiter = (*mocks.CountingRateLimiter)(nil)
}
