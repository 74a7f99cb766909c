package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrack/fintrack-api/config"
	"github.com/fintrack/fintrack-api/internal/adapters/ratelimit"
	domainauth "github.com/fintrack/fintrack-api/internal/domain/auth"
	authmocks "github.com/fintrack/fintrack-api/internal/mocks/auth"
	"github.com/fintrack/fintrack-api/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("AUTH_MODE", "local")
	t.Setenv("RATE_LIMIT_BACKEND", "memory")
	t.Setenv("HTTP_COMPRESSION_LEVEL", "42")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, config.RateLimitBackendMemory, cfg.RateLimit.Backend)
	assert.Equal(t, 9, cfg.HTTP.CompressionLevel)
}

func TestLoadConfig_RejectsBadAuthMode(t *testing.T) {
	t.Setenv("AUTH_MODE", "saml")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestPostgresDSN_EscapesCredentials(t *testing.T) {
	dsn := PostgresDSN(config.DBConfig{
		Host: "db", Port: 5432, User: "app", Password: "p@ss/word", Name: "fintrack", SSLMode: "require",
	})
	assert.Equal(t, "postgres://app:p%40ss%2Fword@db:5432/fintrack?sslmode=require", dsn)
}

func TestBuildIdentityProvider(t *testing.T) {
	ctx := context.Background()

	prov, err := BuildIdentityProvider(ctx, IdentityConfig{
		Auth: config.AuthConfig{
			Mode:  config.AuthModeLocal,
			Local: config.LocalAuthConfig{SeedEmail: "dev@example.com", SeedPassword: "password123", SeedFullName: "Dev User"},
		},
		IsDev:  true,
		Logger: discardLogger(),
	})
	require.NoError(t, err)
	id, err := prov.Authenticate(ctx, "dev@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, "Dev User", id.FullName())

	_, err = BuildIdentityProvider(ctx, IdentityConfig{
		Auth:   config.AuthConfig{Mode: config.AuthModeOIDC},
		Logger: discardLogger(),
	})
	require.ErrorContains(t, err, "OIDC_DISCOVERY_URL")

	_, err = BuildIdentityProvider(ctx, IdentityConfig{Auth: config.AuthConfig{Mode: "saml"}, Logger: discardLogger()})
	require.Error(t, err)
}

func TestBuildLimiters(t *testing.T) {
	cfg := config.RateLimitConfig{
		Backend:         config.RateLimitBackendMemory,
		AuthMaxRequests: 5,
		AuthWindow:      time.Minute,
		APIMaxRequests:  100,
		APIWindow:       time.Minute,
	}
	limiters, err := BuildLimiters(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &ratelimit.Memory{}, limiters.Auth)
	assert.IsType(t, &ratelimit.Memory{}, limiters.API)

	cfg.Backend = config.RateLimitBackendRedis
	_, err = BuildLimiters(cfg, nil)
	require.ErrorContains(t, err, "requires a redis client")

	cfg.Backend = config.RateLimitBackendMemory
	cfg.AuthMaxRequests = 0
	_, err = BuildLimiters(cfg, nil)
	require.ErrorContains(t, err, "auth limiter")
}

func TestNewServices_RequiresInfrastructure(t *testing.T) {
	cfg := &config.AppConfig{}
	_, err := NewServices(nil)
	require.Error(t, err)

	_, err = NewServices(&ServiceDeps{Config: cfg})
	require.ErrorContains(t, err, "identity provider")

	_, err = NewServices(&ServiceDeps{Config: cfg, Provider: authmocks.NewStaticIdentityProvider()})
	require.ErrorContains(t, err, "redis client")
}

func TestBuildMetrics_DisabledReturnsNil(t *testing.T) {
	assert.Nil(t, BuildMetrics(config.ObservabilityMetricsConfig{}, discardLogger()))
}

func TestBuildHTTPHandler(t *testing.T) {
	limiter, err := ratelimit.NewMemory(ratelimit.MemoryOptions{MaxRequests: 2, Window: time.Minute})
	require.NoError(t, err)
	provider := authmocks.NewStaticIdentityProvider()
	provider.AddAccount(domainauth.Identity{ID: "user-1", Email: "ana@example.com"}, "correct-horse")

	appCfg := &config.AppConfig{}
	appCfg.RateLimit.APIWindow = time.Minute
	appCfg.HTTP.CompressionEnabled = true
	appCfg.HTTP.CompressionLevel = 6

	h := BuildHTTPHandler(&HTTPServerConfig{
		Config: appCfg,
		Services: ServiceContainer{
			Auth: service.NewAuthService(service.AuthServiceOptions{
				Provider: provider,
				Sessions: authmocks.NewMemorySessionStore(),
			}),
			Profiles:  service.NewProfileService(service.ProfileServiceOptions{}),
			RateLimit: service.NewRateLimitService(service.RateLimitServiceOptions{Limiter: &authmocks.CountingRateLimiter{Max: 5}}),
			Limiters:  Limiters{API: limiter},
		},
		Logger: discardLogger(),
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	signin := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/signin",
			strings.NewReader(`{"email":"ana@example.com","password":"correct-horse"}`))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, signin())
	assert.Equal(t, http.StatusOK, signin())
	assert.Equal(t, http.StatusTooManyRequests, signin(), "API limiter applies to every /api/ request")

	// Health checks are outside the API limiter.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRunHTTPServer_StopsOnCancel(t *testing.T) {
	appCfg := &config.AppConfig{}
	appCfg.HTTP.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunHTTPServer(ctx, &HTTPServerConfig{Config: appCfg, Logger: discardLogger()})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
