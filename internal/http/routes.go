package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/fintrack/fintrack-api/internal/observability/statsd"
	"github.com/fintrack/fintrack-api/internal/ports"
)

// AuthAPI is what the router needs from the auth service.
type AuthAPI interface {
	AuthServiceInterface
	SessionGetter
}

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Auth      AuthAPI
	Profiles  ProfileLookup
	RateLimit RateLimitChecker
	// APILimiter throttles every /api/ request per client address. Optional.
	APILimiter ports.RateLimiter
	APIWindow  time.Duration
	// Readiness checks back /readyz. With none, /readyz mirrors /healthz.
	Readiness    []ReadinessCheck
	CookieDomain string
	Metrics      statsd.Sink
	Logger       *slog.Logger
}

// NewRouter creates the API router with security headers and API throttling applied.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	api := http.NewServeMux()
	if services.Auth != nil {
		authHandlers := &AuthHandlers{
			Svc:          services.Auth,
			Profiles:     services.Profiles,
			CookieDomain: services.CookieDomain,
			Logger:       logger,
		}
		registerAuthRoutes(api, authHandlers, services.Auth)
	}
	if services.RateLimit != nil {
		rl := &RateLimitHandlers{Svc: services.RateLimit, Logger: logger}
		api.HandleFunc("POST /api/auth/rate-limit", rl.Check)
	}
	api.HandleFunc("/api/", notFound)

	var apiHandler http.Handler = api
	if services.APILimiter != nil {
		apiHandler = RateLimit(RateLimitOptions{
			Limiter: services.APILimiter,
			Name:    "api",
			Window:  services.APIWindow,
			Metrics: services.Metrics,
			Logger:  logger,
		})(apiHandler)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	if len(services.Readiness) > 0 {
		mux.Handle("GET /readyz", readinessHandler(services.Readiness, logger))
	} else {
		mux.Handle("GET /readyz", http.HandlerFunc(healthHandler))
	}
	mux.HandleFunc("/", notFound)

	return SecurityHeaders()(mux)
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers, sessions SessionGetter) {
	requireAuth := RequireAuth(sessions)
	mux.HandleFunc("POST /api/auth/signin", h.Signin)
	mux.HandleFunc("POST /api/auth/signup", h.Signup)
	mux.HandleFunc("POST /api/auth/signout", h.Signout)
	mux.Handle("POST /api/auth/refresh", requireAuth(http.HandlerFunc(h.Refresh)))
	mux.Handle("GET /api/auth/session", requireAuth(http.HandlerFunc(h.Session)))
	mux.Handle("GET /api/auth/profile", requireAuth(http.HandlerFunc(h.Profile)))
}

var errNotFound = errors.New("Not found")

func notFound(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: errNotFound})
}
