package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/fintrack/fintrack-api/internal/domain/auth"
	authmocks "github.com/fintrack/fintrack-api/internal/mocks/auth"
	"github.com/fintrack/fintrack-api/internal/service"
)

type profileLookupFunc func(ctx context.Context, id domainauth.Identity) domainauth.Profile

func (f profileLookupFunc) Lookup(ctx context.Context, id domainauth.Identity) domainauth.Profile {
	return f(ctx, id)
}

type routerFixture struct {
	handler  http.Handler
	provider *authmocks.StaticIdentityProvider
	sessions *authmocks.MemorySessionStore
	lookups  []domainauth.Identity
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	f := &routerFixture{
		provider: authmocks.NewStaticIdentityProvider(),
		sessions: authmocks.NewMemorySessionStore(),
	}
	f.provider.AddAccount(domainauth.Identity{
		ID:       "user-1",
		Email:    "ana@example.com",
		Metadata: map[string]any{domainauth.MetadataFullName: "Ana Lima"},
	}, "correct-horse")

	auth := service.NewAuthService(service.AuthServiceOptions{
		Provider: f.provider,
		Sessions: f.sessions,
		Limiter:  &authmocks.CountingRateLimiter{Max: 5},
	})
	limits := service.NewRateLimitService(service.RateLimitServiceOptions{
		Limiter: &authmocks.CountingRateLimiter{Max: 5},
	})
	f.handler = NewRouter(RouterServices{
		Auth: auth,
		Profiles: profileLookupFunc(func(_ context.Context, id domainauth.Identity) domainauth.Profile {
			f.lookups = append(f.lookups, id)
			return domainauth.FallbackProfile(id, time.Now())
		}),
		RateLimit: limits,
	})
	return f
}

func (f *routerFixture) do(method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == domainauth.SessionCookieName {
			return c
		}
	}
	t.Fatalf("response did not set %s", domainauth.SessionCookieName)
	return nil
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func (f *routerFixture) signIn(t *testing.T) *http.Cookie {
	t.Helper()
	rec := f.do(http.MethodPost, "/api/auth/signin", `{"email":"ana@example.com","password":"correct-horse"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return sessionCookie(t, rec)
}

func TestSignin_SetsSessionCookie(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(http.MethodPost, "/api/auth/signin", `{"email":" Ana@example.com ","password":"correct-horse"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	c := sessionCookie(t, rec)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Positive(t, c.MaxAge)
	assert.Equal(t, 1, f.sessions.Len())

	var view domainauth.SessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "user-1", view.User.ID)
	assert.NotContains(t, rec.Body.String(), c.Value)
}

func TestSignin_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   string
		msg    string
	}{
		{"wrong password", `{"email":"ana@example.com","password":"nope"}`, http.StatusUnauthorized, domainauth.CodeInvalidCredentials, "Invalid login credentials"},
		{"bad email", `{"email":"ana","password":"x"}`, http.StatusBadRequest, domainauth.CodeValidation, "Invalid email address"},
		{"missing password", `{"email":"ana@example.com"}`, http.StatusBadRequest, domainauth.CodeValidation, "Password is required"},
		{"bad json", `{"email":`, http.StatusBadRequest, "invalid_json", "Invalid JSON body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouterFixture(t)
			rec := f.do(http.MethodPost, "/api/auth/signin", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tt.code, body.Code)
			assert.Equal(t, tt.msg, body.Error)
			assert.Empty(t, rec.Result().Cookies())
		})
	}
}

func TestSignin_RateLimitedAfterFiveFailures(t *testing.T) {
	f := newRouterFixture(t)
	for range 5 {
		rec := f.do(http.MethodPost, "/api/auth/signin", `{"email":"ana@example.com","password":"nope"}`)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := f.do(http.MethodPost, "/api/auth/signin", `{"email":"ana@example.com","password":"correct-horse"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, domainauth.CodeRateLimited, decodeError(t, rec).Code)
}

func TestSignup(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(http.MethodPost, "/api/auth/signup", `{"email":"bo@example.com","password":"longenough","fullName":"Bo"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Empty(t, rec.Result().Cookies(), "sign-up must not start a session")

	var resp signupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "bo@example.com", resp.User.Email)
	assert.Equal(t, "Bo", resp.User.FullName())

	dup := f.do(http.MethodPost, "/api/auth/signup", `{"email":"bo@example.com","password":"longenough","fullName":"Bo"}`)
	assert.Equal(t, http.StatusBadRequest, dup.Code)
	assert.Equal(t, domainauth.CodeUserAlreadyRegistered, decodeError(t, dup).Code)

	short := f.do(http.MethodPost, "/api/auth/signup", `{"email":"cy@example.com","password":"short","fullName":"Cy"}`)
	assert.Equal(t, http.StatusBadRequest, short.Code)
	assert.Equal(t, "Password must be at least 8 characters", decodeError(t, short).Error)
}

func TestSession_RequiresCookie(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodGet, "/api/auth/session", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "Not authenticated", body.Error)
	assert.Equal(t, domainauth.CodeNotAuthenticated, body.Code)

	rec = f.do(http.MethodGet, "/api/auth/session", "", &http.Cookie{Name: domainauth.SessionCookieName, Value: "forged"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodGet, "/api/auth/session", "", f.signIn(t))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProfile(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodGet, "/api/auth/profile", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, f.lookups)

	rec = f.do(http.MethodGet, "/api/auth/profile", "", f.signIn(t))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.lookups, 1)
	assert.Equal(t, "user-1", f.lookups[0].ID)

	var p domainauth.Profile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "user-1", p.ID)
	assert.Equal(t, "Ana Lima", p.FullName)
	assert.Equal(t, domainauth.RoleUser, p.Role)
}

func TestSignout(t *testing.T) {
	f := newRouterFixture(t)
	cookie := f.signIn(t)

	rec := f.do(http.MethodPost, "/api/auth/signout", "", cookie)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	cleared := sessionCookie(t, rec)
	assert.Empty(t, cleared.Value)
	assert.Negative(t, cleared.MaxAge)
	assert.Zero(t, f.sessions.Len())

	rec = f.do(http.MethodGet, "/api/auth/session", "", cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Without a session the call still succeeds.
	rec = f.do(http.MethodPost, "/api/auth/signout", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRefresh(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodPost, "/api/auth/refresh", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	cookie := f.signIn(t)
	rec = f.do(http.MethodPost, "/api/auth/refresh", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, cookie.Value, sessionCookie(t, rec).Value)

	var view domainauth.SessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.False(t, view.User.RefreshedAt.IsZero())
}

func TestUnknownRoutesReturnJSON404(t *testing.T) {
	f := newRouterFixture(t)
	for _, path := range []string{"/api/nope", "/nope"} {
		rec := f.do(http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Equal(t, "not_found", decodeError(t, rec).Code, path)
		assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"), path)
	}
}
