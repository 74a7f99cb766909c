package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/fintrack/fintrack-api/internal/domain/auth"
)

// fakeAPI is a minimal stand-in for the session endpoints.
type fakeAPI struct {
	mu          sync.Mutex
	sessions    map[string]domainauth.Identity
	profileBody string
	profileCode int
	refreshes   int
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	api := &fakeAPI{sessions: map[string]domainauth.Identity{}, profileCode: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/signin", func(w http.ResponseWriter, r *http.Request) {
		var in domainauth.SignInInput
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in.Password != "password123" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": domainauth.ErrInvalidCredentials.Error(),
				"code":  domainauth.CodeInvalidCredentials,
			})
			return
		}
		id := domainauth.Identity{ID: "user-1", Email: in.Email}
		api.mu.Lock()
		api.sessions["sess-1"] = id
		api.mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: domainauth.SessionCookieName, Value: "sess-1", Path: "/"})
		writeJSON(w, http.StatusOK, domainauth.SessionView{User: id, ExpiresAt: time.Now().Add(time.Hour)})
	})
	mux.HandleFunc("POST /api/auth/signup", func(w http.ResponseWriter, r *http.Request) {
		var in domainauth.SignUpInput
		_ = json.NewDecoder(r.Body).Decode(&in)
		writeJSON(w, http.StatusCreated, map[string]any{"user": domainauth.Identity{
			ID: "user-2", Email: in.Email, Metadata: map[string]any{"full_name": in.FullName},
		}})
	})
	mux.HandleFunc("POST /api/auth/signout", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := api.lookup(r); !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Not authenticated", "code": "not_authenticated"})
			return
		}
		api.mu.Lock()
		delete(api.sessions, "sess-1")
		api.mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: domainauth.SessionCookieName, Value: "", Path: "/", MaxAge: -1})
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /api/auth/session", func(w http.ResponseWriter, r *http.Request) {
		id, ok := api.lookup(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Not authenticated", "code": "not_authenticated"})
			return
		}
		writeJSON(w, http.StatusOK, domainauth.SessionView{User: id, ExpiresAt: time.Now().Add(time.Hour)})
	})
	mux.HandleFunc("POST /api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		id, ok := api.lookup(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Not authenticated", "code": "not_authenticated"})
			return
		}
		api.mu.Lock()
		api.refreshes++
		api.mu.Unlock()
		writeJSON(w, http.StatusOK, domainauth.SessionView{User: id, ExpiresAt: time.Now().Add(2 * time.Hour)})
	})
	mux.HandleFunc("GET /api/auth/profile", func(w http.ResponseWriter, _ *http.Request) {
		api.mu.Lock()
		code, body := api.profileCode, api.profileBody
		api.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return api, srv
}

func (a *fakeAPI) lookup(r *http.Request) (domainauth.Identity, bool) {
	c, err := r.Cookie(domainauth.SessionCookieName)
	if err != nil {
		return domainauth.Identity{}, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	id, ok := a.sessions[c.Value]
	return id, ok
}

func (a *fakeAPI) setProfile(code int, body string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.profileCode, a.profileBody = code, body
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type recordedEvent struct {
	kind domainauth.EventKind
	sess *domainauth.Session
}

func newClient(t *testing.T, srv *httptest.Server) (*Client, *[]recordedEvent) {
	t.Helper()
	c, err := New(Options{BaseURL: srv.URL + "/", HTTPClient: srv.Client()})
	require.NoError(t, err)

	var (
		mu     sync.Mutex
		events []recordedEvent
	)
	unsub := c.OnAuthStateChange(func(kind domainauth.EventKind, s *domainauth.Session) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, recordedEvent{kind: kind, sess: s})
	})
	t.Cleanup(unsub)
	return c, &events
}

func TestNew_RejectsBadBaseURL(t *testing.T) {
	_, err := New(Options{BaseURL: "not a url"})
	require.Error(t, err)
}

func TestClient_SignInLifecycle(t *testing.T) {
	_, srv := newFakeAPI(t)
	c, events := newClient(t, srv)
	ctx := context.Background()

	sess, err := c.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, sess, "no session before sign-in")

	require.NoError(t, c.SignInWithPassword(ctx, "a@example.com", "password123"))
	require.Len(t, *events, 1)
	assert.Equal(t, domainauth.EventSignedIn, (*events)[0].kind)
	require.NotNil(t, (*events)[0].sess)
	assert.Equal(t, "user-1", (*events)[0].sess.UserID())
	assert.Equal(t, "sess-1", (*events)[0].sess.ID)

	sess, err = c.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "a@example.com", sess.Identity.Email)

	refreshed, err := c.Refresh(ctx)
	require.NoError(t, err)
	require.NotNil(t, refreshed)
	require.Len(t, *events, 2)
	assert.Equal(t, domainauth.EventTokenRefreshed, (*events)[1].kind)

	require.NoError(t, c.SignOut(ctx))
	require.Len(t, *events, 3)
	assert.Equal(t, domainauth.EventSignedOut, (*events)[2].kind)
	assert.Nil(t, (*events)[2].sess)

	sess, err = c.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestClient_SignInInvalidCredentials(t *testing.T) {
	_, srv := newFakeAPI(t)
	c, events := newClient(t, srv)

	err := c.SignInWithPassword(context.Background(), "a@example.com", "wrong")
	require.Error(t, err)
	assert.ErrorIs(t, err, domainauth.ErrInvalidCredentials)
	assert.Equal(t, "Invalid email or password. Please check your credentials and try again.",
		domainauth.FriendlyMessage(err))
	assert.Empty(t, *events)
}

func TestClient_SignUpDoesNotSignIn(t *testing.T) {
	_, srv := newFakeAPI(t)
	c, events := newClient(t, srv)

	err := c.SignUp(context.Background(), "new@example.com", "password123",
		map[string]any{domainauth.MetadataFullName: "New Person"})
	require.NoError(t, err)
	assert.Empty(t, *events)
}

func TestClient_SignOutWithoutSessionStillEmits(t *testing.T) {
	_, srv := newFakeAPI(t)
	c, events := newClient(t, srv)

	require.NoError(t, c.SignOut(context.Background()))
	require.Len(t, *events, 1)
	assert.Equal(t, domainauth.EventSignedOut, (*events)[0].kind)
}

func TestClient_RefreshWithoutSessionEmitsSignedOut(t *testing.T) {
	_, srv := newFakeAPI(t)
	c, events := newClient(t, srv)

	sess, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sess)
	require.Len(t, *events, 1)
	assert.Equal(t, domainauth.EventSignedOut, (*events)[0].kind)
}

func TestClient_Unsubscribe(t *testing.T) {
	_, srv := newFakeAPI(t)
	c, err := New(Options{BaseURL: srv.URL})
	require.NoError(t, err)

	calls := 0
	unsub := c.OnAuthStateChange(func(domainauth.EventKind, *domainauth.Session) { calls++ })
	unsub()
	unsub()

	require.NoError(t, c.SignOut(context.Background()))
	assert.Zero(t, calls)
}

func TestClient_FetchProfile(t *testing.T) {
	api, srv := newFakeAPI(t)
	c, _ := newClient(t, srv)
	ctx := context.Background()

	api.setProfile(http.StatusOK, `{"id":"user-1","email":"a@example.com","full_name":"Alice","role":"admin","created_at":"2024-01-01T00:00:00Z","updated_at":"2024-01-02T00:00:00Z"}`)
	p, err := c.FetchProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.FullName)
	assert.Equal(t, domainauth.RoleAdmin, p.Role)

	api.setProfile(http.StatusUnauthorized, `{"error":"Not authenticated"}`)
	_, err = c.FetchProfile(ctx)
	var se *domainauth.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Equal(t, "Not authenticated", se.Message)

	api.setProfile(http.StatusInternalServerError, `oops`)
	_, err = c.FetchProfile(ctx)
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
}

func TestDecodeProfile(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{name: "valid", body: `{"id":"u1","email":"a@b.c","full_name":"A","role":"user"}`},
		{name: "invalid json", body: `{"id":`, wantErr: domainauth.ErrProfileDecode},
		{name: "empty body", body: ``, wantErr: domainauth.ErrProfileDecode},
		{name: "array", body: `[{"id":"u1"}]`, wantErr: domainauth.ErrMalformedProfile},
		{name: "string", body: `"u1"`, wantErr: domainauth.ErrMalformedProfile},
		{name: "null", body: `null`, wantErr: domainauth.ErrMalformedProfile},
		{name: "error marker", body: `{"id":"u1","error":"boom"}`, wantErr: domainauth.ErrMalformedProfile},
		{name: "error object", body: `{"id":"u1","error":{"code":"x"}}`, wantErr: domainauth.ErrMalformedProfile},
		{name: "null error", body: `{"id":"u1","error":null}`},
		{name: "false error", body: `{"id":"u1","error":false}`},
		{name: "empty error", body: `{"id":"u1","error":""}`},
		{name: "missing id", body: `{"email":"a@b.c"}`, wantErr: domainauth.ErrMalformedProfile},
		{name: "blank id", body: `{"id":"  "}`, wantErr: domainauth.ErrMalformedProfile},
		{name: "wrong field type", body: `{"id":42}`, wantErr: domainauth.ErrProfileDecode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := DecodeProfile([]byte(tt.body))
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, "u1", p.ID)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestClient_StartAutoRefresh(t *testing.T) {
	api, srv := newFakeAPI(t)
	c, _ := newClient(t, srv)
	ctx := context.Background()

	stop := c.StartAutoRefresh(ctx, 10*time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	api.mu.Lock()
	assert.Zero(t, api.refreshes, "no refresh while signed out")
	api.mu.Unlock()

	require.NoError(t, c.SignInWithPassword(ctx, "a@example.com", "password123"))
	require.Eventually(t, func() bool {
		api.mu.Lock()
		defer api.mu.Unlock()
		return api.refreshes > 0
	}, time.Second, 5*time.Millisecond)

	stop()
}
