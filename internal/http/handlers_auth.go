package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	domainauth "github.com/fintrack/fintrack-api/internal/domain/auth"
)

// AuthServiceInterface defines the interface for auth service operations.
type AuthServiceInterface interface {
	SignIn(ctx context.Context, in domainauth.SignInInput) (*domainauth.Session, error)
	SignUp(ctx context.Context, in domainauth.SignUpInput) (domainauth.Identity, error)
	GetSession(ctx context.Context, sessionID string) (*domainauth.Session, error)
	Refresh(ctx context.Context, sessionID string) (*domainauth.Session, error)
	SignOut(ctx context.Context, sessionID string) error
}

// ProfileLookup returns the profile for an identity. It never fails.
type ProfileLookup interface {
	Lookup(ctx context.Context, id domainauth.Identity) domainauth.Profile
}

// AuthHandlers provides HTTP handlers for authentication operations.
type AuthHandlers struct {
	Svc          AuthServiceInterface
	Profiles     ProfileLookup
	CookieDomain string
	Logger       *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Signin verifies credentials and starts a cookie session.
// POST /api/auth/signin.
func (h *AuthHandlers) Signin(w http.ResponseWriter, r *http.Request) {
	var in domainauth.SignInInput
	if !DecodeJSON(w, r, &in) {
		return
	}
	sess, err := h.Svc.SignIn(r.Context(), in)
	if err != nil {
		writeAuthError(w, r, h.logger(), err)
		return
	}
	h.setSessionCookie(w, r, *sess)
	WriteJSON(w, http.StatusOK, sess.View())
}

type signupResponse struct {
	User domainauth.Identity `json:"user"`
}

// Signup registers an account. It does not sign the caller in.
// POST /api/auth/signup.
func (h *AuthHandlers) Signup(w http.ResponseWriter, r *http.Request) {
	var in domainauth.SignUpInput
	if !DecodeJSON(w, r, &in) {
		return
	}
	id, err := h.Svc.SignUp(r.Context(), in)
	if err != nil {
		writeAuthError(w, r, h.logger(), err)
		return
	}
	WriteJSON(w, http.StatusCreated, signupResponse{User: id})
}

// Signout ends the session. It succeeds whether or not a session existed.
// POST /api/auth/signout.
func (h *AuthHandlers) Signout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(domainauth.SessionCookieName); err == nil && c.Value != "" {
		if signOutErr := h.Svc.SignOut(r.Context(), c.Value); signOutErr != nil {
			h.logger().WarnContext(r.Context(), "sign out failed", "error", signOutErr)
		}
	}
	h.clearCookie(w, r, domainauth.SessionCookieName)
	w.WriteHeader(http.StatusNoContent)
}

// Refresh extends the current session.
// POST /api/auth/refresh.
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	sess, ok := GetUserSessionFromContext(r.Context())
	if !ok {
		writeUnauthenticated(w)
		return
	}
	refreshed, err := h.Svc.Refresh(r.Context(), sess.ID)
	if err != nil {
		h.clearCookie(w, r, domainauth.SessionCookieName)
		writeAuthError(w, r, h.logger(), err)
		return
	}
	h.setSessionCookie(w, r, *refreshed)
	WriteJSON(w, http.StatusOK, refreshed.View())
}

// Session returns the current session.
// GET /api/auth/session.
func (h *AuthHandlers) Session(w http.ResponseWriter, r *http.Request) {
	sess, ok := GetUserSessionFromContext(r.Context())
	if !ok {
		writeUnauthenticated(w)
		return
	}
	WriteJSON(w, http.StatusOK, sess.View())
}

// Profile returns the stored profile for the session identity, falling back
// to one synthesized from the identity when the store cannot serve it.
// GET /api/auth/profile.
func (h *AuthHandlers) Profile(w http.ResponseWriter, r *http.Request) {
	sess, ok := GetUserSessionFromContext(r.Context())
	if !ok {
		writeUnauthenticated(w)
		return
	}
	WriteJSON(w, http.StatusOK, h.Profiles.Lookup(r.Context(), sess.Identity))
}

func (h *AuthHandlers) setSessionCookie(w http.ResponseWriter, r *http.Request, s domainauth.Session) {
	maxAge := int(time.Until(s.ExpiresAt).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     domainauth.SessionCookieName,
		Value:    s.ID,
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

func (h *AuthHandlers) clearCookie(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
