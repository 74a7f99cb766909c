package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"
	"errors"

	domainauth "github.com/fintrack/fintrack-api/internal/domain/auth"
)

// ErrNotFound is returned by repositories and stores when the record is absent.
var ErrNotFound = errors.New("not found")

// IdentityProvider verifies credentials and registers accounts against an IdP.
type IdentityProvider interface {
	// Authenticate verifies email/password and returns the authenticated identity.
	Authenticate(ctx context.Context, email, password string) (domainauth.Identity, error)

	// Register creates an account carrying the given metadata.
	Register(ctx context.Context, email, password string, metadata map[string]any) (domainauth.Identity, error)
}

// SessionStore persists and retrieves user sessions.
type SessionStore interface {
	Save(ctx context.Context, sess domainauth.Session) error
	Get(ctx context.Context, id string) (domainauth.Session, error)
	Delete(ctx context.Context, id string) error
}

// ProfileRepository reads and creates rows in the users table.
type ProfileRepository interface {
	// GetByID returns ErrNotFound when no row exists for id.
	GetByID(ctx context.Context, id string) (domainauth.Profile, error)
	// Insert persists p and returns the stored row. When a row for p.ID already
	// exists the existing row is returned unchanged.
	Insert(ctx context.Context, p domainauth.Profile) (domainauth.Profile, error)
}

// RateLimiter is a fixed-window counter keyed by an opaque identifier.
type RateLimiter interface {
	// Allow records a hit for identifier and reports whether it fits in the window.
	Allow(ctx context.Context, identifier string) (bool, error)
	// Reset clears the window for identifier.
	Reset(ctx context.Context, identifier string) error
}

// ProfileFetcher retrieves the stored profile for the current session.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context) (domainauth.Profile, error)
}

// AuthStateListener receives session events. sess is nil for SIGNED_OUT.
type AuthStateListener func(kind domainauth.EventKind, sess *domainauth.Session)

// SessionSource is the client-side view of the session store.
type SessionSource interface {
	// GetSession returns the current session, or nil when signed out.
	GetSession(ctx context.Context) (*domainauth.Session, error)
	SignInWithPassword(ctx context.Context, email, password string) error
	SignUp(ctx context.Context, email, password string, metadata map[string]any) error
	SignOut(ctx context.Context) error
	// OnAuthStateChange registers l and returns a function that unregisters it.
	OnAuthStateChange(l AuthStateListener) (unsubscribe func())
}
