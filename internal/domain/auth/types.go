package auth

// Package auth contains domain-level types for authentication, sessions and
// user profiles. It is pure and free of framework/adapter concerns.

import (
	"strings"
	"time"
)

// Role represents an application's authorization role.
// It is carried on the profile as a passive attribute; nothing gates on it.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool { return r == RoleUser || r == RoleAdmin }

// DefaultFullName is used when neither the profile store nor the identity
// metadata carries a display name.
const DefaultFullName = "User"

// MetadataFullName is the identity metadata key holding the display name
// supplied at sign-up.
const MetadataFullName = "full_name"

// Identity represents the authenticated principal issued by the identity provider.
// Adapters map provider-specific claims into this shape.
type Identity struct {
	ID          string         `json:"id"`
	Email       string         `json:"email"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	IssuedAt    time.Time      `json:"issued_at"`
	RefreshedAt time.Time      `json:"refreshed_at,omitempty"`
}

// FullName returns the display name stored in metadata, if any.
func (i Identity) FullName() string {
	if i.Metadata == nil {
		return ""
	}
	v, ok := i.Metadata[MetadataFullName].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// Session is the server-side record we persist for an authenticated user.
// ID is an opaque session identifier referenced by the session cookie.
type Session struct {
	ID        string    `json:"id"`
	Identity  Identity  `json:"identity"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UserID is shorthand for the identity id the session belongs to.
func (s Session) UserID() string { return s.Identity.ID }

// Expired reports whether the session is no longer valid at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Profile is the application-level user record. JSON names match the users table.
type Profile struct {
	ID        string    `json:"id"         db:"id"`
	Email     string    `json:"email"      db:"email"`
	FullName  string    `json:"full_name"  db:"full_name"`
	Role      Role      `json:"role"       db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Valid reports whether the profile is usable. A profile without an id is not.
func (p Profile) Valid() bool { return strings.TrimSpace(p.ID) != "" }

// FallbackProfile synthesizes a profile from identity fields alone.
// It is what callers get whenever the stored profile cannot be read.
func FallbackProfile(id Identity, now time.Time) Profile {
	name := id.FullName()
	if name == "" {
		name = DefaultFullName
	}
	created := id.CreatedAt
	if created.IsZero() {
		created = now
	}
	return Profile{
		ID:        id.ID,
		Email:     id.Email,
		FullName:  name,
		Role:      RoleUser,
		CreatedAt: created,
		UpdatedAt: now,
	}
}

// EventKind enumerates session lifecycle notifications.
type EventKind string

const (
	EventSignedIn       EventKind = "SIGNED_IN"
	EventSignedOut      EventKind = "SIGNED_OUT"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
	EventInitialSession EventKind = "INITIAL_SESSION"
	EventUserUpdated    EventKind = "USER_UPDATED"
)

// SessionCookieName is the cookie carrying the opaque session id.
const SessionCookieName = "session_id"

// SessionView is the public representation of a session returned by the API.
// The session id itself only travels in the cookie.
type SessionView struct {
	User      Identity  `json:"user"`
	ExpiresAt time.Time `json:"expires_at"`
}

// View returns the public representation of s.
func (s Session) View() SessionView {
	return SessionView{User: s.Identity, ExpiresAt: s.ExpiresAt}
}
