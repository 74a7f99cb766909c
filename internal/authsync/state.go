package authsync

import (
	"time"

	domainauth "github.com/fintrack/fintrack-api/internal/domain/auth"
)

// State is the machine's coarse lifecycle position.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateIdle          State = "idle"
	StateResolving     State = "resolving"
	StateSignedOut     State = "signed_out"
)

// Snapshot is an immutable copy of the synchronization state.
type Snapshot struct {
	State State
	// Profile is the last resolved profile, nil when none is held.
	Profile *domainauth.Profile
	// Resolving is true while a resolution task is in flight. At most one is.
	Resolving bool
	// ResolvingID is the identity the in-flight task targets.
	ResolvingID string
	// LastResolvedID changes only when a resolution completes or on sign-out.
	LastResolvedID string
	// LastEventAt is the arrival time of the last accepted event.
	LastEventAt time.Time
	// Version increases on every state transition.
	Version uint64
}

// HasProfile reports whether the snapshot carries a resolved profile.
func (s Snapshot) HasProfile() bool { return s.Profile != nil }
