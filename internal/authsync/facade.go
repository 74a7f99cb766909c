package authsync

import (
	"context"
	"fmt"
	"time"

	domainauth "github.com/fintrack/fintrack-api/internal/domain/auth"
)

// SignIn validates the credentials and signs in through the session source.
// The debounce clock is reset first so the resulting SIGNED_IN is accepted.
// Errors are session-layer or validation errors; use
// domainauth.FriendlyMessage to present them.
func (m *Machine) SignIn(ctx context.Context, email, password string) error {
	in := domainauth.SignInInput{Email: email, Password: password}.Sanitize()
	if err := in.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.lastEventAt = time.Time{}
	m.mu.Unlock()

	if err := m.source.SignInWithPassword(ctx, in.Email, in.Password); err != nil {
		m.logger.WarnContext(ctx, "sign in failed", "error", err)
		return err
	}
	return nil
}

// SignUp validates the input and registers the account. It does not sign in.
func (m *Machine) SignUp(ctx context.Context, email, password, fullName string) error {
	in := domainauth.SignUpInput{Email: email, Password: password, FullName: fullName}.Sanitize()
	if err := in.Validate(); err != nil {
		return err
	}
	if err := m.source.SignUp(ctx, in.Email, in.Password, in.Metadata()); err != nil {
		m.logger.WarnContext(ctx, "sign up failed", "error", err)
		return err
	}
	return nil
}

// SignOut moves to SignedOut immediately, cancelling any in-flight
// resolution, and then signs out through the session source. The local
// transition stands even when the source reports an error.
func (m *Machine) SignOut(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	changed := false
	if m.state != StateUninitialized {
		changed = m.signOutLocked()
	}
	m.lastEventAt = time.Time{}
	snap := m.snapshotLocked()
	m.mu.Unlock()
	if changed {
		m.notify(snap)
	}

	if err := m.source.SignOut(ctx); err != nil {
		m.logger.WarnContext(ctx, "sign out failed", "error", err)
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// Refresh re-reads the session. A different identity is resolved, a missing
// session signs out locally. It does nothing while a resolution is in flight.
func (m *Machine) Refresh(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	busy := m.resolvingID != "" || !m.initialized
	m.mu.Unlock()
	if busy {
		return nil
	}

	sess, err := m.source.GetSession(ctx)
	if err != nil {
		return fmt.Errorf("refresh session: %w", err)
	}

	m.mu.Lock()
	changed := false
	switch {
	case m.closed:
		m.mu.Unlock()
		return ErrClosed
	case sess == nil || sess.Identity.ID == "":
		changed = m.signOutLocked()
	case m.resolvingID == "" && sess.Identity.ID != m.lastResolvedID:
		m.startResolutionLocked(sess.Identity)
		changed = true
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()
	if changed {
		m.notify(snap)
	}
	return nil
}
