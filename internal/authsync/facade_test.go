package authsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/fintrack/fintrack-api/internal/domain/auth"
)

func TestMachine_SignIn(t *testing.T) {
	h := newHarness(t)
	h.source.Accounts["u1@example.com"] = *identity("u1")
	h.start(t)

	require.NoError(t, h.m.SignIn(context.Background(), " u1@example.com ", "password123"))
	h.wait(t)

	p, ok := h.m.CurrentProfile()
	require.True(t, ok)
	assert.Equal(t, "u1", p.ID)
	assert.Equal(t, 1, h.source.SignInCalls)
}

func TestMachine_SignInResetsDebounceClock(t *testing.T) {
	h := newHarness(t)
	h.source.Accounts["u2@example.com"] = *identity("u2")
	h.start(t)

	// An unrelated event opens a debounce window.
	h.source.Emit(domainauth.EventTokenRefreshed, session("u1"))
	h.clock.Advance(100 * time.Millisecond)

	require.NoError(t, h.m.SignIn(context.Background(), "u2@example.com", "password123"))
	h.wait(t)
	assert.Equal(t, []string{"u2"}, h.resolver.Calls())
}

func TestMachine_SignInValidationBlocksSubmission(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	err := h.m.SignIn(context.Background(), "not-an-email", "password123")
	var verr *domainauth.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Invalid email address", verr.Message)

	err = h.m.SignIn(context.Background(), "u1@example.com", "")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Password is required", verr.Message)

	assert.Zero(t, h.source.SignInCalls)
}

func TestMachine_SignInSessionError(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.source.SignInErr = domainauth.ErrEmailNotConfirmed

	err := h.m.SignIn(context.Background(), "u1@example.com", "password123")
	require.ErrorIs(t, err, domainauth.ErrEmailNotConfirmed)
	assert.Equal(t, "Your account is being set up. Please wait a moment and try again.",
		domainauth.FriendlyMessage(err))
	assert.Equal(t, StateSignedOut, h.m.Snapshot().State)
}

func TestMachine_SignUp(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	ctx := context.Background()

	require.NoError(t, h.m.SignUp(ctx, "new@example.com", "password123", " <Ann> "))
	acct, ok := h.source.Accounts["new@example.com"]
	require.True(t, ok)
	assert.Equal(t, "Ann", acct.Metadata[domainauth.MetadataFullName])
	assert.Equal(t, StateSignedOut, h.m.Snapshot().State, "sign-up does not sign in")

	err := h.m.SignUp(ctx, "new@example.com", "password123", "Ann")
	require.ErrorIs(t, err, domainauth.ErrUserAlreadyRegistered)

	var verr *domainauth.ValidationError
	require.ErrorAs(t, h.m.SignUp(ctx, "x@example.com", "short", "Ann"), &verr)
	require.ErrorAs(t, h.m.SignUp(ctx, "x@example.com", "password123", "A"), &verr)
	assert.Equal(t, "Full name must be at least 2 characters", verr.Message)
}

func TestMachine_SignOutIsLocalFirst(t *testing.T) {
	h := newHarness(t)
	h.source.SetSession(session("u1"))
	h.start(t)
	gate := h.resolver.Block()
	defer close(gate)

	// A second identity is being resolved when the user signs out.
	h.clock.Advance(2 * time.Second)
	h.source.Emit(domainauth.EventSignedIn, session("u2"))
	require.True(t, h.m.Snapshot().Resolving)

	h.source.SignOutErr = errors.New("network down")
	err := h.m.SignOut(context.Background())
	require.Error(t, err)

	snap := h.m.Snapshot()
	assert.Equal(t, StateSignedOut, snap.State)
	assert.Nil(t, snap.Profile)
	assert.False(t, snap.Resolving)
	assert.True(t, snap.LastEventAt.IsZero())

	require.NoError(t, h.m.Close())
	assert.Equal(t, []string{"u2"}, h.resolver.Canceled())
}

func TestMachine_SignOutEventAfterLocalSignOutIsHarmless(t *testing.T) {
	h := newHarness(t)
	h.source.SetSession(session("u1"))
	h.start(t)
	version := h.m.Snapshot().Version

	require.NoError(t, h.m.SignOut(context.Background()))
	assert.Equal(t, version+1, h.m.Snapshot().Version, "the SIGNED_OUT echo does not transition again")
	assert.Equal(t, 1, h.source.SignOutCalls)
}

func TestMachine_Refresh(t *testing.T) {
	h := newHarness(t)
	h.source.SetSession(session("u1"))
	h.start(t)
	ctx := context.Background()

	require.NoError(t, h.m.Refresh(ctx))
	assert.Equal(t, []string{"u1"}, h.resolver.Calls(), "same identity is not resolved again")

	h.source.SetSession(session("u2"))
	require.NoError(t, h.m.Refresh(ctx))
	h.wait(t)
	assert.Equal(t, []string{"u1", "u2"}, h.resolver.Calls())
	assert.Equal(t, "u2", h.m.Snapshot().LastResolvedID)

	h.source.SetSession(nil)
	require.NoError(t, h.m.Refresh(ctx))
	assert.Equal(t, StateSignedOut, h.m.Snapshot().State)

	h.source.SessionErr = errors.New("boom")
	require.Error(t, h.m.Refresh(ctx))
}

func TestMachine_RefreshSkipsWhileResolving(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	gate := h.resolver.Block()

	h.source.Emit(domainauth.EventSignedIn, session("u1"))
	h.source.SetSession(session("u2"))
	require.NoError(t, h.m.Refresh(context.Background()))

	close(gate)
	h.wait(t)
	assert.Equal(t, []string{"u1"}, h.resolver.Calls())
}

func TestMachine_FacadeAfterClose(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	require.NoError(t, h.m.Close())

	ctx := context.Background()
	assert.ErrorIs(t, h.m.SignIn(ctx, "u1@example.com", "password123"), ErrClosed)
	assert.ErrorIs(t, h.m.SignOut(ctx), ErrClosed)
	assert.ErrorIs(t, h.m.Refresh(ctx), ErrClosed)
}
