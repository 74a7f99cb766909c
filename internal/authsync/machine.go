// Package authsync keeps the client's current profile in step with the
// session store. It filters and debounces auth state events and runs at most
// one profile resolution at a time.
package authsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	domainauth "github.com/fintrack/fintrack-api/internal/domain/auth"
	"github.com/fintrack/fintrack-api/internal/observability/metrics"
	"github.com/fintrack/fintrack-api/internal/observability/statsd"
	"github.com/fintrack/fintrack-api/internal/ports"
)

// DefaultDebounceWindow collapses the duplicate events a session store emits
// for one logical transition.
const DefaultDebounceWindow = time.Second

var (
	ErrAlreadyStarted = errors.New("authsync: machine already started")
	ErrClosed         = errors.New("authsync: machine closed")
)

// Resolver turns an identity into a profile. It must always return a usable
// profile and should honour ctx cancellation.
type Resolver interface {
	Resolve(ctx context.Context, id domainauth.Identity) domainauth.Profile
}

// Options configures a Machine.
type Options struct {
	Source   ports.SessionSource
	Resolver Resolver
	// DebounceWindow drops events arriving sooner than this after the last
	// accepted one. Zero disables debouncing.
	DebounceWindow time.Duration
	Metrics        statsd.Sink
	Logger         *slog.Logger
	Now            func() time.Time
}

// Machine owns the single in-memory current profile.
//
// All guards live behind mu. Observers are notified outside mu, in
// increasing Version order; a slow observer may see intermediate versions
// coalesced. Observers must not call SignIn, SignOut, Refresh or HandleEvent
// synchronously.
type Machine struct {
	source   ports.SessionSource
	resolver Resolver
	debounce time.Duration
	metrics  statsd.Sink
	logger   *slog.Logger
	now      func() time.Time

	baseCtx    context.Context
	baseCancel context.CancelFunc
	tasks      sync.WaitGroup

	mu             sync.Mutex
	state          State
	initialized    bool
	closed         bool
	profile        *domainauth.Profile
	resolvingID    string
	lastResolvedID string
	lastEventAt    time.Time
	version        uint64
	// generation tags each resolution; a result whose generation is no longer
	// current is discarded.
	generation  uint64
	cancelTask  context.CancelFunc
	taskDone    chan struct{}
	unsubscribe func()
	observers   map[uint64]func(Snapshot)
	nextObsID   uint64

	notifyMu  sync.Mutex
	delivered uint64
}

// New builds a Machine in the Uninitialized state.
func New(opts Options) *Machine {
	if opts.Source == nil || opts.Resolver == nil {
		panic("authsync.New: Source and Resolver are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	debounce := opts.DebounceWindow
	if debounce < 0 {
		debounce = 0
	}
	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &Machine{
		source:     opts.Source,
		resolver:   opts.Resolver,
		debounce:   debounce,
		metrics:    opts.Metrics,
		logger:     logger.With("component", "authsync"),
		now:        now,
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		state:      StateUninitialized,
		observers:  make(map[uint64]func(Snapshot)),
	}
}

// Start subscribes to the session source and performs the initial session
// check. With a session it waits for the initial resolution; otherwise the
// machine lands in SignedOut. A failed session check also lands in SignedOut
// and is returned.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state != StateUninitialized {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.transitionLocked(StateInitializing)
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.notify(snap)

	unsubscribe := m.source.OnAuthStateChange(m.onAuthStateChange)

	sess, err := m.source.GetSession(ctx)
	if err != nil {
		m.logger.WarnContext(ctx, "initial session check failed", "error", err)
		err = fmt.Errorf("initial session check: %w", err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		unsubscribe()
		return ErrClosed
	}
	m.unsubscribe = unsubscribe

	if m.state != StateInitializing {
		// A local sign-out landed while the check was in flight.
		m.initialized = true
		m.mu.Unlock()
		return err
	}

	if err != nil || sess == nil || sess.Identity.ID == "" {
		m.initialized = true
		m.transitionLocked(StateSignedOut)
		snap = m.snapshotLocked()
		m.mu.Unlock()
		m.notify(snap)
		m.logger.InfoContext(ctx, "auth initialized", "signed_in", false)
		return err
	}

	m.initialized = true
	done := m.startResolutionLocked(sess.Identity)
	snap = m.snapshotLocked()
	m.mu.Unlock()
	m.notify(snap)

	select {
	case <-done:
		m.mu.Lock()
		signedIn := m.state == StateIdle && m.lastResolvedID == sess.Identity.ID
		m.mu.Unlock()
		if signedIn {
			m.logger.InfoContext(ctx, "auth initialized", "signed_in", true, "user_id", sess.Identity.ID)
		} else {
			m.logger.InfoContext(ctx, "auth initialized", "signed_in", false)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleEvent applies one auth state event. Events that arrive before the
// initial session check returns are dropped and do not touch the debounce
// clock, except SIGNED_OUT, which always applies once Start has been called.
func (m *Machine) HandleEvent(kind domainauth.EventKind, id *domainauth.Identity) {
	m.mu.Lock()
	outcome, changed := m.handleLocked(kind, id)
	snap := m.snapshotLocked()
	m.mu.Unlock()

	metrics.EmitSyncEvent(m.metrics, string(kind), outcome)
	if outcome != metrics.SyncAccepted {
		m.logger.Debug("auth event not applied", "event", kind, "outcome", outcome)
	}
	if changed {
		m.notify(snap)
	}
}

func (m *Machine) handleLocked(kind domainauth.EventKind, id *domainauth.Identity) (outcome string, changed bool) {
	if m.closed || m.state == StateUninitialized {
		return metrics.SyncDropped, false
	}
	if !m.initialized && kind != domainauth.EventSignedOut {
		return metrics.SyncDropped, false
	}

	now := m.now()
	if m.debounce > 0 && !m.lastEventAt.IsZero() && now.Sub(m.lastEventAt) < m.debounce {
		return metrics.SyncDebounced, false
	}
	m.lastEventAt = now

	switch kind {
	case domainauth.EventSignedOut:
		return metrics.SyncAccepted, m.signOutLocked()
	case domainauth.EventSignedIn:
		switch {
		case id == nil || id.ID == "":
			return metrics.SyncIgnored, false
		case m.resolvingID != "":
			return metrics.SyncIgnored, false
		case id.ID == m.lastResolvedID:
			return metrics.SyncIgnored, false
		}
		m.startResolutionLocked(*id)
		return metrics.SyncAccepted, true
	default:
		// TOKEN_REFRESHED for the resolved identity, INITIAL_SESSION and
		// USER_UPDATED never transition.
		return metrics.SyncIgnored, false
	}
}

// CurrentProfile returns the last resolved profile. It never blocks on a
// resolution.
func (m *Machine) CurrentProfile() (domainauth.Profile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.profile == nil {
		return domainauth.Profile{}, false
	}
	return *m.profile, true
}

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Subscribe registers fn for every subsequent transition.
func (m *Machine) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextObsID
	m.nextObsID++
	m.observers[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.observers, id)
		})
	}
}

// Wait blocks until no resolution is in flight.
func (m *Machine) Wait(ctx context.Context) error {
	for {
		m.mu.Lock()
		done, resolving := m.taskDone, m.resolvingID != ""
		m.mu.Unlock()
		if !resolving || done == nil {
			return nil
		}
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close unsubscribes from the session source, cancels any in-flight
// resolution and waits for it to exit.
func (m *Machine) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	if m.cancelTask != nil {
		m.cancelTask()
	}
	m.observers = make(map[uint64]func(Snapshot))
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	m.baseCancel()
	m.tasks.Wait()
	return nil
}

func (m *Machine) onAuthStateChange(kind domainauth.EventKind, sess *domainauth.Session) {
	var id *domainauth.Identity
	if sess != nil {
		cp := sess.Identity
		id = &cp
	}
	m.HandleEvent(kind, id)
}

// startResolutionLocked launches the single resolution task for id.
func (m *Machine) startResolutionLocked(id domainauth.Identity) <-chan struct{} {
	m.generation++
	gen := m.generation

	ctx, cancel := context.WithCancel(m.baseCtx)
	done := make(chan struct{})
	m.cancelTask = cancel
	m.taskDone = done
	m.resolvingID = id.ID
	m.transitionLocked(StateResolving)

	m.tasks.Add(1)
	go func() {
		defer m.tasks.Done()
		defer close(done)
		defer cancel()

		start := m.now()
		p := m.resolver.Resolve(ctx, id)
		m.finishResolution(gen, id.ID, p, m.now().Sub(start))
	}()
	return done
}

func (m *Machine) finishResolution(gen uint64, idID string, p domainauth.Profile, took time.Duration) {
	m.mu.Lock()
	if gen != m.generation || m.resolvingID != idID || m.closed {
		m.mu.Unlock()
		m.logger.Debug("discarding stale resolution", "user_id", idID)
		return
	}

	m.profile = &p
	m.lastResolvedID = idID
	m.resolvingID = ""
	m.cancelTask = nil
	m.transitionLocked(StateIdle)
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.logger.Debug("profile resolved", "user_id", idID, "duration", took)
	m.notify(snap)
}

// signOutLocked cancels any in-flight task and clears the profile and guards.
// It reports whether anything changed.
func (m *Machine) signOutLocked() bool {
	if m.state == StateSignedOut && m.profile == nil && m.resolvingID == "" && m.lastResolvedID == "" {
		return false
	}
	if m.cancelTask != nil {
		m.cancelTask()
		m.cancelTask = nil
	}
	m.generation++
	m.resolvingID = ""
	m.profile = nil
	m.lastResolvedID = ""
	m.transitionLocked(StateSignedOut)
	return true
}

func (m *Machine) transitionLocked(s State) {
	m.state = s
	m.version++
}

func (m *Machine) snapshotLocked() Snapshot {
	s := Snapshot{
		State:          m.state,
		Resolving:      m.resolvingID != "",
		ResolvingID:    m.resolvingID,
		LastResolvedID: m.lastResolvedID,
		LastEventAt:    m.lastEventAt,
		Version:        m.version,
	}
	if m.profile != nil {
		p := *m.profile
		s.Profile = &p
	}
	return s
}

// notify delivers snap unless a newer version was already delivered.
func (m *Machine) notify(snap Snapshot) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	if snap.Version <= m.delivered {
		return
	}
	m.delivered = snap.Version

	m.mu.Lock()
	obs := make([]func(Snapshot), 0, len(m.observers))
	for _, fn := range m.observers {
		obs = append(obs, fn)
	}
	m.mu.Unlock()

	for _, fn := range obs {
		fn(snap)
	}
}
