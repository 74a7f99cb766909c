package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	domainauth "github.com/fintrack/fintrack-api/internal/domain/auth"
	"github.com/fintrack/fintrack-api/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.IdentityProvider = (*StaticIdentityProvider)(nil)
	_ ports.SessionStore     = (*MemorySessionStore)(nil)
	_ ports.SessionSource    = (*FakeSessionSource)(nil)
	_ ports.RateLimiter      = (*CountingRateLimiter)(nil)
)

// ErrNotFound is returned by doubles when an entity is not present.
var ErrNotFound = ports.ErrNotFound

// StaticIdentityProvider accepts a fixed set of email/password pairs.
type StaticIdentityProvider struct {
	AuthenticateFunc func(ctx context.Context, email, password string) (domainauth.Identity, error)
	RegisterFunc     func(ctx context.Context, email, password string, metadata map[string]any) (domainauth.Identity, error)

	mu       sync.Mutex
	accounts map[string]staticAccount
}

type staticAccount struct {
	password string
	identity domainauth.Identity
}

// NewStaticIdentityProvider creates a provider with no accounts.
func NewStaticIdentityProvider() *StaticIdentityProvider {
	return &StaticIdentityProvider{accounts: make(map[string]staticAccount)}
}

// AddAccount registers an identity reachable with password.
func (p *StaticIdentityProvider) AddAccount(id domainauth.Identity, password string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.accounts == nil {
		p.accounts = make(map[string]staticAccount)
	}
	p.accounts[strings.ToLower(id.Email)] = staticAccount{password: password, identity: id}
}

func (p *StaticIdentityProvider) Authenticate(ctx context.Context, email, password string) (domainauth.Identity, error) {
	if p.AuthenticateFunc != nil {
		return p.AuthenticateFunc(ctx, email, password)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	acct, ok := p.accounts[strings.ToLower(email)]
	if !ok || acct.password != password {
		return domainauth.Identity{}, domainauth.ErrInvalidCredentials
	}
	id := acct.identity
	id.IssuedAt = time.Now()
	return id, nil
}

func (p *StaticIdentityProvider) Register(ctx context.Context, email, password string, metadata map[string]any) (domainauth.Identity, error) {
	if p.RegisterFunc != nil {
		return p.RegisterFunc(ctx, email, password, metadata)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	key := strings.ToLower(email)
	if _, exists := p.accounts[key]; exists {
		return domainauth.Identity{}, domainauth.ErrUserAlreadyRegistered
	}
	id := domainauth.Identity{ID: "user-" + key, Email: email, Metadata: metadata, CreatedAt: time.Now()}
	if p.accounts == nil {
		p.accounts = make(map[string]staticAccount)
	}
	p.accounts[key] = staticAccount{password: password, identity: id}
	return id, nil
}

// MemorySessionStore is an in-memory session store for unit tests.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]domainauth.Session),
	}
}

func (m *MemorySessionStore) Save(_ context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if id == "" || !ok {
		return domainauth.Session{}, ErrNotFound
	}
	return sess, nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Len returns the number of stored sessions.
func (m *MemorySessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// FakeSessionSource is a scriptable client-side session store.
// Sign-in and sign-out emit events synchronously to registered listeners.
type FakeSessionSource struct {
	mu        sync.Mutex
	session   *domainauth.Session
	listeners map[int]ports.AuthStateListener
	nextID    int

	// Accounts maps email to identity for SignInWithPassword. Password is not checked
	// unless SignInErr is set.
	Accounts   map[string]domainauth.Identity
	SignInErr  error
	SignUpErr  error
	SignOutErr error
	SessionErr error

	SignInCalls  int
	SignOutCalls int
}

// NewFakeSessionSource creates a signed-out source.
func NewFakeSessionSource() *FakeSessionSource {
	return &FakeSessionSource{
		listeners: make(map[int]ports.AuthStateListener),
		Accounts:  make(map[string]domainauth.Identity),
	}
}

// SetSession replaces the current session without emitting an event.
func (f *FakeSessionSource) SetSession(sess *domainauth.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session = sess
}

// Emit delivers an event to every listener.
func (f *FakeSessionSource) Emit(kind domainauth.EventKind, sess *domainauth.Session) {
	f.mu.Lock()
	ls := make([]ports.AuthStateListener, 0, len(f.listeners))
	for _, l := range f.listeners {
		ls = append(ls, l)
	}
	f.mu.Unlock()
	for _, l := range ls {
		l(kind, sess)
	}
}

// ListenerCount reports how many listeners are registered.
func (f *FakeSessionSource) ListenerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

func (f *FakeSessionSource) GetSession(_ context.Context) (*domainauth.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SessionErr != nil {
		return nil, f.SessionErr
	}
	if f.session == nil {
		return nil, nil
	}
	s := *f.session
	return &s, nil
}

func (f *FakeSessionSource) SignInWithPassword(_ context.Context, email, _ string) error {
	f.mu.Lock()
	f.SignInCalls++
	if f.SignInErr != nil {
		err := f.SignInErr
		f.mu.Unlock()
		return err
	}
	id, ok := f.Accounts[email]
	if !ok {
		f.mu.Unlock()
		return domainauth.ErrInvalidCredentials
	}
	sess := &domainauth.Session{ID: "sess-" + id.ID, Identity: id, ExpiresAt: time.Now().Add(time.Hour)}
	f.session = sess
	f.mu.Unlock()

	f.Emit(domainauth.EventSignedIn, sess)
	return nil
}

func (f *FakeSessionSource) SignUp(_ context.Context, email, _ string, metadata map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SignUpErr != nil {
		return f.SignUpErr
	}
	if _, exists := f.Accounts[email]; exists {
		return domainauth.ErrUserAlreadyRegistered
	}
	f.Accounts[email] = domainauth.Identity{ID: "user-" + email, Email: email, Metadata: metadata}
	return nil
}

func (f *FakeSessionSource) SignOut(_ context.Context) error {
	f.mu.Lock()
	f.SignOutCalls++
	if f.SignOutErr != nil {
		err := f.SignOutErr
		f.mu.Unlock()
		return err
	}
	f.session = nil
	f.mu.Unlock()

	f.Emit(domainauth.EventSignedOut, nil)
	return nil
}

func (f *FakeSessionSource) OnAuthStateChange(l ports.AuthStateListener) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = l
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

// CountingRateLimiter allows the first Max hits per identifier and never expires.
type CountingRateLimiter struct {
	Max int
	Err error

	mu     sync.Mutex
	counts map[string]int
}

func (c *CountingRateLimiter) Allow(_ context.Context, identifier string) (bool, error) {
	if c.Err != nil {
		return false, c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[identifier]++
	return c.counts[identifier] <= c.Max, nil
}

func (c *CountingRateLimiter) Reset(_ context.Context, identifier string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counts, identifier)
	return nil
}
