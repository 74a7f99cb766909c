package localauth

// Package localauth provides an in-process IdentityProvider backed by bcrypt
// password hashes. It is meant for local development and single-node demos.

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	domainauth "github.com/fintrack/fintrack-api/internal/domain/auth"
	"github.com/fintrack/fintrack-api/internal/ports"
)

var _ ports.IdentityProvider = (*Provider)(nil)

// Account seeds a confirmed account at construction time.
type Account struct {
	Email    string
	Password string
	FullName string
}

// Config controls the local provider behavior.
type Config struct {
	Seed []Account
	// RequireConfirmation makes accounts created by Register unusable until Confirm is called.
	RequireConfirmation bool
	// Cost is the bcrypt cost; defaults to bcrypt.DefaultCost.
	Cost int
	Now  func() time.Time
}

type account struct {
	identity  domainauth.Identity
	hash      []byte
	confirmed bool
}

// Provider implements ports.IdentityProvider with an in-memory account table.
type Provider struct {
	mu       sync.RWMutex
	accounts map[string]*account
	confirm  bool
	cost     int
	now      func() time.Time
}

// NewProvider constructs a local provider and hashes the seed accounts.
func NewProvider(cfg Config) (*Provider, error) {
	cost := cfg.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	p := &Provider{
		accounts: make(map[string]*account),
		confirm:  cfg.RequireConfirmation,
		cost:     cost,
		now:      now,
	}
	for _, a := range cfg.Seed {
		if strings.TrimSpace(a.Email) == "" || a.Password == "" {
			return nil, errors.New("local auth: seed account requires email and password")
		}
		var meta map[string]any
		if a.FullName != "" {
			meta = map[string]any{domainauth.MetadataFullName: a.FullName}
		}
		acct, err := p.newAccount(a.Email, a.Password, meta)
		if err != nil {
			return nil, fmt.Errorf("local auth: seed %s: %w", a.Email, err)
		}
		acct.confirmed = true
		p.accounts[normalizeEmail(a.Email)] = acct
	}
	return p, nil
}

// Authenticate verifies the password against the stored bcrypt hash.
func (p *Provider) Authenticate(_ context.Context, email, password string) (domainauth.Identity, error) {
	p.mu.RLock()
	acct, ok := p.accounts[normalizeEmail(email)]
	p.mu.RUnlock()
	if !ok {
		// Burn comparable time so unknown emails are not distinguishable.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return domainauth.Identity{}, domainauth.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acct.hash, []byte(password)); err != nil {
		return domainauth.Identity{}, domainauth.ErrInvalidCredentials
	}

	p.mu.RLock()
	confirmed := acct.confirmed
	id := acct.identity
	p.mu.RUnlock()
	if p.confirm && !confirmed {
		return domainauth.Identity{}, domainauth.ErrEmailNotConfirmed
	}
	id.IssuedAt = p.now()
	return id, nil
}

// Register creates an account. With RequireConfirmation it cannot sign in until confirmed.
func (p *Provider) Register(_ context.Context, email, password string, metadata map[string]any) (domainauth.Identity, error) {
	key := normalizeEmail(email)
	if key == "" || password == "" {
		return domainauth.Identity{}, errors.New("email and password are required")
	}
	acct, err := p.newAccount(email, password, metadata)
	if err != nil {
		return domainauth.Identity{}, err
	}
	acct.confirmed = !p.confirm

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.accounts[key]; exists {
		return domainauth.Identity{}, domainauth.ErrUserAlreadyRegistered
	}
	p.accounts[key] = acct
	return acct.identity, nil
}

// Confirm marks an account as confirmed.
func (p *Provider) Confirm(email string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	acct, ok := p.accounts[normalizeEmail(email)]
	if !ok {
		return fmt.Errorf("account %s: %w", email, ports.ErrNotFound)
	}
	acct.confirmed = true
	return nil
}

func (p *Provider) newAccount(email, password string, metadata map[string]any) (*account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	meta := make(map[string]any, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	return &account{
		identity: domainauth.Identity{
			ID:        uuid.NewString(),
			Email:     strings.TrimSpace(email),
			Metadata:  meta,
			CreatedAt: p.now().UTC(),
		},
		hash: hash,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// dummyHash is compared against when the email is unknown.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("fintrack-placeholder"), bcrypt.MinCost)
