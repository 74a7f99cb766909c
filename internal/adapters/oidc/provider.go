package oidc

// Package oidc provides an IdentityProvider that signs users in against an
// OIDC provider with the resource owner password grant.

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	domainauth "github.com/fintrack/fintrack-api/internal/domain/auth"
	"github.com/fintrack/fintrack-api/internal/ports"
)

var _ ports.IdentityProvider = (*Provider)(nil)

// Provider implements ports.IdentityProvider using OIDC/OAuth2.
type Provider struct {
	config     *oauth2.Config
	httpClient *http.Client

	oidcProvider *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier
}

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	Scope        string
	DiscoveryURL string
	HTTPClient   *http.Client // Optional, defaults to a client with a 30s timeout
}

// DiscoveryDocument represents the OIDC discovery document.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	JwksURI               string `json:"jwks_uri"`
}

// NewProvider creates a new OIDC provider. It performs discovery once.
func NewProvider(ctx context.Context, config ProviderConfig) (*Provider, error) {
	if config.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if config.DiscoveryURL == "" {
		return nil, errors.New("discovery URL is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	issuer := strings.TrimSuffix(config.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	op, err := gooidc.NewProvider(gooidc.ClientContext(ctx, httpClient), issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}

	return &Provider{
		httpClient:   httpClient,
		oidcProvider: op,
		verifier:     op.Verifier(&gooidc.Config{ClientID: config.ClientID}),
		config: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Scopes:       strings.Fields(config.Scope),
			Endpoint:     op.Endpoint(),
		},
	}, nil
}

// Authenticate exchanges email/password for tokens and maps the claims to an Identity.
func (p *Provider) Authenticate(ctx context.Context, email, password string) (domainauth.Identity, error) {
	if email == "" || password == "" {
		return domainauth.Identity{}, domainauth.ErrInvalidCredentials
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	token, err := p.config.PasswordCredentialsToken(ctx, email, password)
	if err != nil {
		return domainauth.Identity{}, mapTokenError(err)
	}

	f, err := p.extractFromIDToken(ctx, token)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("extract id_token: %w", err)
	}
	if f.subject == "" || f.email == "" || f.name == "" {
		if fillErr := p.fillFromUserInfo(ctx, token, &f); fillErr != nil && (f.subject == "" || f.email == "") {
			return domainauth.Identity{}, fmt.Errorf("get user info: %w", fillErr)
		}
	}
	if f.subject == "" {
		return domainauth.Identity{}, errors.New("identity provider returned no subject")
	}

	id := domainauth.Identity{
		ID:       f.subject,
		Email:    firstNonEmpty(f.email, email),
		IssuedAt: f.issuedAt,
	}
	if id.IssuedAt.IsZero() {
		id.IssuedAt = time.Now()
	}
	if f.name != "" {
		id.Metadata = map[string]any{domainauth.MetadataFullName: f.name}
	}
	return id, nil
}

// Register is not offered by OIDC providers; accounts are managed at the IdP.
func (p *Provider) Register(context.Context, string, string, map[string]any) (domainauth.Identity, error) {
	return domainauth.Identity{}, domainauth.ErrSignUpUnsupported
}

func mapTokenError(err error) error {
	var rerr *oauth2.RetrieveError
	if !errors.As(err, &rerr) {
		return fmt.Errorf("password grant: %w", err)
	}
	desc := strings.ToLower(rerr.ErrorDescription)
	switch {
	case rerr.Response != nil && rerr.Response.StatusCode == http.StatusTooManyRequests:
		return domainauth.ErrRateLimited
	case strings.Contains(desc, "not verified"), strings.Contains(desc, "not confirmed"), strings.Contains(desc, "not fully set up"):
		return domainauth.ErrEmailNotConfirmed
	case rerr.ErrorCode == "invalid_grant":
		return domainauth.ErrInvalidCredentials
	default:
		return fmt.Errorf("password grant: %w", err)
	}
}

type idFields struct {
	subject  string
	email    string
	name     string
	issuedAt time.Time
}

// idTokenClaims covers the standard OIDC claims we read.
type idTokenClaims struct {
	Sub        string `json:"sub"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

func (c idTokenClaims) displayName() string {
	if c.Name != "" {
		return c.Name
	}
	return strings.TrimSpace(c.GivenName + " " + c.FamilyName)
}

func (p *Provider) extractFromIDToken(ctx context.Context, tok *oauth2.Token) (idFields, error) {
	var f idFields
	if !p.hasOpenIDScope() {
		return f, nil
	}
	rawID, ok := tok.Extra("id_token").(string)
	if !ok || rawID == "" {
		return f, errors.New("missing id_token in token response")
	}
	idTok, err := p.verifier.Verify(ctx, rawID)
	if err != nil {
		return f, fmt.Errorf("verify id_token: %w", err)
	}
	var claims idTokenClaims
	if err := idTok.Claims(&claims); err != nil {
		return f, fmt.Errorf("parse id_token claims: %w", err)
	}
	f.subject = firstNonEmpty(claims.Sub, idTok.Subject)
	f.email = claims.Email
	f.name = claims.displayName()
	f.issuedAt = idTok.IssuedAt
	return f, nil
}

func (p *Provider) fillFromUserInfo(ctx context.Context, tok *oauth2.Token, f *idFields) error {
	ui, err := p.oidcProvider.UserInfo(ctx, oauth2.StaticTokenSource(tok))
	if err != nil {
		return fmt.Errorf("fetch user info: %w", err)
	}
	var claims idTokenClaims
	if err := ui.Claims(&claims); err != nil {
		return fmt.Errorf("decode user info: %w", err)
	}
	if f.subject == "" {
		f.subject = firstNonEmpty(claims.Sub, ui.Subject)
	}
	if f.email == "" {
		f.email = firstNonEmpty(claims.Email, ui.Email)
	}
	if f.name == "" {
		f.name = claims.displayName()
	}
	return nil
}

// hasOpenIDScope reports whether the configured scopes include "openid".
func (p *Provider) hasOpenIDScope() bool {
	for _, sc := range p.config.Scopes {
		if sc == "openid" {
			return true
		}
	}
	return false
}

// firstNonEmpty returns the first non-empty string from vals, or empty string if none.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
