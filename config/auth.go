package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthMode selects the identity provider backing sign-in and sign-up.
type AuthMode string

const (
	// AuthModeOIDC authenticates against an OIDC provider using the password grant.
	AuthModeOIDC AuthMode = "oidc"
	// AuthModeLocal uses an in-process account store (for development only).
	AuthModeLocal AuthMode = "local"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "oidc", "local":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: oidc, local)", v)
	}
}

// OIDCConfig contains OIDC provider configuration.
type OIDCConfig struct {
	ClientID     string `env:"CLIENT_ID"     envDefault:"fintrack"`
	ClientSecret string `env:"CLIENT_SECRET"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
}

// LocalAuthConfig controls the development account store.
// Used when AUTH_MODE=local.
type LocalAuthConfig struct {
	// SeedEmail and SeedPassword create one account at startup when both are set.
	SeedEmail    string `env:"SEED_EMAIL"     envDefault:"dev@example.com"`
	SeedPassword string `env:"SEED_PASSWORD"`
	SeedFullName string `env:"SEED_FULL_NAME" envDefault:"Dev User"`

	// RequireConfirmation rejects sign-in for accounts created through sign-up
	// until they are confirmed, mirroring hosted backends with email confirmation.
	RequireConfirmation bool `env:"REQUIRE_CONFIRMATION" envDefault:"false"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which identity provider to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"local"`

	OIDC  OIDCConfig      `envPrefix:"OIDC_"`
	Local LocalAuthConfig `envPrefix:"LOCAL_AUTH_"`

	// SessionTTL is how long a server-side session lives; refresh extends it.
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"1h"`

	// ProfileLookupTimeout bounds the server-side users table lookup.
	ProfileLookupTimeout time.Duration `env:"PROFILE_LOOKUP_TIMEOUT" envDefault:"5s"`
}

// Sanitize applies guardrails to auth configuration values.
func (a *AuthConfig) Sanitize() {
	if a.SessionTTL <= 0 {
		a.SessionTTL = time.Hour
	}
	if a.ProfileLookupTimeout <= 0 {
		a.ProfileLookupTimeout = 5 * time.Second
	}
	a.OIDC.DiscoveryURL = strings.TrimSpace(a.OIDC.DiscoveryURL)
	a.Local.SeedEmail = strings.TrimSpace(a.Local.SeedEmail)
}
