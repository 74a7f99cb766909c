package config

import (
	"strings"
	"time"
)

// ClientConfig configures the session client and the profile synchronization
// machine that runs on top of it.
type ClientConfig struct {
	// APIBaseURL is the fintrack API the client signs in against.
	APIBaseURL string `env:"API_BASE_URL" envDefault:"http://localhost:8080"`

	// DebounceWindow collapses duplicate auth events emitted for one transition.
	DebounceWindow time.Duration `env:"DEBOUNCE_WINDOW" envDefault:"1s"`

	// ResolveTimeout bounds the client-side profile fetch.
	ResolveTimeout time.Duration `env:"RESOLVE_TIMEOUT" envDefault:"3s"`

	// RefreshInterval controls background session refresh; zero disables it.
	RefreshInterval time.Duration `env:"REFRESH_INTERVAL" envDefault:"45m"`
}

// Sanitize applies guardrails to client configuration values.
func (c *ClientConfig) Sanitize() {
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	if c.APIBaseURL == "" {
		c.APIBaseURL = "http://localhost:8080"
	}
	if c.DebounceWindow < 0 {
		c.DebounceWindow = 0
	}
	if c.ResolveTimeout <= 0 {
		c.ResolveTimeout = 3 * time.Second
	}
	if c.RefreshInterval < 0 {
		c.RefreshInterval = 0
	}
}
