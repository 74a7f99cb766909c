package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fintrack/fintrack-api/config"
	"github.com/fintrack/fintrack-api/internal/adapters/localauth"
	"github.com/fintrack/fintrack-api/internal/adapters/oidc"
	"github.com/fintrack/fintrack-api/internal/ports"
)

// IdentityConfig contains configuration for the identity provider.
type IdentityConfig struct {
	Auth   config.AuthConfig
	IsDev  bool
	Logger *slog.Logger
}

// BuildIdentityProvider creates the identity provider for the configured auth mode.
//
//nolint:ireturn // the concrete provider depends on AUTH_MODE.
func BuildIdentityProvider(ctx context.Context, cfg IdentityConfig) (ports.IdentityProvider, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Auth.Mode {
	case config.AuthModeOIDC:
		return buildOIDCProvider(ctx, cfg.Auth.OIDC, logger)
	case config.AuthModeLocal, "":
		if !cfg.IsDev {
			logger.Warn("local auth mode keeps accounts in memory; use AUTH_MODE=oidc in production")
		}
		return buildLocalProvider(cfg.Auth.Local, logger)
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Auth.Mode)
	}
}

func buildOIDCProvider(ctx context.Context, cfg config.OIDCConfig, logger *slog.Logger) (*oidc.Provider, error) {
	if cfg.DiscoveryURL == "" || cfg.ClientID == "" {
		logger.Error("AuthModeOIDC selected but required config missing",
			"discovery_url_empty", cfg.DiscoveryURL == "",
			"client_id_empty", cfg.ClientID == "",
		)
		return nil, errors.New("oidc auth requires OIDC_DISCOVERY_URL and OIDC_CLIENT_ID")
	}

	prov, err := oidc.NewProvider(ctx, oidc.ProviderConfig{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scope:        cfg.Scope,
		DiscoveryURL: cfg.DiscoveryURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create oidc provider: %w", err)
	}
	logger.Info("identity provider ready", "mode", config.AuthModeOIDC, "discovery_url", cfg.DiscoveryURL)
	return prov, nil
}

func buildLocalProvider(cfg config.LocalAuthConfig, logger *slog.Logger) (*localauth.Provider, error) {
	var seed []localauth.Account
	if cfg.SeedEmail != "" && cfg.SeedPassword != "" {
		seed = append(seed, localauth.Account{
			Email:    cfg.SeedEmail,
			Password: cfg.SeedPassword,
			FullName: cfg.SeedFullName,
		})
	}

	prov, err := localauth.NewProvider(localauth.Config{
		Seed:                seed,
		RequireConfirmation: cfg.RequireConfirmation,
	})
	if err != nil {
		return nil, fmt.Errorf("create local provider: %w", err)
	}
	logger.Info("identity provider ready", "mode", config.AuthModeLocal, "seeded_accounts", len(seed))
	return prov, nil
}
