package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fintrack/fintrack-api/config"
	"github.com/fintrack/fintrack-api/internal/adapters/apiclient"
	"github.com/fintrack/fintrack-api/internal/authsync"
	domainauth "github.com/fintrack/fintrack-api/internal/domain/auth"
	"github.com/fintrack/fintrack-api/internal/service"
)

const passwordEnv = "FINTRACK_PASSWORD"

type whoamiOptions struct {
	BaseURL  string
	Email    string
	Password string
	Timeout  time.Duration
	// Keep leaves the session signed in instead of signing out afterwards.
	Keep bool
}

func parseWhoamiFlags(args []string, client config.ClientConfig) (whoamiOptions, error) {
	fs := flag.NewFlagSet("whoami", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	opts := whoamiOptions{}
	fs.StringVar(&opts.BaseURL, "api", client.APIBaseURL, "API base URL")
	fs.StringVar(&opts.Email, "email", "", "account email (required)")
	fs.StringVar(&opts.Password, "password", "", "account password (defaults to $"+passwordEnv+")")
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout, "overall timeout")
	fs.BoolVar(&opts.Keep, "keep", false, "do not sign out when done")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.Password == "" {
		opts.Password = os.Getenv(passwordEnv)
	}
	opts.Email = strings.TrimSpace(opts.Email)
	if opts.Email == "" {
		return opts, errors.New("-email is required")
	}
	if opts.Password == "" {
		return opts, fmt.Errorf("-password or $%s is required", passwordEnv)
	}
	if opts.Timeout <= 0 {
		return opts, errors.New("timeout must be positive")
	}
	return opts, nil
}

func runWhoami(cmdCtx *commandContext, args []string) error {
	opts, err := parseWhoamiFlags(args, cmdCtx.Config.Client)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	p, err := whoami(ctx, whoamiDeps{
		Options:    opts,
		Client:     cmdCtx.Config.Client,
		HTTPClient: &http.Client{Timeout: opts.Timeout},
		commandCtx: cmdCtx,
	})
	if err != nil {
		return err
	}
	return printJSON(cmdCtx.Out, p)
}

type whoamiDeps struct {
	Options    whoamiOptions
	Client     config.ClientConfig
	HTTPClient *http.Client
	commandCtx *commandContext
}

// whoami signs in through the session client and waits for the sync machine
// to settle on a profile.
func whoami(ctx context.Context, deps whoamiDeps) (domainauth.Profile, error) {
	logger := deps.commandCtx.Logger
	api, err := apiclient.New(apiclient.Options{
		BaseURL:    deps.Options.BaseURL,
		HTTPClient: deps.HTTPClient,
		Logger:     logger,
	})
	if err != nil {
		return domainauth.Profile{}, err
	}

	machine := authsync.New(authsync.Options{
		Source: api,
		Resolver: service.NewProfileResolver(service.ProfileResolverOptions{
			Fetcher: api,
			Timeout: deps.Client.ResolveTimeout,
			Logger:  logger,
		}),
		DebounceWindow: deps.Client.DebounceWindow,
		Logger:         logger,
	})
	defer func() {
		if cerr := machine.Close(); cerr != nil {
			logger.Warn("close auth sync machine", "error", cerr)
		}
	}()

	if err := machine.Start(ctx); err != nil {
		logger.Warn("initial session check failed", "error", err)
	}
	if err := machine.SignIn(ctx, deps.Options.Email, deps.Options.Password); err != nil {
		return domainauth.Profile{}, fmt.Errorf("sign in: %s", domainauth.FriendlyMessage(err))
	}
	if err := machine.Wait(ctx); err != nil {
		return domainauth.Profile{}, fmt.Errorf("wait for profile: %w", err)
	}

	p, ok := machine.CurrentProfile()
	if !ok {
		return domainauth.Profile{}, errors.New("signed in but no profile was resolved")
	}

	if !deps.Options.Keep {
		if err := machine.SignOut(ctx); err != nil {
			logger.Warn("sign out failed", "error", err)
		}
	}
	return p, nil
}
