package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fintrack/fintrack-api/config"
	"github.com/fintrack/fintrack-api/internal/bootstrap"
	"github.com/fintrack/fintrack-api/internal/data"
	"github.com/fintrack/fintrack-api/internal/migrate"
	"github.com/fintrack/fintrack-api/internal/ports"
)

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultCommandTimeout   = 30 * time.Second
)

type migrateOptions struct {
	Timeout time.Duration
	DryRun  bool
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	opts := migrateOptions{}
	fs.DurationVar(&opts.Timeout, "timeout", defaultMigrationTimeout, "maximum time to wait for migrations")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "list pending migrations without applying them")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.Timeout <= 0 {
		return opts, errors.New("timeout must be positive")
	}
	return opts, nil
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(ctx, bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	if opts.DryRun {
		pending, pendErr := migrate.Pending(ctx, db)
		if pendErr != nil {
			return fmt.Errorf("list pending migrations: %w", pendErr)
		}
		if len(pending) == 0 {
			return writef(cmdCtx.Out, "no pending migrations\n")
		}
		return writef(cmdCtx.Out, "pending: %s\n", strings.Join(pending, ", "))
	}

	cmdCtx.Logger.Info("running database migrations")
	if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
		return migrateErr
	}
	cmdCtx.Logger.Info("migrations completed successfully")
	return nil
}

type profileGetOptions struct {
	ID string
}

func parseProfileGetFlags(args []string) (profileGetOptions, error) {
	fs := flag.NewFlagSet("profile-get", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	opts := profileGetOptions{}
	fs.StringVar(&opts.ID, "id", "", "user id (required)")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	opts.ID = strings.TrimSpace(opts.ID)
	if opts.ID == "" {
		return opts, errors.New("-id is required")
	}
	return opts, nil
}

func runProfileGet(cmdCtx *commandContext, args []string) error {
	opts, err := parseProfileGetFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(ctx, bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	p, err := data.NewProfileRepo(db).GetByID(ctx, opts.ID)
	if errors.Is(err, ports.ErrNotFound) {
		return fmt.Errorf("no profile for id %s", opts.ID)
	}
	if err != nil {
		return fmt.Errorf("get profile: %w", err)
	}
	return printJSON(cmdCtx.Out, p)
}

type rateLimitResetOptions struct {
	Identifier string
	Scope      string
}

func parseRateLimitResetFlags(args []string) (rateLimitResetOptions, error) {
	fs := flag.NewFlagSet("rate-limit-reset", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	opts := rateLimitResetOptions{}
	fs.StringVar(&opts.Identifier, "identifier", "", "identifier whose window to clear (required)")
	fs.StringVar(&opts.Scope, "scope", "auth", "limiter to reset: auth, signin or api")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	opts.Identifier = strings.TrimSpace(opts.Identifier)
	if opts.Identifier == "" {
		return opts, errors.New("-identifier is required")
	}
	switch opts.Scope {
	case "auth", "api":
	case "signin":
		// Sign-in attempts share the auth limiter under a prefixed key.
		opts.Identifier = "signin:" + strings.ToLower(opts.Identifier)
		opts.Scope = "auth"
	default:
		return opts, fmt.Errorf("unknown scope %q (valid: auth, signin, api)", opts.Scope)
	}
	return opts, nil
}

func runRateLimitReset(cmdCtx *commandContext, args []string) error {
	opts, err := parseRateLimitResetFlags(args)
	if err != nil {
		return err
	}
	if cmdCtx.Config.RateLimit.Backend == config.RateLimitBackendMemory {
		return errors.New("memory rate limit backend lives in the server process; restart it to clear windows")
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	client, err := bootstrap.ConnectRedis(ctx, bootstrap.DatabaseConfig{
		RedisConfig: cmdCtx.Config.Redis,
		Logger:      cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer closeRedis(cmdCtx, client)

	limiters, err := bootstrap.BuildLimiters(cmdCtx.Config.RateLimit, client)
	if err != nil {
		return err
	}
	limiter := limiters.Auth
	if opts.Scope == "api" {
		limiter = limiters.API
	}
	if err := limiter.Reset(ctx, opts.Identifier); err != nil {
		return fmt.Errorf("reset %s limiter: %w", opts.Scope, err)
	}
	return writef(cmdCtx.Out, "cleared %s window for %s\n", opts.Scope, opts.Identifier)
}

func closeRedis(cmdCtx *commandContext, client redis.UniversalClient) {
	if err := client.Close(); err != nil {
		cmdCtx.Logger.Warn("redis close failed", "error", err)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
