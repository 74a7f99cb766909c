package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/fintrack/fintrack-api/internal/data/pgxutil"
	domainauth "github.com/fintrack/fintrack-api/internal/domain/auth"
	apperrors "github.com/fintrack/fintrack-api/internal/errors"
	"github.com/fintrack/fintrack-api/internal/ports"
)

var _ ports.ProfileRepository = (*ProfileRepo)(nil)

const profileColumns = `id, email, full_name, role, created_at, updated_at`

const (
	profileGetByIDQuery = `SELECT ` + profileColumns + ` FROM users WHERE id = $1`

	// The CTE returns the inserted row, or the existing one when a concurrent
	// writer created it first.
	profileInsertQuery = `
		WITH ins AS (
			INSERT INTO users (id, email, full_name, role, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING
			RETURNING ` + profileColumns + `
		)
		SELECT ` + profileColumns + ` FROM ins
		UNION ALL
		SELECT ` + profileColumns + ` FROM users WHERE id = $1 AND NOT EXISTS (SELECT 1 FROM ins)`
)

// ProfileRepo provides database operations for the users table.
type ProfileRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewProfileRepo creates a new ProfileRepo with real time provider.
func NewProfileRepo(db *sql.DB) *ProfileRepo {
	return &ProfileRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewProfileRepoWithTimeProvider creates a new ProfileRepo with a custom time provider (useful for tests).
func NewProfileRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *ProfileRepo {
	return &ProfileRepo{DB: db, timeProvider: tp}
}

// GetByID retrieves a profile by identity id.
func (r *ProfileRepo) GetByID(ctx context.Context, id string) (domainauth.Profile, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domainauth.Profile{}, apperrors.Validation("profile id is required")
	}
	p, err := r.queryOne(ctx, profileGetByIDQuery, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domainauth.Profile{}, ports.ErrNotFound
		}
		return domainauth.Profile{}, fmt.Errorf("get profile %s: %w", id, apperrors.MapDBError(err))
	}
	return p, nil
}

// Insert persists p. When a row already exists for p.ID it is returned unchanged.
func (r *ProfileRepo) Insert(ctx context.Context, p domainauth.Profile) (domainauth.Profile, error) {
	if !p.Valid() {
		return domainauth.Profile{}, apperrors.Validation("profile id is required")
	}
	now := r.timeProvider.Now().UTC()
	if p.Role == "" {
		p.Role = domainauth.RoleUser
	}
	if p.FullName == "" {
		p.FullName = domainauth.DefaultFullName
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}

	out, err := r.queryOne(ctx, profileInsertQuery,
		p.ID, strings.TrimSpace(p.Email), p.FullName, string(p.Role), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return domainauth.Profile{}, fmt.Errorf("insert profile %s: %w", p.ID, apperrors.MapDBError(err))
	}
	return out, nil
}

func (r *ProfileRepo) queryOne(ctx context.Context, q string, args ...any) (domainauth.Profile, error) {
	var out domainauth.Profile
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[domainauth.Profile])
		return err
	})
	return out, err
}
