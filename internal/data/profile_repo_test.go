package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/fintrack/fintrack-api/internal/domain/auth"
	apperrors "github.com/fintrack/fintrack-api/internal/errors"
	"github.com/fintrack/fintrack-api/internal/ports"
	"github.com/fintrack/fintrack-api/internal/testutil"
)

func TestProfileRepo_InsertAndGet(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	repo := NewProfileRepoWithTimeProvider(db, NewFixedTimeProvider(now))

	_, err := repo.GetByID(ctx, "u1")
	require.ErrorIs(t, err, ports.ErrNotFound)

	created, err := repo.Insert(ctx, domainauth.Profile{ID: "u1", Email: "a@b.com", FullName: "Ann"})
	require.NoError(t, err)
	assert.Equal(t, "u1", created.ID)
	assert.Equal(t, domainauth.RoleUser, created.Role)
	assert.True(t, created.CreatedAt.Equal(now))

	got, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.FullName)
	assert.Equal(t, "a@b.com", got.Email)
}

func TestProfileRepo_InsertExistingReturnsStoredRow(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	repo := NewProfileRepo(db)

	_, err := repo.Insert(ctx, domainauth.Profile{ID: "u2", Email: "first@b.com", FullName: "First", Role: domainauth.RoleAdmin})
	require.NoError(t, err)

	again, err := repo.Insert(ctx, domainauth.Profile{ID: "u2", Email: "second@b.com", FullName: "Second"})
	require.NoError(t, err)
	assert.Equal(t, "First", again.FullName)
	assert.Equal(t, domainauth.RoleAdmin, again.Role)
}

func TestProfileRepo_RejectsEmptyID(t *testing.T) {
	repo := NewProfileRepo(nil)

	_, err := repo.GetByID(context.Background(), " ")
	assert.True(t, apperrors.IsValidation(err))

	_, err = repo.Insert(context.Background(), domainauth.Profile{})
	assert.True(t, apperrors.IsValidation(err))
}

func TestProfileRepo_InvalidRoleIsValidationError(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewProfileRepo(db)

	_, err := repo.Insert(context.Background(), domainauth.Profile{ID: "u3", Email: "x@b.com", Role: "owner"})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}
