package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFallbackProfile(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	created := now.Add(-48 * time.Hour)

	tests := []struct {
		name     string
		identity Identity
		want     Profile
	}{
		{
			name:     "defaults name and created_at",
			identity: Identity{ID: "u1", Email: "a@b.com"},
			want: Profile{
				ID: "u1", Email: "a@b.com", FullName: "User", Role: RoleUser,
				CreatedAt: now, UpdatedAt: now,
			},
		},
		{
			name: "uses metadata name and identity created_at",
			identity: Identity{
				ID: "u2", Email: "c@d.com", CreatedAt: created,
				Metadata: map[string]any{"full_name": " Ann "},
			},
			want: Profile{
				ID: "u2", Email: "c@d.com", FullName: "Ann", Role: RoleUser,
				CreatedAt: created, UpdatedAt: now,
			},
		},
		{
			name: "ignores non-string metadata",
			identity: Identity{
				ID: "u3", Metadata: map[string]any{"full_name": 42},
			},
			want: Profile{ID: "u3", FullName: "User", Role: RoleUser, CreatedAt: now, UpdatedAt: now},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FallbackProfile(tt.identity, now)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.Valid())
		})
	}
}

func TestProfile_Valid(t *testing.T) {
	assert.False(t, Profile{}.Valid())
	assert.False(t, Profile{ID: "  "}.Valid())
	assert.True(t, Profile{ID: "u1"}.Valid())
}

func TestSession_Expired(t *testing.T) {
	now := time.Now()
	assert.False(t, Session{}.Expired(now))
	assert.False(t, Session{ExpiresAt: now.Add(time.Minute)}.Expired(now))
	assert.True(t, Session{ExpiresAt: now}.Expired(now))
}

func TestRole_Valid(t *testing.T) {
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleAdmin.Valid())
	assert.False(t, Role("guest").Valid())
}
