package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "github.com/israeldewcom/Real-wealth/internal/app/core/service"
)

func TestContextGate(t *testing.T) {
	gate := ContextGate{}

	err := gate.Authorize(context.Background(), "admin-1")
	assert.True(t, errors.Is(err, core.ErrForbidden))

	ctx := WithIdentity(context.Background(), Identity{UserID: "u1", Role: RoleUser})
	assert.True(t, errors.Is(gate.Authorize(ctx, "u1"), core.ErrForbidden))

	ctx = WithIdentity(context.Background(), Identity{UserID: "admin-1", Role: RoleAdmin})
	assert.NoError(t, gate.Authorize(ctx, "admin-1"))
	assert.True(t, errors.Is(gate.Authorize(ctx, "admin-2"), core.ErrForbidden))
}

func TestJWTResolverRoundTrip(t *testing.T) {
	r, err := NewJWTResolver("s3cret", "real-wealth")
	require.NoError(t, err)

	token, err := r.Issue(Identity{UserID: "admin-1", Role: RoleAdmin}, time.Hour)
	require.NoError(t, err)

	id, err := r.Resolve(context.Background(), "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "admin-1", Role: RoleAdmin}, id)
}

func TestJWTResolverRejects(t *testing.T) {
	r, err := NewJWTResolver("s3cret", "real-wealth")
	require.NoError(t, err)
	other, err := NewJWTResolver("different", "real-wealth")
	require.NoError(t, err)

	forged, err := other.Issue(Identity{UserID: "u1"}, time.Hour)
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), forged)
	assert.True(t, errors.Is(err, core.ErrForbidden))

	expired, err := r.Issue(Identity{UserID: "u1"}, -time.Minute)
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), expired)
	assert.True(t, errors.Is(err, core.ErrForbidden))

	_, err = r.Resolve(context.Background(), "")
	assert.True(t, errors.Is(err, core.ErrForbidden))

	_, err = NewJWTResolver(" ", "")
	assert.Error(t, err)
}

func TestResolveDefaultsToUserRole(t *testing.T) {
	r, err := NewJWTResolver("s3cret", "")
	require.NoError(t, err)
	token, err := r.Issue(Identity{UserID: "u9"}, time.Hour)
	require.NoError(t, err)
	id, err := r.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, RoleUser, id.Role)
	assert.False(t, id.IsAdmin())
}
