package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benefits/pkg/platform/sentinel"
)

func TestInMemoryTRL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	trl := NewInMemoryTRL(WithClock(func() time.Time { return now }))

	t.Run("revoked until the ttl elapses", func(t *testing.T) {
		require.NoError(t, trl.RevokeToken(ctx, "jti-1", time.Minute))
		revoked, err := trl.IsTokenRevoked(ctx, "jti-1")
		require.NoError(t, err)
		assert.True(t, revoked)

		now = now.Add(time.Minute)
		revoked, err = trl.IsTokenRevoked(ctx, "jti-1")
		require.NoError(t, err)
		assert.False(t, revoked)
	})

	t.Run("unknown and empty jti are not revoked", func(t *testing.T) {
		revoked, err := trl.IsTokenRevoked(ctx, "never")
		require.NoError(t, err)
		assert.False(t, revoked)
		require.NoError(t, trl.RevokeToken(ctx, "", time.Minute))
	})

	t.Run("ttl must be positive", func(t *testing.T) {
		require.ErrorIs(t, trl.RevokeToken(ctx, "jti-2", 0), sentinel.ErrInvalidState)
	})

	t.Run("purge drops expired entries", func(t *testing.T) {
		require.NoError(t, trl.RevokeToken(ctx, "short", time.Second))
		require.NoError(t, trl.RevokeToken(ctx, "long", time.Hour))
		now = now.Add(time.Minute)
		n, err := trl.Purge(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}
