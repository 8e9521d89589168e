package repository

import (
	"context"
	"testing"
	"time"

	"agendamento/internal/config"
	"agendamento/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func configFor(s *miniredis.Miniredis) config.RedisConfig {
	return config.RedisConfig{Address: s.Addr()}
}

func TestMemoryDraftRepository(t *testing.T) {
	repo := NewMemoryDraftRepository(time.Hour)
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	ctx := context.Background()

	t.Run("SetAndGetDraft", func(t *testing.T) {
		draft := &models.Draft{UserID: "sub-123", Room: "3A"}
		require.NoError(t, repo.SetDraft(ctx, draft))

		got, err := repo.GetDraft(ctx, "sub-123")
		require.NoError(t, err)
		assert.Equal(t, draft, got)

		// stored value is a copy
		got.Room = "changed"
		again, _ := repo.GetDraft(ctx, "sub-123")
		assert.Equal(t, "3A", again.Room)
	})

	t.Run("Expiry", func(t *testing.T) {
		require.NoError(t, repo.SetDraft(ctx, &models.Draft{UserID: "old"}))
		now = now.Add(2 * time.Hour)
		got, err := repo.GetDraft(ctx, "old")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("ClearDraft", func(t *testing.T) {
		require.NoError(t, repo.SetDraft(ctx, &models.Draft{UserID: "sub-123"}))
		require.NoError(t, repo.ClearDraft(ctx, "sub-123"))
		got, _ := repo.GetDraft(ctx, "sub-123")
		assert.Nil(t, got)
	})

	t.Run("RateLimit", func(t *testing.T) {
		key := "write:sub-456"
		allowed, _ := repo.CheckRateLimit(ctx, key, 2, time.Second)
		assert.True(t, allowed)
		allowed, _ = repo.CheckRateLimit(ctx, key, 2, time.Second)
		assert.True(t, allowed)
		allowed, _ = repo.CheckRateLimit(ctx, key, 2, time.Second)
		assert.False(t, allowed)

		now = now.Add(time.Second + time.Millisecond)
		allowed, _ = repo.CheckRateLimit(ctx, key, 2, time.Second)
		assert.True(t, allowed)
	})
}
