package repository

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goncalojustino/tempusfugit-public-sub000/internal/models"
)

func newTestCache(t *testing.T) (*RedisSheetCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := zerolog.New(io.Discard)
	return NewRedisSheetCache(client, 5*time.Minute, &logger), mr
}

func sampleSheet() *models.DaySheet {
	return &models.DaySheet{
		ResourceID: 1,
		Date:       "2025-06-03",
		Slots: []models.Slot{{
			Start: time.Date(2025, 6, 3, 7, 0, 0, 0, time.UTC),
			End:   time.Date(2025, 6, 3, 7, 30, 0, 0, time.UTC),
			Label: models.Label30m,
		}},
		RenderedAt: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
	}
}

func TestSheetCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, sampleSheet()))

	got, err := cache.Get(ctx, 1, "2025-06-03")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(1), got.ResourceID)
	assert.Len(t, got.Slots, 1)
	assert.Equal(t, models.Label30m, got.Slots[0].Label)
}

func TestSheetCacheMissIsNilNil(t *testing.T) {
	cache, _ := newTestCache(t)

	got, err := cache.Get(context.Background(), 1, "2025-06-04")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSheetCacheInvalidate(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, sampleSheet()))
	require.NoError(t, cache.Invalidate(ctx, 1, "2025-06-03"))

	got, err := cache.Get(ctx, 1, "2025-06-03")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSheetCacheExpires(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, sampleSheet()))
	mr.FastForward(6 * time.Minute)

	got, err := cache.Get(ctx, 1, "2025-06-03")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSheetCacheDropsCorruptEntry(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("sheet:1:2025-06-03", "not json"))

	got, err := cache.Get(ctx, 1, "2025-06-03")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.False(t, mr.Exists("sheet:1:2025-06-03"))
}
