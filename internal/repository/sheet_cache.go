// Package repository holds the Redis-backed day sheet cache. Rendered sheets
// are cheap to rebuild, so every failure mode degrades to a miss.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/goncalojustino/tempusfugit-public-sub000/internal/metrics"
	"github.com/goncalojustino/tempusfugit-public-sub000/internal/models"
)

// RedisSheetCache stores rendered day sheets keyed by resource and civil date.
type RedisSheetCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zerolog.Logger
}

func NewRedisSheetCache(client *redis.Client, ttl time.Duration, logger *zerolog.Logger) *RedisSheetCache {
	if ttl <= 0 {
		ttl = time.Duration(models.DefaultSheetCacheTTL) * time.Second
	}
	return &RedisSheetCache{client: client, ttl: ttl, logger: logger}
}

func sheetKey(resourceID int64, date string) string {
	return fmt.Sprintf("sheet:%d:%s", resourceID, date)
}

// Get returns the cached sheet or (nil, nil) on a miss. Undecodable entries
// are dropped and reported as a miss.
func (c *RedisSheetCache) Get(ctx context.Context, resourceID int64, date string) (*models.DaySheet, error) {
	raw, err := c.client.Get(ctx, sheetKey(resourceID, date)).Bytes()
	if err == redis.Nil {
		metrics.IncSheetCache("miss")
		return nil, nil
	}
	if err != nil {
		metrics.IncSheetCache("error")
		return nil, fmt.Errorf("sheet cache get: %w", err)
	}

	var sheet models.DaySheet
	if err := json.Unmarshal(raw, &sheet); err != nil {
		c.logger.Warn().Err(err).Str("date", date).Msg("dropping undecodable cached sheet")
		_ = c.client.Del(ctx, sheetKey(resourceID, date)).Err()
		metrics.IncSheetCache("miss")
		return nil, nil
	}
	metrics.IncSheetCache("hit")
	return &sheet, nil
}

// Set stores the sheet under the configured TTL.
func (c *RedisSheetCache) Set(ctx context.Context, sheet *models.DaySheet) error {
	raw, err := json.Marshal(sheet)
	if err != nil {
		return fmt.Errorf("sheet cache encode: %w", err)
	}
	if err := c.client.Set(ctx, sheetKey(sheet.ResourceID, sheet.Date), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("sheet cache set: %w", err)
	}
	return nil
}

// Invalidate drops the cached sheet for one resource and civil date.
func (c *RedisSheetCache) Invalidate(ctx context.Context, resourceID int64, date string) error {
	if err := c.client.Del(ctx, sheetKey(resourceID, date)).Err(); err != nil {
		return fmt.Errorf("sheet cache invalidate: %w", err)
	}
	return nil
}
