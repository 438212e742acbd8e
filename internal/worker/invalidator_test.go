package worker

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goncalojustino/tempusfugit-public-sub000/internal/events"
	"github.com/goncalojustino/tempusfugit-public-sub000/internal/models"
)

type recordingCache struct {
	mu        sync.Mutex
	dropped   []string
	failsLeft int
	failErr   error
}

func (c *recordingCache) Get(ctx context.Context, resourceID int64, date string) (*models.DaySheet, error) {
	return nil, nil
}

func (c *recordingCache) Set(ctx context.Context, sheet *models.DaySheet) error {
	return nil
}

func (c *recordingCache) Invalidate(ctx context.Context, resourceID int64, date string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failsLeft > 0 {
		c.failsLeft--
		return c.failErr
	}
	c.dropped = append(c.dropped, date)
	return nil
}

func (c *recordingCache) droppedDates() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.dropped...)
}

func startInvalidator(t *testing.T, cache *recordingCache) (*CacheInvalidator, *events.Bus) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	w := NewCacheInvalidator(cache, RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond, BackoffFactor: 1}, 16, &logger)
	bus := events.NewBus()
	w.Start(bus)
	t.Cleanup(w.Stop)
	return w, bus
}

func waitForDrops(t *testing.T, cache *recordingCache, n int) []string {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if got := cache.droppedDates(); len(got) >= n {
			return got
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d invalidations, got %v", n, cache.droppedDates())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestInvalidatorDropsGridDates(t *testing.T) {
	cache := &recordingCache{}
	_, bus := startInvalidator(t, cache)

	err := bus.PublishJSON(events.EventReservationCreated, events.ReservationEventPayload{
		ReservationID: 1,
		ResourceID:    1,
		GridDates:     []string{"2025-06-03"},
	})
	require.NoError(t, err)

	got := waitForDrops(t, cache, 1)
	assert.Equal(t, []string{"2025-06-03"}, got)
}

func TestInvalidatorRetriesTransientFailures(t *testing.T) {
	cache := &recordingCache{failsLeft: 2, failErr: errors.New("connection refused")}
	_, bus := startInvalidator(t, cache)

	err := bus.PublishJSON(events.EventReservationCanceled, events.ReservationEventPayload{
		ReservationID: 2,
		ResourceID:    1,
		GridDates:     []string{"2025-06-04"},
	})
	require.NoError(t, err)

	got := waitForDrops(t, cache, 1)
	assert.Equal(t, []string{"2025-06-04"}, got)
}

func TestInvalidatorIgnoresGarbagePayload(t *testing.T) {
	cache := &recordingCache{}
	_, bus := startInvalidator(t, cache)

	bus.Publish(&events.Event{Type: events.EventReservationCreated, Payload: []byte("not json")})

	err := bus.PublishJSON(events.EventReservationCreated, events.ReservationEventPayload{
		ReservationID: 3,
		ResourceID:    1,
		GridDates:     []string{"2025-06-05"},
	})
	require.NoError(t, err)

	got := waitForDrops(t, cache, 1)
	assert.Equal(t, []string{"2025-06-05"}, got)
}
