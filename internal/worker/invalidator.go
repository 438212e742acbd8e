// Package worker runs background consumers for reservation events.
package worker

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/goncalojustino/tempusfugit-public-sub000/internal/domain"
	"github.com/goncalojustino/tempusfugit-public-sub000/internal/events"
)

// CacheInvalidator drops cached day sheets when a reservation event touches
// their grid days. Events queue onto a channel so publishers never block on
// Redis; drops under a full queue are safe because sheets carry a TTL.
type CacheInvalidator struct {
	cache  domain.SheetCache
	retry  RetryPolicy
	logger *zerolog.Logger

	queue  chan *events.Event
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewCacheInvalidator(cache domain.SheetCache, retry RetryPolicy, queueSize int, logger *zerolog.Logger) *CacheInvalidator {
	if queueSize <= 0 {
		queueSize = 128
	}
	return &CacheInvalidator{
		cache:  cache,
		retry:  retry,
		logger: logger,
		queue:  make(chan *events.Event, queueSize),
	}
}

// Start subscribes to every reservation event and begins draining the queue.
func (w *CacheInvalidator) Start(bus *events.Bus) {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	bus.SubscribeAll(w.enqueue)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Stop drains nothing further and waits for the worker goroutine to exit.
func (w *CacheInvalidator) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *CacheInvalidator) enqueue(event *events.Event) error {
	select {
	case w.queue <- event:
	default:
		w.logger.Warn().Str("event_type", event.Type).Msg("invalidation queue full, relying on TTL")
	}
	return nil
}

func (w *CacheInvalidator) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-w.queue:
			w.handle(ctx, event)
		}
	}
}

func (w *CacheInvalidator) handle(ctx context.Context, event *events.Event) {
	var payload events.ReservationEventPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		w.logger.Error().Err(err).Str("event_type", event.Type).Msg("undecodable reservation event")
		return
	}

	for _, date := range payload.GridDates {
		w.invalidate(ctx, payload.ResourceID, date)
	}
}

func (w *CacheInvalidator) invalidate(ctx context.Context, resourceID int64, date string) {
	for attempt := 1; ; attempt++ {
		err := w.cache.Invalidate(ctx, resourceID, date)
		if err == nil {
			return
		}
		if attempt > w.retry.MaxRetries {
			w.logger.Error().Err(err).Int64("resource_id", resourceID).Str("date", date).
				Msg("giving up on sheet invalidation, TTL will catch it")
			return
		}
		w.logger.Warn().Err(err).Int("attempt", attempt).Msg("sheet invalidation failed, retrying")
		if w.retry.Wait(ctx, attempt) != nil {
			return
		}
	}
}
