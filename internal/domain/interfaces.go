// Package domain declares the seams between the scheduling engine and its
// collaborators so services can be tested against mocks.
package domain

import (
	"context"
	"time"

	"github.com/goncalojustino/tempusfugit-public-sub000/internal/models"
)

// Repository is the transactional store the engine runs against.
type Repository interface {
	GetReservation(ctx context.Context, id int64) (*models.Reservation, error)
	CreateReservationLocked(ctx context.Context, r *models.Reservation, guards []models.CapGuard) error
	ListOverlapping(ctx context.Context, resourceID int64, from, to time.Time) ([]models.Reservation, error)
	ListOwnerCommitted(ctx context.Context, resourceID int64, owner, label string, from, to time.Time) ([]models.Reservation, error)
	ListPending(ctx context.Context) ([]models.Reservation, error)
	ListReservations(ctx context.Context, f models.ReservationFilter) ([]models.Reservation, error)
	UpdateStatusWithVersion(ctx context.Context, id, fromVersion int64, status string) error
	MarkCanceled(ctx context.Context, id, fromVersion int64, status, by, reason string) error
	ClearCancelRequest(ctx context.Context, id, fromVersion int64) error
	MarkRemoved(ctx context.Context, id, fromVersion int64, by, reason string) error
	ListBlackouts(ctx context.Context, resourceID int64, from, to time.Time) ([]models.Blackout, error)
}

// Clock supplies "now" so conflict, cap and cutoff checks are deterministic
// under test.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// EventPublisher fans reservation lifecycle events out to in-process
// consumers (cache invalidation, metrics).
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// SheetCache holds rendered day sheets. Implementations must treat a miss as
// (nil, nil), and callers must survive a nil cache.
type SheetCache interface {
	Get(ctx context.Context, resourceID int64, date string) (*models.DaySheet, error)
	Set(ctx context.Context, sheet *models.DaySheet) error
	Invalidate(ctx context.Context, resourceID int64, date string) error
}
