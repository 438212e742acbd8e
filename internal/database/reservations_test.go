package database

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goncalojustino/tempusfugit-public-sub000/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func sampleReservation(start time.Time, d time.Duration) *models.Reservation {
	return &models.Reservation{
		Ref:          uuid.NewString(),
		ResourceID:   1,
		ResourceName: "av-500",
		Owner:        "mlopes",
		OwnerGroup:   "organic",
		Start:        start,
		End:          start.Add(d),
		Label:        models.Label30m,
		Experiment:   "proton",
		Probe:        "bbo",
		Billing:      models.BillingInternal,
		PriceCents:   1500,
		Status:       models.StatusApproved,
		CreatedBy:    "mlopes",
	}
}

func TestCreateAndGetReservation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	start := time.Date(2025, time.June, 11, 9, 0, 0, 0, time.UTC)
	r := sampleReservation(start, 30*time.Minute)

	require.NoError(t, db.CreateReservationLocked(ctx, r, nil))
	assert.NotZero(t, r.ID)
	assert.EqualValues(t, 1, r.Version)

	got, err := db.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.Ref, got.Ref)
	assert.Equal(t, "av-500", got.ResourceName)
	assert.True(t, got.Start.Equal(start))
	assert.True(t, got.End.Equal(start.Add(30*time.Minute)))
	assert.Equal(t, models.StatusApproved, got.Status)
	assert.Equal(t, int64(1500), got.PriceCents)
	assert.Nil(t, got.CanceledAt)
}

func TestGetReservation_NotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetReservation(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrReservationNotFound)
}

func TestCreateReservationLocked_RejectsOverlap(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	start := time.Date(2025, time.June, 11, 9, 0, 0, 0, time.UTC)

	require.NoError(t, db.CreateReservationLocked(ctx, sampleReservation(start, time.Hour), nil))

	t.Run("SameRange", func(t *testing.T) {
		err := db.CreateReservationLocked(ctx, sampleReservation(start, time.Hour), nil)
		assert.ErrorIs(t, err, ErrNotAvailable)
	})

	t.Run("PartialOverlap", func(t *testing.T) {
		err := db.CreateReservationLocked(ctx, sampleReservation(start.Add(30*time.Minute), time.Hour), nil)
		assert.ErrorIs(t, err, ErrNotAvailable)
	})

	t.Run("AdjacentAllowed", func(t *testing.T) {
		err := db.CreateReservationLocked(ctx, sampleReservation(start.Add(time.Hour), time.Hour), nil)
		assert.NoError(t, err)
	})

	t.Run("OtherResourceAllowed", func(t *testing.T) {
		r := sampleReservation(start, time.Hour)
		r.ResourceID = 2
		r.ResourceName = "av-300"
		assert.NoError(t, db.CreateReservationLocked(ctx, r, nil))
	})
}

func TestCreateReservationLocked_CanceledDoesNotBlock(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	start := time.Date(2025, time.June, 11, 9, 0, 0, 0, time.UTC)

	first := sampleReservation(start, time.Hour)
	require.NoError(t, db.CreateReservationLocked(ctx, first, nil))
	require.NoError(t, db.MarkCanceled(ctx, first.ID, first.Version, models.StatusCanceled, "mlopes", "sample lost"))

	assert.NoError(t, db.CreateReservationLocked(ctx, sampleReservation(start, time.Hour), nil))
}

func TestCreateReservationLocked_RejectsBlackout(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	start := time.Date(2025, time.June, 11, 9, 0, 0, 0, time.UTC)

	require.NoError(t, db.InsertBlackout(ctx, &models.Blackout{
		ResourceID: 1,
		Start:      start.Add(-time.Hour),
		End:        start.Add(2 * time.Hour),
		Kind:       models.BlackoutMaintenance,
		Reason:     "shim coil replacement",
	}))

	err := db.CreateReservationLocked(ctx, sampleReservation(start, time.Hour), nil)
	assert.ErrorIs(t, err, ErrBlackout)
}

func TestCreateReservationLocked_EnforcesCapGuards(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	start := time.Date(2025, time.June, 11, 9, 0, 0, 0, time.UTC)
	dayStart := time.Date(2025, time.June, 11, 0, 0, 0, 0, time.UTC)

	guards := []models.CapGuard{{
		Owner:      "mlopes",
		Label:      models.Label30m,
		Scope:      "day",
		From:       dayStart,
		To:         dayStart.Add(24 * time.Hour),
		LimitHours: 1,
	}}

	require.NoError(t, db.CreateReservationLocked(ctx, sampleReservation(start, 30*time.Minute), guards))

	t.Run("ExactlyAtCeilingAllowed", func(t *testing.T) {
		err := db.CreateReservationLocked(ctx, sampleReservation(start.Add(time.Hour), 30*time.Minute), guards)
		assert.NoError(t, err)
	})

	t.Run("OverCeilingRejected", func(t *testing.T) {
		err := db.CreateReservationLocked(ctx, sampleReservation(start.Add(2*time.Hour), 30*time.Minute), guards)
		assert.ErrorIs(t, err, ErrCapExceeded)
	})

	t.Run("OtherOwnerNotCounted", func(t *testing.T) {
		r := sampleReservation(start.Add(3*time.Hour), 30*time.Minute)
		r.Owner = "jsilva"
		other := []models.CapGuard{{
			Owner: "jsilva", Label: models.Label30m, Scope: "day",
			From: dayStart, To: dayStart.Add(24 * time.Hour), LimitHours: 1,
		}}
		assert.NoError(t, db.CreateReservationLocked(ctx, r, other))
	})

	t.Run("NoGuardsSkipsCheck", func(t *testing.T) {
		err := db.CreateReservationLocked(ctx, sampleReservation(start.Add(4*time.Hour), 30*time.Minute), nil)
		assert.NoError(t, err)
	})

	t.Run("CanceledHoursFreeTheCeiling", func(t *testing.T) {
		held := sampleReservation(start.Add(5*time.Hour), 30*time.Minute)
		held.Owner = "rcardoso"
		own := []models.CapGuard{{
			Owner: "rcardoso", Label: models.Label30m, Scope: "day",
			From: dayStart, To: dayStart.Add(24 * time.Hour), LimitHours: 0.5,
		}}
		require.NoError(t, db.CreateReservationLocked(ctx, held, own))

		blocked := sampleReservation(start.Add(6*time.Hour), 30*time.Minute)
		blocked.Owner = "rcardoso"
		require.ErrorIs(t, db.CreateReservationLocked(ctx, blocked, own), ErrCapExceeded)

		require.NoError(t, db.MarkCanceled(ctx, held.ID, held.Version, models.StatusCanceled, "rcardoso", "run aborted"))
		assert.NoError(t, db.CreateReservationLocked(ctx, blocked, own))
	})
}

func TestListOverlapping(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	start := time.Date(2025, time.June, 11, 8, 0, 0, 0, time.UTC)

	morning := sampleReservation(start, time.Hour)
	afternoon := sampleReservation(start.Add(6*time.Hour), time.Hour)
	require.NoError(t, db.CreateReservationLocked(ctx, morning, nil))
	require.NoError(t, db.CreateReservationLocked(ctx, afternoon, nil))

	got, err := db.ListOverlapping(ctx, 1, start, start.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, morning.Ref, got[0].Ref)

	// Canceled reservations drop out of the overlap set.
	require.NoError(t, db.MarkCanceled(ctx, morning.ID, morning.Version, models.StatusCanceled, "mlopes", ""))
	got, err = db.ListOverlapping(ctx, 1, start, start.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListOwnerCommitted(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	start := time.Date(2025, time.June, 11, 8, 0, 0, 0, time.UTC)

	mine := sampleReservation(start, 30*time.Minute)
	require.NoError(t, db.CreateReservationLocked(ctx, mine, nil))

	other := sampleReservation(start.Add(time.Hour), 30*time.Minute)
	other.Owner = "jsilva"
	require.NoError(t, db.CreateReservationLocked(ctx, other, nil))

	otherLabel := sampleReservation(start.Add(2*time.Hour), 3*time.Hour)
	otherLabel.Label = models.Label3h
	require.NoError(t, db.CreateReservationLocked(ctx, otherLabel, nil))

	dayStart := time.Date(2025, time.June, 11, 0, 0, 0, 0, time.UTC)
	got, err := db.ListOwnerCommitted(ctx, 1, "mlopes", models.Label30m, dayStart, dayStart.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, mine.Ref, got[0].Ref)
}

func TestListReservations_Filters(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	start := time.Date(2025, time.June, 11, 8, 0, 0, 0, time.UTC)

	a := sampleReservation(start, time.Hour)
	require.NoError(t, db.CreateReservationLocked(ctx, a, nil))

	b := sampleReservation(start.Add(2*time.Hour), time.Hour)
	b.Owner = "jsilva"
	b.Status = models.StatusPending
	require.NoError(t, db.CreateReservationLocked(ctx, b, nil))

	c := sampleReservation(start, time.Hour)
	c.ResourceID = 2
	require.NoError(t, db.CreateReservationLocked(ctx, c, nil))

	t.Run("ByResource", func(t *testing.T) {
		got, err := db.ListReservations(ctx, models.ReservationFilter{ResourceID: 2})
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("ByOwner", func(t *testing.T) {
		got, err := db.ListReservations(ctx, models.ReservationFilter{Owner: "jsilva"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, b.Ref, got[0].Ref)
	})

	t.Run("ByStatus", func(t *testing.T) {
		got, err := db.ListReservations(ctx, models.ReservationFilter{Statuses: []string{models.StatusPending}})
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("ByRange", func(t *testing.T) {
		got, err := db.ListReservations(ctx, models.ReservationFilter{
			From: start.Add(90 * time.Minute),
			To:   start.Add(4 * time.Hour),
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, b.Ref, got[0].Ref)
	})

	t.Run("NoFilter", func(t *testing.T) {
		got, err := db.ListReservations(ctx, models.ReservationFilter{})
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})
}

func TestListPending(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	start := time.Date(2025, time.June, 11, 8, 0, 0, 0, time.UTC)

	r := sampleReservation(start, time.Hour)
	r.Status = models.StatusPending
	require.NoError(t, db.CreateReservationLocked(ctx, r, nil))

	got, err := db.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, r.Ref, got[0].Ref)
}

func TestVersionedUpdates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	start := time.Date(2025, time.June, 11, 8, 0, 0, 0, time.UTC)

	r := sampleReservation(start, time.Hour)
	r.Status = models.StatusPending
	require.NoError(t, db.CreateReservationLocked(ctx, r, nil))

	t.Run("StaleVersionFails", func(t *testing.T) {
		err := db.UpdateStatusWithVersion(ctx, r.ID, 42, models.StatusApproved)
		assert.ErrorIs(t, err, ErrConcurrentModification)
	})

	t.Run("Approve", func(t *testing.T) {
		require.NoError(t, db.UpdateStatusWithVersion(ctx, r.ID, 1, models.StatusApproved))
		got, err := db.GetReservation(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusApproved, got.Status)
		assert.EqualValues(t, 2, got.Version)
	})

	t.Run("CancelPendingAndClear", func(t *testing.T) {
		require.NoError(t, db.MarkCanceled(ctx, r.ID, 2, models.StatusCancelPending, "mlopes", "run finished early"))
		got, err := db.GetReservation(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelPending, got.Status)
		assert.Equal(t, "mlopes", got.CanceledBy)
		require.NotNil(t, got.CanceledAt)

		require.NoError(t, db.ClearCancelRequest(ctx, r.ID, got.Version))
		got, err = db.GetReservation(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusApproved, got.Status)
		assert.Empty(t, got.CanceledBy)
		assert.Nil(t, got.CanceledAt)
	})

	t.Run("Remove", func(t *testing.T) {
		got, err := db.GetReservation(ctx, r.ID)
		require.NoError(t, err)
		require.NoError(t, db.MarkRemoved(ctx, r.ID, got.Version, "facility-admin", "duplicate entry"))

		got, err = db.GetReservation(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusRemoved, got.Status)
		assert.Equal(t, "facility-admin", got.RemovedBy)
		assert.Equal(t, "duplicate entry", got.RemoveReason)
		require.NotNil(t, got.RemovedAt)
	})
}

func TestListBlackouts_OrderAndRange(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	start := time.Date(2025, time.June, 11, 8, 0, 0, 0, time.UTC)

	training := &models.Blackout{
		ResourceID: 1, Kind: models.BlackoutTraining, Reason: "intro course",
		Start: start, End: start.Add(time.Hour),
	}
	maintenance := &models.Blackout{
		ResourceID: 1, Kind: models.BlackoutMaintenance, Reason: "field drift check",
		Start: start.Add(30 * time.Minute), End: start.Add(90 * time.Minute),
	}
	require.NoError(t, db.InsertBlackout(ctx, training))
	require.NoError(t, db.InsertBlackout(ctx, maintenance))

	got, err := db.ListBlackouts(ctx, 1, start, start.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.BlackoutMaintenance, got[0].Kind)
	assert.Equal(t, models.BlackoutTraining, got[1].Kind)

	got, err = db.ListBlackouts(ctx, 1, start.Add(3*time.Hour), start.Add(4*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got)
}
