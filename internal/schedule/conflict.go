package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/goncalojustino/tempusfugit-public-sub000/internal/models"
)

var (
	// ErrNotAligned marks a candidate range that is not a slot of the grid.
	ErrNotAligned = errors.New("range does not match a slot boundary pair")
)

// Blocking kinds, in the priority order they are checked.
const (
	BlockMaintenance = "MAINTENANCE"
	BlockTraining    = "TRAINING"
	BlockReservation = "RESERVATION"
)

// Blocking describes what occupies a candidate slot.
type Blocking struct {
	Kind   string
	Detail string
}

// Overlaps is the half-open interval test shared by every occupancy check:
// [s1,e1) and [s2,e2) overlap iff s1 < e2 && s2 < e1.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// FindBlocking tests a candidate slot against blackout windows and existing
// reservations, both assumed pre-filtered to the candidate's resource.
// Blackouts reject first (maintenance before training, regardless of
// requester), then reservations in an active status. Returns nil when the
// slot is free.
func FindBlocking(slot models.Slot, blackouts []models.Blackout, reservations []models.Reservation) *Blocking {
	for _, kind := range []string{models.BlackoutMaintenance, models.BlackoutTraining} {
		for _, b := range blackouts {
			if b.Kind != kind || !Overlaps(slot.Start, slot.End, b.Start, b.End) {
				continue
			}
			blockKind := BlockMaintenance
			if kind == models.BlackoutTraining {
				blockKind = BlockTraining
			}
			return &Blocking{Kind: blockKind, Detail: b.Reason}
		}
	}

	for _, r := range reservations {
		if !r.IsActive() || !Overlaps(slot.Start, slot.End, r.Start, r.End) {
			continue
		}
		return &Blocking{
			Kind:   BlockReservation,
			Detail: fmt.Sprintf("reserved by %s (%s)", r.Owner, r.Status),
		}
	}
	return nil
}
