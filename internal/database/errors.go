package database

import "errors"

var (
	// ErrNotAvailable signals that an active reservation already occupies an
	// overlapping range on the resource.
	ErrNotAvailable = errors.New("slot is already reserved")

	// ErrBlackout signals that a blackout window covers part of the range.
	ErrBlackout = errors.New("slot falls in a blackout window")

	// ErrCapExceeded signals that the in-transaction re-sum of the owner's
	// committed hours found a cap ceiling already consumed.
	ErrCapExceeded = errors.New("usage cap exceeded")

	// ErrReservationNotFound is returned for lookups of unknown ids.
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrConcurrentModification is returned when a versioned update lost the
	// race against another writer.
	ErrConcurrentModification = errors.New("reservation was modified concurrently")
)
