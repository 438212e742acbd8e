package models

// Reservation lifecycle statuses. REMOVED is terminal and keeps the row for audit.
const (
	StatusPending       = "PENDING"
	StatusApproved      = "APPROVED"
	StatusCancelPending = "CANCEL_PENDING"
	StatusCanceled      = "CANCELED"
	StatusRemoved       = "REMOVED"
)

// ActiveStatuses are the statuses that occupy a slot for conflict checks.
// CANCEL_PENDING still blocks the grid until a reviewer confirms the cancellation.
var ActiveStatuses = []string{StatusPending, StatusApproved, StatusCancelPending}

// Slot duration labels.
const (
	Label30m = "30m"
	Label3h  = "3h"
	Label12h = "12h"
	Label24h = "24h"
)

// Blackout window categories.
const (
	BlackoutMaintenance = "maintenance"
	BlackoutTraining    = "training"
)

// Resource operational statuses.
const (
	ResourceStatusOK      = "ok"
	ResourceStatusLimited = "limited"
	ResourceStatusDown    = "down"
)

// Billing modes. Client-billed reservations carry a manually supplied total
// price and are exempt from usage caps.
const (
	BillingInternal = "internal"
	BillingClient   = "client"
)

// ProbeWildcard matches any probe in a price rate row.
const ProbeWildcard = "*"

const (
	// DefaultAdvanceDays limits how far ahead a resource can be booked
	// when the resource does not configure its own window.
	DefaultAdvanceDays = 60

	// DefaultCreateRetries bounds the retry loop around transient store
	// write conflicts during create.
	DefaultCreateRetries = 3

	// GridStartHour is the civil hour at which every daily grid begins.
	// A day's grid covers 08:00 that day through 08:00 the next day.
	GridStartHour = 8

	// DefaultSheetCacheTTL is the day-sheet cache lifetime in seconds.
	DefaultSheetCacheTTL = 5 * 60
)
