package models

import "time"

// Reservation is one instrument booking. Start/End are absolute instants that
// must match a slot boundary pair of the resource's grid for that civil day.
type Reservation struct {
	ID            int64      `json:"id"`
	Ref           string     `json:"ref"`
	ResourceID    int64      `json:"resource_id"`
	ResourceName  string     `json:"resource_name"`
	Owner         string     `json:"owner"`
	OwnerGroup    string     `json:"owner_group"`
	Start         time.Time  `json:"start"`
	End           time.Time  `json:"end"`
	Label         string     `json:"label"`
	Experiment    string     `json:"experiment"`
	Probe         string     `json:"probe,omitempty"`
	Billing       string     `json:"billing"`
	ClientAccount string     `json:"client_account,omitempty"`
	PriceCents    int64      `json:"price_cents"`
	Status        string     `json:"status"`
	CreatedBy     string     `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
	CanceledBy    string     `json:"canceled_by,omitempty"`
	CanceledAt    *time.Time `json:"canceled_at,omitempty"`
	CancelReason  string     `json:"cancel_reason,omitempty"`
	RemovedBy     string     `json:"removed_by,omitempty"`
	RemovedAt     *time.Time `json:"removed_at,omitempty"`
	RemoveReason  string     `json:"remove_reason,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
	Version       int64      `json:"version"`
}

// Duration returns the booked length of the reservation.
func (r Reservation) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// IsActive reports whether the reservation still occupies its slot.
func (r Reservation) IsActive() bool {
	switch r.Status {
	case StatusPending, StatusApproved, StatusCancelPending:
		return true
	}
	return false
}

// ReservationFilter narrows ListReservations queries. Zero values are ignored.
type ReservationFilter struct {
	ResourceID int64
	Owner      string
	Statuses   []string
	From       time.Time
	To         time.Time
}
