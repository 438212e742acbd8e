package models

import "time"

// Blackout is a maintenance or training window during which no booking is
// allowed on the resource. Blackouts are owned by the scheduling-admin side
// and are read-only input to the conflict check.
type Blackout struct {
	ID         int64     `json:"id"`
	ResourceID int64     `json:"resource_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Kind       string    `json:"kind"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
