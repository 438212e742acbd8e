// Package policy enforces the anti-hoarding usage caps and the cancellation
// cutoff rules. Both are keyed by (resource, slot label) and evaluated in the
// facility's civil time.
package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/goncalojustino/tempusfugit-public-sub000/internal/civiltime"
	"github.com/goncalojustino/tempusfugit-public-sub000/internal/models"
)

// UsageReader supplies the owner's committed reservations for cap
// aggregation. Committed means any status that still occupies a slot.
type UsageReader interface {
	ListOwnerCommitted(ctx context.Context, resourceID int64, owner, label string, from, to time.Time) ([]models.Reservation, error)
}

// CapError reports which ceiling a candidate booking would break.
type CapError struct {
	Scope          string // "day" or "week"
	LimitHours     float64
	CommittedHours float64
}

func (e *CapError) Error() string {
	return fmt.Sprintf("per-%s cap of %.1fh exceeded: %.1fh already committed",
		e.Scope, e.LimitHours, e.CommittedHours)
}

type ruleKey struct {
	resourceID int64
	label      string
}

// Engine evaluates cap and cutoff rules against stored usage.
type Engine struct {
	usage   UsageReader
	loc     *time.Location
	caps    map[ruleKey]models.CapRule
	cutoffs map[ruleKey]models.CutoffRule
}

func NewEngine(usage UsageReader, loc *time.Location, caps []models.CapRule, cutoffs []models.CutoffRule) *Engine {
	e := &Engine{
		usage:   usage,
		loc:     loc,
		caps:    make(map[ruleKey]models.CapRule, len(caps)),
		cutoffs: make(map[ruleKey]models.CutoffRule, len(cutoffs)),
	}
	for _, c := range caps {
		e.caps[ruleKey{c.ResourceID, c.Label}] = c
	}
	for _, c := range cutoffs {
		e.cutoffs[ruleKey{c.ResourceID, c.Label}] = c
	}
	return e
}

// CheckCap rejects the candidate slot when the owner's committed hours for
// the slot's label, plus the candidate itself, would exceed the configured
// per-day or per-week ceiling. Day and week windows are civil (facility
// timezone), week running Monday through Sunday. A reservation counts toward
// the window its start instant falls in. Client-billed bookings are exempt:
// caps stop internal hoarding, not externally billed work.
func (e *Engine) CheckCap(ctx context.Context, resourceID int64, owner string, slot models.Slot, billing string) error {
	if billing == models.BillingClient {
		return nil
	}
	rule, ok := e.caps[ruleKey{resourceID, slot.Label}]
	if !ok {
		return nil
	}

	day := civiltime.DateOf(slot.Start, e.loc)
	candidate := slot.End.Sub(slot.Start).Hours()

	if rule.PerDayHours > 0 {
		from, to := civiltime.DayBounds(day, e.loc)
		committed, err := e.committedHours(ctx, resourceID, owner, slot.Label, from, to)
		if err != nil {
			return err
		}
		if committed+candidate > rule.PerDayHours {
			return &CapError{Scope: "day", LimitHours: rule.PerDayHours, CommittedHours: committed}
		}
	}

	if rule.PerWeekHours > 0 {
		from, to := civiltime.WeekBounds(day, e.loc)
		committed, err := e.committedHours(ctx, resourceID, owner, slot.Label, from, to)
		if err != nil {
			return err
		}
		if committed+candidate > rule.PerWeekHours {
			return &CapError{Scope: "week", LimitHours: rule.PerWeekHours, CommittedHours: committed}
		}
	}

	return nil
}

// Guards restates the cap ceilings that apply to the candidate slot as
// absolute windows, so the store can re-sum the owner's committed hours inside
// the create transaction. Empty for client-billed bookings and for slots with
// no cap rule.
func (e *Engine) Guards(resourceID int64, owner string, slot models.Slot, billing string) []models.CapGuard {
	if billing == models.BillingClient {
		return nil
	}
	rule, ok := e.caps[ruleKey{resourceID, slot.Label}]
	if !ok {
		return nil
	}

	day := civiltime.DateOf(slot.Start, e.loc)
	var guards []models.CapGuard
	if rule.PerDayHours > 0 {
		from, to := civiltime.DayBounds(day, e.loc)
		guards = append(guards, models.CapGuard{
			Owner: owner, Label: slot.Label, Scope: "day",
			From: from, To: to, LimitHours: rule.PerDayHours,
		})
	}
	if rule.PerWeekHours > 0 {
		from, to := civiltime.WeekBounds(day, e.loc)
		guards = append(guards, models.CapGuard{
			Owner: owner, Label: slot.Label, Scope: "week",
			From: from, To: to, LimitHours: rule.PerWeekHours,
		})
	}
	return guards
}

func (e *Engine) committedHours(ctx context.Context, resourceID int64, owner, label string, from, to time.Time) (float64, error) {
	existing, err := e.usage.ListOwnerCommitted(ctx, resourceID, owner, label, from, to)
	if err != nil {
		return 0, fmt.Errorf("failed to aggregate committed hours: %w", err)
	}
	var hours float64
	for _, r := range existing {
		hours += r.Duration().Hours()
	}
	return hours, nil
}

// CancelOutcome decides the status a cancellation request lands in. When the
// time to start exceeds the cutoff (or no cutoff is configured) the
// reservation cancels immediately; at or below the cutoff it parks in
// CANCEL_PENDING until a reviewer confirms.
func (e *Engine) CancelOutcome(now time.Time, resourceID int64, label string, start time.Time) string {
	rule, ok := e.cutoffs[ruleKey{resourceID, label}]
	if !ok || rule.MinutesBefore <= 0 {
		return models.StatusCanceled
	}
	if start.Sub(now) > time.Duration(rule.MinutesBefore)*time.Minute {
		return models.StatusCanceled
	}
	return models.StatusCancelPending
}
