package models

import "time"

// CapRule limits one owner's committed hours per (resource, slot label).
// A zero ceiling means no limit for that window.
type CapRule struct {
	ResourceID   int64   `yaml:"resource_id" json:"resource_id"`
	Label        string  `yaml:"label" json:"label"`
	PerDayHours  float64 `yaml:"per_day_hours" json:"per_day_hours"`
	PerWeekHours float64 `yaml:"per_week_hours" json:"per_week_hours"`
}

// CapGuard restates one cap ceiling as an absolute window so the create
// transaction can re-sum the owner's committed hours atomically with the
// insert. Without it two concurrent creates for different slots could both
// pass the pre-check and jointly exceed the ceiling.
type CapGuard struct {
	Owner      string
	Label      string
	Scope      string // "day" or "week"
	From       time.Time
	To         time.Time
	LimitHours float64
}

// CutoffRule sets the minimum lead time before a slot's start below which a
// cancellation is deferred to reviewer confirmation instead of applying
// immediately.
type CutoffRule struct {
	ResourceID    int64  `yaml:"resource_id" json:"resource_id"`
	Label         string `yaml:"label" json:"label"`
	MinutesBefore int    `yaml:"minutes_before_start" json:"minutes_before_start"`
}

// PriceRate is one row of the hourly rate table. Probe may be ProbeWildcard.
// EffectiveFrom is a civil date (YYYY-MM-DD) enabling historical versioning:
// among applicable rows an exact-probe match beats a wildcard, and within a
// specificity tier the latest EffectiveFrom wins.
type PriceRate struct {
	ResourceID    int64  `yaml:"resource_id" json:"resource_id"`
	Experiment    string `yaml:"experiment" json:"experiment"`
	Probe         string `yaml:"probe" json:"probe"`
	RateCode      string `yaml:"rate_code" json:"rate_code"`
	CentsPerHour  int64  `yaml:"cents_per_hour" json:"cents_per_hour"`
	EffectiveFrom string `yaml:"effective_from" json:"effective_from"`
}
