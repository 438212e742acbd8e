// Package civiltime converts between facility-local wall-clock time and
// absolute instants. Slot boundaries, cap windows and cutoff deadlines are all
// defined in the civil time of one fixed facility timezone, so fixed daily
// boundaries like 08:00 stay fixed across daylight-saving transitions even
// though their UTC offset changes.
//
// DST policy: conversion uses time.Date normalization. A civil time that is
// ambiguous during a fall-back transition resolves to the earlier
// (pre-transition) offset; a civil time that does not exist during a
// spring-forward transition rolls forward past the gap. Both cases are pinned
// by tests.
package civiltime

import (
	"fmt"
	"time"
)

// Date is a civil calendar date with no time-of-day component.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateTime is a civil wall-clock date and time, meaningful only together with
// a location.
type DateTime struct {
	Date   Date
	Hour   int
	Minute int
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("parse civil date %q: %w", s, err)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// AddDays returns the date n calendar days later (or earlier for negative n).
func (d Date) AddDays(n int) Date {
	t := time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC)
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// Weekday returns the day of week of the civil date.
func (d Date) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Weekday()
}

// IsWeekend reports whether the date is a Saturday or Sunday.
func (d Date) IsWeekend() bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// WeekStart returns the Monday of the civil week (Monday–Sunday) containing d.
func (d Date) WeekStart() Date {
	delta := int(d.Weekday()) - int(time.Monday)
	if delta < 0 {
		delta += 7
	}
	return d.AddDays(-delta)
}

// At combines the date with a wall-clock time.
func (d Date) At(hour, minute int) DateTime {
	return DateTime{Date: d, Hour: hour, Minute: minute}
}

// ToInstant resolves a civil date-time to an absolute instant in loc.
// Hour/Minute values outside their natural range normalize into adjacent days,
// which lets callers express overnight bands as hour offsets past 24.
func ToInstant(dt DateTime, loc *time.Location) time.Time {
	return time.Date(dt.Date.Year, dt.Date.Month, dt.Date.Day, dt.Hour, dt.Minute, 0, 0, loc)
}

// ToCivil converts an absolute instant to the civil date-time in loc.
// Seconds and smaller units are truncated.
func ToCivil(t time.Time, loc *time.Location) DateTime {
	local := t.In(loc)
	return DateTime{
		Date:   Date{Year: local.Year(), Month: local.Month(), Day: local.Day()},
		Hour:   local.Hour(),
		Minute: local.Minute(),
	}
}

// DateOf returns the civil date an instant falls on in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	return ToCivil(t, loc).Date
}

// DayBounds returns the absolute instants of civil midnight starting and
// ending the date, the window used for per-day cap aggregation.
func DayBounds(d Date, loc *time.Location) (time.Time, time.Time) {
	return ToInstant(d.At(0, 0), loc), ToInstant(d.AddDays(1).At(0, 0), loc)
}

// WeekBounds returns the absolute instants bounding the Monday–Sunday civil
// week containing the date.
func WeekBounds(d Date, loc *time.Location) (time.Time, time.Time) {
	start := d.WeekStart()
	return ToInstant(start.At(0, 0), loc), ToInstant(start.AddDays(7).At(0, 0), loc)
}
