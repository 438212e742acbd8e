// Package pricing computes the internal price of a booking from the hourly
// rate table. Client-billed reservations never reach this package: their
// total is supplied manually at creation time.
package pricing

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/goncalojustino/tempusfugit-public-sub000/internal/civiltime"
	"github.com/goncalojustino/tempusfugit-public-sub000/internal/models"
)

// ErrNoRate means no rate row matches the (resource, experiment, probe, date)
// combination.
var ErrNoRate = errors.New("no applicable price rate")

type rate struct {
	models.PriceRate
	effective civiltime.Date
}

// Engine selects the most specific, most recent applicable rate row.
type Engine struct {
	rates []rate
}

// NewEngine parses the effective_from dates up front so lookups cannot fail
// on malformed configuration.
func NewEngine(rates []models.PriceRate) (*Engine, error) {
	parsed := make([]rate, 0, len(rates))
	for _, r := range rates {
		eff, err := civiltime.ParseDate(r.EffectiveFrom)
		if err != nil {
			return nil, fmt.Errorf("rate (resource %d, experiment %q): %w", r.ResourceID, r.Experiment, err)
		}
		parsed = append(parsed, rate{PriceRate: r, effective: eff})
	}
	return &Engine{rates: parsed}, nil
}

// Price returns the amount in cents for a booking of the given duration
// starting on the civil date. Candidate rows match resource and experiment
// with effective_from on or before the date; an exact probe match beats a
// wildcard row, and within each tier the latest effective_from wins.
func (e *Engine) Price(resourceID int64, experiment, probe string, day civiltime.Date, duration time.Duration) (int64, error) {
	best, err := e.Lookup(resourceID, experiment, probe, day)
	if err != nil {
		return 0, err
	}
	cents := float64(best.CentsPerHour) * duration.Hours()
	return int64(math.Round(cents)), nil
}

// Lookup returns the winning rate row without applying a duration.
func (e *Engine) Lookup(resourceID int64, experiment, probe string, day civiltime.Date) (models.PriceRate, error) {
	var best *rate
	bestExact := false

	for i := range e.rates {
		r := &e.rates[i]
		if r.ResourceID != resourceID || r.Experiment != experiment {
			continue
		}
		if dateAfter(r.effective, day) {
			continue
		}
		exact := r.Probe == probe
		if !exact && r.Probe != models.ProbeWildcard {
			continue
		}

		switch {
		case best == nil:
			best, bestExact = r, exact
		case exact && !bestExact:
			best, bestExact = r, true
		case exact == bestExact && dateAfter(r.effective, best.effective):
			best = r
		}
	}

	if best == nil {
		return models.PriceRate{}, fmt.Errorf("%w for resource %d, experiment %q, probe %q on %s",
			ErrNoRate, resourceID, experiment, probe, day)
	}
	return best.PriceRate, nil
}

func dateAfter(a, b civiltime.Date) bool {
	if a.Year != b.Year {
		return a.Year > b.Year
	}
	if a.Month != b.Month {
		return a.Month > b.Month
	}
	return a.Day > b.Day
}
