// Package schedule generates the bookable slot grid for a resource and civil
// day. Weekday grids are table-driven from per-resource band templates;
// weekend days always collapse into a single 24h slot. Every grid tiles civil
// 08:00 through 08:00 the next day with no gaps and no overlaps.
package schedule

import (
	"fmt"
	"time"

	"github.com/goncalojustino/tempusfugit-public-sub000/internal/civiltime"
	"github.com/goncalojustino/tempusfugit-public-sub000/internal/models"
)

// Band is one contiguous segment of a weekday template. End hours at or
// before the start express overnight segments running into the next day.
// StepMinutes of zero emits the band as a single slot.
type Band struct {
	StartHour   int
	StartMinute int
	EndHour     int
	EndMinute   int
	Label       string
	StepMinutes int
}

// Template is an ordered, contiguous list of weekday bands for one grid shape.
type Template struct {
	Name  string
	Bands []Band
}

// Grid produces slot grids for resources in one facility timezone.
type Grid struct {
	loc       *time.Location
	templates map[string]Template
}

// NewGrid validates the templates and builds a generator. Each template must
// start at 08:00, end at 08:00 the next day, and have contiguous bands whose
// step sizes divide them evenly.
func NewGrid(loc *time.Location, templates []Template) (*Grid, error) {
	byName := make(map[string]Template, len(templates))
	for _, tpl := range templates {
		if err := validateTemplate(tpl); err != nil {
			return nil, fmt.Errorf("template %q: %w", tpl.Name, err)
		}
		if _, dup := byName[tpl.Name]; dup {
			return nil, fmt.Errorf("duplicate template name %q", tpl.Name)
		}
		byName[tpl.Name] = tpl
	}
	return &Grid{loc: loc, templates: byName}, nil
}

func validateTemplate(tpl Template) error {
	if len(tpl.Bands) == 0 {
		return fmt.Errorf("no bands")
	}

	cursor := models.GridStartHour * 60
	for i, b := range tpl.Bands {
		start := b.StartHour*60 + b.StartMinute
		end := b.EndHour*60 + b.EndMinute
		if end <= start {
			end += 24 * 60 // overnight band
		}
		if start != cursor {
			return fmt.Errorf("band %d starts at %02d:%02d, grid expects %02d:%02d",
				i, b.StartHour, b.StartMinute, cursor/60, cursor%60)
		}
		if b.Label == "" {
			return fmt.Errorf("band %d has no label", i)
		}
		if b.StepMinutes < 0 {
			return fmt.Errorf("band %d has negative step", i)
		}
		if b.StepMinutes > 0 && (end-start)%b.StepMinutes != 0 {
			return fmt.Errorf("band %d length %dm not divisible by step %dm", i, end-start, b.StepMinutes)
		}
		cursor = end
	}
	if cursor != (24+models.GridStartHour)*60 {
		return fmt.Errorf("bands end at %02d:%02d, grid must end at 08:00 next day",
			(cursor/60)%24, cursor%60)
	}
	return nil
}

// Location returns the facility timezone the grid operates in.
func (g *Grid) Location() *time.Location {
	return g.loc
}

// Slots returns the ordered slot grid for the resource on the given civil
// day. Boundaries are resolved through the civil-time converter, so absolute
// values stay correct across a DST transition inside the day.
func (g *Grid) Slots(resource models.Resource, day civiltime.Date) ([]models.Slot, error) {
	if day.IsWeekend() {
		return []models.Slot{{
			Start: g.boundary(day, models.GridStartHour*60),
			End:   g.boundary(day, (24+models.GridStartHour)*60),
			Label: models.Label24h,
		}}, nil
	}

	tpl, ok := g.templates[resource.Template]
	if !ok {
		return nil, fmt.Errorf("resource %q references unknown template %q", resource.Name, resource.Template)
	}

	var slots []models.Slot
	for _, b := range tpl.Bands {
		start := b.StartHour*60 + b.StartMinute
		end := b.EndHour*60 + b.EndMinute
		if end <= start {
			end += 24 * 60
		}

		step := b.StepMinutes
		if step == 0 {
			step = end - start
		}
		for m := start; m < end; m += step {
			slots = append(slots, models.Slot{
				Start: g.boundary(day, m),
				End:   g.boundary(day, m+step),
				Label: b.Label,
			})
		}
	}
	return slots, nil
}

// boundary resolves "minutes since civil midnight of day" to an instant.
// ToInstant normalizes hour values past 24 into the next day.
func (g *Grid) boundary(day civiltime.Date, minutes int) time.Time {
	return civiltime.ToInstant(day.At(minutes/60, minutes%60), g.loc)
}

// Align verifies that [start, end) is exactly one slot of the resource's grid
// and returns it. The owning grid day is derived from the start instant: a
// slot starting before 08:00 civil belongs to the previous day's grid.
func (g *Grid) Align(resource models.Resource, start, end time.Time) (models.Slot, error) {
	dt := civiltime.ToCivil(start, g.loc)
	day := dt.Date
	if dt.Hour < models.GridStartHour {
		day = day.AddDays(-1)
	}

	slots, err := g.Slots(resource, day)
	if err != nil {
		return models.Slot{}, err
	}
	for _, s := range slots {
		if s.Start.Equal(start) && s.End.Equal(end) {
			return s, nil
		}
	}
	return models.Slot{}, fmt.Errorf("%w: %s to %s on %s",
		ErrNotAligned, start.In(g.loc).Format("15:04"), end.In(g.loc).Format("15:04"), day)
}
