package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goncalojustino/tempusfugit-public-sub000/internal/civiltime"
	"github.com/goncalojustino/tempusfugit-public-sub000/internal/models"
)

func testTemplates() []Template {
	return []Template{
		{
			Name: "half-hour-day",
			Bands: []Band{
				{StartHour: 8, EndHour: 14, Label: models.Label30m, StepMinutes: 30},
				{StartHour: 14, EndHour: 20, Label: models.Label3h, StepMinutes: 180},
				{StartHour: 20, EndHour: 8, Label: models.Label12h},
			},
		},
		{
			Name: "morning-block",
			Bands: []Band{
				{StartHour: 8, EndHour: 11, Label: models.Label3h},
				{StartHour: 11, EndHour: 14, Label: models.Label30m, StepMinutes: 30},
				{StartHour: 14, EndHour: 20, Label: models.Label3h, StepMinutes: 180},
				{StartHour: 20, EndHour: 8, Label: models.Label12h},
			},
		},
		{
			Name: "three-hour-day",
			Bands: []Band{
				{StartHour: 8, EndHour: 20, Label: models.Label3h, StepMinutes: 180},
				{StartHour: 20, EndHour: 8, Label: models.Label12h},
			},
		},
	}
}

func testGrid(t *testing.T) *Grid {
	loc, err := time.LoadLocation("Europe/Lisbon")
	require.NoError(t, err)
	g, err := NewGrid(loc, testTemplates())
	require.NoError(t, err)
	return g
}

func resourceWith(template string) models.Resource {
	return models.Resource{ID: 1, Name: "av-500", Visible: true, Template: template}
}

func TestSlots_TilesWeekday(t *testing.T) {
	g := testGrid(t)
	// A full week of weekdays, including the spring-forward Monday region.
	days := []civiltime.Date{
		{Year: 2025, Month: time.March, Day: 28},
		{Year: 2025, Month: time.March, Day: 31},
		{Year: 2025, Month: time.June, Day: 9},
		{Year: 2025, Month: time.June, Day: 10},
		{Year: 2025, Month: time.June, Day: 11},
		{Year: 2025, Month: time.June, Day: 12},
		{Year: 2025, Month: time.June, Day: 13},
	}

	for _, tpl := range testTemplates() {
		for _, day := range days {
			slots, err := g.Slots(resourceWith(tpl.Name), day)
			require.NoError(t, err)
			require.NotEmpty(t, slots)

			gridStart := civiltime.ToInstant(day.At(8, 0), g.Location())
			gridEnd := civiltime.ToInstant(day.AddDays(1).At(8, 0), g.Location())

			assert.True(t, slots[0].Start.Equal(gridStart), "%s %s grid start", tpl.Name, day)
			assert.True(t, slots[len(slots)-1].End.Equal(gridEnd), "%s %s grid end", tpl.Name, day)
			for i := 1; i < len(slots); i++ {
				assert.True(t, slots[i].Start.Equal(slots[i-1].End),
					"%s %s gap/overlap between slot %d and %d", tpl.Name, day, i-1, i)
			}
		}
	}
}

func TestSlots_WeekdayShapes(t *testing.T) {
	g := testGrid(t)
	day := civiltime.Date{Year: 2025, Month: time.June, Day: 11}

	slots, err := g.Slots(resourceWith("half-hour-day"), day)
	require.NoError(t, err)
	// 12 half-hour slots, two 3h slots, one overnight 12h block.
	require.Len(t, slots, 15)
	assert.Equal(t, models.Label30m, slots[0].Label)
	assert.Equal(t, models.Label3h, slots[12].Label)
	assert.Equal(t, models.Label12h, slots[14].Label)
	assert.Equal(t, 12*time.Hour, slots[14].End.Sub(slots[14].Start))

	slots, err = g.Slots(resourceWith("morning-block"), day)
	require.NoError(t, err)
	require.Len(t, slots, 10)
	assert.Equal(t, models.Label3h, slots[0].Label)
	assert.Equal(t, 3*time.Hour, slots[0].End.Sub(slots[0].Start))

	slots, err = g.Slots(resourceWith("three-hour-day"), day)
	require.NoError(t, err)
	require.Len(t, slots, 5)
}

func TestSlots_WeekendSingle24h(t *testing.T) {
	g := testGrid(t)

	for _, day := range []civiltime.Date{
		{Year: 2025, Month: time.June, Day: 14},
		{Year: 2025, Month: time.June, Day: 15},
	} {
		for _, tpl := range testTemplates() {
			slots, err := g.Slots(resourceWith(tpl.Name), day)
			require.NoError(t, err)
			require.Len(t, slots, 1, "weekend must be one slot")
			assert.Equal(t, models.Label24h, slots[0].Label)
			assert.Equal(t, 24*time.Hour, slots[0].End.Sub(slots[0].Start))
		}
	}
}

func TestSlots_DSTDayKeepsCivilBoundaries(t *testing.T) {
	g := testGrid(t)
	// Sunday 2025-03-30 contains the spring-forward gap; the weekend slot
	// still runs civil 08:00→08:00 but is only 23 absolute hours long.
	day := civiltime.Date{Year: 2025, Month: time.March, Day: 30}

	slots, err := g.Slots(resourceWith("three-hour-day"), day)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, 8, slots[0].Start.In(g.Location()).Hour())
	assert.Equal(t, 8, slots[0].End.In(g.Location()).Hour())
	assert.Equal(t, 23*time.Hour, slots[0].End.Sub(slots[0].Start))

	// The fall-back Sunday is 25 absolute hours.
	day = civiltime.Date{Year: 2025, Month: time.October, Day: 26}
	slots, err = g.Slots(resourceWith("three-hour-day"), day)
	require.NoError(t, err)
	assert.Equal(t, 25*time.Hour, slots[0].End.Sub(slots[0].Start))
}

func TestSlots_UnknownTemplate(t *testing.T) {
	g := testGrid(t)
	_, err := g.Slots(resourceWith("missing"), civiltime.Date{Year: 2025, Month: time.June, Day: 11})
	assert.Error(t, err)
}

func TestAlign(t *testing.T) {
	g := testGrid(t)
	res := resourceWith("half-hour-day")
	day := civiltime.Date{Year: 2025, Month: time.June, Day: 11}

	slots, err := g.Slots(res, day)
	require.NoError(t, err)

	t.Run("ExactSlot", func(t *testing.T) {
		got, err := g.Align(res, slots[3].Start, slots[3].End)
		require.NoError(t, err)
		assert.Equal(t, slots[3], got)
	})

	t.Run("OvernightSlot", func(t *testing.T) {
		overnight := slots[len(slots)-1]
		got, err := g.Align(res, overnight.Start, overnight.End)
		require.NoError(t, err)
		assert.Equal(t, models.Label12h, got.Label)
	})

	t.Run("MisalignedStart", func(t *testing.T) {
		_, err := g.Align(res, slots[3].Start.Add(10*time.Minute), slots[3].End)
		assert.ErrorIs(t, err, ErrNotAligned)
	})

	t.Run("SpansTwoSlots", func(t *testing.T) {
		_, err := g.Align(res, slots[3].Start, slots[4].End)
		assert.ErrorIs(t, err, ErrNotAligned)
	})
}

func TestNewGrid_RejectsBrokenTemplates(t *testing.T) {
	loc := time.UTC

	cases := []struct {
		name string
		tpl  Template
	}{
		{"Empty", Template{Name: "t"}},
		{"GapBetweenBands", Template{Name: "t", Bands: []Band{
			{StartHour: 8, EndHour: 12, Label: "3h"},
			{StartHour: 13, EndHour: 8, Label: "12h"},
		}}},
		{"WrongStart", Template{Name: "t", Bands: []Band{
			{StartHour: 9, EndHour: 8, Label: "24h"},
		}}},
		{"NotEndingAtEight", Template{Name: "t", Bands: []Band{
			{StartHour: 8, EndHour: 20, Label: "12h"},
		}}},
		{"StepDoesNotDivide", Template{Name: "t", Bands: []Band{
			{StartHour: 8, EndHour: 14, Label: "30m", StepMinutes: 50},
			{StartHour: 14, EndHour: 8, Label: "12h"},
		}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewGrid(loc, []Template{tc.tpl})
			assert.Error(t, err)
		})
	}

	t.Run("DuplicateName", func(t *testing.T) {
		tpl := testTemplates()[2]
		_, err := NewGrid(loc, []Template{tpl, tpl})
		assert.Error(t, err)
	})
}
