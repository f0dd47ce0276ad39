package reminder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailyNext(t *testing.T) {
	daily := Daily{Hour: 9, Location: time.UTC}

	tests := []struct {
		name string
		from time.Time
		want time.Time
	}{
		{"before today's run", time.Date(2026, 10, 14, 8, 59, 0, 0, time.UTC), time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)},
		{"exactly at run", time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC), time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)},
		{"after today's run", time.Date(2026, 10, 14, 17, 0, 0, 0, time.UTC), time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)},
		{"month end", time.Date(2026, 10, 31, 10, 0, 0, 0, time.UTC), time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(daily.Next(tt.from)), "got %s", daily.Next(tt.from))
		})
	}
}

func TestDailyNextHonoursLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	daily := Daily{Hour: 9, Location: loc}

	next := daily.Next(time.Date(2026, 10, 14, 6, 0, 0, 0, time.UTC))

	assert.True(t, time.Date(2026, 10, 14, 7, 0, 0, 0, time.UTC).Equal(next), "09:00 at UTC+2 is 07:00 UTC")
}

func TestWeeklyNext(t *testing.T) {
	weekly := Weekly{Weekday: time.Monday, Hour: 8, Location: time.UTC}

	tests := []struct {
		name string
		from time.Time
		want time.Time
	}{
		// 2026-10-14 is a Wednesday.
		{"midweek", time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC), time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)},
		{"monday before run", time.Date(2026, 10, 19, 7, 0, 0, 0, time.UTC), time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)},
		{"monday after run", time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC), time.Date(2026, 10, 26, 8, 0, 0, 0, time.UTC)},
		{"sunday", time.Date(2026, 10, 18, 23, 0, 0, 0, time.UTC), time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(weekly.Next(tt.from)), "got %s", weekly.Next(tt.from))
		})
	}
}

func TestParseSchedules(t *testing.T) {
	daily, err := ParseDaily("09:00", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 9, daily.Hour)

	weekly, err := ParseWeekly("mon 08:30", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Monday, weekly.Weekday)
	assert.Equal(t, 30, weekly.Minute)

	_, err = ParseDaily("9am", time.UTC)
	assert.Error(t, err)
	_, err = ParseWeekly("08:00", time.UTC)
	assert.Error(t, err)
	_, err = ParseWeekly("FUN 08:00", time.UTC)
	assert.Error(t, err)
}
