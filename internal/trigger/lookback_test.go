package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		window LookbackWindow
		start  time.Time
		end    time.Time
		label  string
	}{
		{
			name:   "current day",
			window: WindowCurrentDay,
			start:  time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
			end:    now,
			label:  "today so far",
		},
		{
			name:   "yesterday",
			window: WindowYesterday,
			start:  time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC),
			end:    time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
			label:  "yesterday",
		},
		{
			name:   "last 7 days",
			window: WindowLast7Days,
			start:  time.Date(2024, 3, 8, 10, 0, 0, 0, time.UTC),
			end:    now,
			label:  "last 7 days (rolling)",
		},
		{
			name:   "last 14 days",
			window: WindowLast14Days,
			start:  time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
			end:    now,
			label:  "last 14 days (rolling)",
		},
		{
			name:   "last 30 days",
			window: WindowLast30Days,
			start:  time.Date(2024, 2, 14, 10, 0, 0, 0, time.UTC),
			end:    now,
			label:  "last 30 days (rolling)",
		},
		{
			name:   "unknown window falls back to last 7 days",
			window: LookbackWindow("fortnightly"),
			start:  time.Date(2024, 3, 8, 10, 0, 0, 0, time.UTC),
			end:    now,
			label:  "last 7 days (rolling)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Resolve(tt.window, now)
			assert.Equal(t, tt.start, r.Start)
			assert.Equal(t, tt.end, r.End)
			assert.Equal(t, tt.label, r.Label)
		})
	}
}

func TestResolve_Deterministic(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	a := Resolve(WindowLast7Days, now)
	b := Resolve(WindowLast7Days, now)
	assert.Equal(t, a, b)
}

func TestResolve_NormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	now := time.Date(2024, 3, 15, 18, 0, 0, 0, loc) // 10:00 UTC

	r := Resolve(WindowYesterday, now)
	assert.Equal(t, time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), r.Start)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), r.End)
}

func TestParseWindow(t *testing.T) {
	assert.Equal(t, WindowYesterday, ParseWindow("yesterday"))
	assert.Equal(t, DefaultWindow, ParseWindow(""))
	assert.Equal(t, DefaultWindow, ParseWindow("bogus"))
}
