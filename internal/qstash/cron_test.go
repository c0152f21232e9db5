package qstash

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notra/internal/trigger"
)

func intPtr(v int) *int { return &v }

func TestBuildCronExpression(t *testing.T) {
	tests := []struct {
		name string
		cfg  trigger.CronConfig
		want string
		ok   bool
	}{
		{
			name: "daily",
			cfg:  trigger.CronConfig{Frequency: trigger.FrequencyDaily, Hour: 9, Minute: 30},
			want: "30 9 * * *",
			ok:   true,
		},
		{
			name: "daily midnight",
			cfg:  trigger.CronConfig{Frequency: trigger.FrequencyDaily},
			want: "0 0 * * *",
			ok:   true,
		},
		{
			name: "weekly monday",
			cfg:  trigger.CronConfig{Frequency: trigger.FrequencyWeekly, Hour: 8, Minute: 15, DayOfWeek: intPtr(1)},
			want: "15 8 * * 1",
			ok:   true,
		},
		{
			name: "weekly sunday",
			cfg:  trigger.CronConfig{Frequency: trigger.FrequencyWeekly, Hour: 0, Minute: 0, DayOfWeek: intPtr(0)},
			want: "0 0 * * 0",
			ok:   true,
		},
		{
			name: "monthly first",
			cfg:  trigger.CronConfig{Frequency: trigger.FrequencyMonthly, Hour: 6, Minute: 0, DayOfMonth: intPtr(1)},
			want: "0 6 1 * *",
			ok:   true,
		},
		{
			name: "weekly without day of week",
			cfg:  trigger.CronConfig{Frequency: trigger.FrequencyWeekly, Hour: 8},
			ok:   false,
		},
		{
			name: "monthly without day of month",
			cfg:  trigger.CronConfig{Frequency: trigger.FrequencyMonthly, Hour: 8},
			ok:   false,
		},
		{
			name: "unknown frequency",
			cfg:  trigger.CronConfig{Frequency: "hourly"},
			ok:   false,
		},
		{
			name: "out of range hour rejected by parser",
			cfg:  trigger.CronConfig{Frequency: trigger.FrequencyDaily, Hour: 25},
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, ok := BuildCronExpression(tt.cfg)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, expr)
			}
		})
	}
}

func TestNextRun(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC) // a Friday

	next, err := NextRun("30 9 * * *", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 16, 9, 30, 0, 0, time.UTC), next)

	next, err = NextRun("0 8 * * 1", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 18, 8, 0, 0, 0, time.UTC), next)

	_, err = NextRun("not a cron", now)
	require.Error(t, err)
}
