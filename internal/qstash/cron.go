package qstash

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"notra/internal/trigger"
)

// cronParser validates standard 5-field expressions (minute hour dom month
// dow) before they are sent to the remote registry.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// BuildCronExpression maps a symbolic schedule to a 5-field cron string.
// ok is false when the config does not describe a runnable schedule.
func BuildCronExpression(cfg trigger.CronConfig) (string, bool) {
	var expr string
	switch cfg.Frequency {
	case trigger.FrequencyDaily:
		expr = fmt.Sprintf("%d %d * * *", cfg.Minute, cfg.Hour)
	case trigger.FrequencyWeekly:
		if cfg.DayOfWeek == nil {
			return "", false
		}
		expr = fmt.Sprintf("%d %d * * %d", cfg.Minute, cfg.Hour, *cfg.DayOfWeek)
	case trigger.FrequencyMonthly:
		if cfg.DayOfMonth == nil {
			return "", false
		}
		expr = fmt.Sprintf("%d %d %d * *", cfg.Minute, cfg.Hour, *cfg.DayOfMonth)
	default:
		return "", false
	}

	if _, err := cronParser.Parse(expr); err != nil {
		return "", false
	}
	return expr, true
}

// NextRun computes the next firing instant of a cron expression after now.
// Surfaced on the trigger API so the dashboard can show when a schedule will
// fire next.
func NextRun(expr string, now time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression: %w", err)
	}
	return sched.Next(now.UTC()), nil
}
