package trigger

import (
	"fmt"
	"sort"
	"time"
)

// SourceType identifies what fires a trigger.
type SourceType string

const (
	SourceGitHubWebhook SourceType = "github_webhook"
	SourceLinearWebhook SourceType = "linear_webhook"
	SourceCron          SourceType = "cron"
	SourceManual        SourceType = "manual"
)

var validSourceTypes = map[SourceType]bool{
	SourceGitHubWebhook: true,
	SourceLinearWebhook: true,
	SourceCron:          true,
	SourceManual:        true,
}

// IsValid returns true if the source type is one of the recognized values.
func (s SourceType) IsValid() bool {
	return validSourceTypes[s]
}

// CronFrequency is the symbolic recurrence of a cron source.
type CronFrequency string

const (
	FrequencyDaily   CronFrequency = "daily"
	FrequencyWeekly  CronFrequency = "weekly"
	FrequencyMonthly CronFrequency = "monthly"
)

// CronConfig describes a symbolic schedule. DayOfWeek (0=Sunday) applies to
// weekly frequencies, DayOfMonth to monthly ones.
type CronConfig struct {
	Frequency  CronFrequency `json:"frequency"`
	Hour       int           `json:"hour"`
	Minute     int           `json:"minute"`
	DayOfWeek  *int          `json:"dayOfWeek,omitempty"`
	DayOfMonth *int          `json:"dayOfMonth,omitempty"`
}

// WebhookConfig describes the event filter for webhook-sourced triggers.
type WebhookConfig struct {
	EventTypes []string `json:"eventTypes"`
}

// SourceConfig is the variant payload for a trigger's source. Exactly one of
// Cron or Webhook is set, matching the SourceType; Validate enforces the
// pairing.
type SourceConfig struct {
	Cron    *CronConfig    `json:"cron,omitempty"`
	Webhook *WebhookConfig `json:"webhook,omitempty"`
}

// Targets names the repositories a trigger watches. RepositoryIDs are stored
// sorted; ordering is irrelevant for identity.
type Targets struct {
	RepositoryIDs []string `json:"repositoryIds"`
}

// OutputType is the kind of content a trigger produces.
type OutputType string

const (
	OutputChangelog    OutputType = "changelog"
	OutputLinkedInPost OutputType = "linkedin_post"
	OutputBlogPost     OutputType = "blog_post"
	OutputTwitterPost  OutputType = "twitter_post"
)

// scheduledOutputTypes is the subset of outputs a cron-sourced trigger may
// produce.
var scheduledOutputTypes = map[OutputType]bool{
	OutputChangelog:    true,
	OutputLinkedInPost: true,
}

// LookbackWindow is the symbolic time range bounding which source activity
// feeds content generation.
type LookbackWindow string

const (
	WindowCurrentDay LookbackWindow = "current_day"
	WindowYesterday  LookbackWindow = "yesterday"
	WindowLast7Days  LookbackWindow = "last_7_days"
	WindowLast14Days LookbackWindow = "last_14_days"
	WindowLast30Days LookbackWindow = "last_30_days"
)

// DefaultWindow is used when a trigger has no lookback record.
const DefaultWindow = WindowLast7Days

var validWindows = map[LookbackWindow]bool{
	WindowCurrentDay: true,
	WindowYesterday:  true,
	WindowLast7Days:  true,
	WindowLast14Days: true,
	WindowLast30Days: true,
}

// IsValid returns true if the window is one of the recognized values.
func (w LookbackWindow) IsValid() bool {
	return validWindows[w]
}

// ParseWindow returns the window for s, falling back to DefaultWindow for
// empty or unknown values.
func ParseWindow(s string) LookbackWindow {
	w := LookbackWindow(s)
	if !w.IsValid() {
		return DefaultWindow
	}
	return w
}

const maxNameLength = 120

// Trigger is a persisted automation rule owned by one organization.
type Trigger struct {
	ID               string         `json:"id"`
	OrganizationID   string         `json:"organizationId"`
	Name             string         `json:"name,omitempty"`
	SourceType       SourceType     `json:"sourceType"`
	SourceConfig     SourceConfig   `json:"sourceConfig"`
	Targets          Targets        `json:"targets"`
	OutputType       OutputType     `json:"outputType"`
	OutputConfig     map[string]any `json:"outputConfig,omitempty"`
	DedupeHash       string         `json:"dedupeHash"`
	Enabled          bool           `json:"enabled"`
	QStashScheduleID string         `json:"qstashScheduleId,omitempty"`
	LookbackWindow   LookbackWindow `json:"lookbackWindow"`
	Version          int64          `json:"version"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// Validate checks structural consistency of the trigger definition before any
// side effect happens.
func (t *Trigger) Validate() error {
	if t.OrganizationID == "" {
		return fmt.Errorf("%w: organizationId is required", ErrInvalidTrigger)
	}
	if !t.SourceType.IsValid() {
		return fmt.Errorf("%w: unknown sourceType %q", ErrInvalidTrigger, t.SourceType)
	}
	if len(t.Targets.RepositoryIDs) == 0 {
		return fmt.Errorf("%w: at least one repository is required", ErrInvalidTrigger)
	}
	if t.OutputType == "" {
		return fmt.Errorf("%w: outputType is required", ErrInvalidTrigger)
	}
	if len(t.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidTrigger, maxNameLength)
	}

	switch t.SourceType {
	case SourceCron:
		if t.Name == "" {
			return fmt.Errorf("%w: name is required for cron triggers", ErrInvalidTrigger)
		}
		if t.SourceConfig.Cron == nil {
			return fmt.Errorf("%w: cron config is required for cron triggers", ErrInvalidTrigger)
		}
		if t.SourceConfig.Webhook != nil {
			return fmt.Errorf("%w: webhook config is not allowed on cron triggers", ErrInvalidTrigger)
		}
		if err := t.SourceConfig.Cron.validate(); err != nil {
			return err
		}
		if !scheduledOutputTypes[t.OutputType] {
			return fmt.Errorf("%w: outputType %q is not supported for scheduled triggers", ErrInvalidTrigger, t.OutputType)
		}
	case SourceGitHubWebhook, SourceLinearWebhook:
		if t.SourceConfig.Webhook == nil || len(t.SourceConfig.Webhook.EventTypes) == 0 {
			return fmt.Errorf("%w: event types are required for webhook triggers", ErrInvalidTrigger)
		}
		if t.SourceConfig.Cron != nil {
			return fmt.Errorf("%w: cron config is not allowed on webhook triggers", ErrInvalidTrigger)
		}
	case SourceManual:
		if t.SourceConfig.Cron != nil || t.SourceConfig.Webhook != nil {
			return fmt.Errorf("%w: manual triggers carry no source config", ErrInvalidTrigger)
		}
	}

	if !t.LookbackWindow.IsValid() {
		return fmt.Errorf("%w: unknown lookback window %q", ErrInvalidTrigger, t.LookbackWindow)
	}
	return nil
}

func (c *CronConfig) validate() error {
	switch c.Frequency {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
	default:
		return fmt.Errorf("%w: unknown cron frequency %q", ErrInvalidTrigger, c.Frequency)
	}
	if c.Hour < 0 || c.Hour > 23 {
		return fmt.Errorf("%w: cron hour %d out of range", ErrInvalidTrigger, c.Hour)
	}
	if c.Minute < 0 || c.Minute > 59 {
		return fmt.Errorf("%w: cron minute %d out of range", ErrInvalidTrigger, c.Minute)
	}
	if c.Frequency == FrequencyWeekly {
		if c.DayOfWeek == nil || *c.DayOfWeek < 0 || *c.DayOfWeek > 6 {
			return fmt.Errorf("%w: weekly cron requires dayOfWeek 0-6", ErrInvalidTrigger)
		}
	}
	if c.Frequency == FrequencyMonthly {
		if c.DayOfMonth == nil || *c.DayOfMonth < 1 || *c.DayOfMonth > 31 {
			return fmt.Errorf("%w: monthly cron requires dayOfMonth 1-31", ErrInvalidTrigger)
		}
	}
	return nil
}

// SortTargets stores repository ids in their canonical order.
func (t *Trigger) SortTargets() {
	sort.Strings(t.Targets.RepositoryIDs)
}
