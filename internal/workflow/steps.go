package workflow

import (
	"fmt"
	"time"

	"notra/internal/generation"
	"notra/internal/trigger"
)

// Step names one checkpointed unit of a workflow run. Steps execute strictly
// in declared order; a completed step's recorded output is reused on replay.
type Step string

const (
	StepFetchTrigger        Step = "fetch-trigger"
	StepFetchLookbackWindow Step = "fetch-lookback-window"
	StepFetchRepositories   Step = "fetch-repositories"
	StepFetchBrandSettings  Step = "fetch-brand-settings"
	StepGenerateContent     Step = "generate-content"
	StepSavePost            Step = "save-post"
)

// Repository is a resolved target: enough to identify the source of activity
// for generation.
type Repository struct {
	ID            string `json:"id"`
	Owner         string `json:"owner"`
	Repo          string `json:"repo"`
	IntegrationID string `json:"integrationId"`
}

// FullName renders the owner/repo form used in prompts.
func (r Repository) FullName() string {
	return fmt.Sprintf("%s/%s", r.Owner, r.Repo)
}

// Post is the output artifact written by the terminal step. It is never
// mutated by this package afterward.
type Post struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organizationId"`
	Title          string    `json:"title"`
	Markdown       string    `json:"markdown"`
	ContentType    string    `json:"contentType"`
	CreatedAt      time.Time `json:"createdAt"`
}

// windowOutput is the recorded result of fetch-lookback-window.
type windowOutput struct {
	Window trigger.LookbackWindow `json:"window"`
}

// brandOutput is the recorded result of fetch-brand-settings. Present is
// false when the organization has no branding; generation falls back to
// defaults.
type brandOutput struct {
	Present bool                     `json:"present"`
	Brand   generation.BrandSettings `json:"brand"`
}

// contentOutput is the recorded result of generate-content. The resolved
// range is part of the checkpoint so a replayed run never re-derives it from
// a later clock.
type contentOutput struct {
	Title       string    `json:"title"`
	Markdown    string    `json:"markdown"`
	ContentType string    `json:"contentType"`
	RangeStart  time.Time `json:"rangeStart,omitempty"`
	RangeEnd    time.Time `json:"rangeEnd,omitempty"`
	RangeLabel  string    `json:"rangeLabel,omitempty"`
}

// saveOutput is the recorded result of save-post.
type saveOutput struct {
	PostID string `json:"postId"`
}

// CancelError stops a run without marking it failed: the condition is
// "nothing to do", not "something broke". Cancellation is terminal,
// non-retryable, and never checkpointed.
type CancelError struct {
	Step   Step
	Reason string
}

func (e *CancelError) Error() string {
	return fmt.Sprintf("workflow canceled at %s: %s", e.Step, e.Reason)
}
