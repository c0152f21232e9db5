package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"

	"notra/internal/generation"
	"notra/internal/logging"
	"notra/internal/observability"
	"notra/internal/trigger"
)

// TriggerSource loads trigger definitions for the orchestrator. The
// orchestrator only reads trigger state; it never mutates it.
type TriggerSource interface {
	// GetTriggerByID returns an error wrapping trigger.ErrTriggerNotFound
	// when the trigger no longer exists.
	GetTriggerByID(ctx context.Context, id string) (*trigger.Trigger, error)
}

// WindowSource loads the auxiliary lookback record for a trigger. ok is
// false when no record exists; the run then falls back to the default
// window rather than failing.
type WindowSource interface {
	GetWindow(ctx context.Context, triggerID string) (w trigger.LookbackWindow, ok bool, err error)
}

// RepositoryDirectory resolves repository ids to concrete records. Missing
// ids are omitted, not errors.
type RepositoryDirectory interface {
	ResolveRepositories(ctx context.Context, ids []string) ([]Repository, error)
}

// BrandSource loads organization branding. (nil, nil) means the organization
// has none; generation uses defaults.
type BrandSource interface {
	GetBrandSettings(ctx context.Context, organizationID string) (*generation.BrandSettings, error)
}

// PostStore persists generated posts. Insert-only: duplicate runs produce
// duplicate posts, an accepted risk of at-least-once delivery.
type PostStore interface {
	InsertPost(ctx context.Context, post *Post) error
}

// RunRequest identifies one workflow invocation. RunID is the checkpoint
// namespace; re-delivering the same RunID resumes from the first
// unexecuted step.
type RunRequest struct {
	RunID     string `json:"runId"`
	TriggerID string `json:"triggerId"`
}

// Result is the terminal outcome of a run.
type Result struct {
	Success      bool   `json:"success"`
	Canceled     bool   `json:"canceled"`
	CancelReason string `json:"cancelReason,omitempty"`
	TriggerID    string `json:"triggerId"`
	PostID       string `json:"postId,omitempty"`
}

// RunFailure is handed to the failure hook when a step errors. The
// orchestrator itself never retries; re-delivery by the invoking queue or
// scheduler drives retries.
type RunFailure struct {
	RunID     string
	TriggerID string
	Step      Step
	Err       error
}

// FailureHook records failure context for operator visibility.
type FailureHook func(ctx context.Context, failure RunFailure)

// Runner drives a trigger invocation through the checkpointed step sequence
// fetch-trigger, fetch-lookback-window, fetch-repositories,
// fetch-brand-settings, generate-content, save-post. Every collaborator is
// injected so the whole machine runs against fakes in tests.
type Runner struct {
	triggers    TriggerSource
	windows     WindowSource
	directory   RepositoryDirectory
	brands      BrandSource
	generator   generation.Generator
	posts       PostStore
	checkpoints CheckpointStore
	failureHook FailureHook
	logger      logging.Logger
	metrics     *observability.Metrics
	now         func() time.Time
	newPostID   func() string
}

// RunnerDeps bundles the collaborators a Runner needs.
type RunnerDeps struct {
	Triggers    TriggerSource
	Windows     WindowSource
	Directory   RepositoryDirectory
	Brands      BrandSource
	Generator   generation.Generator
	Posts       PostStore
	Checkpoints CheckpointStore
	FailureHook FailureHook
	Logger      logging.Logger
	Metrics     *observability.Metrics
}

// NewRunner builds a workflow Runner.
func NewRunner(deps RunnerDeps) *Runner {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = observability.DefaultMetrics()
	}
	checkpoints := deps.Checkpoints
	if checkpoints == nil {
		checkpoints = NewMemoryCheckpointStore()
	}
	return &Runner{
		triggers:    deps.Triggers,
		windows:     deps.Windows,
		directory:   deps.Directory,
		brands:      deps.Brands,
		generator:   deps.Generator,
		posts:       deps.Posts,
		checkpoints: checkpoints,
		failureHook: deps.FailureHook,
		logger:      logging.OrNop(deps.Logger),
		metrics:     metrics,
		now:         time.Now,
		newPostID:   func() string { return uuid.New().String() },
	}
}

// NewRunID allocates a sortable run identifier.
func NewRunID() string {
	return ksuid.New().String()
}

// Run executes one workflow invocation. Cancellation (trigger deleted,
// disabled, or no live repositories) returns a canceled Result with nil
// error; only genuine step failures return an error.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*Result, error) {
	if req.TriggerID == "" {
		return nil, fmt.Errorf("workflow: trigger id is required")
	}
	runID := req.RunID
	if runID == "" {
		runID = NewRunID()
	}

	r.metrics.RunsActive.Inc()
	defer r.metrics.RunsActive.Dec()

	result, err := r.run(ctx, runID, req.TriggerID)
	if err != nil {
		var cancel *CancelError
		if errors.As(err, &cancel) {
			r.metrics.WorkflowRuns.WithLabelValues("canceled").Inc()
			r.logger.Info("Run %s canceled at %s: %s", runID, cancel.Step, cancel.Reason)
			return &Result{Canceled: true, CancelReason: cancel.Reason, TriggerID: req.TriggerID}, nil
		}
		r.metrics.WorkflowRuns.WithLabelValues("failed").Inc()
		return nil, err
	}

	r.metrics.WorkflowRuns.WithLabelValues("succeeded").Inc()
	r.logger.Info("Run %s completed: post %s for trigger %s", runID, result.PostID, req.TriggerID)
	return result, nil
}

func (r *Runner) run(ctx context.Context, runID, triggerID string) (*Result, error) {
	trig, err := step(ctx, r, runID, StepFetchTrigger, func(ctx context.Context) (*trigger.Trigger, error) {
		t, err := r.triggers.GetTriggerByID(ctx, triggerID)
		if errors.Is(err, trigger.ErrTriggerNotFound) {
			// Deleted after scheduling. Not a transient fault, so no retry.
			return nil, &CancelError{Step: StepFetchTrigger, Reason: "trigger no longer exists"}
		}
		return t, err
	})
	if err != nil {
		r.recordFailure(ctx, runID, triggerID, StepFetchTrigger, err)
		return nil, err
	}

	if !trig.Enabled {
		// The user paused it; not an error.
		return nil, &CancelError{Step: StepFetchTrigger, Reason: "trigger is disabled"}
	}

	window, err := step(ctx, r, runID, StepFetchLookbackWindow, func(ctx context.Context) (windowOutput, error) {
		w, ok, err := r.windows.GetWindow(ctx, trig.ID)
		if err != nil {
			return windowOutput{}, err
		}
		if !ok {
			// Triggers created before lookback records existed have none.
			return windowOutput{Window: trigger.DefaultWindow}, nil
		}
		return windowOutput{Window: w}, nil
	})
	if err != nil {
		r.recordFailure(ctx, runID, trig.ID, StepFetchLookbackWindow, err)
		return nil, err
	}

	repos, err := step(ctx, r, runID, StepFetchRepositories, func(ctx context.Context) ([]Repository, error) {
		resolved, err := r.directory.ResolveRepositories(ctx, trig.Targets.RepositoryIDs)
		if err != nil {
			return nil, err
		}
		if len(resolved) == 0 {
			return nil, &CancelError{Step: StepFetchRepositories, Reason: "no live target repositories"}
		}
		return resolved, nil
	})
	if err != nil {
		r.recordFailure(ctx, runID, trig.ID, StepFetchRepositories, err)
		return nil, err
	}

	brand, err := step(ctx, r, runID, StepFetchBrandSettings, func(ctx context.Context) (brandOutput, error) {
		settings, err := r.brands.GetBrandSettings(ctx, trig.OrganizationID)
		if err != nil {
			return brandOutput{}, err
		}
		if settings == nil {
			return brandOutput{}, nil
		}
		return brandOutput{Present: true, Brand: *settings}, nil
	})
	if err != nil {
		r.recordFailure(ctx, runID, trig.ID, StepFetchBrandSettings, err)
		return nil, err
	}

	content, err := step(ctx, r, runID, StepGenerateContent, func(ctx context.Context) (contentOutput, error) {
		return r.generateContent(ctx, trig, window.Window, repos, brand)
	})
	if err != nil {
		r.recordFailure(ctx, runID, trig.ID, StepGenerateContent, err)
		return nil, err
	}

	saved, err := step(ctx, r, runID, StepSavePost, func(ctx context.Context) (saveOutput, error) {
		post := &Post{
			ID:             r.newPostID(),
			OrganizationID: trig.OrganizationID,
			Title:          content.Title,
			Markdown:       content.Markdown,
			ContentType:    content.ContentType,
			CreatedAt:      r.now().UTC(),
		}
		if err := r.posts.InsertPost(ctx, post); err != nil {
			return saveOutput{}, fmt.Errorf("insert post: %w", err)
		}
		return saveOutput{PostID: post.ID}, nil
	})
	if err != nil {
		r.recordFailure(ctx, runID, trig.ID, StepSavePost, err)
		return nil, err
	}

	return &Result{Success: true, TriggerID: trig.ID, PostID: saved.PostID}, nil
}

// generateContent branches on output type. Changelogs get the full
// generation call; any output kind without an implementation produces a
// placeholder so the run still reaches save-post.
func (r *Runner) generateContent(ctx context.Context, trig *trigger.Trigger, window trigger.LookbackWindow, repos []Repository, brand brandOutput) (contentOutput, error) {
	names := make([]string, len(repos))
	for i, repo := range repos {
		names[i] = repo.FullName()
	}

	switch trig.OutputType {
	case trigger.OutputChangelog:
		now := r.now().UTC()
		rng := trigger.Resolve(window, now)
		result, err := r.generator.Generate(ctx, generation.Request{
			Brand:       brand.Brand,
			Instruction: generation.BuildChangelogInstruction(names, rng, now),
		})
		if err != nil {
			return contentOutput{}, fmt.Errorf("generate changelog: %w", err)
		}
		return contentOutput{
			Title:       result.Title,
			Markdown:    result.Markdown,
			ContentType: string(trig.OutputType),
			RangeStart:  rng.Start,
			RangeEnd:    rng.End,
			RangeLabel:  rng.Label,
		}, nil
	default:
		return placeholderContent(trig.OutputType, names), nil
	}
}

func placeholderContent(outputType trigger.OutputType, repos []string) contentOutput {
	title := fmt.Sprintf("%s generation coming soon", outputType)
	markdown := fmt.Sprintf(
		"# %s\n\nAutomatic %s generation is not available yet. This run covered:\n",
		title, outputType,
	)
	for _, repo := range repos {
		markdown += fmt.Sprintf("- %s\n", repo)
	}
	return contentOutput{Title: title, Markdown: markdown, ContentType: string(outputType)}
}

func (r *Runner) recordFailure(ctx context.Context, runID, triggerID string, st Step, err error) {
	var cancel *CancelError
	if errors.As(err, &cancel) {
		return
	}
	r.metrics.WorkflowStepFailures.WithLabelValues(string(st)).Inc()
	r.logger.Error("Run %s failed at %s for trigger %s: %v", runID, st, triggerID, err)
	if r.failureHook != nil {
		r.failureHook(ctx, RunFailure{RunID: runID, TriggerID: triggerID, Step: st, Err: err})
	}
}

// step executes one checkpointed unit: reuse the recorded output when the
// step already completed, otherwise run fn and record its output.
// Cancellation errors are never checkpointed; a re-delivered run evaluates
// the condition again.
func step[T any](ctx context.Context, r *Runner, runID string, st Step, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T

	data, ok, err := r.checkpoints.GetCheckpoint(ctx, runID, st)
	if err != nil {
		return out, fmt.Errorf("load checkpoint %s/%s: %w", runID, st, err)
	}
	if ok {
		if err := json.Unmarshal(data, &out); err != nil {
			return out, fmt.Errorf("decode checkpoint %s/%s: %w", runID, st, err)
		}
		r.logger.Debug("Run %s: reusing checkpoint for %s", runID, st)
		return out, nil
	}

	out, err = fn(ctx)
	if err != nil {
		return out, err
	}

	data, err = json.Marshal(out)
	if err != nil {
		return out, fmt.Errorf("encode checkpoint %s/%s: %w", runID, st, err)
	}
	if err := r.checkpoints.PutCheckpoint(ctx, runID, st, data); err != nil {
		return out, fmt.Errorf("save checkpoint %s/%s: %w", runID, st, err)
	}
	return out, nil
}
