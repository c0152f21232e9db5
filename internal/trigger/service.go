package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"notra/internal/logging"
	"notra/internal/observability"
)

// Store is the persistence port for triggers. The lookback window row is
// managed alongside the trigger in the same transaction; implementations
// surface it through Trigger.LookbackWindow.
type Store interface {
	// GetTrigger loads a trigger scoped by organization. Returns an error
	// wrapping ErrTriggerNotFound when absent.
	GetTrigger(ctx context.Context, organizationID, id string) (*Trigger, error)
	// FindByDedupeHash returns the live trigger with the given hash, or
	// (nil, nil) when none exists.
	FindByDedupeHash(ctx context.Context, organizationID, hash string) (*Trigger, error)
	// InsertTrigger atomically persists the trigger and its window record.
	InsertTrigger(ctx context.Context, t *Trigger) error
	// UpdateTrigger atomically persists the trigger and upserts its window
	// record. The write is guarded by the trigger's Version; a mismatch
	// returns an error wrapping ErrPreconditionFailed.
	UpdateTrigger(ctx context.Context, t *Trigger) error
	// DeleteTrigger removes the trigger (the window row cascades) and
	// returns the deleted record.
	DeleteTrigger(ctx context.Context, organizationID, id string) (*Trigger, error)
}

// ScheduleRequest asks the remote registry to create or update a cron
// registration for a trigger.
type ScheduleRequest struct {
	TriggerID          string
	CronExpression     string
	ExistingScheduleID string
}

// ScheduleRegistry is the port to the remote cron-registration service.
type ScheduleRegistry interface {
	// CronExpression maps a symbolic cron config to a 5-field cron string.
	// ok is false when the config cannot be expressed as a schedule.
	CronExpression(cfg CronConfig) (expr string, ok bool)
	// CreateOrUpdateSchedule registers the schedule remotely. When
	// ExistingScheduleID is set the registration is updated in place.
	CreateOrUpdateSchedule(ctx context.Context, req ScheduleRequest) (scheduleID string, err error)
	// DeleteSchedule removes a registration. Deleting an unknown id is not
	// an error.
	DeleteSchedule(ctx context.Context, scheduleID string) error
}

// CompensationStatus classifies the result of undoing a remote schedule after
// a failed persistence step.
type CompensationStatus string

const (
	CompensationNotNeeded CompensationStatus = "not_needed"
	Compensated           CompensationStatus = "compensated"
	CompensationFailed    CompensationStatus = "failed"
)

// CompensationOutcome records what happened to the remote schedule when a
// multi-system operation had to be rolled back.
type CompensationOutcome struct {
	Status     CompensationStatus
	ScheduleID string
	Err        error
}

// PersistError carries the original persistence failure together with the
// compensation outcome, so callers can assert on compensation without log
// inspection.
type PersistError struct {
	Err          error
	Compensation CompensationOutcome
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist trigger: %v (schedule compensation: %s)", e.Err, e.Compensation.Status)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// Input is the payload accepted by CreateTrigger and UpdateTrigger.
type Input struct {
	Name           string
	SourceType     SourceType
	SourceConfig   SourceConfig
	Targets        Targets
	OutputType     OutputType
	OutputConfig   map[string]any
	Enabled        bool
	LookbackWindow LookbackWindow
}

// Service implements the create/update/delete protocol that coordinates the
// fingerprint engine, the remote schedule registry, and the transactional
// store. The registry and the database fail independently; the service
// registers the schedule first and compensates when the database write fails,
// accepting a short-lived orphan schedule over a committed trigger with no
// working registration.
type Service struct {
	store    Store
	registry ScheduleRegistry
	logger   logging.Logger
	metrics  *observability.Metrics
	now      func() time.Time
	newID    func() string
}

// NewService builds a trigger Service.
func NewService(store Store, registry ScheduleRegistry, logger logging.Logger, metrics *observability.Metrics) *Service {
	if metrics == nil {
		metrics = observability.DefaultMetrics()
	}
	return &Service{
		store:    store,
		registry: registry,
		logger:   logging.OrNop(logger),
		metrics:  metrics,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// CreateTrigger validates, deduplicates, registers the remote schedule when
// the source is cron-resolvable, and persists the trigger with its window
// record in one transaction.
func (s *Service) CreateTrigger(ctx context.Context, organizationID string, in Input) (*Trigger, error) {
	now := s.now().UTC()
	t := &Trigger{
		ID:             s.newID(),
		OrganizationID: organizationID,
		Name:           in.Name,
		SourceType:     in.SourceType,
		SourceConfig:   in.SourceConfig,
		Targets:        in.Targets,
		OutputType:     in.OutputType,
		OutputConfig:   in.OutputConfig,
		Enabled:        in.Enabled,
		LookbackWindow: in.LookbackWindow,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if t.LookbackWindow == "" {
		t.LookbackWindow = DefaultWindow
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	norm := Normalize(t.SourceConfig, t.Targets)
	hash, err := Fingerprint(t.SourceType, norm, t.OutputType, t.LookbackWindow)
	if err != nil {
		return nil, err
	}
	t.DedupeHash = hash
	t.SourceConfig = norm.SourceConfig
	t.Targets = norm.Targets

	existing, err := s.store.FindByDedupeHash(ctx, organizationID, hash)
	if err != nil {
		return nil, fmt.Errorf("duplicate check: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: matches trigger %s", ErrDuplicateTrigger, existing.ID)
	}

	scheduleID, err := s.registerSchedule(ctx, t, "")
	if err != nil {
		return nil, err
	}
	t.QStashScheduleID = scheduleID

	if err := s.store.InsertTrigger(ctx, t); err != nil {
		outcome := s.compensateSchedule(ctx, scheduleID)
		return nil, &PersistError{Err: err, Compensation: outcome}
	}

	s.logger.Info("Trigger %s created for org %s (schedule=%q)", t.ID, organizationID, scheduleID)
	return t, nil
}

// UpdateTrigger mirrors CreateTrigger but excludes the trigger's own id from
// the duplicate check, updates the remote registration in place, and upserts
// the window record. The remote schedule is compensated only when the failed
// write had allocated a *new* schedule id; an id still owned by the committed
// trigger is never deleted.
func (s *Service) UpdateTrigger(ctx context.Context, organizationID, id string, in Input) (*Trigger, error) {
	existing, err := s.store.GetTrigger(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}

	t := &Trigger{
		ID:             existing.ID,
		OrganizationID: existing.OrganizationID,
		Name:           in.Name,
		SourceType:     in.SourceType,
		SourceConfig:   in.SourceConfig,
		Targets:        in.Targets,
		OutputType:     in.OutputType,
		OutputConfig:   in.OutputConfig,
		Enabled:        in.Enabled,
		LookbackWindow: in.LookbackWindow,
		Version:        existing.Version,
		CreatedAt:      existing.CreatedAt,
		UpdatedAt:      s.now().UTC(),
	}
	if t.LookbackWindow == "" {
		t.LookbackWindow = DefaultWindow
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	norm := Normalize(t.SourceConfig, t.Targets)
	hash, err := Fingerprint(t.SourceType, norm, t.OutputType, t.LookbackWindow)
	if err != nil {
		return nil, err
	}
	t.DedupeHash = hash
	t.SourceConfig = norm.SourceConfig
	t.Targets = norm.Targets

	dup, err := s.store.FindByDedupeHash(ctx, organizationID, hash)
	if err != nil {
		return nil, fmt.Errorf("duplicate check: %w", err)
	}
	if dup != nil && dup.ID != id {
		return nil, fmt.Errorf("%w: matches trigger %s", ErrDuplicateTrigger, dup.ID)
	}

	scheduleID, err := s.registerSchedule(ctx, t, existing.QStashScheduleID)
	if err != nil {
		return nil, err
	}
	t.QStashScheduleID = scheduleID

	if err := s.store.UpdateTrigger(ctx, t); err != nil {
		outcome := CompensationOutcome{Status: CompensationNotNeeded}
		if scheduleID != "" && scheduleID != existing.QStashScheduleID {
			outcome = s.compensateSchedule(ctx, scheduleID)
		}
		return nil, &PersistError{Err: err, Compensation: outcome}
	}
	t.Version++

	// The source may have stopped being cron-resolvable; the stale remote
	// registration must not keep firing. Deleted only after the write commits,
	// so a failed persist never strips the committed trigger's registration.
	if scheduleID == "" && existing.QStashScheduleID != "" {
		if err := s.registry.DeleteSchedule(ctx, existing.QStashScheduleID); err != nil {
			s.logger.Warn("Trigger %s: failed to delete stale schedule %s: %v", id, existing.QStashScheduleID, err)
		}
	}

	s.logger.Info("Trigger %s updated for org %s (schedule=%q)", t.ID, organizationID, scheduleID)
	return t, nil
}

// DeleteTrigger removes the trigger and best-effort deletes its remote
// schedule. A failed remote delete never fails the operation.
func (s *Service) DeleteTrigger(ctx context.Context, organizationID, id string) error {
	deleted, err := s.store.DeleteTrigger(ctx, organizationID, id)
	if err != nil {
		return err
	}
	if deleted.QStashScheduleID != "" {
		if err := s.registry.DeleteSchedule(ctx, deleted.QStashScheduleID); err != nil {
			s.metrics.ScheduleOps.WithLabelValues("delete", "error").Inc()
			s.logger.Warn("Trigger %s deleted but schedule %s removal failed: %v", id, deleted.QStashScheduleID, err)
		} else {
			s.metrics.ScheduleOps.WithLabelValues("delete", "ok").Inc()
		}
	}
	s.logger.Info("Trigger %s deleted for org %s", id, organizationID)
	return nil
}

// registerSchedule registers or updates the remote schedule when the source
// config resolves to a cron expression. Returns "" for non-cron sources.
func (s *Service) registerSchedule(ctx context.Context, t *Trigger, existingScheduleID string) (string, error) {
	if t.SourceConfig.Cron == nil {
		return "", nil
	}
	expr, ok := s.registry.CronExpression(*t.SourceConfig.Cron)
	if !ok {
		return "", nil
	}

	op := "create"
	if existingScheduleID != "" {
		op = "update"
	}
	scheduleID, err := s.registry.CreateOrUpdateSchedule(ctx, ScheduleRequest{
		TriggerID:          t.ID,
		CronExpression:     expr,
		ExistingScheduleID: existingScheduleID,
	})
	if err != nil {
		s.metrics.ScheduleOps.WithLabelValues(op, "error").Inc()
		return "", fmt.Errorf("register schedule: %w", err)
	}
	s.metrics.ScheduleOps.WithLabelValues(op, "ok").Inc()
	return scheduleID, nil
}

// compensateSchedule undoes a schedule registration after a failed database
// write. Failures are recorded, not thrown: the original persistence error is
// the one the caller sees.
func (s *Service) compensateSchedule(ctx context.Context, scheduleID string) CompensationOutcome {
	if scheduleID == "" {
		s.metrics.Compensations.WithLabelValues(string(CompensationNotNeeded)).Inc()
		return CompensationOutcome{Status: CompensationNotNeeded}
	}
	if err := s.registry.DeleteSchedule(ctx, scheduleID); err != nil {
		s.metrics.Compensations.WithLabelValues(string(CompensationFailed)).Inc()
		s.logger.Error("Compensation failed for schedule %s: %v", scheduleID, err)
		return CompensationOutcome{Status: CompensationFailed, ScheduleID: scheduleID, Err: err}
	}
	s.metrics.Compensations.WithLabelValues(string(Compensated)).Inc()
	s.logger.Info("Compensated schedule %s after persistence failure", scheduleID)
	return CompensationOutcome{Status: Compensated, ScheduleID: scheduleID}
}
