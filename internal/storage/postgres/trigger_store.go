package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"notra/internal/trigger"
)

// TriggerStore persists triggers and their paired lookback-window rows. It
// implements trigger.Store for the service layer and the read-only trigger
// and window sources for the workflow runner.
type TriggerStore struct {
	pool Pool
}

// NewTriggerStore builds a TriggerStore backed by the provided pool.
func NewTriggerStore(pool Pool) (*TriggerStore, error) {
	if pool == nil {
		return nil, errors.New("trigger store requires pool")
	}
	return &TriggerStore{pool: pool}, nil
}

const triggerColumns = `t.id, t.organization_id, t.name, t.source_type, t.source_config, t.targets,
    t.output_type, t.output_config, t.dedupe_hash, t.enabled, t.qstash_schedule_id,
    t.version, t.created_at, t.updated_at, COALESCE(lw.win, '')`

const triggerFrom = ` FROM triggers t LEFT JOIN lookback_windows lw ON lw.trigger_id = t.id`

// GetTrigger loads a trigger scoped by organization.
func (s *TriggerStore) GetTrigger(ctx context.Context, organizationID, id string) (*trigger.Trigger, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+triggerColumns+triggerFrom+` WHERE t.id = $1 AND t.organization_id = $2`,
		id, organizationID)
	t, err := scanTrigger(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", trigger.ErrTriggerNotFound, id)
	}
	return t, err
}

// GetTriggerByID loads a trigger without organization scoping. Used by the
// workflow runner, which is handed only a trigger id by the scheduler.
func (s *TriggerStore) GetTriggerByID(ctx context.Context, id string) (*trigger.Trigger, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+triggerColumns+triggerFrom+` WHERE t.id = $1`, id)
	t, err := scanTrigger(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", trigger.ErrTriggerNotFound, id)
	}
	return t, err
}

// FindByDedupeHash returns the live trigger with the given hash, or nil.
func (s *TriggerStore) FindByDedupeHash(ctx context.Context, organizationID, hash string) (*trigger.Trigger, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+triggerColumns+triggerFrom+` WHERE t.organization_id = $1 AND t.dedupe_hash = $2`,
		organizationID, hash)
	t, err := scanTrigger(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// GetWindow loads the lookback record for a trigger. ok is false when the
// trigger predates lookback records.
func (s *TriggerStore) GetWindow(ctx context.Context, triggerID string) (trigger.LookbackWindow, bool, error) {
	var raw string
	err := s.pool.QueryRow(ctx,
		`SELECT win FROM lookback_windows WHERE trigger_id = $1`, triggerID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load lookback window: %w", err)
	}
	return trigger.ParseWindow(raw), true, nil
}

// InsertTrigger atomically persists the trigger and its window record.
func (s *TriggerStore) InsertTrigger(ctx context.Context, t *trigger.Trigger) error {
	sourceConfig, targets, outputConfig, err := marshalTriggerJSON(t)
	if err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // no-op if committed

	_, err = tx.Exec(ctx, `
INSERT INTO triggers (
    id, organization_id, name, source_type, source_config, targets,
    output_type, output_config, dedupe_hash, enabled, qstash_schedule_id,
    version, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		t.ID, t.OrganizationID, t.Name, string(t.SourceType), sourceConfig, targets,
		string(t.OutputType), outputConfig, t.DedupeHash, t.Enabled, nullIfEmpty(t.QStashScheduleID),
		t.Version, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert trigger: %w", err)
	}

	_, err = tx.Exec(ctx, `
INSERT INTO lookback_windows (trigger_id, win, created_at, updated_at)
VALUES ($1,$2,$3,$4)`,
		t.ID, string(t.LookbackWindow), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert lookback window: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// UpdateTrigger atomically persists the trigger and upserts its window
// record. The write is guarded by the version column; a concurrent edit that
// bumped the version first fails with trigger.ErrPreconditionFailed.
func (s *TriggerStore) UpdateTrigger(ctx context.Context, t *trigger.Trigger) error {
	sourceConfig, targets, outputConfig, err := marshalTriggerJSON(t)
	if err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // no-op if committed

	tag, err := tx.Exec(ctx, `
UPDATE triggers SET
    name = $1,
    source_type = $2,
    source_config = $3,
    targets = $4,
    output_type = $5,
    output_config = $6,
    dedupe_hash = $7,
    enabled = $8,
    qstash_schedule_id = $9,
    version = version + 1,
    updated_at = $10
WHERE id = $11 AND organization_id = $12 AND version = $13`,
		t.Name, string(t.SourceType), sourceConfig, targets,
		string(t.OutputType), outputConfig, t.DedupeHash, t.Enabled, nullIfEmpty(t.QStashScheduleID),
		t.UpdatedAt, t.ID, t.OrganizationID, t.Version)
	if err != nil {
		return fmt.Errorf("update trigger: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: trigger %s version %d", trigger.ErrPreconditionFailed, t.ID, t.Version)
	}

	_, err = tx.Exec(ctx, `
INSERT INTO lookback_windows (trigger_id, win, created_at, updated_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (trigger_id) DO UPDATE SET
    win = EXCLUDED.win,
    updated_at = EXCLUDED.updated_at`,
		t.ID, string(t.LookbackWindow), t.UpdatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert lookback window: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// DeleteTrigger removes the trigger; the window row cascades. Returns the
// deleted record so the caller can clean up its remote schedule.
func (s *TriggerStore) DeleteTrigger(ctx context.Context, organizationID, id string) (*trigger.Trigger, error) {
	row := s.pool.QueryRow(ctx, `
DELETE FROM triggers t
WHERE t.id = $1 AND t.organization_id = $2
RETURNING t.id, t.organization_id, t.name, t.source_type, t.source_config, t.targets,
    t.output_type, t.output_config, t.dedupe_hash, t.enabled, t.qstash_schedule_id,
    t.version, t.created_at, t.updated_at, ''`,
		id, organizationID)
	t, err := scanTrigger(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", trigger.ErrTriggerNotFound, id)
	}
	return t, err
}

func scanTrigger(row pgx.Row) (*trigger.Trigger, error) {
	var (
		t            trigger.Trigger
		sourceType   string
		outputType   string
		sourceConfig []byte
		targets      []byte
		outputConfig []byte
		scheduleID   *string
		createdAt    time.Time
		updatedAt    time.Time
		window       string
	)
	err := row.Scan(&t.ID, &t.OrganizationID, &t.Name, &sourceType, &sourceConfig, &targets,
		&outputType, &outputConfig, &t.DedupeHash, &t.Enabled, &scheduleID,
		&t.Version, &createdAt, &updatedAt, &window)
	if err != nil {
		return nil, err
	}

	t.SourceType = trigger.SourceType(sourceType)
	t.OutputType = trigger.OutputType(outputType)
	t.CreatedAt = createdAt
	t.UpdatedAt = updatedAt
	t.LookbackWindow = trigger.ParseWindow(window)
	if scheduleID != nil {
		t.QStashScheduleID = *scheduleID
	}

	if err := json.Unmarshal(sourceConfig, &t.SourceConfig); err != nil {
		return nil, fmt.Errorf("decode source config: %w", err)
	}
	if err := json.Unmarshal(targets, &t.Targets); err != nil {
		return nil, fmt.Errorf("decode targets: %w", err)
	}
	if len(outputConfig) > 0 {
		if err := json.Unmarshal(outputConfig, &t.OutputConfig); err != nil {
			return nil, fmt.Errorf("decode output config: %w", err)
		}
	}
	return &t, nil
}

func marshalTriggerJSON(t *trigger.Trigger) (sourceConfig, targets, outputConfig []byte, err error) {
	sourceConfig, err = json.Marshal(t.SourceConfig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode source config: %w", err)
	}
	targets, err = json.Marshal(t.Targets)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode targets: %w", err)
	}
	if t.OutputConfig != nil {
		outputConfig, err = json.Marshal(t.OutputConfig)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("encode output config: %w", err)
		}
	}
	return sourceConfig, targets, outputConfig, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
