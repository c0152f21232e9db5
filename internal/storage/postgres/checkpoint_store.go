package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"notra/internal/workflow"
)

// CheckpointStore records workflow step outputs so a restarted run resumes
// from its first unexecuted step.
type CheckpointStore struct {
	pool Pool
	now  func() time.Time
}

// NewCheckpointStore builds a CheckpointStore backed by the provided pool.
func NewCheckpointStore(pool Pool) (*CheckpointStore, error) {
	if pool == nil {
		return nil, errors.New("checkpoint store requires pool")
	}
	return &CheckpointStore{pool: pool, now: time.Now}, nil
}

// GetCheckpoint implements workflow.CheckpointStore.
func (s *CheckpointStore) GetCheckpoint(ctx context.Context, runID string, step workflow.Step) ([]byte, bool, error) {
	var output []byte
	err := s.pool.QueryRow(ctx,
		`SELECT output FROM workflow_checkpoints WHERE run_id = $1 AND step = $2`,
		runID, string(step)).Scan(&output)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load checkpoint: %w", err)
	}
	return output, true, nil
}

// PutCheckpoint implements workflow.CheckpointStore. Re-recording the same
// step keeps the first output: a replayed step must observe what the
// original attempt produced.
func (s *CheckpointStore) PutCheckpoint(ctx context.Context, runID string, step workflow.Step, output []byte) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO workflow_checkpoints (run_id, step, output, created_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (run_id, step) DO NOTHING`,
		runID, string(step), output, s.now().UTC())
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}
