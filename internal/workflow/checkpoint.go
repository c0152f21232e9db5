package workflow

import (
	"context"
	"sync"
)

// CheckpointStore persists step outputs keyed by (runID, step). The driver
// loop skips any step whose output already exists, which is what makes
// replay after a crash idempotent.
type CheckpointStore interface {
	// GetCheckpoint returns the recorded output for the step, with ok=false
	// when the step has not completed.
	GetCheckpoint(ctx context.Context, runID string, step Step) (output []byte, ok bool, err error)
	// PutCheckpoint records the output of a completed step.
	PutCheckpoint(ctx context.Context, runID string, step Step, output []byte) error
}

// MemoryCheckpointStore is an in-process CheckpointStore used in tests and
// for synchronous "run now" invocations where durability does not matter.
type MemoryCheckpointStore struct {
	mu   sync.RWMutex
	data map[string]map[Step][]byte
}

// NewMemoryCheckpointStore builds an empty in-memory store.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{data: make(map[string]map[Step][]byte)}
}

// GetCheckpoint implements CheckpointStore.
func (s *MemoryCheckpointStore) GetCheckpoint(_ context.Context, runID string, step Step) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out, ok := s.data[runID][step]
	return out, ok, nil
}

// PutCheckpoint implements CheckpointStore.
func (s *MemoryCheckpointStore) PutCheckpoint(_ context.Context, runID string, step Step, output []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[runID] == nil {
		s.data[runID] = make(map[Step][]byte)
	}
	s.data[runID][step] = output
	return nil
}
