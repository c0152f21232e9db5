package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"notra/internal/testutil"
	"notra/internal/trigger"
	"notra/internal/workflow"
)

// These tests run against a real database when NOTRA_TEST_DATABASE_URL is
// set and are skipped otherwise.

func TestTriggerStoreIntegration(t *testing.T) {
	pool, cleanup := testutil.NewPostgresTestPool(t)
	defer cleanup()

	ctx := context.Background()
	if err := EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	s, err := NewTriggerStore(pool)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	tr := sampleTrigger()
	if err := s.InsertTrigger(ctx, tr); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.GetTrigger(ctx, tr.OrganizationID, tr.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.DedupeHash != tr.DedupeHash || got.LookbackWindow != tr.LookbackWindow {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.SourceConfig.Cron == nil || got.SourceConfig.Cron.Frequency != trigger.FrequencyWeekly {
		t.Fatalf("source config mismatch: %+v", got.SourceConfig)
	}

	byHash, err := s.FindByDedupeHash(ctx, tr.OrganizationID, tr.DedupeHash)
	if err != nil {
		t.Fatalf("find by hash: %v", err)
	}
	if byHash == nil || byHash.ID != tr.ID {
		t.Fatalf("hash lookup mismatch: %+v", byHash)
	}

	// The unique index rejects a second trigger with the same hash.
	dup := sampleTrigger()
	dup.ID = "trig-2"
	if err := s.InsertTrigger(ctx, dup); err == nil {
		t.Fatal("expected unique violation for duplicate hash")
	}

	// Version-guarded update.
	got.Name = "Renamed"
	got.LookbackWindow = trigger.WindowYesterday
	got.UpdatedAt = time.Now().UTC()
	if err := s.UpdateTrigger(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}

	stale := *got // still carries the pre-update version
	stale.Name = "Stale write"
	if err := s.UpdateTrigger(ctx, &stale); !errors.Is(err, trigger.ErrPreconditionFailed) {
		t.Fatalf("expected precondition failure, got %v", err)
	}

	after, err := s.GetTrigger(ctx, tr.OrganizationID, tr.ID)
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if after.Name != "Renamed" || after.Version != got.Version+1 {
		t.Fatalf("update not applied: %+v", after)
	}
	if after.LookbackWindow != trigger.WindowYesterday {
		t.Fatalf("window not upserted: %q", after.LookbackWindow)
	}

	deleted, err := s.DeleteTrigger(ctx, tr.OrganizationID, tr.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted.QStashScheduleID != tr.QStashScheduleID {
		t.Fatalf("deleted record mismatch: %+v", deleted)
	}

	// The lookback row cascades with the trigger.
	if _, ok, err := s.GetWindow(ctx, tr.ID); err != nil || ok {
		t.Fatalf("window survived delete: ok=%v err=%v", ok, err)
	}
}

func TestCheckpointStoreIntegration(t *testing.T) {
	pool, cleanup := testutil.NewPostgresTestPool(t)
	defer cleanup()

	ctx := context.Background()
	if err := EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	s, err := NewCheckpointStore(pool)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	first := []byte(`{"window":"yesterday"}`)
	if err := s.PutCheckpoint(ctx, "run-1", workflow.StepFetchLookbackWindow, first); err != nil {
		t.Fatalf("put: %v", err)
	}

	// A second write for the same step keeps the first output.
	if err := s.PutCheckpoint(ctx, "run-1", workflow.StepFetchLookbackWindow, []byte(`{"window":"current_day"}`)); err != nil {
		t.Fatalf("second put: %v", err)
	}

	got, ok, err := s.GetCheckpoint(ctx, "run-1", workflow.StepFetchLookbackWindow)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(got) != string(first) {
		t.Fatalf("first output not preserved: %s", got)
	}
}
