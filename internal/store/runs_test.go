package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "timer_runtime_test.sqlite")
	sqlStore, err := New(dbPath)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { _ = sqlStore.Close() })
	if err := sqlStore.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("migrate test store: %v", err)
	}
	return sqlStore
}

func TestAutoMigrateIsRepeatable(t *testing.T) {
	sqlStore := newTestStore(t)
	if err := sqlStore.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	sqlStore := newTestStore(t)
	ctx := context.Background()

	scheduledFor := time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC)
	startedAt := scheduledFor.Add(2 * time.Second)
	if err := sqlStore.CreateRun(ctx, CreateRunInput{
		ID:           "run-1",
		TimerName:    "weekly-report",
		ScheduledFor: scheduledFor,
		StartedAt:    startedAt,
	}); err != nil {
		t.Fatalf("create run: %v", err)
	}

	running, err := sqlStore.LookupRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("lookup run: %v", err)
	}
	if running.Status != RunStatusRunning {
		t.Fatalf("expected running status, got %s", running.Status)
	}

	if err := sqlStore.FinishRun(ctx, FinishRunInput{
		ID:         "run-1",
		FinishedAt: startedAt.Add(3 * time.Second),
		Output:     "report sent",
	}); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	loaded, err := sqlStore.LookupRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("lookup run: %v", err)
	}
	if loaded.Status != RunStatusSucceeded {
		t.Fatalf("expected succeeded status, got %s", loaded.Status)
	}
	if !loaded.ScheduledFor.Equal(scheduledFor) {
		t.Fatalf("expected scheduled_for %s, got %s", scheduledFor, loaded.ScheduledFor)
	}
	if loaded.Duration != 3*time.Second {
		t.Fatalf("expected 3s duration, got %s", loaded.Duration)
	}
	if loaded.Output != "report sent" {
		t.Fatalf("unexpected output %q", loaded.Output)
	}
}

func TestFinishRunWithErrorMarksFailed(t *testing.T) {
	sqlStore := newTestStore(t)
	ctx := context.Background()

	if err := sqlStore.CreateRun(ctx, CreateRunInput{ID: "run-2", TimerName: "nightly"}); err != nil {
		t.Fatalf("create run: %v", err)
	}
	if err := sqlStore.FinishRun(ctx, FinishRunInput{ID: "run-2", ErrorMessage: "exit status 1"}); err != nil {
		t.Fatalf("finish run: %v", err)
	}
	runs, err := sqlStore.ListRuns(ctx, ListRunsInput{TimerName: "nightly", Status: RunStatusFailed})
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ErrorMessage != "exit status 1" {
		t.Fatalf("expected one failed run, got %+v", runs)
	}
}

func TestFinishUnknownRun(t *testing.T) {
	sqlStore := newTestStore(t)
	err := sqlStore.FinishRun(context.Background(), FinishRunInput{ID: "missing"})
	if !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected run not found, got %v", err)
	}
	if _, err := sqlStore.LookupRun(context.Background(), "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected run not found on lookup, got %v", err)
	}
}

func TestListRunsNewestFirstAndPrune(t *testing.T) {
	sqlStore := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for index, id := range []string{"run-a", "run-b", "run-c"} {
		if err := sqlStore.CreateRun(ctx, CreateRunInput{
			ID:        id,
			TimerName: "hourly",
			StartedAt: base.Add(time.Duration(index) * time.Hour),
		}); err != nil {
			t.Fatalf("create run %s: %v", id, err)
		}
	}
	if err := sqlStore.FinishRun(ctx, FinishRunInput{ID: "run-a"}); err != nil {
		t.Fatalf("finish run-a: %v", err)
	}

	runs, err := sqlStore.ListRuns(ctx, ListRunsInput{TimerName: "hourly", Limit: 2})
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-c" || runs[1].ID != "run-b" {
		t.Fatalf("expected newest runs first, got %+v", runs)
	}

	removed, err := sqlStore.PruneRuns(ctx, base.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("prune runs: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected only the finished run pruned, removed %d", removed)
	}
	if _, err := sqlStore.LookupRun(ctx, "run-b"); err != nil {
		t.Fatalf("expected running run kept: %v", err)
	}
}
