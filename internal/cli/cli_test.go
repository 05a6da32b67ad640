package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/dwizi/timer-runtime/internal/heartbeat"
	"github.com/dwizi/timer-runtime/internal/schedule"
	"github.com/dwizi/timer-runtime/internal/store"
)

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRoot(slog.New(slog.NewTextHandler(io.Discard, nil)))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestNewRootIncludesExpectedSubcommands(t *testing.T) {
	root := NewRoot(nil)
	for _, name := range []string{"serve", "next", "check", "history", "status", "version"} {
		if _, _, err := root.Find([]string{name}); err != nil {
			t.Fatalf("expected subcommand %q to exist: %v", name, err)
		}
	}
}

func TestNextPrintsOccurrencesForFields(t *testing.T) {
	t.Setenv("TIMER_RUNTIME_DEFAULT_TIMEZONE", "UTC")
	out, err := runRoot(t, "next", "--sec", "0", "--min", "0", "--hour", "8", "--dow", "TUE",
		"--from", "2024-01-01T00:00:00Z", "--count", "2")
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	expected := []string{"2024-01-02T08:00:00Z", "2024-01-09T08:00:00Z"}
	if len(lines) != len(expected) {
		t.Fatalf("expected %d lines, got %q", len(expected), out)
	}
	for i := range expected {
		if lines[i] != expected[i] {
			t.Fatalf("line %d: expected %s, got %s", i, expected[i], lines[i])
		}
	}
}

func TestNextUsesTimezoneFlag(t *testing.T) {
	out, err := runRoot(t, "next", "--sec", "0", "--min", "30", "--hour", "9",
		"--tz", "Asia/Tokyo", "--from", "2024-03-01T00:00:00Z", "--count", "1")
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if strings.TrimSpace(out) != "2024-03-01T09:30:00+09:00" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestNextReportsHorizon(t *testing.T) {
	_, err := runRoot(t, "next", "--dom", "31", "--month", "2", "--from", "2024-01-01T00:00:00Z")
	if !errors.Is(err, schedule.ErrHorizonExceeded) {
		t.Fatalf("expected horizon error, got %v", err)
	}
}

func TestNextRejectsInvalidField(t *testing.T) {
	_, err := runRoot(t, "next", "--hour", "24")
	if !errors.Is(err, schedule.ErrInvalidValue) {
		t.Fatalf("expected invalid value, got %v", err)
	}
}

func TestNextForNamedTimer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timers.yaml")
	content := "timers:\n  - name: standup\n    command: notify-standup\n    timezone: Europe/Berlin\n    spec: {sec: \"0\", min: \"0\", hour: \"9\", day_of_week: \"mon-fri\"}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write timers: %v", err)
	}
	out, err := runRoot(t, "next", "--file", path, "--timer", "standup", "--from", "2024-01-05T12:00:00Z", "-n", "1")
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if strings.TrimSpace(out) != "2024-01-08T09:00:00+01:00" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestCheckListsTimers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timers.yaml")
	content := "timers:\n  - name: backup\n    cron: \"0 3 * * *\"\n    command: backup.sh\n  - name: paused\n    command: report.sh\n    enabled: false\n    spec: {min: \"0\"}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write timers: %v", err)
	}
	out, err := runRoot(t, "check", "--file", path)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, "backup") || !strings.Contains(out, "cron 0 3 * * *") {
		t.Fatalf("expected backup row, got %q", out)
	}
	if !strings.Contains(out, "disabled") || !strings.Contains(out, "2 timers ok") {
		t.Fatalf("expected disabled timer and summary, got %q", out)
	}
}

func TestCheckFailsOnMissingFile(t *testing.T) {
	_, err := runRoot(t, "check", "--file", filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected missing file error")
	}
}

func TestHistoryPrintsRuns(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.sqlite")
	t.Setenv("TIMER_RUNTIME_DB_PATH", dbPath)

	sqlStore, err := store.New(dbPath)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	if err := sqlStore.AutoMigrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	startedAt := time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC)
	if err := sqlStore.CreateRun(ctx, store.CreateRunInput{ID: "run-1", TimerName: "morning", ScheduledFor: startedAt, StartedAt: startedAt}); err != nil {
		t.Fatalf("create run: %v", err)
	}
	if err := sqlStore.FinishRun(ctx, store.FinishRunInput{ID: "run-1", FinishedAt: startedAt.Add(2 * time.Second), ErrorMessage: "exit status 1"}); err != nil {
		t.Fatalf("finish run: %v", err)
	}
	sqlStore.Close()

	out, err := runRoot(t, "history", "--json")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	var entries []historyEntry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode history output %q: %v", out, err)
	}
	if len(entries) != 1 || entries[0].Timer != "morning" || entries[0].Status != store.RunStatusFailed {
		t.Fatalf("unexpected history %+v", entries)
	}
	if entries[0].DurationMS != 2000 {
		t.Fatalf("expected 2000ms duration, got %d", entries[0].DurationMS)
	}
}

func TestStatusReadsStatusFile(t *testing.T) {
	statusPath := filepath.Join(t.TempDir(), "status.json")
	t.Setenv("TIMER_RUNTIME_STATUS_PATH", statusPath)

	registry := heartbeat.NewRegistry()
	registry.Beat("scheduler", "2 timers scheduled")
	registry.Degrade("timers", "reload failed, previous timers active", errors.New("bad yaml"))
	if err := heartbeat.WriteStatus(statusPath, registry.Snapshot(0)); err != nil {
		t.Fatalf("write status: %v", err)
	}

	out, err := runRoot(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.HasPrefix(out, "overall: degraded") {
		t.Fatalf("expected degraded overall, got %q", out)
	}
	if !strings.Contains(out, "2 timers scheduled") || !strings.Contains(out, "bad yaml") {
		t.Fatalf("expected component rows, got %q", out)
	}
}

func TestStatusFailsWithoutStatusFile(t *testing.T) {
	t.Setenv("TIMER_RUNTIME_STATUS_PATH", filepath.Join(t.TempDir(), "missing.json"))
	if _, err := runRoot(t, "status"); err == nil {
		t.Fatal("expected missing status file error")
	}
}
