package heartbeat

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

func TestMonitorEvaluateReportsTransitions(t *testing.T) {
	registry := NewRegistry()
	monitor := NewMonitor(registry, MonitorConfig{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	previous := map[string]string{}

	registry.Beat("scheduler", "ok")
	if transitions := monitor.evaluate(registry.Snapshot(0), previous); len(transitions) != 0 {
		t.Fatalf("expected first sighting to be silent, got %+v", transitions)
	}

	registry.Degrade("scheduler", "timer backup failed", context.DeadlineExceeded)
	transitions := monitor.evaluate(registry.Snapshot(0), previous)
	if len(transitions) != 1 || transitions[0].FromState != StateHealthy || transitions[0].ToState != StateDegraded {
		t.Fatalf("unexpected degraded transitions: %+v", transitions)
	}
	if transitions[0].Error == "" {
		t.Fatalf("expected degraded transition to carry the error: %+v", transitions[0])
	}

	if transitions := monitor.evaluate(registry.Snapshot(0), previous); len(transitions) != 0 {
		t.Fatalf("expected unchanged state to be silent, got %+v", transitions)
	}

	registry.Beat("scheduler", "recovered")
	transitions = monitor.evaluate(registry.Snapshot(0), previous)
	if len(transitions) != 1 || transitions[0].FromState != StateDegraded || transitions[0].ToState != StateHealthy {
		t.Fatalf("unexpected recovered transitions: %+v", transitions)
	}
}

func TestMonitorWritesStatusFile(t *testing.T) {
	registry := NewRegistry()
	statusPath := filepath.Join(t.TempDir(), "status", "status.json")
	monitor := NewMonitor(registry, MonitorConfig{
		Interval:   10 * time.Millisecond,
		StatusPath: statusPath,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	registry.Beat("scheduler", "ok")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = monitor.Start(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	<-done

	snapshot, err := ReadStatus(statusPath)
	if err != nil {
		t.Fatalf("read status: %v", err)
	}
	if snapshot.Overall != StateHealthy || len(snapshot.Components) != 1 {
		t.Fatalf("unexpected status snapshot %+v", snapshot)
	}
}

func TestWriteStatusSkipsEmptyPath(t *testing.T) {
	if err := WriteStatus("", Snapshot{}); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
}
