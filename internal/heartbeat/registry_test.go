package heartbeat

import (
	"errors"
	"testing"
	"time"
)

func TestSnapshotMarksStaleComponent(t *testing.T) {
	registry := NewRegistry()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	registry.now = func() time.Time { return clock }
	registry.Beat("scheduler", "ok")
	registry.Ready("timers", "3 timers applied")

	clock = clock.Add(3 * time.Minute)
	snapshot := registry.Snapshot(time.Minute)
	if snapshot.Overall != StateDegraded {
		t.Fatalf("expected degraded overall state, got %s", snapshot.Overall)
	}
	if len(snapshot.Components) != 2 {
		t.Fatalf("expected two components, got %d", len(snapshot.Components))
	}
	if snapshot.Components[0].Name != "scheduler" || snapshot.Components[0].State != StateStale {
		t.Fatalf("expected stale scheduler, got %+v", snapshot.Components[0])
	}
	if snapshot.Components[1].State != StateReady {
		t.Fatalf("expected ready timers to never go stale, got %+v", snapshot.Components[1])
	}
}

func TestSnapshotOverall(t *testing.T) {
	registry := NewRegistry()
	if got := registry.Snapshot(0).Overall; got != "unknown" {
		t.Fatalf("expected unknown for empty registry, got %s", got)
	}
	registry.Stopped("watcher", "stopped")
	if got := registry.Snapshot(0).Overall; got != StateStopped {
		t.Fatalf("expected stopped, got %s", got)
	}
	registry.Starting("scheduler", "")
	if got := registry.Snapshot(0).Overall; got != StateStarting {
		t.Fatalf("expected starting, got %s", got)
	}
	registry.Beat("scheduler", "")
	if got := registry.Snapshot(0).Overall; got != StateHealthy {
		t.Fatalf("expected healthy, got %s", got)
	}
	registry.Degrade("timers", "reload failed", errors.New("bad yaml"))
	snapshot := registry.Snapshot(0)
	if snapshot.Overall != StateDegraded {
		t.Fatalf("expected degraded, got %s", snapshot.Overall)
	}
	if snapshot.Components[1].Error != "bad yaml" {
		t.Fatalf("expected error recorded, got %+v", snapshot.Components[1])
	}
}

func TestOrNopAcceptsNil(t *testing.T) {
	reporter := OrNop(nil)
	reporter.Beat("scheduler", "ok")
	reporter.Degrade("scheduler", "failed", errors.New("boom"))
}
