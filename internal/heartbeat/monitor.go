package heartbeat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

type Transition struct {
	Component string `json:"component"`
	FromState string `json:"from_state"`
	ToState   string `json:"to_state"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

type MonitorConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
	// StatusPath, when set, receives the latest snapshot as JSON on every tick.
	StatusPath string
	Logger     *slog.Logger
}

type Monitor struct {
	registry   *Registry
	interval   time.Duration
	staleAfter time.Duration
	statusPath string
	logger     *slog.Logger
}

func NewMonitor(registry *Registry, cfg MonitorConfig) *Monitor {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		registry:   registry,
		interval:   interval,
		staleAfter: cfg.StaleAfter,
		statusPath: cfg.StatusPath,
		logger:     logger,
	}
}

func (m *Monitor) Start(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	m.logger.Info("heartbeat monitor started", "interval", m.interval.String(), "stale_after", m.staleAfter.String())

	previous := map[string]string{}
	for {
		snapshot := m.registry.Snapshot(m.staleAfter)
		m.evaluate(snapshot, previous)
		if err := WriteStatus(m.statusPath, snapshot); err != nil {
			m.logger.Error("write status file failed", "path", m.statusPath, "error", err)
		}
		select {
		case <-ctx.Done():
			m.logger.Info("heartbeat monitor stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// evaluate logs and returns the state changes since previous, which it
// updates in place.
func (m *Monitor) evaluate(snapshot Snapshot, previous map[string]string) []Transition {
	var transitions []Transition
	for _, item := range snapshot.Components {
		before, seen := previous[item.Name]
		previous[item.Name] = item.State
		if !seen || before == item.State {
			continue
		}
		transition := Transition{
			Component: item.Name,
			FromState: before,
			ToState:   item.State,
			Message:   item.Message,
			Error:     item.Error,
		}
		if item.State == StateDegraded || item.State == StateStale {
			m.logger.Warn("component unhealthy", "component", item.Name, "from", before, "to", item.State, "error", item.Error)
		} else {
			m.logger.Info("component state changed", "component", item.Name, "from", before, "to", item.State)
		}
		transitions = append(transitions, transition)
	}
	return transitions
}

// WriteStatus replaces the file at path with snapshot. An empty path is a
// no-op.
func WriteStatus(path string, snapshot Snapshot) error {
	if path == "" {
		return nil
	}
	payload, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create status directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	return os.Rename(tmp, path)
}

func ReadStatus(path string) (Snapshot, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read status: %w", err)
	}
	var snapshot Snapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("decode status: %w", err)
	}
	return snapshot, nil
}
