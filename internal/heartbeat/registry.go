package heartbeat

import (
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	StateStarting = "starting"
	StateHealthy  = "healthy"
	StateReady    = "ready"
	StateDegraded = "degraded"
	StateStopped  = "stopped"
	StateStale    = "stale"
)

// Reporter is how runtime components publish their state.
type Reporter interface {
	Starting(component, message string)
	Beat(component, message string)
	Ready(component, message string)
	Degrade(component, message string, err error)
	Stopped(component, message string)
}

type ComponentStatus struct {
	Name           string `json:"name"`
	State          string `json:"state"`
	Message        string `json:"message,omitempty"`
	Error          string `json:"error,omitempty"`
	LastBeatAtUnix int64  `json:"last_beat_at_unix,omitempty"`
	UpdatedAtUnix  int64  `json:"updated_at_unix"`
}

type Snapshot struct {
	GeneratedAtUnix int64             `json:"generated_at_unix"`
	Overall         string            `json:"overall"`
	Components      []ComponentStatus `json:"components"`
}

type componentRecord struct {
	state      string
	message    string
	lastError  string
	lastBeatAt time.Time
	updatedAt  time.Time
}

type Registry struct {
	mu         sync.RWMutex
	now        func() time.Time
	components map[string]componentRecord
}

func NewRegistry() *Registry {
	return &Registry{
		now:        func() time.Time { return time.Now().UTC() },
		components: map[string]componentRecord{},
	}
}

func (r *Registry) Starting(component, message string) {
	r.set(component, StateStarting, message, nil)
}

// Beat marks a periodically active component healthy. A component that
// stops beating turns stale.
func (r *Registry) Beat(component, message string) {
	r.set(component, StateHealthy, message, nil)
}

// Ready marks a component healthy without expecting further beats.
func (r *Registry) Ready(component, message string) {
	r.set(component, StateReady, message, nil)
}

func (r *Registry) Degrade(component, message string, err error) {
	r.set(component, StateDegraded, message, err)
}

func (r *Registry) Stopped(component, message string) {
	r.set(component, StateStopped, message, nil)
}

func (r *Registry) set(component, state, message string, err error) {
	name := strings.ToLower(strings.TrimSpace(component))
	if name == "" {
		return
	}
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	record := r.components[name]
	record.state = state
	record.message = strings.TrimSpace(message)
	record.lastError = ""
	if err != nil {
		record.lastError = strings.TrimSpace(err.Error())
	}
	if state == StateHealthy || record.lastBeatAt.IsZero() {
		record.lastBeatAt = now
	}
	record.updatedAt = now
	r.components[name] = record
}

func (r *Registry) Snapshot(staleAfter time.Duration) Snapshot {
	now := r.now()
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]ComponentStatus, 0, len(r.components))
	for name, record := range r.components {
		status := ComponentStatus{
			Name:           name,
			State:          record.state,
			Message:        record.message,
			Error:          record.lastError,
			LastBeatAtUnix: record.lastBeatAt.Unix(),
			UpdatedAtUnix:  record.updatedAt.Unix(),
		}
		beating := record.state == StateHealthy || record.state == StateStarting
		if staleAfter > 0 && beating && now.Sub(record.lastBeatAt) > staleAfter {
			status.State = StateStale
		}
		results = append(results, status)
	}
	sort.Slice(results, func(left, right int) bool {
		return results[left].Name < results[right].Name
	})

	return Snapshot{
		GeneratedAtUnix: now.Unix(),
		Overall:         overall(results),
		Components:      results,
	}
}

func overall(items []ComponentStatus) string {
	if len(items) == 0 {
		return "unknown"
	}
	starting := false
	active := false
	for _, item := range items {
		switch item.State {
		case StateDegraded, StateStale:
			return StateDegraded
		case StateStarting:
			starting = true
		case StateHealthy, StateReady:
			active = true
		}
	}
	switch {
	case starting:
		return StateStarting
	case active:
		return StateHealthy
	default:
		return StateStopped
	}
}

type nopReporter struct{}

func (nopReporter) Starting(string, string)       {}
func (nopReporter) Beat(string, string)           {}
func (nopReporter) Ready(string, string)          {}
func (nopReporter) Degrade(string, string, error) {}
func (nopReporter) Stopped(string, string)        {}

// OrNop returns reporter, or a Reporter that drops everything when nil.
func OrNop(reporter Reporter) Reporter {
	if reporter == nil {
		return nopReporter{}
	}
	return reporter
}
