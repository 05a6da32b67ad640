package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/dwizi/timer-runtime/internal/heartbeat"
	"github.com/dwizi/timer-runtime/internal/runlog"
	"github.com/dwizi/timer-runtime/internal/store"
	"github.com/dwizi/timer-runtime/internal/timers"
)

const (
	component        = "scheduler"
	beatInterval     = time.Minute
	pruneInterval    = time.Hour
	defaultRetention = 30 * 24 * time.Hour
)

type Store interface {
	UpsertTimer(ctx context.Context, input store.UpsertTimerInput) error
	RemoveTimersExcept(ctx context.Context, keep []string) (int, error)
	UpdateTimerRun(ctx context.Context, input store.UpdateTimerRunInput) error
	CreateRun(ctx context.Context, input store.CreateRunInput) error
	FinishRun(ctx context.Context, input store.FinishRunInput) error
	PruneRuns(ctx context.Context, cutoff time.Time) (int, error)
}

type Config struct {
	Retention time.Duration
	Reporter  heartbeat.Reporter
	// RunLogDir receives one markdown log per timer. Empty disables it.
	RunLogDir string
}

type Service struct {
	store     Store
	runner    Runner
	logger    *slog.Logger
	reporter  heartbeat.Reporter
	runLogDir string
	retention time.Duration
	now       func() time.Time

	cron *cron.Cron

	mu          sync.Mutex
	baseCtx     context.Context
	entries     map[string]cron.EntryID
	definitions map[string]timers.Definition
}

func New(store Store, runner Runner, cfg Config, logger *slog.Logger) *Service {
	retention := cfg.Retention
	if retention <= 0 {
		retention = defaultRetention
	}
	cronLog := cronLogger{logger: logger}
	return &Service{
		store:     store,
		runner:    runner,
		logger:    logger,
		reporter:  heartbeat.OrNop(cfg.Reporter),
		runLogDir: cfg.RunLogDir,
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		baseCtx:     context.Background(),
		entries:     map[string]cron.EntryID{},
		definitions: map[string]timers.Definition{},
	}
}

// Apply replaces the registered timers with definitions. Disabled timers
// are recorded but never fire.
func (s *Service) Apply(ctx context.Context, definitions []timers.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, id := range s.entries {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
	s.definitions = map[string]timers.Definition{}

	now := s.now()
	names := make([]string, 0, len(definitions))
	for _, definition := range definitions {
		names = append(names, definition.Name)
		s.definitions[definition.Name] = definition

		nextRun := time.Time{}
		if definition.Enabled {
			next, err := definition.Next(now)
			if err != nil {
				s.logger.Warn("timer has no upcoming run", "timer", definition.Name, "error", err)
			} else {
				nextRun = next
			}
			s.entries[definition.Name] = s.cron.Schedule(
				timerSchedule{definition: definition, logger: s.logger},
				s.job(definition.Name),
			)
		}
		if err := s.store.UpsertTimer(ctx, store.UpsertTimerInput{
			Name:      definition.Name,
			Schedule:  definition.Describe(),
			Timezone:  definition.Location.String(),
			Command:   definition.Command,
			Enabled:   definition.Enabled,
			NextRunAt: nextRun,
		}); err != nil {
			return fmt.Errorf("record timer %s: %w", definition.Name, err)
		}
	}
	removed, err := s.store.RemoveTimersExcept(ctx, names)
	if err != nil {
		return err
	}
	s.logger.Info("timers applied", "timers", len(definitions), "scheduled", len(s.entries), "removed", removed)
	return nil
}

// Start runs the cron loop and the history pruner until ctx is done.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	s.reporter.Starting(component, "starting cron loop")
	s.cron.Start()
	s.logger.Info("scheduler started", "retention", s.retention.String())
	ticker := time.NewTicker(beatInterval)
	defer ticker.Stop()
	s.prune(ctx)
	lastPrune := s.now()
	s.beat()
	for {
		select {
		case <-ctx.Done():
			stopped := s.cron.Stop()
			<-stopped.Done()
			s.reporter.Stopped(component, "cron loop stopped")
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			if s.now().Sub(lastPrune) >= pruneInterval {
				s.prune(ctx)
				lastPrune = s.now()
			}
			s.beat()
		}
	}
}

func (s *Service) beat() {
	s.mu.Lock()
	scheduled := len(s.entries)
	s.mu.Unlock()
	s.reporter.Beat(component, fmt.Sprintf("%d timers scheduled", scheduled))
}

func (s *Service) prune(ctx context.Context) {
	cutoff := s.now().Add(-s.retention)
	removed, err := s.store.PruneRuns(ctx, cutoff)
	if err != nil {
		s.logger.Error("prune runs failed", "error", err)
		return
	}
	if removed > 0 {
		s.logger.Info("pruned run history", "removed", removed, "cutoff", cutoff.Format(time.RFC3339))
	}
}

func (s *Service) job(name string) cron.Job {
	return cron.FuncJob(func() {
		s.mu.Lock()
		definition, ok := s.definitions[name]
		ctx := s.baseCtx
		s.mu.Unlock()
		if !ok {
			return
		}
		s.fire(ctx, definition, s.now().Truncate(time.Second))
	})
}

func (s *Service) fire(ctx context.Context, definition timers.Definition, scheduledFor time.Time) {
	runID := "run-" + uuid.NewString()
	startedAt := s.now()
	if err := s.store.CreateRun(ctx, store.CreateRunInput{
		ID:           runID,
		TimerName:    definition.Name,
		ScheduledFor: scheduledFor,
		StartedAt:    startedAt,
	}); err != nil {
		s.logger.Error("record run failed", "timer", definition.Name, "error", err)
	}

	output, runErr := s.runner.Run(ctx, Invocation{
		RunID:        runID,
		Timer:        definition.Name,
		ScheduledFor: scheduledFor,
		Command:      definition.Command,
		Args:         definition.Args,
		Env:          definition.Env,
		Timeout:      definition.Timeout,
	})
	lastError := ""
	if runErr != nil {
		lastError = runErr.Error()
	}
	finishedAt := s.now()
	if err := s.store.FinishRun(ctx, store.FinishRunInput{
		ID:           runID,
		FinishedAt:   finishedAt,
		Output:       output,
		ErrorMessage: lastError,
	}); err != nil {
		s.logger.Error("finish run failed", "timer", definition.Name, "run_id", runID, "error", err)
	}
	status := store.RunStatusSucceeded
	if runErr != nil {
		status = store.RunStatusFailed
	}
	if err := runlog.Append(runlog.Entry{
		Dir:          s.runLogDir,
		Timer:        definition.Name,
		RunID:        runID,
		Status:       status,
		ScheduledFor: scheduledFor,
		FinishedAt:   finishedAt,
		Duration:     finishedAt.Sub(startedAt),
		Output:       output,
		Error:        lastError,
	}); err != nil {
		s.logger.Error("append run log failed", "timer", definition.Name, "run_id", runID, "error", err)
	}

	nextRun, nextErr := definition.Next(scheduledFor)
	if nextErr != nil {
		nextRun = time.Time{}
		if lastError == "" {
			lastError = nextErr.Error()
		}
	}
	if err := s.store.UpdateTimerRun(ctx, store.UpdateTimerRunInput{
		Name:      definition.Name,
		LastRunAt: startedAt,
		NextRunAt: nextRun,
		LastError: lastError,
	}); err != nil {
		s.logger.Error("update timer run failed", "timer", definition.Name, "error", err)
	}

	if runErr != nil {
		s.reporter.Degrade(component, "timer "+definition.Name+" failed", runErr)
		s.logger.Error("timer run failed", "timer", definition.Name, "run_id", runID, "error", runErr)
		return
	}
	s.logger.Info("timer run completed", "timer", definition.Name, "run_id", runID, "duration", time.Since(startedAt).String())
}

// timerSchedule lets robfig/cron drive a timer definition.
type timerSchedule struct {
	definition timers.Definition
	logger     *slog.Logger
}

// Next returns the zero time when the timer has no occurrence within the
// search horizon; cron then never runs the entry again.
func (t timerSchedule) Next(now time.Time) time.Time {
	next, err := t.definition.Next(now)
	if err != nil {
		t.logger.Warn("timer will not fire again", "timer", t.definition.Name, "error", err)
		return time.Time{}
	}
	return next
}

type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+strings.TrimSpace(msg), keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+strings.TrimSpace(msg), append(keysAndValues, "error", err)...)
}
