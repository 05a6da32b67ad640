package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dwizi/timer-runtime/internal/config"
	"github.com/dwizi/timer-runtime/internal/heartbeat"
	"github.com/dwizi/timer-runtime/internal/scheduler"
	"github.com/dwizi/timer-runtime/internal/store"
	"github.com/dwizi/timer-runtime/internal/timers"
	"github.com/dwizi/timer-runtime/internal/watcher"
)

const timersComponent = "timers"

type Runtime struct {
	cfg       config.Config
	logger    *slog.Logger
	store     *store.Store
	scheduler *scheduler.Service
	watcher   *watcher.Service
	health    *heartbeat.Registry
	monitor   *heartbeat.Monitor

	reloadMu sync.Mutex
}

func New(cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work directory: %w", err)
	}

	sqlStore, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := sqlStore.AutoMigrate(context.Background()); err != nil {
		sqlStore.Close()
		return nil, err
	}

	health := heartbeat.NewRegistry()
	monitor := heartbeat.NewMonitor(health, heartbeat.MonitorConfig{
		Interval:   time.Duration(cfg.HeartbeatIntervalSec) * time.Second,
		StaleAfter: time.Duration(cfg.HeartbeatStaleSec) * time.Second,
		StatusPath: cfg.StatusPath,
		Logger:     logger.With("component", "heartbeat"),
	})

	runner := scheduler.CommandRunner{
		BaseDir:        cfg.WorkDir,
		DefaultTimeout: time.Duration(cfg.CommandTimeoutSec) * time.Second,
	}
	schedulerService := scheduler.New(sqlStore, runner, scheduler.Config{
		Retention: time.Duration(cfg.HistoryRetentionDay) * 24 * time.Hour,
		Reporter:  health,
		RunLogDir: cfg.RunLogDir,
	}, logger.With("component", "scheduler"))

	runtime := &Runtime{
		cfg:       cfg,
		logger:    logger,
		store:     sqlStore,
		scheduler: schedulerService,
		health:    health,
		monitor:   monitor,
	}

	if err := runtime.reload(context.Background()); err != nil {
		sqlStore.Close()
		return nil, err
	}

	if cfg.WatchTimersFile {
		watchService, err := watcher.New(
			cfg.TimersFile,
			time.Duration(cfg.WatchDebounceMillis)*time.Millisecond,
			logger.With("component", "watcher"),
			health,
			func(ctx context.Context, path string) {
				if err := runtime.reload(ctx); err != nil {
					logger.Error("timers reload failed, keeping previous timers", "path", path, "error", err)
				}
			},
		)
		if err != nil {
			sqlStore.Close()
			return nil, err
		}
		runtime.watcher = watchService
	} else {
		health.Stopped("watcher", "timers file watching disabled")
	}
	return runtime, nil
}

// reload reads the timers file and hands it to the scheduler. A file that
// fails to load leaves the scheduler untouched.
func (r *Runtime) reload(ctx context.Context) error {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	definitions, err := timers.Load(r.cfg.TimersFile, r.cfg.DefaultTimezone)
	if err == nil {
		err = r.scheduler.Apply(ctx, definitions)
	}
	if err != nil {
		r.health.Degrade(timersComponent, "reload failed, previous timers active", err)
		return fmt.Errorf("reload timers: %w", err)
	}
	r.health.Ready(timersComponent, fmt.Sprintf("%d timers applied", len(definitions)))
	return nil
}

func (r *Runtime) Run(ctx context.Context) error {
	r.logger.Info("timer runtime starting", "timers_file", r.cfg.TimersFile, "db_path", r.cfg.DBPath)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return r.scheduler.Start(groupCtx)
	})
	group.Go(func() error {
		return r.monitor.Start(groupCtx)
	})
	if r.watcher != nil {
		group.Go(func() error {
			return r.watcher.Start(groupCtx)
		})
	}
	return group.Wait()
}

func (r *Runtime) Close() error {
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}
