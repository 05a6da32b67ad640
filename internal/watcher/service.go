package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dwizi/timer-runtime/internal/heartbeat"
)

const (
	component       = "watcher"
	defaultDebounce = 500 * time.Millisecond
)

// Service calls onChange after the watched file is written, created or
// renamed. Bursts of events within the debounce window collapse into one call.
type Service struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
	reporter heartbeat.Reporter
	onChange func(context.Context, string)
	watcher  *fsnotify.Watcher
}

func New(path string, debounce time.Duration, logger *slog.Logger, reporter heartbeat.Reporter, onChange func(context.Context, string)) (*Service, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve watched path: %w", err)
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	fileWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &Service{
		path:     absPath,
		debounce: debounce,
		logger:   logger,
		reporter: heartbeat.OrNop(reporter),
		onChange: onChange,
		watcher:  fileWatcher,
	}, nil
}

func (s *Service) Start(ctx context.Context) error {
	defer s.watcher.Close()

	// Editors replace files by rename, so the directory is watched, not the file.
	dir := filepath.Dir(s.path)
	if err := s.watcher.Add(dir); err != nil {
		s.reporter.Degrade(component, "cannot watch "+dir, err)
		return fmt.Errorf("watch path %s: %w", dir, err)
	}
	s.reporter.Ready(component, "watching "+s.path)
	s.logger.Info("timers file watcher started", "path", s.path)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			s.reporter.Stopped(component, "watcher stopped")
			s.logger.Info("timers file watcher stopped")
			return nil
		case event, ok := <-s.watcher.Events:
			if !ok {
				return nil
			}
			if !s.relevant(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(s.debounce)
			} else {
				timer.Reset(s.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			s.logger.Info("timers file changed", "path", s.path)
			s.onChange(ctx, s.path)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return nil
			}
			if err != nil {
				s.reporter.Degrade(component, "file watcher error", err)
				s.logger.Error("file watcher error", "error", err)
			}
		}
	}
}

func (s *Service) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != s.path {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}
