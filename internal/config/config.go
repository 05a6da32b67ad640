package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	Environment          string
	DataDir              string
	DBPath               string
	TimersFile           string
	WorkDir              string
	DefaultTimezone      string
	LogLevel             slog.Level
	WatchTimersFile      bool
	WatchDebounceMillis  int
	CommandTimeoutSec    int
	HistoryRetentionDay  int
	StatusPath           string
	RunLogDir            string
	HeartbeatIntervalSec int
	HeartbeatStaleSec    int
}

func FromEnv() Config {
	dataDir := stringOrDefault("TIMER_RUNTIME_DATA_DIR", "/data")
	dbPath := stringOrDefault("TIMER_RUNTIME_DB_PATH", filepath.Join(dataDir, "timer-runtime", "history.sqlite"))

	return Config{
		Environment:          stringOrDefault("TIMER_RUNTIME_ENV", "development"),
		DataDir:              dataDir,
		DBPath:               dbPath,
		TimersFile:           stringOrDefault("TIMER_RUNTIME_TIMERS_FILE", filepath.Join(dataDir, "timers.yaml")),
		WorkDir:              stringOrDefault("TIMER_RUNTIME_WORK_DIR", dataDir),
		DefaultTimezone:      stringOrDefault("TIMER_RUNTIME_DEFAULT_TIMEZONE", "UTC"),
		LogLevel:             levelOrDefault("TIMER_RUNTIME_LOG_LEVEL", slog.LevelInfo),
		WatchTimersFile:      boolOrDefault("TIMER_RUNTIME_WATCH_TIMERS_FILE", true),
		WatchDebounceMillis:  intOrDefault("TIMER_RUNTIME_WATCH_DEBOUNCE_MS", 500),
		CommandTimeoutSec:    intOrDefault("TIMER_RUNTIME_COMMAND_TIMEOUT_SECONDS", 300),
		HistoryRetentionDay:  intOrDefault("TIMER_RUNTIME_HISTORY_RETENTION_DAYS", 30),
		StatusPath:           stringOrDefault("TIMER_RUNTIME_STATUS_PATH", filepath.Join(dataDir, "timer-runtime", "status.json")),
		RunLogDir:            stringOrDefault("TIMER_RUNTIME_RUN_LOG_DIR", filepath.Join(dataDir, "timer-runtime", "logs")),
		HeartbeatIntervalSec: intOrDefault("TIMER_RUNTIME_HEARTBEAT_INTERVAL_SECONDS", 30),
		HeartbeatStaleSec:    intOrDefault("TIMER_RUNTIME_HEARTBEAT_STALE_SECONDS", 180),
	}
}

func stringOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func intOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 1 {
		return fallback
	}
	return parsed
}

func boolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func levelOrDefault(name string, fallback slog.Level) slog.Level {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return fallback
	}
	return level
}
