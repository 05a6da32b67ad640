package main

import (
	"log/slog"
	"os"
	_ "time/tzdata"

	"github.com/dwizi/timer-runtime/internal/cli"
	"github.com/dwizi/timer-runtime/internal/config"
)

func main() {
	level := config.FromEnv().LogLevel
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	if err := cli.NewRoot(logger).Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}
