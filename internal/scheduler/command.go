package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultCommandTimeout = 5 * time.Minute
	maxOutputBytes        = 64 * 1024
	truncatedMarker       = "\n[truncated]"
)

// Invocation is one firing of a timer handed to a Runner.
type Invocation struct {
	RunID        string
	Timer        string
	ScheduledFor time.Time
	Command      string
	Args         []string
	Env          map[string]string
	Timeout      time.Duration
}

type Runner interface {
	Run(ctx context.Context, invocation Invocation) (string, error)
}

// CommandRunner executes a timer's command as a child process.
type CommandRunner struct {
	BaseDir        string
	DefaultTimeout time.Duration
}

func (r CommandRunner) Run(ctx context.Context, invocation Invocation) (string, error) {
	command := strings.TrimSpace(invocation.Command)
	if command == "" {
		return "", fmt.Errorf("timer %s: command is required", invocation.Timer)
	}
	timeout := invocation.Timeout
	if timeout <= 0 {
		timeout = r.DefaultTimeout
	}
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	baseDir := strings.TrimSpace(r.BaseDir)
	if baseDir == "" {
		baseDir = "."
	}
	if looksLikePath(command) && !filepath.IsAbs(command) {
		command = filepath.Join(baseDir, command)
	}

	cmd := exec.CommandContext(runCtx, filepath.Clean(command), invocation.Args...)
	cmd.Dir = baseDir
	cmd.Env = append(os.Environ(), mapToEnv(invocation.Env)...)
	cmd.Env = append(cmd.Env,
		"TIMER_RUNTIME_RUN_ID="+invocation.RunID,
		"TIMER_RUNTIME_TIMER="+invocation.Timer,
		"TIMER_RUNTIME_SCHEDULED_FOR="+invocation.ScheduledFor.UTC().Format(time.RFC3339),
	)

	stdout := &limitedBuffer{MaxBytes: maxOutputBytes}
	stderr := &limitedBuffer{MaxBytes: maxOutputBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		return stdout.Output(), fmt.Errorf(
			"timer %s command failed: %w; stderr=%s",
			invocation.Timer,
			err,
			compactOutput(stderr.String()),
		)
	}
	return stdout.Output(), nil
}

func looksLikePath(command string) bool {
	return strings.Contains(command, "/") || strings.Contains(command, "\\") || strings.HasPrefix(command, ".")
}

func mapToEnv(values map[string]string) []string {
	result := make([]string, 0, len(values))
	for key, value := range values {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		result = append(result, key+"="+value)
	}
	return result
}

func compactOutput(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "(empty)"
	}
	normalized := strings.Join(strings.Fields(trimmed), " ")
	if len(normalized) <= 300 {
		return normalized
	}
	return normalized[:300] + "..."
}

type limitedBuffer struct {
	MaxBytes  int
	Truncated bool
	buf       bytes.Buffer
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if b.MaxBytes < 1 {
		return len(p), nil
	}
	remaining := b.MaxBytes - b.buf.Len()
	if remaining <= 0 {
		b.Truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		_, _ = b.buf.Write(p[:remaining])
		b.Truncated = true
		return len(p), nil
	}
	_, _ = b.buf.Write(p)
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	return b.buf.String()
}

// Output is the trimmed captured text, marked when bytes past MaxBytes were dropped.
func (b *limitedBuffer) Output() string {
	output := strings.TrimSpace(b.buf.String())
	if b.Truncated {
		output += truncatedMarker
	}
	return output
}
