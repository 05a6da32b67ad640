package scheduler

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestCommandRunnerPassesTimerEnvironment(t *testing.T) {
	runner := CommandRunner{BaseDir: t.TempDir()}
	output, err := runner.Run(context.Background(), Invocation{
		RunID:        "run-1",
		Timer:        "nightly",
		ScheduledFor: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Command:      "sh",
		Args:         []string{"-c", `echo "$TIMER_RUNTIME_TIMER $TIMER_RUNTIME_SCHEDULED_FOR $GREETING"`},
		Env:          map[string]string{"GREETING": "hello"},
	})
	if err != nil {
		t.Fatalf("run command: %v", err)
	}
	if output != "nightly 2024-01-02T03:04:05Z hello" {
		t.Fatalf("unexpected output %q", output)
	}
}

func TestCommandRunnerReportsFailure(t *testing.T) {
	runner := CommandRunner{}
	_, err := runner.Run(context.Background(), Invocation{
		Timer:   "broken",
		Command: "sh",
		Args:    []string{"-c", "echo boom >&2; exit 3"},
	})
	if err == nil {
		t.Fatal("expected command failure")
	}
	if !strings.Contains(err.Error(), "boom") || !strings.Contains(err.Error(), "exit status 3") {
		t.Fatalf("expected stderr and exit status in error, got %v", err)
	}
}

func TestCommandRunnerTimeout(t *testing.T) {
	runner := CommandRunner{DefaultTimeout: 50 * time.Millisecond}
	started := time.Now()
	_, err := runner.Run(context.Background(), Invocation{Timer: "slow", Command: "sleep", Args: []string{"5"}})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(started) > 3*time.Second {
		t.Fatalf("expected command killed at timeout, took %s", time.Since(started))
	}
}

func TestCommandRunnerRequiresCommand(t *testing.T) {
	_, err := CommandRunner{}.Run(context.Background(), Invocation{Timer: "empty", Command: "  "})
	if err == nil || !strings.Contains(err.Error(), "command is required") {
		t.Fatalf("expected missing command error, got %v", err)
	}
}

func TestCommandRunnerMarksTruncatedOutput(t *testing.T) {
	output, err := CommandRunner{}.Run(context.Background(), Invocation{
		Timer:   "chatty",
		Command: "sh",
		Args:    []string{"-c", "head -c 70000 /dev/zero | tr '\\0' a"},
	})
	if err != nil {
		t.Fatalf("run command: %v", err)
	}
	if !strings.HasSuffix(output, "[truncated]") {
		t.Fatalf("expected truncated marker, got suffix %q", output[len(output)-20:])
	}
	if len(output) != maxOutputBytes+len(truncatedMarker) {
		t.Fatalf("expected %d bytes, got %d", maxOutputBytes+len(truncatedMarker), len(output))
	}
}

func TestLimitedBufferTruncates(t *testing.T) {
	buffer := &limitedBuffer{MaxBytes: 4}
	_, _ = buffer.Write([]byte("abcdef"))
	if buffer.String() != "abcd" || !buffer.Truncated {
		t.Fatalf("expected truncated buffer, got %q truncated=%v", buffer.String(), buffer.Truncated)
	}
}
