package runlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAppendCreatesMarkdownLog(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	for _, status := range []string{"succeeded", "failed"} {
		err := Append(Entry{
			Dir:          dir,
			Timer:        "Nightly Backup",
			RunID:        "run-1",
			Status:       status,
			ScheduledFor: time.Unix(1700000000, 0).UTC(),
			FinishedAt:   time.Unix(1700000003, 0).UTC(),
			Duration:     3 * time.Second,
			Output:       "copied 12 files",
		})
		if err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "nightly-backup.md"))
	if err != nil {
		t.Fatalf("read log failed: %v", err)
	}
	content := string(data)
	if strings.Count(content, "# Run Log") != 1 {
		t.Fatalf("expected a single header, got %s", content)
	}
	if !strings.Contains(content, "`SUCCEEDED`") || !strings.Contains(content, "`FAILED`") {
		t.Fatalf("expected both runs, got %s", content)
	}
	if !strings.Contains(content, "copied 12 files") || !strings.Contains(content, "- duration: `3s`") {
		t.Fatalf("expected run details, got %s", content)
	}
}

func TestAppendSkipsEmptyDir(t *testing.T) {
	if err := Append(Entry{Timer: "nightly", Output: "ignored"}); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
}

func TestSanitizeSegment(t *testing.T) {
	if got := sanitizeSegment(" ../Weekly Report/ "); got != "weekly-report" {
		t.Fatalf("unexpected segment %q", got)
	}
}
