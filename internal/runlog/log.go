package runlog

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Entry is one finished timer run.
type Entry struct {
	Dir          string
	Timer        string
	RunID        string
	Status       string
	ScheduledFor time.Time
	FinishedAt   time.Time
	Duration     time.Duration
	Output       string
	Error        string
}

var pathSanitizer = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Append adds entry to the timer's markdown log under entry.Dir, creating
// the file with a header on first use. An empty Dir disables logging.
func Append(entry Entry) error {
	dir := strings.TrimSpace(entry.Dir)
	if dir == "" {
		return nil
	}
	timer := sanitizeSegment(entry.Timer)
	if timer == "" {
		timer = "unknown"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create run log directory: %w", err)
	}
	logPath := filepath.Join(dir, timer+".md")

	header := ""
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		header = fmt.Sprintf("# Run Log\n\n- timer: `%s`\n\n", timer)
	}

	finishedAt := entry.FinishedAt.UTC()
	if finishedAt.IsZero() {
		finishedAt = time.Now().UTC()
	}
	status := strings.ToLower(strings.TrimSpace(entry.Status))
	if status == "" {
		status = "unknown"
	}
	var body strings.Builder
	fmt.Fprintf(&body, "## %s `%s`\n", finishedAt.Format(time.RFC3339), strings.ToUpper(status))
	fmt.Fprintf(&body, "- run_id: `%s`\n", strings.TrimSpace(entry.RunID))
	fmt.Fprintf(&body, "- scheduled_for: `%s`\n", entry.ScheduledFor.UTC().Format(time.RFC3339))
	fmt.Fprintf(&body, "- duration: `%s`\n", entry.Duration.Round(time.Millisecond))
	if errText := strings.TrimSpace(entry.Error); errText != "" {
		fmt.Fprintf(&body, "- error: `%s`\n", errText)
	}
	if output := strings.TrimSpace(entry.Output); output != "" {
		fmt.Fprintf(&body, "\n```\n%s\n```\n", output)
	}
	body.WriteString("\n")

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	if _, err := file.WriteString(header + body.String()); err != nil {
		return err
	}
	return nil
}

func sanitizeSegment(value string) string {
	trimmed := strings.TrimSpace(value)
	trimmed = strings.ReplaceAll(trimmed, " ", "-")
	trimmed = pathSanitizer.ReplaceAllString(trimmed, "-")
	trimmed = strings.Trim(trimmed, "-.")
	return strings.ToLower(trimmed)
}
