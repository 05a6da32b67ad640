package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrRunNotFound = errors.New("run not found")

const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

type RunRecord struct {
	ID           string
	TimerName    string
	Status       string
	ScheduledFor time.Time
	StartedAt    time.Time
	FinishedAt   time.Time
	Duration     time.Duration
	Output       string
	ErrorMessage string
}

type CreateRunInput struct {
	ID           string
	TimerName    string
	ScheduledFor time.Time
	StartedAt    time.Time
}

type FinishRunInput struct {
	ID           string
	FinishedAt   time.Time
	Output       string
	ErrorMessage string
}

type ListRunsInput struct {
	TimerName string
	Status    string
	Limit     int
}

func (s *Store) CreateRun(ctx context.Context, input CreateRunInput) error {
	startedAt := input.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	scheduledFor := input.ScheduledFor
	if scheduledFor.IsZero() {
		scheduledFor = startedAt
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO runs (id, timer_name, status, scheduled_for_unix, started_at_unix)
		 VALUES (?, ?, ?, ?, ?)`,
		strings.TrimSpace(input.ID),
		strings.TrimSpace(input.TimerName),
		RunStatusRunning,
		scheduledFor.UTC().Unix(),
		startedAt.UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun marks a run succeeded, or failed when ErrorMessage is set.
func (s *Store) FinishRun(ctx context.Context, input FinishRunInput) error {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return ErrRunNotFound
	}
	finishedAt := input.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = time.Now().UTC()
	}
	status := RunStatusSucceeded
	if strings.TrimSpace(input.ErrorMessage) != "" {
		status = RunStatusFailed
	}
	result, err := s.db.ExecContext(
		ctx,
		`UPDATE runs
		 SET status = ?,
		     finished_at_unix = ?,
		     duration_ms = MAX(0, (? - started_at_unix) * 1000),
		     output = ?,
		     error_message = ?
		 WHERE id = ?`,
		status,
		finishedAt.UTC().Unix(),
		finishedAt.UTC().Unix(),
		nullIfEmpty(input.Output),
		nullIfEmpty(strings.TrimSpace(input.ErrorMessage)),
		id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err == nil && rowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

const runColumns = `id, timer_name, status, scheduled_for_unix, started_at_unix,
		        COALESCE(finished_at_unix, 0), COALESCE(duration_ms, 0),
		        COALESCE(output, ''), COALESCE(error_message, '')`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var record RunRecord
	var scheduledUnix, startedUnix, finishedUnix, durationMillis int64
	if err := row.Scan(
		&record.ID,
		&record.TimerName,
		&record.Status,
		&scheduledUnix,
		&startedUnix,
		&finishedUnix,
		&durationMillis,
		&record.Output,
		&record.ErrorMessage,
	); err != nil {
		return RunRecord{}, err
	}
	record.ScheduledFor = unixOrZero(scheduledUnix)
	record.StartedAt = unixOrZero(startedUnix)
	record.FinishedAt = unixOrZero(finishedUnix)
	record.Duration = time.Duration(durationMillis) * time.Millisecond
	return record, nil
}

func (s *Store) LookupRun(ctx context.Context, id string) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, strings.TrimSpace(id))
	record, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunRecord{}, ErrRunNotFound
		}
		return RunRecord{}, fmt.Errorf("lookup run: %w", err)
	}
	return record, nil
}

func (s *Store) ListRuns(ctx context.Context, input ListRunsInput) ([]RunRecord, error) {
	limit := input.Limit
	if limit < 1 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	whereParts := []string{"1=1"}
	args := make([]any, 0, 3)
	if name := strings.TrimSpace(input.TimerName); name != "" {
		whereParts = append(whereParts, "timer_name = ?")
		args = append(args, name)
	}
	if status := strings.TrimSpace(input.Status); status != "" {
		whereParts = append(whereParts, "status = ?")
		args = append(args, status)
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+runColumns+`
		 FROM runs
		 WHERE `+strings.Join(whereParts, " AND ")+`
		 ORDER BY started_at_unix DESC, id DESC
		 LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	results := make([]RunRecord, 0, limit)
	for rows.Next() {
		record, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return results, nil
}

// PruneRuns deletes finished runs that started before cutoff.
func (s *Store) PruneRuns(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(
		ctx,
		`DELETE FROM runs WHERE status != ? AND started_at_unix < ?`,
		RunStatusRunning,
		cutoff.UTC().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(removed), nil
}
