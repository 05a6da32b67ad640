package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrTimerNotFound = errors.New("timer not found")

type TimerRecord struct {
	Name      string
	Schedule  string
	Timezone  string
	Command   string
	Enabled   bool
	NextRunAt time.Time
	LastRunAt time.Time
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type UpsertTimerInput struct {
	Name      string
	Schedule  string
	Timezone  string
	Command   string
	Enabled   bool
	NextRunAt time.Time
}

type UpdateTimerRunInput struct {
	Name      string
	LastRunAt time.Time
	NextRunAt time.Time
	LastError string
}

func (s *Store) UpsertTimer(ctx context.Context, input UpsertTimerInput) error {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return ErrTimerNotFound
	}
	nowUnix := time.Now().UTC().Unix()
	nextRunUnix := int64(0)
	if !input.NextRunAt.IsZero() {
		nextRunUnix = input.NextRunAt.UTC().Unix()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO timers (name, schedule, timezone, command, enabled, next_run_unix, created_at_unix, updated_at_unix)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		     schedule = excluded.schedule,
		     timezone = excluded.timezone,
		     command = excluded.command,
		     enabled = excluded.enabled,
		     next_run_unix = excluded.next_run_unix,
		     updated_at_unix = excluded.updated_at_unix`,
		name,
		strings.TrimSpace(input.Schedule),
		strings.TrimSpace(input.Timezone),
		nullIfEmpty(strings.TrimSpace(input.Command)),
		boolToInt(input.Enabled),
		nullIfZeroInt64(nextRunUnix),
		nowUnix,
		nowUnix,
	)
	if err != nil {
		return fmt.Errorf("upsert timer: %w", err)
	}
	return nil
}

// RemoveTimersExcept deletes timer rows whose names are not in keep.
func (s *Store) RemoveTimersExcept(ctx context.Context, keep []string) (int, error) {
	query := `DELETE FROM timers`
	args := make([]any, 0, len(keep))
	if len(keep) > 0 {
		placeholders := make([]string, 0, len(keep))
		for _, name := range keep {
			placeholders = append(placeholders, "?")
			args = append(args, strings.TrimSpace(name))
		}
		query += ` WHERE name NOT IN (` + strings.Join(placeholders, ", ") + `)`
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("remove stale timers: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(removed), nil
}

func (s *Store) UpdateTimerRun(ctx context.Context, input UpdateTimerRunInput) error {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return ErrTimerNotFound
	}
	lastRunUnix := int64(0)
	if !input.LastRunAt.IsZero() {
		lastRunUnix = input.LastRunAt.UTC().Unix()
	}
	nextRunUnix := int64(0)
	if !input.NextRunAt.IsZero() {
		nextRunUnix = input.NextRunAt.UTC().Unix()
	}
	result, err := s.db.ExecContext(
		ctx,
		`UPDATE timers
		 SET last_run_unix = ?,
		     next_run_unix = ?,
		     last_error = ?,
		     updated_at_unix = ?
		 WHERE name = ?`,
		nullIfZeroInt64(lastRunUnix),
		nullIfZeroInt64(nextRunUnix),
		nullIfEmpty(strings.TrimSpace(input.LastError)),
		time.Now().UTC().Unix(),
		name,
	)
	if err != nil {
		return fmt.Errorf("update timer run: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err == nil && rowsAffected == 0 {
		return ErrTimerNotFound
	}
	return nil
}

func (s *Store) ListTimers(ctx context.Context) ([]TimerRecord, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT name, schedule, timezone, COALESCE(command, ''), enabled,
		        COALESCE(next_run_unix, 0), COALESCE(last_run_unix, 0), COALESCE(last_error, ''),
		        created_at_unix, updated_at_unix
		 FROM timers
		 ORDER BY name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list timers: %w", err)
	}
	defer rows.Close()

	results := []TimerRecord{}
	for rows.Next() {
		var record TimerRecord
		var enabled int
		var nextRunUnix, lastRunUnix, createdUnix, updatedUnix int64
		if err := rows.Scan(
			&record.Name,
			&record.Schedule,
			&record.Timezone,
			&record.Command,
			&enabled,
			&nextRunUnix,
			&lastRunUnix,
			&record.LastError,
			&createdUnix,
			&updatedUnix,
		); err != nil {
			return nil, fmt.Errorf("scan timer: %w", err)
		}
		record.Enabled = enabled == 1
		record.NextRunAt = unixOrZero(nextRunUnix)
		record.LastRunAt = unixOrZero(lastRunUnix)
		record.CreatedAt = unixOrZero(createdUnix)
		record.UpdatedAt = unixOrZero(updatedUnix)
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timers: %w", err)
	}
	return results, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func unixOrZero(value int64) time.Time {
	if value <= 0 {
		return time.Time{}
	}
	return time.Unix(value, 0).UTC()
}
