package schedule

import (
	"slices"
	"time"
)

// Calendar maps between absolute instants and the wall clock the schedule
// fields are matched against. Wall clocks are carried as UTC times whose
// fields hold the local reading.
type Calendar interface {
	Wall(instant time.Time) time.Time
	// Resolve returns the latest instant showing the given wall clock, or
	// false when the wall clock does not exist (a DST gap).
	Resolve(wall time.Time) (time.Time, bool)
}

// LocationCalendar implements Calendar on top of the Go timezone database.
type LocationCalendar struct {
	Location *time.Location
}

func (c LocationCalendar) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

func (c LocationCalendar) Wall(instant time.Time) time.Time {
	local := instant.In(c.location())
	return time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), local.Minute(), local.Second(), 0, time.UTC)
}

// Resolve tries every UTC offset in effect within a day and a half of the
// wall clock and keeps the latest instant that reads back as that wall clock.
func (c LocationCalendar) Resolve(wall time.Time) (time.Time, bool) {
	loc := c.location()
	var (
		best    time.Time
		found   bool
		offsets []int
	)
	for _, shift := range []time.Duration{-36 * time.Hour, 0, 36 * time.Hour} {
		_, offset := wall.Add(shift).In(loc).Zone()
		if slices.Contains(offsets, offset) {
			continue
		}
		offsets = append(offsets, offset)
		candidate := wall.Add(-time.Duration(offset) * time.Second).In(loc)
		if !c.Wall(candidate).Equal(wall) {
			continue
		}
		if !found || candidate.After(best) {
			best = candidate
			found = true
		}
	}
	return best, found
}

