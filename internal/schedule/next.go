package schedule

import (
	"fmt"
	"time"
)

// HorizonYears bounds the search: a candidate whose year is more than this
// many years past the reference year ends the search with ErrHorizonExceeded.
const HorizonYears = 10

type unit int

const (
	unitSecond unit = iota
	unitMinute
	unitHour
	unitDay
	unitMonthWeek
	unitISOWeek
	unitMonth
	unitYear
)

// advance moves a wall clock to the start of the next unit, zeroing every
// finer field. The result is always strictly later than t.
func advance(t time.Time, u unit) time.Time {
	year, month, day := t.Date()
	switch u {
	case unitSecond:
		return time.Date(year, month, day, t.Hour(), t.Minute(), t.Second()+1, 0, time.UTC)
	case unitMinute:
		return time.Date(year, month, day, t.Hour(), t.Minute()+1, 0, 0, time.UTC)
	case unitHour:
		return time.Date(year, month, day, t.Hour()+1, 0, 0, 0, time.UTC)
	case unitDay:
		return time.Date(year, month, day+1, 0, 0, 0, 0, time.UTC)
	case unitMonthWeek:
		// Weeks of the month are 7-day blocks counted from day 1; the last
		// block is cut short by the month end.
		next := (day-1)/7*7 + 8
		if next > daysIn(year, month) {
			return time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC)
		}
		return time.Date(year, month, next, 0, 0, 0, 0, time.UTC)
	case unitISOWeek:
		days := (8 - int(t.Weekday())) % 7
		if days == 0 {
			days = 7
		}
		return time.Date(year, month, day+days, 0, 0, 0, 0, time.UTC)
	case unitMonth:
		return time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func weekOfMonth(day int) int {
	return (day-1)/7 + 1
}

// mismatch returns the unit to advance by for the first field, coarsest
// first, that the wall clock fails. ok is false when every field matches.
func (s *Schedule) mismatch(wall time.Time) (unit, bool) {
	if !s.anyYear && !s.Year.Has(wall.Year()) {
		return unitYear, true
	}
	if !s.Month.Has(int(wall.Month())) {
		return unitMonth, true
	}
	if !s.DayOfMonth.Has(wall.Day()) || !s.DayOfWeek.Has(int(wall.Weekday())) || !s.DayOfYear.Has(wall.YearDay()) {
		return unitDay, true
	}
	if !s.WeekOfMonth.Has(weekOfMonth(wall.Day())) {
		return unitMonthWeek, true
	}
	if _, isoWeek := wall.ISOWeek(); !s.WeekOfYear.Has(isoWeek) {
		return unitISOWeek, true
	}
	switch {
	case !s.Hour.Has(wall.Hour()):
		return unitHour, true
	case !s.Minute.Has(wall.Minute()):
		return unitMinute, true
	case !s.Second.Has(wall.Second()):
		return unitSecond, true
	}
	return 0, false
}

// skip moves a wall clock that failed unit straight to the next member of
// that unit's field, rolling over to the parent unit when none is left.
func (s *Schedule) skip(t time.Time, u unit) time.Time {
	year, month, day := t.Date()
	switch u {
	case unitSecond:
		if next, ok := s.Second.nextAfter(t.Second()); ok {
			return time.Date(year, month, day, t.Hour(), t.Minute(), next, 0, time.UTC)
		}
		return advance(t, unitMinute)
	case unitMinute:
		if next, ok := s.Minute.nextAfter(t.Minute()); ok {
			return time.Date(year, month, day, t.Hour(), next, 0, 0, time.UTC)
		}
		return advance(t, unitHour)
	case unitHour:
		if next, ok := s.Hour.nextAfter(t.Hour()); ok {
			return time.Date(year, month, day, next, 0, 0, 0, time.UTC)
		}
		return advance(t, unitDay)
	case unitMonth:
		if next, ok := s.Month.nextAfter(int(month)); ok {
			return time.Date(year, time.Month(next), 1, 0, 0, 0, 0, time.UTC)
		}
		return advance(t, unitYear)
	case unitYear:
		if next, ok := s.Year.nextAfter(year); ok {
			return time.Date(next, time.January, 1, 0, 0, 0, 0, time.UTC)
		}
		return advance(t, unitYear)
	default:
		return advance(t, u)
	}
}

// empty reports the first field that allows no value at all.
func (s *Schedule) empty() (string, bool) {
	sets := [...]FieldSet{s.Second, s.Minute, s.Hour, s.DayOfMonth, s.Month, s.WeekOfMonth, s.DayOfWeek, s.DayOfYear, s.WeekOfYear, s.Year}
	for index, set := range sets {
		if fields[index].name == "year" && s.anyYear {
			continue
		}
		if set.Len() == 0 {
			return fields[index].name, true
		}
	}
	return "", false
}

// Matches reports whether the instant, read on its own location's wall
// clock, satisfies every field.
func (s *Schedule) Matches(instant time.Time) bool {
	_, mismatched := s.mismatch(LocationCalendar{Location: instant.Location()}.Wall(instant))
	return !mismatched
}

// Next returns the first instant strictly after ref that satisfies the
// schedule, in ref's location.
func (s *Schedule) Next(ref time.Time) (time.Time, error) {
	return s.NextIn(ref, LocationCalendar{Location: ref.Location()})
}

// NextIn is Next with the wall clock conversion supplied by cal. The result
// is expressed in ref's location whatever cal resolves it to.
func (s *Schedule) NextIn(ref time.Time, cal Calendar) (time.Time, error) {
	if name, empty := s.empty(); empty {
		return time.Time{}, fmt.Errorf("%w: %s allows no value", ErrHorizonExceeded, name)
	}
	start := cal.Wall(ref)
	lastYear := start.Year() + HorizonYears
	candidate := advance(start, unitSecond)
	for candidate.Year() <= lastYear {
		if u, mismatched := s.mismatch(candidate); mismatched {
			candidate = s.skip(candidate, u)
			continue
		}
		instant, ok := cal.Resolve(candidate)
		if !ok || !instant.After(ref) {
			candidate = advance(candidate, unitSecond)
			continue
		}
		return instant.In(ref.Location()), nil
	}
	return time.Time{}, fmt.Errorf("%w: nothing matched before %d", ErrHorizonExceeded, lastYear+1)
}

// Upcoming returns the next count occurrences after ref, each one found from
// the previous. It stops at the first error.
func (s *Schedule) Upcoming(ref time.Time, count int) ([]time.Time, error) {
	out := make([]time.Time, 0, max(count, 0))
	for len(out) < count {
		next, err := s.Next(ref)
		if err != nil {
			return out, err
		}
		out = append(out, next)
		ref = next
	}
	return out, nil
}

// Next parses spec and finds its first occurrence strictly after ref. The
// result carries ref's location.
func Next(spec Spec, ref time.Time) (time.Time, error) {
	return NextIn(spec, ref, LocationCalendar{Location: ref.Location()})
}

// NextIn parses spec and searches it with the wall clock conversion
// supplied by cal.
func NextIn(spec Spec, ref time.Time, cal Calendar) (time.Time, error) {
	compiled, err := spec.Compile()
	if err != nil {
		return time.Time{}, err
	}
	return compiled.NextIn(ref, cal)
}
