package schedule

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/btree"
)

const fieldSetDegree = 8

var weekdayNames = map[string]int{
	"sun": 0,
	"mon": 1,
	"tue": 2,
	"wed": 3,
	"thu": 4,
	"fri": 5,
	"sat": 6,
}

// FieldSet is the parsed form of one schedule field: the unique integers a
// calendar component may take, all within [Lo, Hi].
type FieldSet struct {
	Lo, Hi int
	values *btree.BTreeG[int]
}

func newFieldSet(min, max int) FieldSet {
	return FieldSet{Lo: min, Hi: max, values: btree.NewOrderedG[int](fieldSetDegree)}
}

func (f FieldSet) Has(value int) bool {
	if f.values == nil {
		return false
	}
	return f.values.Has(value)
}

func (f FieldSet) Len() int {
	if f.values == nil {
		return 0
	}
	return f.values.Len()
}

// Values returns the members in ascending order.
func (f FieldSet) Values() []int {
	out := make([]int, 0, f.Len())
	if f.values == nil {
		return out
	}
	f.values.Ascend(func(value int) bool {
		out = append(out, value)
		return true
	})
	return out
}

func (f FieldSet) Min() (int, bool) {
	if f.values == nil {
		return 0, false
	}
	return f.values.Min()
}

func (f FieldSet) Max() (int, bool) {
	if f.values == nil {
		return 0, false
	}
	return f.values.Max()
}

// Full reports whether every value of [Lo, Hi] is a member.
func (f FieldSet) Full() bool {
	return f.Len() == f.Hi-f.Lo+1
}

func (f FieldSet) String() string {
	values := f.Values()
	parts := make([]string, 0, len(values))
	for _, value := range values {
		parts = append(parts, strconv.Itoa(value))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// nextAfter returns the smallest member greater than value.
func (f FieldSet) nextAfter(value int) (int, bool) {
	if f.values == nil {
		return 0, false
	}
	next, found := 0, false
	f.values.AscendGreaterOrEqual(value+1, func(member int) bool {
		next, found = member, true
		return false
	})
	return next, found
}

func (f FieldSet) add(value int) {
	f.values.ReplaceOrInsert(value)
}

// ParseField turns one field text into the set of values it allows within
// [min, max]. Terms are comma separated and unioned; empty terms are skipped.
// No calendar validation happens here, "31" is a valid day in any month.
func ParseField(text string, min, max int) (FieldSet, error) {
	set := newFieldSet(min, max)
	for _, raw := range strings.Split(text, ",") {
		term := strings.TrimSpace(raw)
		if term == "" {
			continue
		}
		if err := parseTerm(set, term, min, max); err != nil {
			return FieldSet{}, &FieldError{Term: term, Err: err}
		}
	}
	return set, nil
}

func parseTerm(set FieldSet, term string, min, max int) error {
	switch {
	case term == "*":
		for value := min; value <= max; value++ {
			set.add(value)
		}
		return nil
	case strings.Contains(term, "/"):
		return parseStep(set, term, min, max)
	case strings.Contains(term, "-"):
		return parseRange(set, term, min, max)
	default:
		value, err := parseToken(term)
		if err != nil {
			return err
		}
		if value < min || value > max {
			return fmt.Errorf("%w: %d outside [%d, %d]", ErrInvalidValue, value, min, max)
		}
		set.add(value)
		return nil
	}
}

func parseStep(set FieldSet, term string, min, max int) error {
	parts := strings.Split(term, "/")
	if len(parts) != 2 {
		return fmt.Errorf("%w: step term must be start/step", ErrInvalidValue)
	}
	start, err := parseInt(parts[0])
	if err != nil {
		return err
	}
	step, err := parseInt(parts[1])
	if err != nil {
		return err
	}
	if start < min {
		return fmt.Errorf("%w: step start %d below %d", ErrInvalidValue, start, min)
	}
	if step <= 0 {
		return fmt.Errorf("%w: step %d must be positive", ErrInvalidValue, step)
	}
	for value := start; value <= max; value += step {
		set.add(value)
		if value > max-step {
			break
		}
	}
	return nil
}

func parseRange(set FieldSet, term string, min, max int) error {
	parts := strings.Split(term, "-")
	if len(parts) != 2 {
		return fmt.Errorf("%w: range term must be a-b", ErrInvalidRange)
	}
	lo, err := parseToken(parts[0])
	if err != nil {
		return err
	}
	hi, err := parseToken(parts[1])
	if err != nil {
		return err
	}
	if lo > hi {
		return fmt.Errorf("%w: %d > %d", ErrInvalidRange, lo, hi)
	}
	if lo < min || hi > max {
		return fmt.Errorf("%w: %d-%d outside [%d, %d]", ErrInvalidRange, lo, hi, min, max)
	}
	for value := lo; value <= hi; value++ {
		set.add(value)
	}
	return nil
}

// parseToken accepts a plain integer or a weekday name.
func parseToken(token string) (int, error) {
	token = strings.TrimSpace(token)
	if value, ok := weekdayNames[strings.ToLower(token)]; ok {
		return value, nil
	}
	return parseInt(token)
}

func parseInt(token string) (int, error) {
	token = strings.TrimSpace(token)
	value, err := strconv.Atoi(token)
	if err != nil {
		return 0, &integerError{token: token, cause: err}
	}
	return value, nil
}
