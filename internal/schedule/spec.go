package schedule

import (
	"errors"
	"strings"
)

// Spec is a schedule as configured: one verbatim text per calendar field.
// Nothing is parsed until the spec is compiled or searched.
type Spec struct {
	Second      string `yaml:"sec" json:"sec"`
	Minute      string `yaml:"min" json:"min"`
	Hour        string `yaml:"hour" json:"hour"`
	DayOfMonth  string `yaml:"day_of_month" json:"day_of_month"`
	Month       string `yaml:"month" json:"month"`
	WeekOfMonth string `yaml:"week_of_month" json:"week_of_month"`
	DayOfWeek   string `yaml:"day_of_week" json:"day_of_week"`
	DayOfYear   string `yaml:"day_of_year" json:"day_of_year"`
	WeekOfYear  string `yaml:"week_of_year" json:"week_of_year"`
	Year        string `yaml:"year" json:"year"`
}

type field struct {
	name     string
	min, max int
	text     func(Spec) string
}

const (
	MinYear = 1970
	MaxYear = 2199
)

var fields = [...]field{
	{"sec", 0, 59, func(s Spec) string { return s.Second }},
	{"min", 0, 59, func(s Spec) string { return s.Minute }},
	{"hour", 0, 23, func(s Spec) string { return s.Hour }},
	{"day_of_month", 1, 31, func(s Spec) string { return s.DayOfMonth }},
	{"month", 1, 12, func(s Spec) string { return s.Month }},
	{"week_of_month", 1, 5, func(s Spec) string { return s.WeekOfMonth }},
	{"day_of_week", 0, 6, func(s Spec) string { return s.DayOfWeek }},
	{"day_of_year", 1, 366, func(s Spec) string { return s.DayOfYear }},
	{"week_of_year", 1, 53, func(s Spec) string { return s.WeekOfYear }},
	{"year", MinYear, MaxYear, func(s Spec) string { return s.Year }},
}

// Schedule is a compiled Spec. It is immutable and safe for concurrent use.
type Schedule struct {
	Second      FieldSet
	Minute      FieldSet
	Hour        FieldSet
	DayOfMonth  FieldSet
	Month       FieldSet
	WeekOfMonth FieldSet
	DayOfWeek   FieldSet
	DayOfYear   FieldSet
	WeekOfYear  FieldSet
	Year        FieldSet

	// anyYear is set when the year field is blank or "*"; the year is then
	// not checked at all, so instants outside [MinYear, MaxYear] still match.
	anyYear bool
}

// Compile parses every field. A blank field is treated as "*".
func (s Spec) Compile() (*Schedule, error) {
	var sets [len(fields)]FieldSet
	for index, f := range fields {
		text := strings.TrimSpace(f.text(s))
		if text == "" {
			text = "*"
		}
		set, err := ParseField(text, f.min, f.max)
		if err != nil {
			var fieldErr *FieldError
			if errors.As(err, &fieldErr) {
				fieldErr.Field = f.name
			}
			return nil, err
		}
		sets[index] = set
	}
	return &Schedule{
		Second:      sets[0],
		Minute:      sets[1],
		Hour:        sets[2],
		DayOfMonth:  sets[3],
		Month:       sets[4],
		WeekOfMonth: sets[5],
		DayOfWeek:   sets[6],
		DayOfYear:   sets[7],
		WeekOfYear:  sets[8],
		Year:        sets[9],
		anyYear:     isWildcard(s.Year),
	}, nil
}

func isWildcard(text string) bool {
	text = strings.TrimSpace(text)
	return text == "" || text == "*"
}

func (s Spec) String() string {
	texts := make([]string, 0, len(fields))
	for _, f := range fields {
		text := strings.TrimSpace(f.text(s))
		if text == "" {
			text = "*"
		}
		texts = append(texts, text)
	}
	return strings.Join(texts, " ")
}
