package timers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/dwizi/timer-runtime/internal/schedule"
)

const schemaVersion = "v1"

var (
	ErrNoTimers     = errors.New("timers file defines no timers")
	ErrTimerUnknown = errors.New("timer not found")

	namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

	cronLineParser = cron.NewParser(
		cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)
)

type rawFile struct {
	SchemaVersion string     `yaml:"schema_version"`
	Timers        []rawTimer `yaml:"timers"`
}

type rawTimer struct {
	Name           string            `yaml:"name"`
	Enabled        *bool             `yaml:"enabled,omitempty"`
	Timezone       string            `yaml:"timezone,omitempty"`
	Spec           *schedule.Spec    `yaml:"spec,omitempty"`
	Cron           string            `yaml:"cron,omitempty"`
	Command        string            `yaml:"command,omitempty"`
	Args           []string          `yaml:"args,omitempty"`
	Env            map[string]string `yaml:"env,omitempty"`
	TimeoutSeconds *int              `yaml:"timeout_seconds,omitempty"`
}

// Definition is a validated timer: when it fires and what it runs.
type Definition struct {
	Name     string
	Enabled  bool
	Location *time.Location
	Spec     schedule.Spec
	CronExpr string
	Command  string
	Args     []string
	Env      map[string]string
	Timeout  time.Duration

	compiled *schedule.Schedule
	cronSpec cron.Schedule
}

// Next returns the first firing strictly after from, evaluated on the
// timer's own wall clock.
func (d Definition) Next(from time.Time) (time.Time, error) {
	local := from.In(d.Location)
	if d.cronSpec != nil {
		next := d.cronSpec.Next(local)
		if next.IsZero() {
			return time.Time{}, fmt.Errorf("cron %q: %w", d.CronExpr, schedule.ErrHorizonExceeded)
		}
		return next, nil
	}
	return d.compiled.Next(local)
}

// Upcoming returns up to count firings after from.
func (d Definition) Upcoming(from time.Time, count int) ([]time.Time, error) {
	out := make([]time.Time, 0, max(count, 0))
	for len(out) < count {
		next, err := d.Next(from)
		if err != nil {
			return out, err
		}
		out = append(out, next)
		from = next
	}
	return out, nil
}

// Describe renders the schedule the way it was configured.
func (d Definition) Describe() string {
	if d.CronExpr != "" {
		return "cron " + d.CronExpr
	}
	return d.Spec.String()
}

// Load reads and validates a timers file. defaultTimezone applies to
// timers that do not name one.
func Load(path, defaultTimezone string) ([]Definition, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read timers file %s: %w", path, err)
	}
	definitions, err := Parse(content, defaultTimezone)
	if err != nil {
		return nil, fmt.Errorf("timers file %s: %w", path, err)
	}
	return definitions, nil
}

func Parse(content []byte, defaultTimezone string) ([]Definition, error) {
	raw := rawFile{}
	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	if err := decoder.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoTimers
		}
		return nil, fmt.Errorf("decode timers: %w", err)
	}
	if strings.TrimSpace(raw.SchemaVersion) == "" {
		raw.SchemaVersion = schemaVersion
	}
	if raw.SchemaVersion != schemaVersion {
		return nil, fmt.Errorf("unsupported timers schema_version %q", raw.SchemaVersion)
	}
	if len(raw.Timers) == 0 {
		return nil, ErrNoTimers
	}
	definitions := make([]Definition, 0, len(raw.Timers))
	seen := map[string]struct{}{}
	for i, item := range raw.Timers {
		definition, err := normalizeTimer(item, defaultTimezone)
		if err != nil {
			return nil, fmt.Errorf("timers[%d]: %w", i, err)
		}
		if _, exists := seen[definition.Name]; exists {
			return nil, fmt.Errorf("duplicate timer name %q", definition.Name)
		}
		seen[definition.Name] = struct{}{}
		definitions = append(definitions, definition)
	}
	sort.Slice(definitions, func(i, j int) bool { return definitions[i].Name < definitions[j].Name })
	return definitions, nil
}

// Find returns the definition with the given name.
func Find(definitions []Definition, name string) (Definition, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, definition := range definitions {
		if definition.Name == name {
			return definition, nil
		}
	}
	return Definition{}, fmt.Errorf("%w: %q", ErrTimerUnknown, name)
}

func normalizeTimer(raw rawTimer, defaultTimezone string) (Definition, error) {
	name := strings.ToLower(strings.TrimSpace(raw.Name))
	if name == "" {
		return Definition{}, fmt.Errorf("name is required")
	}
	if !namePattern.MatchString(name) {
		return Definition{}, fmt.Errorf("invalid timer name %q", raw.Name)
	}
	timezone := strings.TrimSpace(raw.Timezone)
	if timezone == "" {
		timezone = strings.TrimSpace(defaultTimezone)
	}
	if timezone == "" {
		timezone = "UTC"
	}
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return Definition{}, fmt.Errorf("timer %s: invalid timezone: %w", name, err)
	}

	definition := Definition{
		Name:     name,
		Enabled:  raw.Enabled == nil || *raw.Enabled,
		Location: location,
		Command:  strings.TrimSpace(raw.Command),
		Args:     append([]string{}, raw.Args...),
		Env:      map[string]string{},
	}
	for key, value := range raw.Env {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		expanded, err := expandEnvStrict(value)
		if err != nil {
			return Definition{}, fmt.Errorf("timer %s: env %s: %w", name, key, err)
		}
		definition.Env[key] = expanded
	}
	if raw.TimeoutSeconds != nil {
		if *raw.TimeoutSeconds < 1 {
			return Definition{}, fmt.Errorf("timer %s: timeout_seconds must be positive", name)
		}
		definition.Timeout = time.Duration(*raw.TimeoutSeconds) * time.Second
	}

	cronExpr := strings.Join(strings.Fields(raw.Cron), " ")
	switch {
	case raw.Spec != nil && cronExpr != "":
		return Definition{}, fmt.Errorf("timer %s: spec and cron are mutually exclusive", name)
	case raw.Spec != nil:
		compiled, err := raw.Spec.Compile()
		if err != nil {
			return Definition{}, fmt.Errorf("timer %s: %w", name, err)
		}
		definition.Spec = *raw.Spec
		definition.compiled = compiled
	case cronExpr != "":
		cronSpec, err := cronLineParser.Parse(cronExpr)
		if err != nil {
			return Definition{}, fmt.Errorf("timer %s: parse cron expression: %w", name, err)
		}
		definition.CronExpr = cronExpr
		definition.cronSpec = cronSpec
	default:
		return Definition{}, fmt.Errorf("timer %s: one of spec or cron is required", name)
	}
	if definition.Command == "" {
		return Definition{}, fmt.Errorf("timer %s: command is required", name)
	}
	return definition, nil
}

var envTokenPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func expandEnvStrict(value string) (string, error) {
	missing := []string{}
	for _, match := range envTokenPattern.FindAllStringSubmatch(value, -1) {
		if len(match) < 2 {
			continue
		}
		if _, ok := os.LookupEnv(match[1]); !ok {
			missing = append(missing, match[1])
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("missing environment variables: %s", strings.Join(missing, ", "))
	}
	return os.ExpandEnv(value), nil
}
