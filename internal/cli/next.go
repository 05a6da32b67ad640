package cli

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dwizi/timer-runtime/internal/config"
	"github.com/dwizi/timer-runtime/internal/schedule"
	"github.com/dwizi/timer-runtime/internal/timers"
)

func newNextCommand() *cobra.Command {
	var (
		timerName string
		filePath  string
		fromText  string
		timezone  string
		count     int
		spec      schedule.Spec
	)
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Print upcoming occurrences of a timer or of the given fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			if count < 1 {
				return fmt.Errorf("--count must be at least 1")
			}
			from := time.Now()
			if strings.TrimSpace(fromText) != "" {
				parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(fromText))
				if err != nil {
					return fmt.Errorf("parse --from: %w", err)
				}
				from = parsed
			}

			var (
				occurrences []time.Time
				err         error
			)
			if strings.TrimSpace(timerName) != "" {
				if filePath == "" {
					filePath = cfg.TimersFile
				}
				definitions, loadErr := timers.Load(filePath, cfg.DefaultTimezone)
				if loadErr != nil {
					return loadErr
				}
				definition, findErr := timers.Find(definitions, timerName)
				if findErr != nil {
					return findErr
				}
				occurrences, err = definition.Upcoming(from, count)
			} else {
				if timezone == "" {
					timezone = cfg.DefaultTimezone
				}
				location, locErr := time.LoadLocation(timezone)
				if locErr != nil {
					return fmt.Errorf("load timezone %q: %w", timezone, locErr)
				}
				compiled, compileErr := spec.Compile()
				if compileErr != nil {
					return compileErr
				}
				occurrences, err = compiled.Upcoming(from.In(location), count)
			}

			for _, occurrence := range occurrences {
				fmt.Fprintln(cmd.OutOrStdout(), occurrence.Format(time.RFC3339))
			}
			if errors.Is(err, schedule.ErrHorizonExceeded) && len(occurrences) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no further occurrences within %d years\n", schedule.HorizonYears)
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&timerName, "timer", "", "named timer from the timers file")
	cmd.Flags().StringVar(&filePath, "file", "", "timers file (defaults to TIMER_RUNTIME_TIMERS_FILE)")
	cmd.Flags().StringVar(&fromText, "from", "", "reference time in RFC3339 (defaults to now)")
	cmd.Flags().StringVar(&timezone, "tz", "", "IANA timezone for field matching (defaults to TIMER_RUNTIME_DEFAULT_TIMEZONE)")
	cmd.Flags().IntVarP(&count, "count", "n", 5, "number of occurrences to print")
	cmd.Flags().StringVar(&spec.Second, "sec", "", "seconds field")
	cmd.Flags().StringVar(&spec.Minute, "min", "", "minutes field")
	cmd.Flags().StringVar(&spec.Hour, "hour", "", "hours field")
	cmd.Flags().StringVar(&spec.DayOfMonth, "dom", "", "day of month field")
	cmd.Flags().StringVar(&spec.Month, "month", "", "month field")
	cmd.Flags().StringVar(&spec.WeekOfMonth, "wom", "", "week of month field")
	cmd.Flags().StringVar(&spec.DayOfWeek, "dow", "", "day of week field")
	cmd.Flags().StringVar(&spec.DayOfYear, "doy", "", "day of year field")
	cmd.Flags().StringVar(&spec.WeekOfYear, "woy", "", "ISO week of year field")
	cmd.Flags().StringVar(&spec.Year, "year", "", "year field")
	return cmd
}

func newCheckCommand() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the timers file and show each timer's next run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			if filePath == "" {
				filePath = cfg.TimersFile
			}
			definitions, err := timers.Load(filePath, cfg.DefaultTimezone)
			if err != nil {
				return err
			}

			now := time.Now()
			writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(writer, "NAME\tSCHEDULE\tTIMEZONE\tNEXT")
			for _, definition := range definitions {
				next := "disabled"
				if definition.Enabled {
					occurrence, nextErr := definition.Next(now)
					if nextErr != nil {
						next = "never"
					} else {
						next = occurrence.Format(time.RFC3339)
					}
				}
				fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", definition.Name, definition.Describe(), definition.Location, next)
			}
			if err := writer.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d timers ok\n", len(definitions))
			return nil
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "timers file (defaults to TIMER_RUNTIME_TIMERS_FILE)")
	return cmd
}
