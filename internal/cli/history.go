package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dwizi/timer-runtime/internal/config"
	"github.com/dwizi/timer-runtime/internal/store"
)

type historyEntry struct {
	ID           string `json:"id"`
	Timer        string `json:"timer"`
	Status       string `json:"status"`
	ScheduledFor string `json:"scheduled_for"`
	StartedAt    string `json:"started_at"`
	DurationMS   int64  `json:"duration_ms"`
	Error        string `json:"error,omitempty"`
}

func newHistoryCommand() *cobra.Command {
	var (
		timerName string
		status    string
		limit     int
		jsonMode  bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded timer runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			sqlStore, err := store.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer sqlStore.Close()
			if err := sqlStore.AutoMigrate(cmd.Context()); err != nil {
				return err
			}

			runs, err := sqlStore.ListRuns(cmd.Context(), store.ListRunsInput{
				TimerName: timerName,
				Status:    status,
				Limit:     limit,
			})
			if err != nil {
				return err
			}

			entries := make([]historyEntry, 0, len(runs))
			for _, run := range runs {
				entries = append(entries, historyEntry{
					ID:           run.ID,
					Timer:        run.TimerName,
					Status:       run.Status,
					ScheduledFor: run.ScheduledFor.Format(time.RFC3339),
					StartedAt:    run.StartedAt.Format(time.RFC3339),
					DurationMS:   run.Duration.Milliseconds(),
					Error:        run.ErrorMessage,
				})
			}
			if jsonMode {
				payload, err := json.MarshalIndent(entries, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(payload))
				return nil
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no runs recorded")
				return nil
			}
			writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(writer, "TIMER\tSTATUS\tSCHEDULED\tDURATION\tERROR")
			for _, entry := range entries {
				fmt.Fprintf(writer, "%s\t%s\t%s\t%dms\t%s\n", entry.Timer, entry.Status, entry.ScheduledFor, entry.DurationMS, entry.Error)
			}
			return writer.Flush()
		},
	}
	cmd.Flags().StringVar(&timerName, "timer", "", "only runs of this timer")
	cmd.Flags().StringVar(&status, "status", "", "only runs with this status (running, succeeded, failed)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum runs to list")
	cmd.Flags().BoolVar(&jsonMode, "json", false, "emit JSON")
	return cmd
}
