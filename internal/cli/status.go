package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dwizi/timer-runtime/internal/config"
	"github.com/dwizi/timer-runtime/internal/heartbeat"
)

func newStatusCommand() *cobra.Command {
	var jsonMode bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show component health written by a running serve process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			snapshot, err := heartbeat.ReadStatus(cfg.StatusPath)
			if err != nil {
				return err
			}
			if jsonMode {
				payload, err := json.MarshalIndent(snapshot, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(payload))
				return nil
			}
			generated := time.Unix(snapshot.GeneratedAtUnix, 0).UTC()
			fmt.Fprintf(cmd.OutOrStdout(), "overall: %s (as of %s)\n", snapshot.Overall, generated.Format(time.RFC3339))
			writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(writer, "COMPONENT\tSTATE\tMESSAGE\tERROR")
			for _, item := range snapshot.Components {
				fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", item.Name, item.State, item.Message, item.Error)
			}
			return writer.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonMode, "json", false, "emit JSON")
	return cmd
}
