package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events [tunnel-id]",
	Short: "Display the lifecycle events recorded for a tunnel",
	Long: `Displays the lifecycle events recorded for a tunnel.
Without a tunnel id, lists the tunnels that have events.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEvents,
}

var (
	eventsRaw   bool
	eventsClear bool
)

func init() {
	eventsCmd.Flags().BoolVar(&eventsRaw, "raw", false, "Output events as JSON lines")
	eventsCmd.Flags().BoolVar(&eventsClear, "clear", false, "Remove the tunnel's event log")
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	log := getApp().Audit
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		ids, err := log.Tunnels()
		if err != nil {
			return fmt.Errorf("failed to list event logs: %w", err)
		}
		if len(ids) == 0 {
			logInfo("No events recorded")
			return nil
		}
		for _, id := range ids {
			fmt.Fprintln(out, id)
		}
		return nil
	}

	id := args[0]
	if eventsClear {
		if err := log.Remove(id); err != nil {
			return fmt.Errorf("failed to remove event log: %w", err)
		}
		logSuccess("Removed event log for tunnel %s", id)
		return nil
	}

	events, err := log.Events(id)
	if err != nil {
		return fmt.Errorf("failed to read event log: %w", err)
	}

	if len(events) == 0 {
		logInfo("No events found for tunnel %s", id)
		return nil
	}

	for _, e := range events {
		if eventsRaw {
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("failed to marshal event: %w", err)
			}
			fmt.Fprintln(out, string(data))
			continue
		}

		ts := e.Timestamp.Local().Format("2006-01-02 15:04:05")
		line := fmt.Sprintf("[%s] %-13s %s", ts, e.Type, e.Tunnel)
		if e.Thing != "" {
			line += " " + e.Thing
		}
		if e.Details != "" {
			line += fmt.Sprintf(" (%s)", e.Details)
		}
		fmt.Fprintln(out, line)
	}

	return nil
}
