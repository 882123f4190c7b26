package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/yuriipolishchuk/ssh2iot/internal/logging"
	"github.com/yuriipolishchuk/ssh2iot/internal/session"
	"github.com/yuriipolishchuk/ssh2iot/internal/tui"
	"github.com/yuriipolishchuk/ssh2iot/internal/tunnel"
)

var pickCmd = &cobra.Command{
	Use:   "pick",
	Short: "Interactive tunnel picker",
	Long: `Opens an interactive TUI over the open tunnels of a thing.

Use arrow keys or j/k to navigate, / to filter.

Actions:
  Enter  - Attach to the selected tunnel with a rotated token
  c      - Close the selected tunnel
  d      - Close and delete the selected tunnel
  q/Esc  - Quit

Without a terminal the tunnels are printed instead.`,
	Args: cobra.NoArgs,
	RunE: runPick,
}

var pickThing string

// runPicker and isInteractive are replaced in tests.
var (
	runPicker     = tui.RunPicker
	isInteractive = func() bool {
		return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
	}
)

func init() {
	pickCmd.Flags().StringVarP(&pickThing, "thing", "i", "", "IoT thing name")
	rootCmd.AddCommand(pickCmd)
}

func runPick(cmd *cobra.Command, args []string) error {
	if err := requireThing(pickThing); err != nil {
		return err
	}
	a := getApp()
	ctx := cmd.Context()

	logging.Debug("picker mode started", "thing", pickThing)

	open := tunnel.OpenOnly(a.Tunnels.List(ctx, pickThing))

	if !isInteractive() {
		fmt.Fprint(cmd.OutOrStdout(), tui.SimplePicker(pickThing, open, time.Now()))
		return nil
	}

	if len(open) == 0 {
		logInfo("No open tunnels for %s. Open one with: ssh2iot connect -i %s", pickThing, pickThing)
		return nil
	}

	result, err := runPicker(pickThing, open)
	if err != nil {
		return fmt.Errorf("picker error: %w", err)
	}

	logging.Debug("picker result", "action", result.Action)

	switch result.Action {
	case tui.ActionAttach:
		req := session.Request{
			Thing:    pickThing,
			Region:   region(a),
			TunnelID: result.Tunnel.ID,
			Rotate:   true,
		}
		return runSession(ctx, cmd, a, req)

	case tui.ActionClose:
		return closeTunnel(ctx, a, pickThing, result.Tunnel.ID, false)

	case tui.ActionDelete:
		return closeTunnel(ctx, a, pickThing, result.Tunnel.ID, true)

	case tui.ActionQuit:
		// Just exit cleanly
	}

	return nil
}
