package cmd

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/yuriipolishchuk/ssh2iot/internal/errors"
	"github.com/yuriipolishchuk/ssh2iot/internal/logging"
	"github.com/yuriipolishchuk/ssh2iot/internal/tunnel"
)

var closeCmd = &cobra.Command{
	Use:   "close [tunnel-id]",
	Short: "Close a tunnel, or all open tunnels to a thing",
	Example: `  ssh2iot close 01234567-89ab --delete
  ssh2iot close -i thing-42 --all`,
	Args: cobra.MaximumNArgs(1),
	RunE: runClose,
}

var (
	closeThing  string
	closeAll    bool
	closeDelete bool
)

// closeConcurrency bounds parallel CloseTunnel calls for --all.
const closeConcurrency = 4

func init() {
	closeCmd.Flags().StringVarP(&closeThing, "thing", "i", "", "IoT thing name (with --all)")
	closeCmd.Flags().BoolVar(&closeAll, "all", false, "Close every open tunnel to --thing")
	closeCmd.Flags().BoolVar(&closeDelete, "delete", false, "Also delete the tunnel")
	rootCmd.AddCommand(closeCmd)
}

func runClose(cmd *cobra.Command, args []string) error {
	a := getApp()
	ctx := cmd.Context()

	switch {
	case len(args) == 1 && closeAll:
		return errors.ValidationError("give either a tunnel id or --all, not both")
	case len(args) == 1:
		return closeTunnel(ctx, a, closeThing, args[0], closeDelete)
	case !closeAll:
		return errors.ValidationError("a tunnel id or --thing with --all is required")
	}

	if err := requireThing(closeThing); err != nil {
		return err
	}

	open := tunnel.OpenOnly(a.Tunnels.List(ctx, closeThing))
	if len(open) == 0 {
		logInfo("No open tunnels for %s", closeThing)
		return nil
	}
	logging.Debug("closing tunnels", "thing", closeThing, "count", len(open))

	closed := make([]bool, len(open))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(closeConcurrency)
	for i, s := range open {
		i, s := i, s
		g.Go(func() error {
			if err := a.Tunnels.Close(gctx, s.ID, closeDelete); err != nil {
				return err
			}
			closed[i] = true
			return nil
		})
	}
	err := g.Wait()

	for i, s := range open {
		if closed[i] {
			reportClosed(a, closeThing, s.ID, closeDelete)
		}
	}
	return err
}
