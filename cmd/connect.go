package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yuriipolishchuk/ssh2iot/internal/app"
	"github.com/yuriipolishchuk/ssh2iot/internal/config"
	"github.com/yuriipolishchuk/ssh2iot/internal/logging"
	"github.com/yuriipolishchuk/ssh2iot/internal/session"
	"github.com/yuriipolishchuk/ssh2iot/internal/tui"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Open a tunnel to an IoT thing and SSH into it",
	Long: `Opens a secure tunnel to an IoT thing, waits for the device to connect,
starts localproxy in source mode on a free local port and runs ssh through it.

If the thing already has open tunnels, they are listed and nothing is opened
unless --force is given. Attach to an existing tunnel with --tunnel-id and
either --access-token or --rotate.`,
	Example: `  ssh2iot connect -i thing-42 -u pi
  ssh2iot connect -i thing-42 --list
  ssh2iot connect --tunnel-id 01234567-89ab --rotate --delete`,
	Args: cobra.NoArgs,
	RunE: runConnect,
}

var (
	connectThing       string
	connectTimeout     int
	connectService     string
	connectUser        string
	connectList        bool
	connectTunnelID    string
	connectAccessToken string
	connectRotate      bool
	connectDelete      bool
	connectForce       bool
	connectStrict      bool
)

func init() {
	connectCmd.Flags().StringVarP(&connectThing, "thing", "i", "", "IoT thing name")
	connectCmd.Flags().IntVarP(&connectTimeout, "timeout", "t", config.DefaultTimeoutMinutes, "Maximum tunnel lifetime in minutes")
	connectCmd.Flags().StringVarP(&connectService, "service", "s", "", "Service to use: ssh or scp (default from config, "+config.DefaultService+")")
	connectCmd.Flags().StringVarP(&connectUser, "user", "u", "", "SSH user (default from config, "+config.DefaultSSHUser+")")
	connectCmd.Flags().BoolVar(&connectList, "list", false, "List the thing's tunnels and exit")
	connectCmd.Flags().StringVar(&connectTunnelID, "tunnel-id", "", "Attach to an existing tunnel")
	connectCmd.Flags().StringVar(&connectAccessToken, "access-token", "", "Source access token for --tunnel-id")
	connectCmd.Flags().BoolVar(&connectRotate, "rotate", false, "Rotate the source access token of --tunnel-id")
	connectCmd.Flags().BoolVar(&connectDelete, "delete", false, "Close and delete the tunnel when the session ends")
	connectCmd.Flags().BoolVar(&connectForce, "force", false, "Open a new tunnel even if open ones exist")
	connectCmd.Flags().BoolVar(&connectStrict, "strict-host-key-checking", false, "Verify the device host key")
	rootCmd.AddCommand(connectCmd)
}

func runConnect(cmd *cobra.Command, args []string) error {
	a := getApp()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if connectList {
		if err := requireThing(connectThing); err != nil {
			return err
		}
		return printTunnels(ctx, cmd.OutOrStdout(), a, connectThing, false)
	}

	req := connectRequest(cmd, a)
	if connectStrict {
		a.Config.SSH.StrictHostKeyChecking = true
	}

	logging.Debug("connect", "thing", req.Thing, "region", req.Region, "service", req.Service,
		"attach", req.IsAttach(), "rotate", req.Rotate)

	return runSession(ctx, cmd, a, req)
}

// connectRequest builds the session request from flags on top of config.
func connectRequest(cmd *cobra.Command, a *app.App) session.Request {
	req := session.Request{
		Thing:          connectThing,
		Service:        a.Config.Tunnel.Service,
		Region:         region(a),
		TimeoutMinutes: a.Config.Tunnel.TimeoutMinutes,
		SSHUser:        connectUser,
		TunnelID:       connectTunnelID,
		AccessToken:    connectAccessToken,
		Rotate:         connectRotate,
		Delete:         connectDelete,
		Force:          connectForce,
	}
	if connectService != "" {
		req.Service = connectService
	}
	if cmd.Flags().Changed("timeout") {
		req.TimeoutMinutes = connectTimeout
	}
	return req
}

// runSession runs one orchestrated session and reports existing tunnels
// when it declined to open a new one.
func runSession(ctx context.Context, cmd *cobra.Command, a *app.App, req session.Request) error {
	o, err := a.NewOrchestrator()
	if err != nil {
		return err
	}

	res, err := o.Run(ctx, req)
	if err != nil {
		return err
	}

	if len(res.Existing) > 0 {
		logWarning("%s already has %d open tunnel(s):", req.Thing, len(res.Existing))
		fmt.Fprint(cmd.OutOrStdout(), tui.RenderTable(res.Existing, time.Now()))
		logInfo("Attach with: ssh2iot connect --tunnel-id <id> --rotate")
		logInfo("Or open another one with --force")
		return nil
	}

	logging.Debug("session finished", "tunnel", res.TunnelID, "port", res.Port,
		"ssh_exit", res.SSHExitCode, "deleted", res.Deleted)
	return nil
}
