package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/yuriipolishchuk/ssh2iot/internal/app"
	"github.com/yuriipolishchuk/ssh2iot/internal/audit"
	"github.com/yuriipolishchuk/ssh2iot/internal/config"
	"github.com/yuriipolishchuk/ssh2iot/internal/errors"
	"github.com/yuriipolishchuk/ssh2iot/internal/logging"
	"github.com/yuriipolishchuk/ssh2iot/internal/tui"
	"github.com/yuriipolishchuk/ssh2iot/internal/tunnel"
)

// Helper aliases for user-facing output (delegates to logging package)
var (
	logInfo    = logging.UserInfo
	logSuccess = logging.UserSuccess
	logWarning = logging.UserWarning
)

// getApp returns the application context built by the root command.
func getApp() *app.App {
	return app.Default
}

// region returns the --region flag or the configured region.
func region(a *app.App) string {
	if regionFlag != "" {
		return regionFlag
	}
	return a.Config.Region
}

// requireThing validates a --thing flag value.
func requireThing(thing string) error {
	if err := config.ValidateThingName(thing); err != nil {
		return errors.ValidationError(err.Error())
	}
	return nil
}

// printTunnels lists the tunnels of thing as a table on w.
func printTunnels(ctx context.Context, w io.Writer, a *app.App, thing string, openOnly bool) error {
	summaries := a.Tunnels.List(ctx, thing)
	if openOnly {
		summaries = tunnel.OpenOnly(summaries)
	}

	if len(summaries) == 0 {
		logInfo("No tunnels found for %s", thing)
		return nil
	}

	_, err := fmt.Fprint(w, tui.RenderTable(summaries, time.Now()))
	return err
}

// closeTunnel closes one tunnel, deleting it when del is set.
func closeTunnel(ctx context.Context, a *app.App, thing, id string, del bool) error {
	if err := a.Tunnels.Close(ctx, id, del); err != nil {
		return err
	}
	reportClosed(a, thing, id, del)
	return nil
}

// reportClosed records and announces a closed tunnel.
func reportClosed(a *app.App, thing, id string, del bool) {
	details, verb := "closed", "closed"
	if del {
		details, verb = "deleted", "closed and deleted"
	}
	if err := a.Audit.LogEvent(audit.EventClosed, id, thing, details); err != nil {
		logging.Warn("failed to record event", "tunnel", id, "error", err)
	}

	logSuccess("Tunnel %s %s", id, verb)
}
