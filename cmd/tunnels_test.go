package cmd

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/iotsecuretunneling/types"

	"github.com/yuriipolishchuk/ssh2iot/internal/audit"
	"github.com/yuriipolishchuk/ssh2iot/internal/errors"
	"github.com/yuriipolishchuk/ssh2iot/internal/testutil"
	"github.com/yuriipolishchuk/ssh2iot/internal/tui"
	"github.com/yuriipolishchuk/ssh2iot/internal/tunnel"
)

func TestList(t *testing.T) {
	env := testutil.NewTestEnv(t)
	open := env.Tunnels.AddTunnel("thing-42", types.TunnelStatusOpen)
	closed := env.Tunnels.AddTunnel("thing-42", types.TunnelStatusClosed)
	other := env.Tunnels.AddTunnel("thing-7", types.TunnelStatusOpen)

	t.Run("all", func(t *testing.T) {
		stdout, _, err := executeCommand("list", "-i", "thing-42")
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if !strings.Contains(stdout, open) || !strings.Contains(stdout, closed) {
			t.Errorf("output should list both tunnels:\n%s", stdout)
		}
		if strings.Contains(stdout, other) {
			t.Errorf("output should not list tunnels of other things:\n%s", stdout)
		}
	})

	t.Run("open only", func(t *testing.T) {
		stdout, _, err := executeCommand("list", "-i", "thing-42", "--open")
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if !strings.Contains(stdout, open) || strings.Contains(stdout, closed) {
			t.Errorf("output should list only the open tunnel:\n%s", stdout)
		}
	})

	t.Run("none", func(t *testing.T) {
		stdout, _, err := executeCommand("list", "-i", "thing-99")
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if !strings.Contains(stdout, "No tunnels found for thing-99") {
			t.Errorf("output = %q", stdout)
		}
	})

	t.Run("remote failure is not fatal", func(t *testing.T) {
		env.Tunnels.Errors["ListTunnels"] = testutil.APIError("ThrottlingException", "slow down")
		defer delete(env.Tunnels.Errors, "ListTunnels")

		if _, _, err := executeCommand("list", "-i", "thing-42"); err != nil {
			t.Errorf("list error = %v, want nil", err)
		}
	})

	t.Run("missing thing", func(t *testing.T) {
		_, _, err := executeCommand("list")
		if !errors.HasCode(err, errors.ExitGeneralError) {
			t.Errorf("error = %v, want validation error", err)
		}
	})
}

func TestClose(t *testing.T) {
	t.Run("by id", func(t *testing.T) {
		env := testutil.NewTestEnv(t)
		id := env.Tunnels.AddTunnel("thing-42", types.TunnelStatusOpen)

		stdout, _, err := executeCommand("close", id)
		if err != nil {
			t.Fatalf("close failed: %v", err)
		}
		tun, _ := env.Tunnels.Tunnel(id)
		if tun.Status != types.TunnelStatusClosed {
			t.Errorf("Status = %s, want CLOSED", tun.Status)
		}
		if env.Tunnels.Deleted(id) {
			t.Error("tunnel should not be deleted without --delete")
		}
		if !strings.Contains(stdout, "Tunnel "+id+" closed") {
			t.Errorf("output = %q", stdout)
		}
	})

	t.Run("delete", func(t *testing.T) {
		env := testutil.NewTestEnv(t)
		id := env.Tunnels.AddTunnel("thing-42", types.TunnelStatusOpen)

		if _, _, err := executeCommand("close", id, "--delete"); err != nil {
			t.Fatalf("close failed: %v", err)
		}
		if !env.Tunnels.Deleted(id) {
			t.Error("tunnel should be deleted")
		}

		events, _ := env.App.Audit.Events(id)
		if len(events) != 1 || events[0].Type != audit.EventClosed || events[0].Details != "deleted" {
			t.Errorf("events = %+v", events)
		}
	})

	t.Run("all", func(t *testing.T) {
		env := testutil.NewTestEnv(t)
		a := env.Tunnels.AddTunnel("thing-42", types.TunnelStatusOpen)
		b := env.Tunnels.AddTunnel("thing-42", types.TunnelStatusOpen)
		env.Tunnels.AddTunnel("thing-42", types.TunnelStatusClosed)
		other := env.Tunnels.AddTunnel("thing-7", types.TunnelStatusOpen)

		if _, _, err := executeCommand("close", "-i", "thing-42", "--all", "--delete"); err != nil {
			t.Fatalf("close --all failed: %v", err)
		}
		if got := env.Tunnels.Calls("CloseTunnel"); got != 2 {
			t.Errorf("CloseTunnel calls = %d, want 2", got)
		}
		if !env.Tunnels.Deleted(a) || !env.Tunnels.Deleted(b) {
			t.Error("open tunnels should be deleted")
		}
		if env.Tunnels.Deleted(other) {
			t.Error("tunnels of other things should be left alone")
		}
	})

	t.Run("missing tunnel", func(t *testing.T) {
		testutil.NewTestEnv(t)
		_, _, err := executeCommand("close", "tun-9999")
		if !errors.HasCode(err, errors.ExitRemoteError) {
			t.Errorf("error = %v, want remote error", err)
		}
	})

	t.Run("usage errors", func(t *testing.T) {
		testutil.NewTestEnv(t)
		for _, args := range [][]string{
			{"close"},
			{"close", "tun-0001", "--all"},
			{"close", "--all"},
		} {
			_, _, err := executeCommand(args...)
			if !errors.HasCode(err, errors.ExitGeneralError) {
				t.Errorf("%v: error = %v, want validation error", args, err)
			}
		}
	})
}

// stubPicker makes pick interactive and answers with action on the first
// tunnel offered.
func stubPicker(t *testing.T, action tui.Action) *[]tunnel.Summary {
	t.Helper()
	var offered []tunnel.Summary

	origPicker, origInteractive := runPicker, isInteractive
	t.Cleanup(func() { runPicker, isInteractive = origPicker, origInteractive })

	isInteractive = func() bool { return true }
	runPicker = func(thing string, tunnels []tunnel.Summary) (tui.PickerResult, error) {
		offered = tunnels
		if action == tui.ActionQuit {
			return tui.PickerResult{Action: action}, nil
		}
		s := tunnels[0]
		return tui.PickerResult{Action: action, Tunnel: &s}, nil
	}
	return &offered
}

func TestPick(t *testing.T) {
	t.Run("non-interactive prints the list", func(t *testing.T) {
		env := testutil.NewTestEnv(t)
		id := env.Tunnels.AddTunnel("thing-42", types.TunnelStatusOpen)

		orig := isInteractive
		isInteractive = func() bool { return false }
		t.Cleanup(func() { isInteractive = orig })

		stdout, _, err := executeCommand("pick", "-i", "thing-42")
		if err != nil {
			t.Fatalf("pick failed: %v", err)
		}
		if !strings.Contains(stdout, id) || !strings.Contains(stdout, "--rotate") {
			t.Errorf("output = %q", stdout)
		}
	})

	t.Run("only open tunnels are offered", func(t *testing.T) {
		env := testutil.NewTestEnv(t)
		env.Tunnels.AddTunnel("thing-42", types.TunnelStatusClosed)
		open := env.Tunnels.AddTunnel("thing-42", types.TunnelStatusOpen)
		offered := stubPicker(t, tui.ActionQuit)

		if _, _, err := executeCommand("pick", "-i", "thing-42"); err != nil {
			t.Fatalf("pick failed: %v", err)
		}
		if len(*offered) != 1 || (*offered)[0].ID != open {
			t.Errorf("offered = %+v", *offered)
		}
		if env.Tunnels.Calls("CloseTunnel") != 0 {
			t.Error("quit should not close anything")
		}
	})

	t.Run("close", func(t *testing.T) {
		env := testutil.NewTestEnv(t)
		id := env.Tunnels.AddTunnel("thing-42", types.TunnelStatusOpen)
		stubPicker(t, tui.ActionClose)

		if _, _, err := executeCommand("pick", "-i", "thing-42"); err != nil {
			t.Fatalf("pick failed: %v", err)
		}
		tun, _ := env.Tunnels.Tunnel(id)
		if tun.Status != types.TunnelStatusClosed || env.Tunnels.Deleted(id) {
			t.Errorf("tunnel should be closed but kept, status %s", tun.Status)
		}
	})

	t.Run("delete", func(t *testing.T) {
		env := testutil.NewTestEnv(t)
		id := env.Tunnels.AddTunnel("thing-42", types.TunnelStatusOpen)
		stubPicker(t, tui.ActionDelete)

		if _, _, err := executeCommand("pick", "-i", "thing-42"); err != nil {
			t.Fatalf("pick failed: %v", err)
		}
		if !env.Tunnels.Deleted(id) {
			t.Error("tunnel should be deleted")
		}
	})

	t.Run("attach rotates the token", func(t *testing.T) {
		env := testutil.NewTestEnv(t)
		env.Tunnels.AddTunnel("thing-42", types.TunnelStatusOpen)
		env.ConnectAfter(1, 2)
		stubPicker(t, tui.ActionAttach)

		if _, _, err := executeCommand("pick", "-i", "thing-42"); err != nil {
			t.Fatalf("pick failed: %v", err)
		}
		if got := env.Tunnels.Calls("RotateTunnelAccessToken"); got != 1 {
			t.Errorf("RotateTunnelAccessToken calls = %d, want 1", got)
		}
		if len(env.Executor.Interactive()) != 1 {
			t.Error("ssh should run once")
		}
	})

	t.Run("no open tunnels", func(t *testing.T) {
		testutil.NewTestEnv(t)
		offered := stubPicker(t, tui.ActionQuit)

		stdout, _, err := executeCommand("pick", "-i", "thing-42")
		if err != nil {
			t.Fatalf("pick failed: %v", err)
		}
		if *offered != nil {
			t.Error("picker should not run without tunnels")
		}
		if !strings.Contains(stdout, "No open tunnels") {
			t.Errorf("output = %q", stdout)
		}
	})
}

func TestEvents(t *testing.T) {
	env := testutil.NewTestEnv(t)
	log := env.App.Audit
	log.LogEvent(audit.EventOpened, "tun-0001", "thing-42", "service=ssh timeout=720m")
	log.LogEvent(audit.EventClosed, "tun-0001", "thing-42", "deleted")
	log.LogEvent(audit.EventOpened, "tun-0002", "thing-7", "")

	t.Run("lists tunnels", func(t *testing.T) {
		stdout, _, err := executeCommand("events")
		if err != nil {
			t.Fatalf("events failed: %v", err)
		}
		if stdout != "tun-0001\ntun-0002\n" {
			t.Errorf("output = %q", stdout)
		}
	})

	t.Run("text", func(t *testing.T) {
		stdout, _, err := executeCommand("events", "tun-0001")
		if err != nil {
			t.Fatalf("events failed: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(stdout), "\n")
		if len(lines) != 2 {
			t.Fatalf("lines = %d, want 2:\n%s", len(lines), stdout)
		}
		if !strings.Contains(lines[0], "opened") || !strings.Contains(lines[0], "thing-42") || !strings.Contains(lines[0], "(service=ssh timeout=720m)") {
			t.Errorf("line 1 = %q", lines[0])
		}
		if !strings.Contains(lines[1], "closed") || !strings.Contains(lines[1], "(deleted)") {
			t.Errorf("line 2 = %q", lines[1])
		}
	})

	t.Run("raw", func(t *testing.T) {
		stdout, _, err := executeCommand("events", "tun-0001", "--raw")
		if err != nil {
			t.Fatalf("events failed: %v", err)
		}
		first := strings.SplitN(stdout, "\n", 2)[0]
		var e audit.Event
		if err := json.Unmarshal([]byte(first), &e); err != nil {
			t.Fatalf("line is not JSON: %v", err)
		}
		if e.Type != audit.EventOpened || e.Tunnel != "tun-0001" {
			t.Errorf("event = %+v", e)
		}
	})

	t.Run("unknown tunnel", func(t *testing.T) {
		stdout, _, err := executeCommand("events", "tun-9999")
		if err != nil {
			t.Fatalf("events failed: %v", err)
		}
		if !strings.Contains(stdout, "No events found for tunnel tun-9999") {
			t.Errorf("output = %q", stdout)
		}
	})

	t.Run("clear", func(t *testing.T) {
		if _, _, err := executeCommand("events", "tun-0002", "--clear"); err != nil {
			t.Fatalf("events --clear failed: %v", err)
		}
		ids, _ := log.Tunnels()
		if len(ids) != 1 || ids[0] != "tun-0001" {
			t.Errorf("tunnels = %v, want only tun-0001", ids)
		}
	})

}
