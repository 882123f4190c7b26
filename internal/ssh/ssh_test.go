package ssh

import (
	"context"
	stderrors "errors"
	"os/exec"
	"strings"
	"testing"

	"github.com/yuriipolishchuk/ssh2iot/internal/config"
	"github.com/yuriipolishchuk/ssh2iot/internal/errors"
	"github.com/yuriipolishchuk/ssh2iot/internal/system"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions(4022)

	if opts.Port != 4022 {
		t.Errorf("Port = %d, want 4022", opts.Port)
	}
	if opts.Host != "127.0.0.1" {
		t.Errorf("Host = %q, want 127.0.0.1", opts.Host)
	}
	if opts.User != DefaultUser {
		t.Errorf("User = %q, want %q", opts.User, DefaultUser)
	}
	if opts.StrictHostKeyCheck {
		t.Error("StrictHostKeyCheck should be false by default")
	}
}

func TestOptionsWithUser(t *testing.T) {
	opts := DefaultOptions(4022).WithUser("ubuntu")
	if opts.User != "ubuntu" {
		t.Errorf("User = %q, want ubuntu", opts.User)
	}

	// Empty user keeps the current one
	opts = opts.WithUser("")
	if opts.User != "ubuntu" {
		t.Errorf("User = %q after empty WithUser", opts.User)
	}
}

func TestDestination(t *testing.T) {
	opts := DefaultOptions(4022).WithUser("pi")

	if got := opts.Destination(); got != "pi@127.0.0.1" {
		t.Errorf("Destination() = %q, want %q", got, "pi@127.0.0.1")
	}
}

func TestBuildArgs(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{
			name: "default",
			opts: DefaultOptions(4022),
			want: "-p 4022 -o StrictHostKeyChecking=no -o UserKnownHostsFile=/dev/null root@127.0.0.1",
		},
		{
			name: "strict host key checking",
			opts: DefaultOptions(4022).WithStrictHostKeyCheck(),
			want: "-p 4022 root@127.0.0.1",
		},
		{
			name: "extra args before destination",
			opts: Options{Port: 5000, User: "u", Host: "127.0.0.1", StrictHostKeyCheck: true, ExtraArgs: []string{"-A", "-i", "key"}},
			want: "-p 5000 -A -i key u@127.0.0.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := strings.Join(tt.opts.BuildArgs(), " ")
			if got != tt.want {
				t.Errorf("BuildArgs() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.SSHConfig{
		User:           "admin",
		KnownHostsFile: "/tmp/known",
		ExtraArgs:      `-o "ServerAliveInterval 30" -A`,
	}

	opts, err := FromConfig(cfg, 6000)
	if err != nil {
		t.Fatalf("FromConfig error: %v", err)
	}
	if opts.User != "admin" || opts.Port != 6000 {
		t.Errorf("opts = %+v", opts)
	}
	if len(opts.ExtraArgs) != 3 || opts.ExtraArgs[1] != "ServerAliveInterval 30" {
		t.Errorf("ExtraArgs = %q", opts.ExtraArgs)
	}
	if !strings.Contains(strings.Join(opts.BaseArgs(), " "), "UserKnownHostsFile=/tmp/known") {
		t.Errorf("BaseArgs = %v", opts.BaseArgs())
	}
}

func TestFromConfig_BadQuoting(t *testing.T) {
	_, err := FromConfig(config.SSHConfig{ExtraArgs: `-o "unterminated`}, 6000)
	if !errors.HasCode(err, errors.ExitConfigError) {
		t.Errorf("expected config error, got %v", err)
	}
}

func TestLauncher_Run(t *testing.T) {
	mock := system.NewMockExecutor()
	l := &Launcher{Binary: "ssh", Executor: mock}

	code, err := l.Run(context.Background(), DefaultOptions(4022).WithUser("ops"))
	if err != nil || code != 0 {
		t.Fatalf("Run = %d, %v", code, err)
	}

	got := mock.Interactive()
	if len(got) != 1 || got[0].Name != "ssh" {
		t.Fatalf("Interactive = %+v", got)
	}
	if last := got[0].Args[len(got[0].Args)-1]; last != "ops@127.0.0.1" {
		t.Errorf("destination arg = %q", last)
	}
}

func TestLauncher_RunNonZeroExit(t *testing.T) {
	// A real *exec.ExitError, produced by a command that exits 3
	runErr := exec.Command("sh", "-c", "exit 3").Run()
	var exitErr *exec.ExitError
	if !stderrors.As(runErr, &exitErr) {
		t.Skip("sh not available")
	}

	mock := system.NewMockExecutor()
	mock.InteractiveErr = runErr
	l := &Launcher{Binary: "ssh", Executor: mock}

	code, err := l.Run(context.Background(), DefaultOptions(4022))
	if err != nil {
		t.Errorf("non-zero exit should not be an error: %v", err)
	}
	if code != 3 {
		t.Errorf("code = %d, want 3", code)
	}
}

func TestLauncher_RunLaunchFailure(t *testing.T) {
	mock := system.NewMockExecutor()
	mock.InteractiveErr = stderrors.New(`exec: "ssh": executable file not found in $PATH`)
	l := &Launcher{Binary: "ssh", Executor: mock}

	_, err := l.Run(context.Background(), DefaultOptions(4022))
	if !errors.HasCode(err, errors.ExitSSHError) {
		t.Errorf("expected ssh error, got %v", err)
	}
}
