// Package ssh builds and launches the interactive ssh client that runs
// through a source-mode local proxy.
package ssh

import (
	"context"
	stderrors "errors"
	"fmt"
	"os/exec"

	"github.com/kballard/go-shellquote"

	"github.com/yuriipolishchuk/ssh2iot/internal/config"
	"github.com/yuriipolishchuk/ssh2iot/internal/errors"
	"github.com/yuriipolishchuk/ssh2iot/internal/logging"
	"github.com/yuriipolishchuk/ssh2iot/internal/port"
	"github.com/yuriipolishchuk/ssh2iot/internal/system"
)

// Default SSH configuration values.
const (
	DefaultUser           = config.DefaultSSHUser
	DefaultHost           = port.LoopbackHost
	DefaultKnownHostsFile = config.DefaultKnownHostsFile
)

// Options configures SSH connection parameters.
type Options struct {
	Port               int
	User               string
	Host               string
	StrictHostKeyCheck bool
	KnownHostsFile     string
	ExtraArgs          []string
}

// DefaultOptions returns Options for a session through the local proxy on port.
func DefaultOptions(port int) Options {
	return Options{
		Port:               port,
		User:               DefaultUser,
		Host:               DefaultHost,
		StrictHostKeyCheck: false,
		KnownHostsFile:     DefaultKnownHostsFile,
	}
}

// FromConfig returns Options for port using the [ssh] config section.
// ExtraArgs is split with shell quoting rules.
func FromConfig(cfg config.SSHConfig, port int) (Options, error) {
	opts := DefaultOptions(port)
	if cfg.User != "" {
		opts.User = cfg.User
	}
	opts.StrictHostKeyCheck = cfg.StrictHostKeyChecking
	if cfg.KnownHostsFile != "" {
		opts.KnownHostsFile = cfg.KnownHostsFile
	}
	if cfg.ExtraArgs != "" {
		extra, err := shellquote.Split(cfg.ExtraArgs)
		if err != nil {
			return Options{}, errors.ConfigError("invalid ssh.extra_args", err)
		}
		opts.ExtraArgs = extra
	}
	return opts, nil
}

// WithUser returns a copy with the login user set.
func (o Options) WithUser(user string) Options {
	if user != "" {
		o.User = user
	}
	return o
}

// WithStrictHostKeyCheck returns a copy with host key checking enabled.
func (o Options) WithStrictHostKeyCheck() Options {
	o.StrictHostKeyCheck = true
	return o
}

// BaseArgs returns the SSH options (no user@host).
func (o Options) BaseArgs() []string {
	args := []string{
		"-p", fmt.Sprintf("%d", o.Port),
	}

	if !o.StrictHostKeyCheck {
		args = append(args, "-o", "StrictHostKeyChecking=no")
		if o.KnownHostsFile != "" {
			args = append(args, "-o", fmt.Sprintf("UserKnownHostsFile=%s", o.KnownHostsFile))
		}
	}

	return append(args, o.ExtraArgs...)
}

// Destination returns the user@host string.
func (o Options) Destination() string {
	return fmt.Sprintf("%s@%s", o.User, o.Host)
}

// BuildArgs returns complete SSH arguments.
func (o Options) BuildArgs() []string {
	return append(o.BaseArgs(), o.Destination())
}

// Launcher runs ssh in the foreground.
type Launcher struct {
	Binary   string
	Executor system.CommandExecutor
}

// NewLauncher returns a Launcher for binary using the default executor.
func NewLauncher(binary string) *Launcher {
	if binary == "" {
		binary = config.DefaultSSHBinary
	}
	return &Launcher{Binary: binary, Executor: system.DefaultExecutor()}
}

// Run starts ssh with the given options and waits for it to exit. A
// non-zero exit is reported through the returned code, not as an error.
// The error is non-nil only when ssh could not be run at all.
func (l *Launcher) Run(ctx context.Context, opts Options) (int, error) {
	args := opts.BuildArgs()
	logging.Debug("launching ssh", "command", shellquote.Join(append([]string{l.Binary}, args...)...))

	err := l.Executor.ExecuteInteractive(ctx, l.Binary, args...)
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, errors.SSHError(fmt.Sprintf("failed to run %s", l.Binary), err)
}
