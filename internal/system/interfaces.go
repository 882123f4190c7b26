// Package system provides abstractions for OS process operations to enable testing.
package system

import (
	"context"
	"io"
	"os"
	"strings"
)

// ProcessSpec describes a background child process.
type ProcessSpec struct {
	// Name is the executable path or a name resolved through $PATH.
	Name string
	Args []string

	// Env is the complete child environment. Nil inherits the parent's.
	Env []string

	Stdout io.Writer
	Stderr io.Writer
}

// Process is a started background child.
type Process interface {
	// Pid returns the OS process id.
	Pid() int

	// Terminate asks the process to exit (SIGTERM). It does not wait.
	Terminate() error

	// Wait blocks until the process exits and releases its resources.
	Wait() error
}

// CommandExecutor abstracts command execution for testability.
type CommandExecutor interface {
	// ExecuteInteractive runs a command with stdin/stdout/stderr connected to the terminal.
	ExecuteInteractive(ctx context.Context, name string, args ...string) error

	// Start launches a background process and returns without waiting for it.
	Start(spec ProcessSpec) (Process, error)
}

// ProcessTable abstracts system-wide process enumeration.
type ProcessTable interface {
	// KillByName kills every process, other than the caller and the pids
	// in except, whose executable name is name. It returns how many were
	// killed.
	KillByName(ctx context.Context, name string, except ...int) (int, error)
}

// Default instances using real OS operations.
var (
	defaultExecutor CommandExecutor = &osExecutor{}
	defaultTable    ProcessTable    = &psTable{}
)

// DefaultExecutor returns the default CommandExecutor implementation.
func DefaultExecutor() CommandExecutor {
	return defaultExecutor
}

// DefaultProcessTable returns the default ProcessTable implementation.
func DefaultProcessTable() ProcessTable {
	return defaultTable
}

// SetDefaultExecutor sets the default CommandExecutor (useful for testing).
func SetDefaultExecutor(exec CommandExecutor) {
	defaultExecutor = exec
}

// SetDefaultProcessTable sets the default ProcessTable (useful for testing).
func SetDefaultProcessTable(table ProcessTable) {
	defaultTable = table
}

// ResetDefaults restores the default OS implementations.
func ResetDefaults() {
	defaultExecutor = &osExecutor{}
	defaultTable = &psTable{}
}

// SafeEnviron returns the current environment without the named variables.
func SafeEnviron(drop ...string) []string {
	return FilterEnv(os.Environ(), drop...)
}

// FilterEnv returns env without entries for the named variables.
func FilterEnv(env []string, drop ...string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		name, _, _ := strings.Cut(kv, "=")
		skip := false
		for _, d := range drop {
			if name == d {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, kv)
		}
	}
	return out
}
