package proxy

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/yuriipolishchuk/ssh2iot/internal/errors"
	"github.com/yuriipolishchuk/ssh2iot/internal/logging"
	"github.com/yuriipolishchuk/ssh2iot/internal/system"
)

// TokenEnvVar is the environment variable the local proxy reads its access token from.
const TokenEnvVar = "AWSIOT_TUNNEL_ACCESS_TOKEN"

// Role is the side of the tunnel a proxy terminates.
type Role string

const (
	// RoleSource listens on a local port and forwards to the remote device.
	RoleSource Role = "source"
	// RoleDestination forwards inbound tunnel connections to a local service.
	RoleDestination Role = "destination"
)

// StartOptions describes one local proxy instance.
type StartOptions struct {
	// SessionID keys the handle table. A live handle with the same key is
	// terminated before the new process starts.
	SessionID string
	Role      Role
	Region    string

	// AccessToken is passed through the environment only.
	AccessToken string

	// Port is the local listening port (source role).
	Port int

	// DestinationAddr is the local host:port to forward to (destination role).
	DestinationAddr string
}

// Validate checks that the options match the role.
func (o *StartOptions) Validate() error {
	if o.SessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if o.Region == "" {
		return fmt.Errorf("region is required")
	}
	if o.AccessToken == "" {
		return fmt.Errorf("access token is required")
	}
	switch o.Role {
	case RoleSource:
		if o.Port < 1 || o.Port > 65535 {
			return fmt.Errorf("source port must be between 1 and 65535 (got %d)", o.Port)
		}
	case RoleDestination:
		if o.DestinationAddr == "" {
			return fmt.Errorf("destination address is required")
		}
	default:
		return fmt.Errorf("invalid role %q", o.Role)
	}
	return nil
}

// Args returns the proxy argv (without the binary). The token is never included.
func (o *StartOptions) Args() []string {
	args := []string{"-r", o.Region}
	if o.Role == RoleSource {
		return append(args, "-s", strconv.Itoa(o.Port))
	}
	return append(args, "-d", o.DestinationAddr)
}

// Handle references a running proxy. Callers never touch the process itself.
type Handle struct {
	SessionID string
	Role      Role
	Pid       int
	Port      int

	proc    system.Process
	stopped bool
	done    chan struct{}
}

// Done is closed once the process has exited and been reaped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Supervisor starts and stops local proxy processes and tracks them by
// logical session id.
type Supervisor struct {
	binary   string
	executor system.CommandExecutor
	table    system.ProcessTable
	stdout   io.Writer
	stderr   io.Writer

	mu      sync.Mutex
	handles map[string]*Handle
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithExecutor sets the executor used to spawn proxies.
func WithExecutor(e system.CommandExecutor) Option {
	return func(s *Supervisor) {
		s.executor = e
	}
}

// WithProcessTable sets the process table used by KillStray.
func WithProcessTable(t system.ProcessTable) Option {
	return func(s *Supervisor) {
		s.table = t
	}
}

// WithOutput sets where proxy stdout/stderr go.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(s *Supervisor) {
		s.stdout = stdout
		s.stderr = stderr
	}
}

// NewSupervisor creates a Supervisor for the proxy binary at path.
func NewSupervisor(binary string, opts ...Option) *Supervisor {
	s := &Supervisor{
		binary:   binary,
		executor: system.DefaultExecutor(),
		table:    system.DefaultProcessTable(),
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		handles:  make(map[string]*Handle),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Binary returns the proxy binary path.
func (s *Supervisor) Binary() string {
	return s.binary
}

// Start launches one proxy process. Spawn failures are reported as SpawnError
// and never retried.
func (s *Supervisor) Start(ctx context.Context, opts StartOptions) (*Handle, error) {
	if err := opts.Validate(); err != nil {
		return nil, errors.ValidationError(fmt.Sprintf("invalid proxy options: %v", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prior, ok := s.handles[opts.SessionID]; ok {
		logging.Debug("terminating prior proxy for session", "session", opts.SessionID, "pid", prior.Pid)
		s.stopLocked(prior)
	}

	spec := system.ProcessSpec{
		Name:   s.binary,
		Args:   opts.Args(),
		Env:    append(system.SafeEnviron(TokenEnvVar), TokenEnvVar+"="+opts.AccessToken),
		Stdout: s.stdout,
		Stderr: s.stderr,
	}

	proc, err := s.executor.Start(spec)
	if err != nil {
		return nil, errors.SpawnError(s.binary, err)
	}

	h := &Handle{
		SessionID: opts.SessionID,
		Role:      opts.Role,
		Pid:       proc.Pid(),
		Port:      opts.Port,
		proc:      proc,
		done:      make(chan struct{}),
	}
	s.handles[opts.SessionID] = h
	go s.reap(h)

	logging.Debug("local proxy started",
		"session", opts.SessionID, "role", opts.Role, "pid", h.Pid, "args", spec.Args)
	return h, nil
}

// Stop sends a terminate request to the proxy and returns without waiting
// for it to exit. Stopping a stopped handle is a no-op.
func (s *Supervisor) Stop(h *Handle) error {
	if h == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked(h)
}

func (s *Supervisor) stopLocked(h *Handle) error {
	if h.stopped {
		return nil
	}
	h.stopped = true
	if cur, ok := s.handles[h.SessionID]; ok && cur == h {
		delete(s.handles, h.SessionID)
	}

	err := h.proc.Terminate()
	if err != nil {
		logging.Debug("terminate failed", "session", h.SessionID, "pid", h.Pid, "error", err)
	}
	return err
}

// reap waits for the process to exit, whoever ended it, and drops its
// handle. Every started process has exactly one reaper.
func (s *Supervisor) reap(h *Handle) {
	err := h.proc.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !h.stopped {
		logging.Info("local proxy exited", "session", h.SessionID, "pid", h.Pid, "error", err)
	} else if err != nil {
		logging.Debug("local proxy exited", "session", h.SessionID, "pid", h.Pid, "error", err)
	}
	h.stopped = true
	if cur, ok := s.handles[h.SessionID]; ok && cur == h {
		delete(s.handles, h.SessionID)
	}
	close(h.done)
}

// StopAll stops every tracked proxy.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.handles {
		s.stopLocked(h)
	}
}

// Active returns the live handle for a session id.
func (s *Supervisor) Active(sessionID string) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[sessionID]
	return h, ok
}

// Len returns the number of live handles.
func (s *Supervisor) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Sessions returns the session ids with live handles, sorted.
func (s *Supervisor) Sessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.handles))
	for id := range s.handles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// KillStray ends every running process named like the proxy binary. Proxies
// this supervisor started are stopped through their handles; the rest are
// killed. Enumeration and kill failures are swallowed. Returns how many
// processes were ended.
func (s *Supervisor) KillStray(ctx context.Context) int {
	s.mu.Lock()
	own := make([]int, 0, len(s.handles))
	for _, h := range s.handles {
		own = append(own, h.Pid)
		s.stopLocked(h)
	}
	s.mu.Unlock()

	name := filepath.Base(s.binary)
	n, err := s.table.KillByName(ctx, name, own...)
	if err != nil {
		logging.Debug("process enumeration failed", "name", name, "error", err)
		n = 0
	}
	n += len(own)
	if n > 0 {
		logging.Info("stopped running local proxy instances", "name", name, "count", n, "own", len(own))
	}
	return n
}
