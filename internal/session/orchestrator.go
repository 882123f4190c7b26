package session

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/clock"

	"github.com/yuriipolishchuk/ssh2iot/internal/audit"
	"github.com/yuriipolishchuk/ssh2iot/internal/config"
	"github.com/yuriipolishchuk/ssh2iot/internal/errors"
	"github.com/yuriipolishchuk/ssh2iot/internal/logging"
	"github.com/yuriipolishchuk/ssh2iot/internal/port"
	"github.com/yuriipolishchuk/ssh2iot/internal/proxy"
	"github.com/yuriipolishchuk/ssh2iot/internal/ssh"
	"github.com/yuriipolishchuk/ssh2iot/internal/tunnel"
)

// closeTimeout bounds the tunnel close issued during cleanup, which may run
// after the caller's context is already cancelled.
const closeTimeout = 15 * time.Second

// Tunnels is the control plane as seen by the orchestrator.
type Tunnels interface {
	Open(ctx context.Context, thing, service string, maxLifetimeMinutes int) (string, string, error)
	Describe(ctx context.Context, id string) (*tunnel.Description, error)
	List(ctx context.Context, thing string) []tunnel.Summary
	Close(ctx context.Context, id string, del bool) error
	Rotate(ctx context.Context, id string) (string, error)
}

// Supervisor starts and stops local proxies.
type Supervisor interface {
	Start(ctx context.Context, opts proxy.StartOptions) (*proxy.Handle, error)
	Stop(h *proxy.Handle) error
	KillStray(ctx context.Context) int
}

// Shell runs the foreground interactive client and returns its exit code.
type Shell interface {
	Run(ctx context.Context, opts ssh.Options) (int, error)
}

// Recorder persists lifecycle events.
type Recorder interface {
	LogEvent(eventType audit.EventType, tunnel, thing, details string) error
}

var (
	_ Tunnels    = (*tunnel.Client)(nil)
	_ Supervisor = (*proxy.Supervisor)(nil)
	_ Shell      = (*ssh.Launcher)(nil)
	_ Recorder   = (*audit.Logger)(nil)
)

// Request describes one source-role session.
type Request struct {
	Thing          string
	Service        string
	Region         string
	TimeoutMinutes int
	SSHUser        string

	// TunnelID and AccessToken attach to an existing tunnel instead of
	// opening one. Both or neither, unless Rotate is set.
	TunnelID    string
	AccessToken string

	// Rotate attaches to TunnelID with a freshly rotated source token.
	Rotate bool

	// Delete closes and deletes the tunnel when the session ends.
	Delete bool

	// Force opens a new tunnel even when the thing already has open ones.
	Force bool
}

// IsAttach reports whether the request reuses an existing tunnel.
func (r *Request) IsAttach() bool {
	return r.TunnelID != ""
}

// Validate checks the request.
func (r *Request) Validate() error {
	if r.Region == "" {
		return errors.ValidationError("region is required")
	}
	if err := config.ValidateRegion(r.Region); err != nil {
		return errors.ValidationError(err.Error())
	}

	switch {
	case r.Rotate:
		if r.TunnelID == "" {
			return errors.ValidationError("--rotate requires --tunnel-id")
		}
		if r.AccessToken != "" {
			return errors.ValidationError("--rotate and --access-token are mutually exclusive")
		}
	case (r.TunnelID == "") != (r.AccessToken == ""):
		return errors.ValidationError("--tunnel-id and --access-token must be given together")
	}

	if r.IsAttach() {
		return nil
	}

	if err := config.ValidateThingName(r.Thing); err != nil {
		return errors.ValidationError(err.Error())
	}
	if err := config.ValidateService(r.Service); err != nil {
		return errors.ValidationError(err.Error())
	}
	if err := config.ValidateTimeout(r.TimeoutMinutes); err != nil {
		return errors.ValidationError(err.Error())
	}
	return nil
}

// Result is the outcome of Run.
type Result struct {
	// Existing is set when Run declined to open a tunnel because the thing
	// already has open ones.
	Existing []tunnel.Summary

	TunnelID    string
	Port        int
	SSHExitCode int
	Deleted     bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock sets the clock used between polls.
func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) {
		o.clock = c
	}
}

// WithPoll sets the polling budget of each wait phase.
func WithPoll(p config.PollConfig) Option {
	return func(o *Orchestrator) {
		o.poll = p
	}
}

// WithPortAllocator replaces port.Allocate.
func WithPortAllocator(f func() (int, error)) Option {
	return func(o *Orchestrator) {
		o.allocate = f
	}
}

// WithSSHOptions sets the ssh options template; Port, Host and User are
// filled in per session.
func WithSSHOptions(opts ssh.Options) Option {
	return func(o *Orchestrator) {
		o.sshOpts = opts
	}
}

// WithRecorder sets where lifecycle events are recorded.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// WithObserver registers a transition callback.
func WithObserver(fn Observer) Option {
	return func(o *Orchestrator) {
		o.observer = fn
	}
}

// Orchestrator drives the source-role state machine. It is not safe for
// concurrent use; run one session per Orchestrator at a time.
type Orchestrator struct {
	tunnels  Tunnels
	proxies  Supervisor
	shell    Shell
	allocate func() (int, error)
	clock    clock.Clock
	poll     config.PollConfig
	sshOpts  ssh.Options
	recorder Recorder
	observer Observer

	session *TunnelSession
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(tunnels Tunnels, proxies Supervisor, shell Shell, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		tunnels:  tunnels,
		proxies:  proxies,
		shell:    shell,
		allocate: port.Allocate,
		clock:    clock.WallClock,
		poll: config.PollConfig{
			Interval: config.DefaultPollInterval,
			Attempts: config.DefaultPollAttempts,
		},
		sshOpts: ssh.DefaultOptions(0),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Session returns the session of the last Run, or nil.
func (o *Orchestrator) Session() *TunnelSession {
	return o.session
}

// State returns the current state.
func (o *Orchestrator) State() State {
	if o.session == nil {
		return Idle
	}
	return o.session.Status
}

func (o *Orchestrator) transition(to State) {
	from := o.session.Status
	o.session.Status = to
	logging.Debug("session state changed", "tunnel", o.session.ID, "from", from, "to", to)
	if o.session.ID != "" {
		o.record(audit.EventState, fmt.Sprintf("%s -> %s", from, to))
	}
	if o.observer != nil {
		o.observer(from, to)
	}
}

func (o *Orchestrator) record(eventType audit.EventType, details string) {
	if o.recorder == nil || o.session.ID == "" {
		return
	}
	if err := o.recorder.LogEvent(eventType, o.session.ID, o.session.Thing, details); err != nil {
		logging.Debug("failed to record event", "tunnel", o.session.ID, "type", eventType, "error", err)
	}
}

// Run executes one session: open or attach, wait for both sides, run the
// interactive client, then clean up. When the thing already has open
// tunnels and Force is not set, Run returns them in Result.Existing with a
// nil error and does nothing else.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	o.session = &TunnelSession{
		Thing:   req.Thing,
		Role:    tunnel.RoleSource,
		Service: req.Service,
		Status:  Idle,
	}
	sess := o.session

	switch {
	case req.Rotate:
		token, err := o.tunnels.Rotate(ctx, req.TunnelID)
		if err != nil {
			o.transition(Closed)
			return nil, err
		}
		sess.ID, sess.AccessToken = req.TunnelID, token
		o.record(audit.EventAttached, "rotated source access token")
		logging.UserInfo("Attaching to tunnel %s with a rotated access token", sess.ID)

	case req.IsAttach():
		sess.ID, sess.AccessToken = req.TunnelID, req.AccessToken
		o.record(audit.EventAttached, "")
		logging.UserInfo("Attaching to tunnel %s", sess.ID)

	default:
		if open := tunnel.OpenOnly(o.tunnels.List(ctx, req.Thing)); len(open) > 0 {
			if !req.Force {
				logging.Debug("refusing to open a duplicate tunnel", "thing", req.Thing, "open", len(open))
				return &Result{Existing: open}, nil
			}
			logging.Warn("opening a new tunnel although open ones exist", "thing", req.Thing, "open", len(open))
		}

		o.transition(Opening)
		id, token, err := o.tunnels.Open(ctx, req.Thing, req.Service, req.TimeoutMinutes)
		if err != nil {
			o.transition(Closed)
			return nil, err
		}
		sess.ID, sess.AccessToken = id, token
		o.record(audit.EventOpened, fmt.Sprintf("service=%s timeout=%dm", req.Service, req.TimeoutMinutes))
		logging.UserSuccess("Secure tunnel %s has been opened. Expires in %d minutes", id, req.TimeoutMinutes)
	}

	res := &Result{TunnelID: sess.ID}
	var (
		handle           *proxy.Handle
		closedExternally bool
	)

	err := o.connect(ctx, req, res, &handle)
	if errors.HasCode(err, errors.ExitSessionClosed) {
		closedExternally = true
	}

	if cerr := o.cleanup(ctx, req, handle, closedExternally, res); cerr != nil {
		if err == nil {
			err = cerr
		} else {
			logging.Warn("cleanup failed", "tunnel", sess.ID, "error", cerr)
		}
	}

	if err != nil {
		o.record(audit.EventError, err.Error())
		return nil, err
	}
	return res, nil
}

// connect runs the phases from AwaitingDestination through Interactive.
// The started proxy handle is stored through handle so that cleanup can
// stop it whatever the outcome.
func (o *Orchestrator) connect(ctx context.Context, req Request, res *Result, handle **proxy.Handle) error {
	sess := o.session

	o.transition(AwaitingDestination)
	if req.Thing != "" {
		logging.UserInfo("Waiting for IoT device %s to connect...", req.Thing)
	} else {
		logging.UserInfo("Waiting for IoT device to connect...")
	}
	if err := o.waitConnected(ctx, tunnel.RoleDestination); err != nil {
		return err
	}
	o.record(audit.EventConnected, string(tunnel.RoleDestination))
	logging.UserSuccess("IoT device connected to tunnel")

	o.transition(ProxyStarting)
	p, err := o.allocate()
	if err != nil {
		return err
	}
	sess.LocalPort = p
	res.Port = p

	h, err := o.proxies.Start(ctx, proxy.StartOptions{
		SessionID:   sess.ID,
		Role:        proxy.RoleSource,
		Region:      req.Region,
		AccessToken: sess.AccessToken,
		Port:        p,
	})
	if err != nil {
		return err
	}
	*handle = h
	o.record(audit.EventProxyStarted, fmt.Sprintf("pid=%d port=%d", h.Pid, p))
	logging.UserInfo("localproxy started, pid: %d", h.Pid)

	o.transition(AwaitingSource)
	logging.UserInfo("Waiting for localproxy to connect to tunnel...")
	if err := o.waitConnected(ctx, tunnel.RoleSource); err != nil {
		return err
	}
	sess.clearToken()
	o.record(audit.EventConnected, string(tunnel.RoleSource))
	logging.UserSuccess("localproxy connected to tunnel")

	o.transition(Interactive)
	opts := o.sshOpts
	opts.Port = p
	opts.Host = port.LoopbackHost
	opts = opts.WithUser(req.SSHUser)

	code, err := o.shell.Run(ctx, opts)
	if err != nil {
		return err
	}
	res.SSHExitCode = code
	o.record(audit.EventSSHExited, fmt.Sprintf("code=%d", code))
	if code != 0 {
		logging.Warn("ssh exited with non-zero status", "tunnel", sess.ID, "code", code)
	}
	return nil
}

// cleanup stops the proxy if one was started and, when requested, closes
// and deletes the tunnel. It runs exactly once per Run after the tunnel is
// known, on success and failure alike.
func (o *Orchestrator) cleanup(ctx context.Context, req Request, h *proxy.Handle, closedExternally bool, res *Result) error {
	sess := o.session
	o.transition(Closing)

	if h != nil {
		if err := o.proxies.Stop(h); err != nil {
			logging.Debug("stopping local proxy failed", "tunnel", sess.ID, "pid", h.Pid, "error", err)
		}
		o.record(audit.EventProxyStopped, fmt.Sprintf("pid=%d", h.Pid))
	}
	sess.clearToken()

	var err error
	if req.Delete && !closedExternally {
		// The session context may already be cancelled by a signal.
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if err = o.tunnels.Close(closeCtx, sess.ID, true); err == nil {
			res.Deleted = true
			o.record(audit.EventClosed, "deleted")
			logging.UserSuccess("Tunnel %s closed and deleted", sess.ID)
		}
	}

	o.transition(Closed)
	return err
}
