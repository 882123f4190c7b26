// Package app provides the application context for ssh2iot.
// It allows dependency injection for testing.
package app

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/iotsecuretunneling"
	"github.com/juju/clock"

	"github.com/yuriipolishchuk/ssh2iot/internal/agent"
	"github.com/yuriipolishchuk/ssh2iot/internal/audit"
	"github.com/yuriipolishchuk/ssh2iot/internal/config"
	"github.com/yuriipolishchuk/ssh2iot/internal/errors"
	"github.com/yuriipolishchuk/ssh2iot/internal/proxy"
	"github.com/yuriipolishchuk/ssh2iot/internal/session"
	"github.com/yuriipolishchuk/ssh2iot/internal/ssh"
	"github.com/yuriipolishchuk/ssh2iot/internal/system"
	"github.com/yuriipolishchuk/ssh2iot/internal/tunnel"
)

// App holds the application dependencies
type App struct {
	// Config is the loaded configuration
	Config *config.Config

	// Tunnels is the control-plane client
	Tunnels *tunnel.Client

	// Supervisor owns the local proxy processes
	Supervisor *proxy.Supervisor

	// Shell launches the interactive ssh client
	Shell *ssh.Launcher

	// Audit records tunnel lifecycle events
	Audit *audit.Logger

	// Clock drives connection polling
	Clock clock.Clock

	executor system.CommandExecutor
	table    system.ProcessTable
	api      tunnel.API
}

// Option is a function that configures the App
type Option func(*App)

// WithConfig sets the configuration
func WithConfig(cfg *config.Config) Option {
	return func(a *App) {
		a.Config = cfg
	}
}

// WithTunnelAPI sets a custom control-plane API instead of the AWS client
func WithTunnelAPI(api tunnel.API) Option {
	return func(a *App) {
		a.api = api
	}
}

// WithExecutor sets the executor used for the proxy and ssh
func WithExecutor(e system.CommandExecutor) Option {
	return func(a *App) {
		a.executor = e
	}
}

// WithProcessTable sets the process table used for the stray kill
func WithProcessTable(t system.ProcessTable) Option {
	return func(a *App) {
		a.table = t
	}
}

// WithClock sets the polling clock
func WithClock(c clock.Clock) Option {
	return func(a *App) {
		a.Clock = c
	}
}

// New creates a new App with the given options. Unless WithTunnelAPI is
// given, the AWS client is built from the configured region, profile and
// static credentials, falling back to the SDK's default chain.
func New(ctx context.Context, opts ...Option) (*App, error) {
	app := &App{
		Config:   config.Default(),
		Clock:    clock.WallClock,
		executor: system.DefaultExecutor(),
		table:    system.DefaultProcessTable(),
	}

	for _, opt := range opts {
		opt(app)
	}

	if app.api == nil {
		awsCfg, err := LoadAWSConfig(ctx, app.Config)
		if err != nil {
			return nil, errors.ConfigError("failed to load AWS configuration", err)
		}
		app.api = iotsecuretunneling.NewFromConfig(awsCfg)
	}

	cfg := app.Config
	app.Tunnels = tunnel.NewClient(app.api)
	app.Supervisor = proxy.NewSupervisor(cfg.Proxy.Path,
		proxy.WithExecutor(app.executor),
		proxy.WithProcessTable(app.table),
	)
	app.Shell = &ssh.Launcher{Binary: cfg.SSH.Binary, Executor: app.executor}
	app.Audit = audit.NewLogger(cfg.StateDir)

	return app, nil
}

// LoadAWSConfig resolves the AWS SDK configuration for cfg.
func LoadAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AWS.HasStaticCredentials() {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWS.AccessKeyID, cfg.AWS.SecretAccessKey, cfg.AWS.SessionToken),
		))
	}
	return awsconfig.LoadDefaultConfig(ctx, loadOpts...)
}

// NewOrchestrator returns a source-role orchestrator wired to the app's
// dependencies. Extra options are applied last.
func (a *App) NewOrchestrator(opts ...session.Option) (*session.Orchestrator, error) {
	sshOpts, err := ssh.FromConfig(a.Config.SSH, 0)
	if err != nil {
		return nil, err
	}

	all := []session.Option{
		session.WithClock(a.Clock),
		session.WithPoll(a.Config.Poll),
		session.WithSSHOptions(sshOpts),
		session.WithRecorder(a.Audit),
	}
	all = append(all, opts...)
	return session.NewOrchestrator(a.Tunnels, a.Supervisor, a.Shell, all...), nil
}

// NewDestination returns the destination-role notification handler.
func (a *App) NewDestination() *session.Destination {
	return session.NewDestination(a.Supervisor,
		session.WithServices(a.Config.Agent.Services),
		session.WithKillStray(a.Config.Agent.KillStray),
		session.WithDestinationRecorder(a.Audit),
	)
}

// MQTTOptions builds the MQTT client options from the agent section,
// resolving certificate paths relative to the config directory.
func (a *App) MQTTOptions() (agent.MQTTOptions, error) {
	ac := a.Config.Agent
	opts := agent.MQTTOptions{
		Endpoint:      ac.Endpoint,
		Port:          ac.Port,
		ClientID:      ac.ClientID,
		AutoReconnect: ac.AutoReconnect,
	}

	paths := []struct {
		name string
		in   string
		out  *string
	}{
		{"cert", ac.Cert, &opts.CertFile},
		{"key", ac.Key, &opts.KeyFile},
		{"root_ca", ac.RootCA, &opts.RootCAFile},
	}
	for _, p := range paths {
		resolved, err := a.Config.ResolvePath(p.in)
		if err != nil {
			return agent.MQTTOptions{}, errors.ConfigError(fmt.Sprintf("agent %s", p.name), err)
		}
		*p.out = resolved
	}
	return opts, nil
}

// Default is the application instance used by commands. It is nil until
// the root command builds it or a test sets one.
var Default *App

// SetDefault sets the default application instance (used for testing)
func SetDefault(app *App) {
	Default = app
}

// ResetDefault clears the default application instance
func ResetDefault() {
	Default = nil
}
