package config

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/yuriipolishchuk/ssh2iot/internal/logging"
)

const (
	DefaultRegion         = "us-east-1"
	DefaultTimeoutMinutes = 720
	MaxTimeoutMinutes     = 720
	DefaultService        = "ssh"
	DefaultProxyPath      = "/usr/local/bin/localproxy"
	DefaultSSHUser        = "root"
	DefaultSSHBinary      = "ssh"
	DefaultKnownHostsFile = "/dev/null"
	DefaultPollInterval   = 2 * time.Second
	DefaultPollAttempts   = 30
	DefaultMQTTPort       = 8883
	DefaultDestination    = "127.0.0.1:22"
	ConfigFileName        = "config.toml"
	AppName               = "ssh2iot"
)

// Regions lists the regions AWS IoT Secure Tunneling can be reached in.
var Regions = []string{
	"ap-northeast-1",
	"ap-northeast-2",
	"ap-south-1",
	"ap-southeast-1",
	"ap-southeast-2",
	"ca-central-1",
	"eu-central-1",
	"eu-north-1",
	"eu-west-1",
	"eu-west-2",
	"eu-west-3",
	"sa-east-1",
	"us-east-1",
	"us-east-2",
	"us-west-1",
	"us-west-2",
}

// Services lists the tunnel services the tooling knows how to serve.
var Services = []string{"ssh", "scp"}

// thingNameRegex matches AWS IoT thing names.
var thingNameRegex = regexp.MustCompile(`^[a-zA-Z0-9:_-]{1,128}$`)

// ValidateThingName checks if an IoT thing name is valid.
func ValidateThingName(name string) error {
	if name == "" {
		return fmt.Errorf("thing name cannot be empty")
	}
	if !thingNameRegex.MatchString(name) {
		return fmt.Errorf("invalid thing name %q: must be 1-128 characters of letters, digits, ':', '_' or '-'", name)
	}
	return nil
}

// ValidateRegion checks that region is one where secure tunneling is offered.
func ValidateRegion(region string) error {
	if !slices.Contains(Regions, region) {
		return fmt.Errorf("invalid region %q (must be one of %s)", region, strings.Join(Regions, ", "))
	}
	return nil
}

// ValidateService checks that service is ssh or scp.
func ValidateService(service string) error {
	if !IsSupportedService(service) {
		return fmt.Errorf("invalid service %q (must be one of %s)", service, strings.Join(Services, ", "))
	}
	return nil
}

// IsSupportedService reports whether service is ssh or scp, ignoring case.
func IsSupportedService(service string) bool {
	return slices.Contains(Services, strings.ToLower(service))
}

// ValidateTimeout checks a tunnel lifetime in minutes.
func ValidateTimeout(minutes int) error {
	if minutes < 1 || minutes > MaxTimeoutMinutes {
		return fmt.Errorf("timeout must be between 1 and %d minutes (got %d)", MaxTimeoutMinutes, minutes)
	}
	return nil
}

// Config is the ssh2iot configuration file.
type Config struct {
	Region   string `toml:"region"`
	Profile  string `toml:"profile"`
	StateDir string `toml:"state_dir"`

	AWS    AWSConfig    `toml:"aws"`
	Tunnel TunnelConfig `toml:"tunnel"`
	Proxy  ProxyConfig  `toml:"proxy"`
	Poll   PollConfig   `toml:"poll"`
	SSH    SSHConfig    `toml:"ssh"`
	Agent  AgentConfig  `toml:"agent"`

	// dir is the directory the file was loaded from.
	dir string
}

// AWSConfig holds optional static credentials. When empty the default
// credential chain is used.
type AWSConfig struct {
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	SessionToken    string `toml:"session_token"`
}

// HasStaticCredentials reports whether a key pair was configured.
func (a *AWSConfig) HasStaticCredentials() bool {
	return a.AccessKeyID != "" && a.SecretAccessKey != ""
}

// Validate checks that AWSConfig is valid.
func (a *AWSConfig) Validate() error {
	if (a.AccessKeyID != "") != (a.SecretAccessKey != "") {
		return fmt.Errorf("access_key_id and secret_access_key must both be set or both be empty")
	}
	return nil
}

type TunnelConfig struct {
	TimeoutMinutes int    `toml:"timeout_minutes"`
	Service        string `toml:"service"`
}

type ProxyConfig struct {
	Path string `toml:"path"`
}

// PollConfig bounds the describe polling of each wait phase.
// It is independent of the tunnel lifetime.
type PollConfig struct {
	Interval time.Duration `toml:"interval"`
	Attempts int           `toml:"attempts"`
}

// Validate checks that PollConfig is valid.
func (p *PollConfig) Validate() error {
	if p.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive (got %s)", p.Interval)
	}
	if p.Attempts < 1 {
		return fmt.Errorf("poll attempts must be at least 1 (got %d)", p.Attempts)
	}
	return nil
}

type SSHConfig struct {
	User                  string `toml:"user"`
	Binary                string `toml:"binary"`
	StrictHostKeyChecking bool   `toml:"strict_host_key_checking"`
	KnownHostsFile        string `toml:"known_hosts_file"`
	ExtraArgs             string `toml:"extra_args"`
}

// AgentConfig configures the device-side notification listener.
type AgentConfig struct {
	Endpoint      string            `toml:"endpoint"`
	Port          int               `toml:"port"`
	ClientID      string            `toml:"client_id"`
	Cert          string            `toml:"cert"`
	Key           string            `toml:"key"`
	RootCA        string            `toml:"root_ca"`
	Topic         string            `toml:"topic"`
	KillStray     bool              `toml:"kill_stray"`
	AutoReconnect bool              `toml:"auto_reconnect"`
	Services      map[string]string `toml:"services"`
}

// NotifyTopic returns the tunnel notification topic for a client id.
func NotifyTopic(clientID string) string {
	return fmt.Sprintf("$aws/things/%s/tunnels/notify", clientID)
}

// TopicOrDefault returns the configured topic or the notify topic for ClientID.
func (a *AgentConfig) TopicOrDefault() string {
	if a.Topic != "" {
		return a.Topic
	}
	return NotifyTopic(a.ClientID)
}

// DestinationFor returns the local address a service is forwarded to.
func (a *AgentConfig) DestinationFor(service string) string {
	return ServiceAddress(a.Services, service)
}

// ServiceAddress looks service up in services ignoring case. A lowercase
// key wins over other spellings; among those the first in sorted order is
// used. Unknown services forward to DefaultDestination.
func ServiceAddress(services map[string]string, service string) string {
	service = strings.ToLower(service)
	if addr := services[service]; addr != "" {
		return addr
	}
	keys := make([]string, 0, len(services))
	for k := range services {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if strings.EqualFold(k, service) && services[k] != "" {
			return services[k]
		}
	}
	return DefaultDestination
}

// NormalizeServices returns services with lowercase keys. Spellings of one
// service that map to different addresses are an error.
func NormalizeServices(services map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(services))
	for name, addr := range services {
		key := strings.ToLower(name)
		if prev, ok := out[key]; ok && prev != addr {
			return nil, fmt.Errorf("agent services: %q is set twice with different addresses (%s, %s)", key, prev, addr)
		}
		out[key] = addr
	}
	return out, nil
}

// defaultServices maps every supported service to DefaultDestination.
func defaultServices() map[string]string {
	m := make(map[string]string, len(Services))
	for _, s := range Services {
		m[s] = DefaultDestination
	}
	return m
}

// Validate checks that AgentConfig is complete enough to connect.
func (a *AgentConfig) Validate() error {
	if a.Endpoint == "" {
		return fmt.Errorf("agent endpoint is required")
	}
	if a.ClientID == "" {
		return fmt.Errorf("agent client_id is required")
	}
	if a.Cert == "" || a.Key == "" {
		return fmt.Errorf("agent cert and key are required")
	}
	if a.Port < 1 || a.Port > 65535 {
		return fmt.Errorf("agent port must be between 1 and 65535 (got %d)", a.Port)
	}
	for service := range a.Services {
		if !IsSupportedService(service) {
			return fmt.Errorf("agent services: %q is not supported", service)
		}
	}
	if _, err := NormalizeServices(a.Services); err != nil {
		return err
	}
	return nil
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Region:   DefaultRegion,
		StateDir: DefaultStateDir(),
		Tunnel: TunnelConfig{
			TimeoutMinutes: DefaultTimeoutMinutes,
			Service:        DefaultService,
		},
		Proxy: ProxyConfig{Path: DefaultProxyPath},
		Poll: PollConfig{
			Interval: DefaultPollInterval,
			Attempts: DefaultPollAttempts,
		},
		SSH: SSHConfig{
			User:           DefaultSSHUser,
			Binary:         DefaultSSHBinary,
			KnownHostsFile: DefaultKnownHostsFile,
		},
		Agent: AgentConfig{
			Port:          DefaultMQTTPort,
			ClientID:      "samples-client-id",
			KillStray:     true,
			AutoReconnect: true,
			Services:      defaultServices(),
		},
	}
}

// Validate checks the console settings. Agent settings are validated
// separately by the agent command.
func (c *Config) Validate() error {
	if err := ValidateRegion(c.Region); err != nil {
		return err
	}
	if err := ValidateTimeout(c.Tunnel.TimeoutMinutes); err != nil {
		return fmt.Errorf("tunnel: %w", err)
	}
	if err := ValidateService(c.Tunnel.Service); err != nil {
		return fmt.Errorf("tunnel: %w", err)
	}
	if c.Proxy.Path == "" {
		return fmt.Errorf("proxy path is required")
	}
	if err := c.Poll.Validate(); err != nil {
		return err
	}
	if c.SSH.User == "" {
		return fmt.Errorf("ssh user is required")
	}
	if err := c.AWS.Validate(); err != nil {
		return fmt.Errorf("aws: %w", err)
	}
	return nil
}

// Dir returns the directory the configuration was loaded from, or "".
func (c *Config) Dir() string {
	return c.dir
}

// ResolvePath resolves a path named in the config file. Relative paths are
// resolved inside the config directory and may not escape it.
func (c *Config) ResolvePath(p string) (string, error) {
	if p == "" || filepath.IsAbs(p) || c.dir == "" {
		return p, nil
	}
	resolved, err := securejoin.SecureJoin(c.dir, p)
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", p, err)
	}
	return resolved, nil
}

// DefaultDir returns $XDG_CONFIG_HOME/ssh2iot, falling back to ~/.config/ssh2iot.
func DefaultDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "."+AppName)
	}
	return filepath.Join(home, ".config", AppName)
}

// DefaultPath returns the default configuration file path.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), ConfigFileName)
}

// DefaultStateDir returns $XDG_STATE_HOME/ssh2iot, falling back to ~/.local/state/ssh2iot.
func DefaultStateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "."+AppName, "state")
	}
	return filepath.Join(home, ".local", "state", AppName)
}

// Load reads the configuration at path on top of the defaults. When
// required is false a missing file yields the defaults.
func Load(path string, required bool) (*Config, error) {
	cfg := Default()
	// Decoding into the default map would keep "scp" next to a user "SCP".
	cfg.Agent.Services = nil

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			logging.Debug("no config file, using defaults", "path", path)
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	for _, key := range md.Undecoded() {
		logging.Warn("unknown config key", "key", key.String(), "path", path)
	}

	if abs, err := filepath.Abs(filepath.Dir(path)); err == nil {
		cfg.dir = abs
	}

	services, err := NormalizeServices(cfg.Agent.Services)
	if err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	cfg.Agent.Services = defaultServices()
	maps.Copy(cfg.Agent.Services, services)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}
