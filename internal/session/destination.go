package session

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strings"

	"github.com/google/uuid"

	"github.com/yuriipolishchuk/ssh2iot/internal/audit"
	"github.com/yuriipolishchuk/ssh2iot/internal/config"
	"github.com/yuriipolishchuk/ssh2iot/internal/errors"
	"github.com/yuriipolishchuk/ssh2iot/internal/logging"
	"github.com/yuriipolishchuk/ssh2iot/internal/proxy"
)

// ClientModeDestination is the only client mode the agent acts on.
const ClientModeDestination = "destination"

// Notification is the payload published on the tunnel notify topic.
type Notification struct {
	ClientAccessToken string   `json:"clientAccessToken"`
	ClientMode        string   `json:"clientMode"`
	Region            string   `json:"region"`
	Services          []string `json:"services"`
}

// ParseNotification decodes and checks a notification payload.
func ParseNotification(payload []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, errors.MalformedNotification("invalid JSON", err)
	}

	var missing []string
	if n.ClientAccessToken == "" {
		missing = append(missing, "clientAccessToken")
	}
	if n.ClientMode == "" {
		missing = append(missing, "clientMode")
	}
	if n.Region == "" {
		missing = append(missing, "region")
	}
	if len(n.Services) == 0 {
		missing = append(missing, "services")
	}
	if len(missing) > 0 {
		return nil, errors.MalformedNotification("missing "+strings.Join(missing, ", "), nil)
	}
	return &n, nil
}

// String describes the notification without its token.
func (n *Notification) String() string {
	return fmt.Sprintf("mode=%s region=%s services=%s", n.ClientMode, n.Region, strings.Join(n.Services, ","))
}

// DestinationOption configures a Destination.
type DestinationOption func(*Destination)

// WithServices sets the local address each service forwards to. Keys are
// matched case-insensitively, as config.ServiceAddress does.
func WithServices(services map[string]string) DestinationOption {
	return func(d *Destination) {
		d.services = maps.Clone(services)
	}
}

// WithKillStray controls the system-wide kill of running proxies before
// each notification is served.
func WithKillStray(enabled bool) DestinationOption {
	return func(d *Destination) {
		d.killStray = enabled
	}
}

// WithDestinationRecorder sets where notification events are recorded.
func WithDestinationRecorder(r Recorder) DestinationOption {
	return func(d *Destination) {
		d.recorder = r
	}
}

// WithSessionIDs replaces the generator of logical session ids.
func WithSessionIDs(fn func() string) DestinationOption {
	return func(d *Destination) {
		d.newID = fn
	}
}

// Destination handles tunnel notifications on the device side. It holds
// no per-notification state and may be called concurrently.
type Destination struct {
	proxies   Supervisor
	services  map[string]string
	killStray bool
	recorder  Recorder
	newID     func() string
}

// NewDestination creates a Destination.
func NewDestination(proxies Supervisor, opts ...DestinationOption) *Destination {
	d := &Destination{
		proxies:   proxies,
		killStray: true,
		newID:     uuid.NewString,
	}
	WithServices(map[string]string{
		"ssh": config.DefaultDestination,
		"scp": config.DefaultDestination,
	})(d)
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// addressFor returns the local address for a supported service.
func (d *Destination) addressFor(service string) (string, bool) {
	if !config.IsSupportedService(service) {
		return "", false
	}
	return config.ServiceAddress(d.services, service), true
}

// HandlePayload validates a notification and starts one destination proxy
// per supported service. It returns an error only when the notification as
// a whole is rejected; per-service failures are logged and do not affect
// sibling services.
func (d *Destination) HandlePayload(ctx context.Context, payload []byte) error {
	n, err := ParseNotification(payload)
	if err != nil {
		return err
	}
	if !strings.EqualFold(n.ClientMode, ClientModeDestination) {
		return errors.ValidationError(fmt.Sprintf("ignoring notification for client mode %q", n.ClientMode))
	}

	logging.Info("tunnel notification received", "region", n.Region, "services", n.Services)

	if d.killStray {
		d.proxies.KillStray(ctx)
	}

	for _, service := range n.Services {
		addr, ok := d.addressFor(service)
		if !ok {
			logging.Warn("skipping service", "error", errors.UnsupportedService(service))
			continue
		}

		id := d.newID()
		h, err := d.proxies.Start(ctx, proxy.StartOptions{
			SessionID:       id,
			Role:            proxy.RoleDestination,
			Region:          n.Region,
			AccessToken:     n.ClientAccessToken,
			DestinationAddr: addr,
		})
		if err != nil {
			logging.Error("failed to start local proxy", "service", service, "session", id, "error", err)
			d.record(audit.EventError, id, fmt.Sprintf("service=%s: %v", service, err))
			continue
		}

		logging.Info("local proxy started", "service", service, "session", id, "pid", h.Pid, "destination", addr)
		d.record(audit.EventProxyStarted, id, fmt.Sprintf("service=%s pid=%d destination=%s", service, h.Pid, addr))
	}
	return nil
}

func (d *Destination) record(eventType audit.EventType, id, details string) {
	if d.recorder == nil {
		return
	}
	if err := d.recorder.LogEvent(eventType, id, "", details); err != nil {
		logging.Debug("failed to record event", "session", id, "error", err)
	}
}
