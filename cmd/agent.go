package cmd

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yuriipolishchuk/ssh2iot/internal/agent"
	"github.com/yuriipolishchuk/ssh2iot/internal/app"
	"github.com/yuriipolishchuk/ssh2iot/internal/errors"
	"github.com/yuriipolishchuk/ssh2iot/internal/health"
	"github.com/yuriipolishchuk/ssh2iot/internal/logging"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Listen for tunnel notifications on the device",
	Long: `Runs on the IoT device. Connects to AWS IoT Core over MQTT with the
device certificate, subscribes to $aws/things/<client-id>/tunnels/notify and
starts localproxy in destination mode for every tunnel notification, pointed
at the local service (127.0.0.1:22 for ssh and scp by default).`,
	Example: `  ssh2iot agent --endpoint abcd123456wxyz-ats.iot.us-east-1.amazonaws.com \
    --client-id thing-42 --cert device.pem.crt --key private.pem.key \
    --root-ca AmazonRootCA1.pem`,
	Args: cobra.NoArgs,
	RunE: runAgent,
}

var (
	agentEndpoint string
	agentPort     int
	agentCert     string
	agentKey      string
	agentRootCA   string
	agentClientID string
	agentTopic    string
	agentCount    int
)

func init() {
	agentCmd.Flags().StringVar(&agentEndpoint, "endpoint", "", "AWS IoT device data endpoint")
	agentCmd.Flags().IntVar(&agentPort, "port", 0, "MQTT port (default from config, 8883)")
	agentCmd.Flags().StringVar(&agentCert, "cert", "", "Device certificate file (PEM)")
	agentCmd.Flags().StringVar(&agentKey, "key", "", "Device private key file (PEM)")
	agentCmd.Flags().StringVar(&agentRootCA, "root-ca", "", "Root CA file (PEM)")
	agentCmd.Flags().StringVar(&agentClientID, "client-id", "", "MQTT client id, normally the thing name")
	agentCmd.Flags().StringVar(&agentTopic, "topic", "", "Notification topic (default $aws/things/<client-id>/tunnels/notify)")
	agentCmd.Flags().IntVar(&agentCount, "count", 0, "Exit after this many notifications (0 runs forever)")
	rootCmd.AddCommand(agentCmd)
}

// applyAgentFlags overrides the agent config section with set flags.
func applyAgentFlags(a *app.App) {
	ac := &a.Config.Agent
	for _, o := range []struct {
		flag string
		dst  *string
	}{
		{agentEndpoint, &ac.Endpoint},
		{agentCert, &ac.Cert},
		{agentKey, &ac.Key},
		{agentRootCA, &ac.RootCA},
		{agentClientID, &ac.ClientID},
		{agentTopic, &ac.Topic},
	} {
		if o.flag != "" {
			*o.dst = o.flag
		}
	}
	if agentPort != 0 {
		ac.Port = agentPort
	}
}

func runAgent(cmd *cobra.Command, args []string) error {
	a := getApp()
	applyAgentFlags(a)

	if err := a.Config.Agent.Validate(); err != nil {
		return errors.ConfigError("invalid agent configuration", err)
	}

	opts, err := a.MQTTOptions()
	if err != nil {
		return err
	}
	sub, err := agent.NewMQTTSubscriber(opts)
	if err != nil {
		return errors.ConfigError("failed to set up MQTT client", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checkServices(ctx, a, health.NewChecker())

	if err := sub.Connect(ctx); err != nil {
		return errors.TransportError("failed to connect to AWS IoT", err)
	}

	return serveAgent(ctx, a, sub)
}

// checkServices warns about local services nothing is listening on.
// Tunnels for them will open but the destination proxy cannot connect.
func checkServices(ctx context.Context, a *app.App, c *health.Checker) bool {
	results := c.CheckAgent(ctx, a.Config.Agent)
	for _, r := range results {
		if r.Reachable() {
			logging.Debug("service reachable", "service", r.Service, "address", r.Address, "latency", r.Latency)
			continue
		}
		logWarning("%s destination %s is not reachable: %v", r.Service, r.Address, r.Err)
	}
	return health.GetSummary(results) == health.StatusReachable
}

// serveAgent runs the notification listener on sub until ctx is done, the
// transport is lost or --count notifications were handled. Proxies started
// for notifications are stopped before the subscriber is closed.
func serveAgent(ctx context.Context, a *app.App, sub agent.Subscriber) error {
	defer func() {
		if err := sub.Close(); err != nil {
			logging.Debug("closing subscriber failed", "error", err)
		}
		logInfo("Disconnected")
	}()
	defer a.Supervisor.StopAll()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var handler agent.PayloadHandler = a.NewDestination()
	if agentCount > 0 {
		handler = &countingHandler{next: handler, remaining: int64(agentCount), done: cancel}
	}

	l := agent.NewListener(sub, handler, a.Config.Agent.TopicOrDefault())
	err := l.Run(ctx)
	logInfo("%d message(s) received", l.Received())
	return err
}

// countingHandler cancels the listener once it has handled a fixed number
// of notifications, whatever their outcome.
type countingHandler struct {
	next      agent.PayloadHandler
	remaining int64
	done      context.CancelFunc
}

func (h *countingHandler) HandlePayload(ctx context.Context, payload []byte) error {
	// Deferred so a panicking handler still counts.
	defer func() {
		if atomic.AddInt64(&h.remaining, -1) == 0 {
			h.done()
		}
	}()
	return h.next.HandlePayload(ctx, payload)
}
