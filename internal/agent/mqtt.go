package agent

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/yuriipolishchuk/ssh2iot/internal/logging"
)

// DefaultKeepAlive is the MQTT keepalive interval.
const DefaultKeepAlive = 6 * time.Second

const disconnectQuiesceMillis = 250

// MQTTOptions configures an MQTTSubscriber.
type MQTTOptions struct {
	Endpoint      string
	Port          int
	ClientID      string
	CertFile      string
	KeyFile       string
	RootCAFile    string
	AutoReconnect bool
	KeepAlive     time.Duration
}

// BrokerURL returns the ssl:// broker URL.
func (o *MQTTOptions) BrokerURL() string {
	return fmt.Sprintf("ssl://%s:%d", o.Endpoint, o.Port)
}

// TLSConfig loads the client certificate and optional root CA.
func (o *MQTTOptions) TLSConfig() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(o.CertFile, o.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if o.RootCAFile != "" {
		pem, err := os.ReadFile(o.RootCAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read root CA: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", o.RootCAFile)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

type subscription struct {
	qos     byte
	handler Handler
}

// MQTTSubscriber is a Subscriber over MQTT with mutual TLS.
type MQTTSubscriber struct {
	opts   MQTTOptions
	client mqtt.Client
	lost   chan error

	mu        sync.Mutex
	subs      map[string]subscription
	connected bool
}

// NewMQTTSubscriber prepares a client. Call Connect before Subscribe.
func NewMQTTSubscriber(opts MQTTOptions) (*MQTTSubscriber, error) {
	if opts.KeepAlive == 0 {
		opts.KeepAlive = DefaultKeepAlive
	}
	tlsConfig, err := opts.TLSConfig()
	if err != nil {
		return nil, err
	}

	s := &MQTTSubscriber{
		opts: opts,
		lost: make(chan error, 1),
		subs: make(map[string]subscription),
	}

	co := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL()).
		SetClientID(opts.ClientID).
		SetTLSConfig(tlsConfig).
		SetCleanSession(false).
		SetKeepAlive(opts.KeepAlive).
		SetAutoReconnect(opts.AutoReconnect).
		SetOrderMatters(false).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(s.onConnectionLost).
		SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
			logging.Debug("reconnecting to broker", "endpoint", opts.Endpoint)
		})

	s.client = mqtt.NewClient(co)
	return s, nil
}

// Connect connects to the broker.
func (s *MQTTSubscriber) Connect(ctx context.Context) error {
	logging.UserInfo("Connecting to %s with client ID '%s'...", s.opts.Endpoint, s.opts.ClientID)
	if err := wait(ctx, s.client.Connect()); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", s.opts.BrokerURL(), err)
	}
	logging.UserSuccess("Connected!")
	return nil
}

func (s *MQTTSubscriber) onConnect(c mqtt.Client) {
	s.mu.Lock()
	resumed := s.connected
	s.connected = true
	subs := make(map[string]subscription, len(s.subs))
	for topic, sub := range s.subs {
		subs[topic] = sub
	}
	s.mu.Unlock()

	if !resumed {
		return
	}
	logging.Info("connection resumed", "endpoint", s.opts.Endpoint)

	// Runs on the client's goroutine, so do not wait on the tokens here.
	for topic, sub := range subs {
		logging.Debug("resubscribing", "topic", topic)
		tok := c.Subscribe(topic, sub.qos, s.callback(sub.handler))
		go func(topic string, tok mqtt.Token) {
			tok.Wait()
			if err := tok.Error(); err != nil {
				logging.Error("resubscribe failed", "topic", topic, "error", err)
			}
		}(topic, tok)
	}
}

func (s *MQTTSubscriber) onConnectionLost(_ mqtt.Client, err error) {
	logging.Warn("connection interrupted", "endpoint", s.opts.Endpoint, "error", err)
	if s.opts.AutoReconnect {
		return
	}
	select {
	case s.lost <- err:
	default:
	}
}

func (s *MQTTSubscriber) callback(h Handler) mqtt.MessageHandler {
	return func(_ mqtt.Client, m mqtt.Message) {
		h(Message{Topic: m.Topic(), Payload: m.Payload()})
	}
}

// Subscribe subscribes to topic and remembers it for reconnects.
func (s *MQTTSubscriber) Subscribe(ctx context.Context, topic string, qos byte, handler Handler) error {
	s.mu.Lock()
	s.subs[topic] = subscription{qos: qos, handler: handler}
	s.mu.Unlock()

	logging.UserInfo("Subscribing to tunnel topic '%s'...", topic)
	return wait(ctx, s.client.Subscribe(topic, qos, s.callback(handler)))
}

// Lost implements Subscriber.
func (s *MQTTSubscriber) Lost() <-chan error {
	return s.lost
}

// Close disconnects from the broker.
func (s *MQTTSubscriber) Close() error {
	if s.client.IsConnected() {
		logging.UserInfo("Disconnecting...")
		s.client.Disconnect(disconnectQuiesceMillis)
	}
	return nil
}

// wait blocks until tok completes or ctx is done.
func wait(ctx context.Context, tok mqtt.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
