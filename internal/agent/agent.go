package agent

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/yuriipolishchuk/ssh2iot/internal/errors"
	"github.com/yuriipolishchuk/ssh2iot/internal/logging"
)

// QoS is the MQTT quality of service used for the notify topic (at least once).
const QoS byte = 1

// Message is one message delivered by a Subscriber.
type Message struct {
	Topic   string
	Payload []byte
}

// Handler receives messages. It may be called concurrently.
type Handler func(Message)

// Subscriber is a pub/sub transport.
type Subscriber interface {
	// Subscribe registers handler for topic. The subscription must survive
	// reconnects.
	Subscribe(ctx context.Context, topic string, qos byte, handler Handler) error

	// Lost delivers an error when the transport gives up on the connection.
	Lost() <-chan error

	Close() error
}

// PayloadHandler acts on a tunnel notification payload.
type PayloadHandler interface {
	HandlePayload(ctx context.Context, payload []byte) error
}

// Listener feeds tunnel notifications from a Subscriber to a PayloadHandler.
type Listener struct {
	sub      Subscriber
	handler  PayloadHandler
	topic    string
	received atomic.Int64
}

// NewListener creates a Listener on topic.
func NewListener(sub Subscriber, handler PayloadHandler, topic string) *Listener {
	return &Listener{sub: sub, handler: handler, topic: topic}
}

// Topic returns the subscribed topic.
func (l *Listener) Topic() string {
	return l.topic
}

// Received returns how many messages this listener has seen.
func (l *Listener) Received() int64 {
	return l.received.Load()
}

// Run subscribes and blocks until ctx is done, which returns nil, or until
// the transport reports the connection permanently lost, which returns a
// TransportError. Per-message errors never end Run.
func (l *Listener) Run(ctx context.Context) error {
	err := l.sub.Subscribe(ctx, l.topic, QoS, func(m Message) {
		l.handle(ctx, m)
	})
	if err != nil {
		return errors.TransportError(fmt.Sprintf("failed to subscribe to %s", l.topic), err)
	}
	logging.UserSuccess("Subscribed to tunnel topic '%s'", l.topic)

	select {
	case <-ctx.Done():
		logging.Debug("listener stopping", "received", l.Received())
		return nil
	case err := <-l.sub.Lost():
		return errors.TransportError("notification channel lost", err)
	}
}

func (l *Listener) handle(ctx context.Context, m Message) {
	n := l.received.Add(1)

	defer func() {
		if r := recover(); r != nil {
			logging.Error("notification handler panicked", "topic", m.Topic, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	logging.Info("message received", "count", n, "topic", m.Topic)

	if m.Topic != l.topic {
		logging.Info("ignoring message on unexpected topic", "topic", m.Topic, "payload", string(m.Payload))
		return
	}

	if err := l.handler.HandlePayload(ctx, m.Payload); err != nil {
		logging.Warn("notification discarded", "count", n, "error", err)
	}
}
