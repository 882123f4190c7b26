// Package agent is the device-side tunnel notification listener.
//
// A Listener subscribes to $aws/things/<client-id>/tunnels/notify through
// a Subscriber and hands every payload on that topic to a PayloadHandler
// (session.Destination in production). Errors and panics from the handler
// are logged and never stop the listener. The received-message counter
// belongs to the Listener instance.
//
// MQTTSubscriber implements Subscriber with the Eclipse Paho client over
// mutual TLS. It keeps a persistent session (CleanSession=false), pings
// every 6 seconds and resubscribes after every reconnect. With
// auto-reconnect disabled a dropped connection is reported on Lost, which
// ends Listener.Run with a TransportError.
package agent
