// Package session implements the tunnel-session state machines.
//
// The source role (operator side) is driven by Orchestrator.Run:
//
//	Idle → Opening → AwaitingDestination → ProxyStarting →
//	AwaitingSource → Interactive → Closing → Closed
//
// Attaching with an explicit tunnel id and token skips Opening. Each wait
// phase polls describe through juju/retry with a bounded number of total
// calls; a CLOSED tunnel aborts the wait immediately. Whatever the outcome,
// once a tunnel is known the session passes through Closing, where the
// local proxy is stopped and, when requested, the tunnel is deleted.
//
// The destination role (device side) is Destination.HandlePayload, called
// for every tunnel notification:
//
//	NotificationReceived → Validating → ProxyStarting → Running
//
// Running proxies are not supervised further.
package session
