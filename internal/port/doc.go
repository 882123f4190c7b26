// Package port provides local TCP port allocation for the source-mode proxy.
//
// # Port Allocation
//
// Allocate binds an ephemeral listener on 127.0.0.1, lets the OS assign a
// free port, and releases it immediately:
//
//	p, err := port.Allocate()
//
// # Race
//
// The port is free when Allocate returns but not reserved. Another process
// may bind it before the local proxy does; nothing retries or locks. Holding
// the socket and passing the descriptor to the child would close the gap but
// needs a different proxy invocation.
package port
