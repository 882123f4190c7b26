// Package tunnel is the client for the AWS IoT Secure Tunneling control plane.
//
// Client wraps a narrow API interface (the methods of
// *iotsecuretunneling.Client it needs), so tests can inject an in-memory
// fake. Every non-successful call is returned as an errors.RemoteError whose
// message carries the AWS error code and HTTP status when known.
//
// List is advisory: failures are logged and produce an empty slice, which
// callers treat the same as "no tunnels".
package tunnel
