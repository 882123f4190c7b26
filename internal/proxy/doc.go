// Package proxy supervises the external AWS IoT Secure Tunneling local proxy.
//
// A Supervisor launches the proxy binary as a background child:
//
//	<binary> -r <region> -s <port>        (source role)
//	<binary> -r <region> -d <host:port>   (destination role)
//
// The access token is injected through AWSIOT_TUNNEL_ACCESS_TOKEN and never
// appears in argv, so it does not leak into process listings. The child's
// stdout and stderr are passed through for diagnostics.
//
// Handles are tracked in a table keyed by logical session id. Starting a
// session that already has a live handle terminates the old process first,
// which keeps at most one proxy per session. Stop sends SIGTERM and reaps
// the child in the background.
//
// KillStray is the destination-role safety net: it kills every process named
// like the proxy binary system-wide, best-effort.
package proxy
