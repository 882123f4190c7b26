// Package logging provides logging utilities for ssh2iot.
//
// This package provides two categories of output:
//   - Debug logging: Structured logs for debugging (via logrus)
//   - User output: Formatted messages for end users
//
// # Debug Logging
//
// Structured logs take a message followed by key/value pairs and are
// controlled by verbosity settings:
//
//	logging.Debug("polling tunnel", "tunnel", id, "attempt", n)
//	logging.Warn("list tunnels failed", "thing", thing, "error", err)
//
// Setup selects text or JSON output; --verbose enables debug level.
//
// # User Output
//
// User-facing messages are formatted with status indicators:
//
//	logging.UserInfo("Waiting for IoT device %s to connect...", thing)
//	logging.UserSuccess("Secure tunnel %s has been opened", id)
//	logging.UserWarning("Tunnel %s is already open", id)
//	logging.UserError("%v", err)
//
// Output destinations:
//   - UserInfo, UserSuccess: stdout
//   - UserWarning, UserError: stderr
package logging
