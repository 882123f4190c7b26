// Package testutil provides test fixtures and utilities.
//
// # Test Environment
//
// NewTestEnv builds an app.App on top of an in-memory control plane
// (TunnelServer), a mock executor and process table, and a dilated clock,
// and installs it as app.Default for the duration of the test:
//
//	env := testutil.NewTestEnv(t)
//	id := env.Tunnels.AddTunnel("thing-42", types.TunnelStatusOpen)
//	env.ConnectAfter(3, 4)
//
// # Fixtures
//
// Fixtures are embedded using go:embed:
//
//	fixtures/valid_config.toml
//	fixtures/invalid_config.toml
//	fixtures/notification.json
//	fixtures/notification_missing_token.json
//
//	cfg, err := testutil.ValidConfig()
//	n, err := testutil.ValidNotification()
//	data, err := testutil.LoadFixture("notification_missing_token.json")
package testutil
