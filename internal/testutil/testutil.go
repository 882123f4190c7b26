package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/iotsecuretunneling/types"
	"github.com/juju/clock/testclock"

	"github.com/yuriipolishchuk/ssh2iot/internal/app"
	"github.com/yuriipolishchuk/ssh2iot/internal/config"
	"github.com/yuriipolishchuk/ssh2iot/internal/system"
)

// TestEnv holds the test environment
type TestEnv struct {
	T        *testing.T
	TmpDir   string
	Config   *config.Config
	Executor *system.MockExecutor
	Table    *system.MockProcessTable
	Tunnels  *TunnelServer
	App      *app.App
}

// NewTestEnv creates a test environment backed by an in-memory control
// plane and mock processes, and installs its App as app.Default until the
// test ends.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	tmpDir := t.TempDir()

	cfg := config.Default()
	cfg.StateDir = filepath.Join(tmpDir, "state")
	cfg.Poll.Interval = time.Second
	if err := os.MkdirAll(cfg.StateDir, 0755); err != nil {
		t.Fatalf("Failed to create state directory: %v", err)
	}

	env := &TestEnv{
		T:        t,
		TmpDir:   tmpDir,
		Config:   cfg,
		Executor: system.NewMockExecutor(),
		Table:    system.NewMockProcessTable(),
		Tunnels:  NewTunnelServer(),
	}

	testApp, err := app.New(context.Background(),
		app.WithConfig(cfg),
		app.WithTunnelAPI(env.Tunnels),
		app.WithExecutor(env.Executor),
		app.WithProcessTable(env.Table),
		// One poll second passes in a real millisecond.
		app.WithClock(testclock.NewDilatedWallClock(time.Millisecond)),
	)
	if err != nil {
		t.Fatalf("Failed to create app: %v", err)
	}
	env.App = testApp

	// Save original default and set test app
	originalDefault := app.Default
	app.SetDefault(testApp)
	t.Cleanup(func() {
		app.SetDefault(originalDefault)
	})

	return env
}

// WriteConfig writes a config file into the environment and returns its path
func (e *TestEnv) WriteConfig(content string) string {
	e.T.Helper()

	dir := filepath.Join(e.TmpDir, "config")
	if err := os.MkdirAll(dir, 0755); err != nil {
		e.T.Fatalf("Failed to create config directory: %v", err)
	}
	path := filepath.Join(dir, config.ConfigFileName)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		e.T.Fatalf("Failed to write config: %v", err)
	}
	return path
}

// ConnectAfter makes every tunnel report its destination side CONNECTED
// from describe number dst and its source side from describe number src
// onwards. Zero leaves that side disconnected.
func (e *TestEnv) ConnectAfter(dst, src int) {
	e.Tunnels.OnDescribe = func(t *types.Tunnel, call int) {
		if dst > 0 && call >= dst {
			t.DestinationConnectionState.Status = types.ConnectionStatusConnected
		}
		if src > 0 && call >= src {
			t.SourceConnectionState.Status = types.ConnectionStatusConnected
		}
	}
}
