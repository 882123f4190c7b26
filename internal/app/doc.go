// Package app provides the application context for ssh2iot.
//
// This package manages application-wide dependencies using the functional
// options pattern, enabling easy testing through dependency injection.
//
// # App Context
//
// The App struct holds core dependencies:
//
//	type App struct {
//	    Config     *config.Config     // Loaded configuration
//	    Tunnels    *tunnel.Client     // IoT Secure Tunneling control plane
//	    Supervisor *proxy.Supervisor  // Local proxy processes
//	    Shell      *ssh.Launcher      // Interactive ssh client
//	    Audit      *audit.Logger      // Per-tunnel event log
//	    Clock      clock.Clock        // Polling clock
//	}
//
// # Creating an App
//
//	// Production usage: AWS client from region, profile and credentials
//	a, err := app.New(ctx, app.WithConfig(cfg))
//
//	// Testing with custom dependencies
//	a, err := app.New(ctx,
//	    app.WithConfig(cfg),
//	    app.WithTunnelAPI(fakeAPI),
//	    app.WithExecutor(mockExecutor),
//	    app.WithClock(testClock),
//	)
//
// NewOrchestrator and NewDestination hand the wired dependencies to the
// session package; MQTTOptions does the same for the agent.
package app
