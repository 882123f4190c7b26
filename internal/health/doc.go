// Package health provides reachability checks for the local services an
// agent forwards tunnels to.
//
// Before the agent subscribes to tunnel notifications it probes the
// destination address of every service (127.0.0.1:22 for ssh and scp by
// default). An unreachable service is reported but does not stop the
// agent, since the service may come up before a tunnel is opened.
//
// # Check Functions
//
//	health.CheckTCP(ctx, "127.0.0.1:22", time.Second)
//
//	c := health.NewChecker()
//	results := c.CheckAgent(ctx, cfg.Agent)
//	status := health.GetSummary(results)
package health
