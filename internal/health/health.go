package health

import (
	"context"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/yuriipolishchuk/ssh2iot/internal/config"
)

// Status represents the reachability of a local service
type Status string

const (
	StatusReachable   Status = "reachable"
	StatusUnreachable Status = "unreachable"

	// DialTimeout is the default timeout for a single reachability probe.
	DialTimeout = 2 * time.Second
)

// Dialer opens the probe connection. net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// CheckResult is the outcome of probing one service
type CheckResult struct {
	Service string
	Address string
	Status  Status
	Latency time.Duration
	Err     error
}

// Reachable reports whether the probe connected.
func (r CheckResult) Reachable() bool {
	return r.Status == StatusReachable
}

// CheckTCP checks if something accepts TCP connections on address.
func CheckTCP(ctx context.Context, address string, timeout time.Duration) bool {
	return probe(ctx, &net.Dialer{}, address, timeout) == nil
}

func probe(ctx context.Context, d Dialer, address string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DialTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Checker probes the local services an agent forwards tunnels to.
type Checker struct {
	Dialer  Dialer
	Timeout time.Duration
}

// NewChecker returns a Checker using a plain net.Dialer.
func NewChecker() *Checker {
	return &Checker{Dialer: &net.Dialer{}, Timeout: DialTimeout}
}

// Check probes a single service address.
func (c *Checker) Check(ctx context.Context, service, address string) CheckResult {
	start := time.Now()
	err := probe(ctx, c.Dialer, address, c.Timeout)
	result := CheckResult{
		Service: service,
		Address: address,
		Status:  StatusReachable,
		Latency: time.Since(start),
	}
	if err != nil {
		result.Status = StatusUnreachable
		result.Err = err
	}
	return result
}

// CheckAgent probes the destination of every supported service in the
// agent config, sorted by service name.
func (c *Checker) CheckAgent(ctx context.Context, ac config.AgentConfig) []CheckResult {
	services := slices.Clone(config.Services)
	for service := range ac.Services {
		service = strings.ToLower(service)
		if !slices.Contains(services, service) {
			services = append(services, service)
		}
	}
	slices.Sort(services)

	results := make([]CheckResult, 0, len(services))
	for _, service := range services {
		results = append(results, c.Check(ctx, service, ac.DestinationFor(service)))
	}
	return results
}

// GetSummary collapses results into a single status: reachable only if
// every service is.
func GetSummary(results []CheckResult) Status {
	for _, r := range results {
		if !r.Reachable() {
			return StatusUnreachable
		}
	}
	return StatusReachable
}
