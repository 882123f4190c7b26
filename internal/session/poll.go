package session

import (
	"context"
	stderrors "errors"

	"github.com/juju/retry"

	"github.com/yuriipolishchuk/ssh2iot/internal/errors"
	"github.com/yuriipolishchuk/ssh2iot/internal/logging"
	"github.com/yuriipolishchuk/ssh2iot/internal/tunnel"
)

var (
	errNotConnected = stderrors.New("not connected yet")
	errTunnelClosed = stderrors.New("tunnel closed")
)

// sideName names a tunnel side in timeout diagnostics.
func sideName(side tunnel.Role) string {
	if side == tunnel.RoleDestination {
		return "IoT device"
	}
	return "localproxy"
}

// waitConnected polls describe until side reports CONNECTED. Every call,
// including one that fails in transport, consumes one attempt. A CLOSED
// tunnel aborts at once.
func (o *Orchestrator) waitConnected(ctx context.Context, side tunnel.Role) error {
	id := o.session.ID

	var (
		attempts int
		closed   bool
		lastErr  error
	)

	err := retry.Call(retry.CallArgs{
		Func: func() error {
			attempts++
			d, err := o.tunnels.Describe(ctx, id)
			if err != nil {
				lastErr = err
				return err
			}
			if d.IsClosed() {
				closed = true
				return errTunnelClosed
			}
			if d.State(side) == tunnel.Connected {
				return nil
			}
			lastErr = nil
			return errNotConnected
		},
		IsFatalError: func(err error) bool {
			return stderrors.Is(err, errTunnelClosed)
		},
		NotifyFunc: func(err error, attempt int) {
			if stderrors.Is(err, errNotConnected) {
				logging.Debug("waiting for connection", "tunnel", id, "side", side, "attempt", attempt)
				return
			}
			logging.Warn("describe tunnel failed", "tunnel", id, "attempt", attempt, "error", err)
		},
		Attempts: o.poll.Attempts,
		Delay:    o.poll.Interval,
		Clock:    o.clock,
		Stop:     ctx.Done(),
	})

	switch {
	case err == nil:
		logging.Debug("side connected", "tunnel", id, "side", side, "attempts", attempts)
		return nil
	case closed:
		logging.UserError("Tunnel was closed")
		return errors.SessionClosed(id)
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return errors.ConnectionTimeout(sideName(side), attempts, lastErr)
	}
}
