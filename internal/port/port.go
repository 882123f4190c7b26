package port

import (
	"fmt"
	"net"

	"github.com/yuriipolishchuk/ssh2iot/internal/errors"
)

// LoopbackHost is the address the source-mode proxy is reached on.
const LoopbackHost = "127.0.0.1"

// Allocate returns a TCP port the OS reports as free on the loopback
// interface. The listener is closed before returning, so another process
// may claim the port before the proxy binds it.
func Allocate() (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(LoopbackHost, "0"))
	if err != nil {
		return 0, errors.PortAllocationFailed(err)
	}
	defer l.Close()

	addr, ok := l.Addr().(*net.TCPAddr)
	if !ok {
		return 0, errors.PortAllocationFailed(fmt.Errorf("unexpected listener address %s", l.Addr()))
	}
	return addr.Port, nil
}

// Address returns the loopback host:port string for port.
func Address(port int) string {
	return net.JoinHostPort(LoopbackHost, fmt.Sprintf("%d", port))
}
