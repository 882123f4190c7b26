package errors

import (
	"errors"
	"fmt"
)

// Exit codes for ssh2iot
const (
	ExitSuccess               = 0
	ExitGeneralError          = 1
	ExitRemoteError           = 2
	ExitConnectionTimeout     = 3
	ExitSessionClosed         = 4
	ExitSpawnError            = 5
	ExitConfigError           = 6
	ExitPortAllocation        = 7
	ExitSSHError              = 8
	ExitTransportError        = 9
	ExitMalformedNotification = 10
	ExitUnsupportedService    = 11
)

// TunnelError is the base error type for ssh2iot
type TunnelError struct {
	Code    int
	Message string
	Cause   error
}

func (e *TunnelError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *TunnelError) Unwrap() error {
	return e.Cause
}

// ExitCode returns the exit code for this error
func (e *TunnelError) ExitCode() int {
	return e.Code
}

// New creates a new TunnelError
func New(code int, message string) *TunnelError {
	return &TunnelError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a TunnelError
func Wrap(code int, message string, cause error) *TunnelError {
	return &TunnelError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// RemoteError returns an error for a failed or non-successful control-plane call.
func RemoteError(op string, cause error) *TunnelError {
	return Wrap(ExitRemoteError, fmt.Sprintf("%s failed", op), cause)
}

// ConnectionTimeout returns an error for a side of the tunnel that did not
// reach CONNECTED within the polling budget. cause may be nil.
func ConnectionTimeout(side string, attempts int, cause error) *TunnelError {
	return Wrap(ExitConnectionTimeout,
		fmt.Sprintf("%s failed to connect to tunnel after %d attempts", side, attempts), cause)
}

// SessionClosed returns an error for a tunnel observed CLOSED while waiting.
func SessionClosed(id string) *TunnelError {
	return New(ExitSessionClosed, fmt.Sprintf("tunnel %s was closed", id))
}

// SpawnError returns an error for a child process that failed to launch.
func SpawnError(binary string, cause error) *TunnelError {
	return Wrap(ExitSpawnError, fmt.Sprintf("cannot start %s", binary), cause)
}

// ConfigError returns an error for configuration issues
func ConfigError(message string, cause error) *TunnelError {
	return Wrap(ExitConfigError, message, cause)
}

// PortAllocationFailed returns an error for port allocation failure
func PortAllocationFailed(cause error) *TunnelError {
	return Wrap(ExitPortAllocation, "failed to allocate port", cause)
}

// SSHError returns an error for SSH operations
func SSHError(message string, cause error) *TunnelError {
	return Wrap(ExitSSHError, message, cause)
}

// TransportError returns an error for the notification channel itself.
func TransportError(message string, cause error) *TunnelError {
	return Wrap(ExitTransportError, message, cause)
}

// MalformedNotification returns an error for a tunnel notification that
// cannot be parsed or lacks required fields.
func MalformedNotification(message string, cause error) *TunnelError {
	return Wrap(ExitMalformedNotification, fmt.Sprintf("malformed notification: %s", message), cause)
}

// UnsupportedService returns an error for a requested service other than ssh/scp.
func UnsupportedService(name string) *TunnelError {
	return New(ExitUnsupportedService, fmt.Sprintf("unsupported service: %s", name))
}

// ValidationError returns an error for input validation failures
func ValidationError(message string) *TunnelError {
	return New(ExitGeneralError, message)
}

// GetExitCode extracts the exit code from an error
func GetExitCode(err error) int {
	var tunnelErr *TunnelError
	if errors.As(err, &tunnelErr) {
		return tunnelErr.ExitCode()
	}
	return ExitGeneralError
}

// HasCode reports whether err's chain holds a TunnelError with the given code.
func HasCode(err error, code int) bool {
	var tunnelErr *TunnelError
	return errors.As(err, &tunnelErr) && tunnelErr.Code == code
}

// Is checks if an error is of a specific type
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target any) bool {
	return errors.As(err, target)
}
