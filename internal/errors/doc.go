// Package errors provides typed errors with exit codes for ssh2iot.
//
// # Error Types
//
// TunnelError is the base error type that wraps an error with an exit code:
//
//	type TunnelError struct {
//	    Code    int    // Exit code
//	    Message string // User-facing message
//	    Cause   error  // Wrapped error
//	}
//
// # Exit Codes
//
//	ExitSuccess               = 0  // Success or benign early exit
//	ExitGeneralError          = 1  // General/unknown errors, invalid input
//	ExitRemoteError           = 2  // Control-plane call failed
//	ExitConnectionTimeout     = 3  // A tunnel side never reached CONNECTED
//	ExitSessionClosed         = 4  // Tunnel closed while waiting
//	ExitSpawnError            = 5  // Local proxy failed to launch
//	ExitConfigError           = 6  // Configuration error
//	ExitPortAllocation        = 7  // Port allocation failure
//	ExitSSHError              = 8  // SSH client could not be launched
//	ExitTransportError        = 9  // Notification channel failure
//	ExitMalformedNotification = 10 // Agent: unusable notification payload
//	ExitUnsupportedService    = 11 // Agent: service other than ssh/scp
//
// The last two are never fatal: the agent logs them and keeps listening.
//
// # Extracting Exit Codes
//
//	if err != nil {
//	    os.Exit(errors.GetExitCode(err))
//	}
package errors
