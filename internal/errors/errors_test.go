package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestTunnelError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *TunnelError
		wantMsg string
	}{
		{
			name:    "without cause",
			err:     New(ExitGeneralError, "something went wrong"),
			wantMsg: "something went wrong",
		},
		{
			name:    "with cause",
			err:     Wrap(ExitGeneralError, "operation failed", fmt.Errorf("underlying error")),
			wantMsg: "operation failed: underlying error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestTunnelError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(ExitGeneralError, "wrapped", cause)

	if unwrapped := err.Unwrap(); unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}

	errNoCause := New(ExitGeneralError, "no cause")
	if unwrapped := errNoCause.Unwrap(); unwrapped != nil {
		t.Errorf("Unwrap() = %v, want nil", unwrapped)
	}
}

func TestConstructors(t *testing.T) {
	cause := fmt.Errorf("boom")

	tests := []struct {
		name     string
		err      *TunnelError
		wantCode int
		wantMsg  string
	}{
		{"remote", RemoteError("open tunnel", cause), ExitRemoteError, "open tunnel failed: boom"},
		{"timeout destination", ConnectionTimeout("IoT device", 30, nil), ExitConnectionTimeout,
			"IoT device failed to connect to tunnel after 30 attempts"},
		{"session closed", SessionClosed("abc"), ExitSessionClosed, "tunnel abc was closed"},
		{"spawn", SpawnError("/usr/local/bin/localproxy", cause), ExitSpawnError,
			"cannot start /usr/local/bin/localproxy: boom"},
		{"config", ConfigError("bad config", cause), ExitConfigError, "bad config: boom"},
		{"port", PortAllocationFailed(cause), ExitPortAllocation, "failed to allocate port: boom"},
		{"ssh", SSHError("ssh not found", cause), ExitSSHError, "ssh not found: boom"},
		{"transport", TransportError("connection lost", cause), ExitTransportError, "connection lost: boom"},
		{"malformed", MalformedNotification("missing clientAccessToken", nil), ExitMalformedNotification,
			"malformed notification: missing clientAccessToken"},
		{"unsupported", UnsupportedService("rdp"), ExitUnsupportedService, "unsupported service: rdp"},
		{"validation", ValidationError("bad input"), ExitGeneralError, "bad input"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("Code = %d, want %d", tt.err.Code, tt.wantCode)
			}
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{
			name:     "TunnelError",
			err:      SessionClosed("t1"),
			wantCode: ExitSessionClosed,
		},
		{
			name:     "wrapped TunnelError",
			err:      fmt.Errorf("outer: %w", ConnectionTimeout("local proxy", 30, nil)),
			wantCode: ExitConnectionTimeout,
		},
		{
			name:     "regular error",
			err:      fmt.Errorf("some error"),
			wantCode: ExitGeneralError,
		},
		{
			name:     "nil error",
			err:      nil,
			wantCode: ExitGeneralError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetExitCode(tt.err); got != tt.wantCode {
				t.Errorf("GetExitCode() = %d, want %d", got, tt.wantCode)
			}
		})
	}
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", RemoteError("describe tunnel", nil))

	if !HasCode(err, ExitRemoteError) {
		t.Error("HasCode should find ExitRemoteError in chain")
	}
	if HasCode(err, ExitSpawnError) {
		t.Error("HasCode should not match a different code")
	}
	if HasCode(fmt.Errorf("plain"), ExitGeneralError) {
		t.Error("HasCode should be false without a TunnelError")
	}
}

func TestErrorChaining(t *testing.T) {
	root := fmt.Errorf("root cause")
	middle := Wrap(ExitConfigError, "config error", root)
	outer := fmt.Errorf("operation failed: %w", middle)

	if !errors.Is(outer, root) {
		t.Error("errors.Is should find root cause")
	}

	var tunnelErr *TunnelError
	if !As(outer, &tunnelErr) {
		t.Fatal("As should find TunnelError")
	}

	if tunnelErr.Code != ExitConfigError {
		t.Errorf("Code = %d, want %d", tunnelErr.Code, ExitConfigError)
	}
}
