package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/yuriipolishchuk/ssh2iot/internal/audit"
	"github.com/yuriipolishchuk/ssh2iot/internal/config"
	"github.com/yuriipolishchuk/ssh2iot/internal/errors"
	"github.com/yuriipolishchuk/ssh2iot/internal/proxy"
	"github.com/yuriipolishchuk/ssh2iot/internal/system"
)

// recordingSupervisor records calls and can fail selected starts.
type recordingSupervisor struct {
	mu      sync.Mutex
	starts  []proxy.StartOptions
	kills   int
	failFor map[string]bool // DestinationAddr values whose start fails
}

func (s *recordingSupervisor) Start(ctx context.Context, opts proxy.StartOptions) (*proxy.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts = append(s.starts, opts)
	if s.failFor[opts.DestinationAddr] {
		return nil, errors.SpawnError("localproxy", stderrors.New("exec format error"))
	}
	return &proxy.Handle{SessionID: opts.SessionID, Role: opts.Role, Pid: 2000 + len(s.starts)}, nil
}

func (s *recordingSupervisor) Stop(h *proxy.Handle) error { return nil }

func (s *recordingSupervisor) KillStray(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kills++
	return 0
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("session-%d", n)
	}
}

const validPayload = `{
	"clientAccessToken": "destination-token",
	"clientMode": "destination",
	"region": "us-east-1",
	"services": ["SSH"]
}`

func TestParseNotification(t *testing.T) {
	tests := []struct {
		name        string
		payload     string
		wantErr     bool
		wantMissing string
	}{
		{"valid", validPayload, false, ""},
		{"not json", `{"clientAccessToken":`, true, ""},
		{"empty object", `{}`, true, "clientAccessToken, clientMode, region, services"},
		{"missing token", `{"clientMode":"destination","region":"us-east-1","services":["ssh"]}`, true, "clientAccessToken"},
		{"missing region", `{"clientAccessToken":"t","clientMode":"destination","services":["ssh"]}`, true, "region"},
		{"empty services", `{"clientAccessToken":"t","clientMode":"destination","region":"us-east-1","services":[]}`, true, "services"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := ParseNotification([]byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseNotification() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.HasCode(err, errors.ExitMalformedNotification) {
					t.Errorf("expected malformed notification, got %v", err)
				}
				if tt.wantMissing != "" && !strings.Contains(err.Error(), tt.wantMissing) {
					t.Errorf("error %q should mention %q", err, tt.wantMissing)
				}
				return
			}
			if n.ClientAccessToken != "destination-token" || n.Services[0] != "SSH" {
				t.Errorf("Notification = %+v", n)
			}
			if strings.Contains(n.String(), "destination-token") {
				t.Error("String() must not include the token")
			}
		})
	}
}

func TestDestination_StartsProxy(t *testing.T) {
	exec := system.NewMockExecutor()
	table := system.NewMockProcessTable()
	table.Running["localproxy"] = 1
	sup := proxy.NewSupervisor("/usr/local/bin/localproxy",
		proxy.WithExecutor(exec),
		proxy.WithProcessTable(table),
		proxy.WithOutput(io.Discard, io.Discard),
	)
	d := NewDestination(sup, WithSessionIDs(sequentialIDs()))

	if err := d.HandlePayload(context.Background(), []byte(validPayload)); err != nil {
		t.Fatalf("HandlePayload error: %v", err)
	}

	if table.KillCalls() != 1 {
		t.Errorf("stray kill calls = %d, want 1", table.KillCalls())
	}
	cmd, ok := exec.LastCommand()
	if !ok {
		t.Fatal("no proxy started")
	}
	if got := strings.Join(cmd.Args, " "); got != "-r us-east-1 -d 127.0.0.1:22" {
		t.Errorf("args = %q", got)
	}
	if !containsEnv(cmd.Env, proxy.TokenEnvVar+"=destination-token") {
		t.Error("token should be passed through the environment")
	}
	if _, ok := sup.Active("session-1"); !ok {
		t.Error("handle should be tracked under the logical session id")
	}
}

func TestDestination_ServiceKeysMatchConfig(t *testing.T) {
	services := map[string]string{"SCP": "127.0.0.1:2222", "scp": "127.0.0.1:22"}

	for i := 0; i < 50; i++ {
		sup := &recordingSupervisor{}
		d := NewDestination(sup, WithSessionIDs(sequentialIDs()), WithServices(services))

		payload := `{"clientAccessToken":"t","clientMode":"destination","region":"eu-west-1","services":["scp"]}`
		if err := d.HandlePayload(context.Background(), []byte(payload)); err != nil {
			t.Fatalf("HandlePayload error: %v", err)
		}
		want := config.ServiceAddress(services, "scp")
		if len(sup.starts) != 1 || sup.starts[0].DestinationAddr != want {
			t.Fatalf("starts = %+v, want destination %s", sup.starts, want)
		}
	}
}

func TestDestination_SiblingServices(t *testing.T) {
	sup := &recordingSupervisor{failFor: map[string]bool{"127.0.0.1:2222": true}}
	d := NewDestination(sup,
		WithSessionIDs(sequentialIDs()),
		WithServices(map[string]string{"ssh": "127.0.0.1:2222", "SCP": "127.0.0.1:22"}),
	)

	payload := `{"clientAccessToken":"t","clientMode":"destination","region":"eu-west-1","services":["ssh","ftp","SCP"]}`
	if err := d.HandlePayload(context.Background(), []byte(payload)); err != nil {
		t.Fatalf("HandlePayload error: %v", err)
	}

	if sup.kills != 1 {
		t.Errorf("stray kill calls = %d, want 1 per notification", sup.kills)
	}
	if len(sup.starts) != 2 {
		t.Fatalf("starts = %d, want 2 (ftp skipped)", len(sup.starts))
	}
	if sup.starts[0].DestinationAddr != "127.0.0.1:2222" || sup.starts[1].DestinationAddr != "127.0.0.1:22" {
		t.Errorf("destinations = %q, %q", sup.starts[0].DestinationAddr, sup.starts[1].DestinationAddr)
	}
	if sup.starts[0].SessionID == sup.starts[1].SessionID {
		t.Error("each service needs its own session id")
	}
	for _, s := range sup.starts {
		if s.Role != proxy.RoleDestination || s.Region != "eu-west-1" {
			t.Errorf("start = %+v", s)
		}
	}
}

func TestDestination_RejectsWithoutSupervisor(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantCode int
	}{
		{"malformed", `not json`, errors.ExitMalformedNotification},
		{"missing token", `{"clientMode":"destination","region":"us-east-1","services":["ssh"]}`, errors.ExitMalformedNotification},
		{"source mode", `{"clientAccessToken":"t","clientMode":"source","region":"us-east-1","services":["ssh"]}`, errors.ExitGeneralError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sup := &recordingSupervisor{}
			d := NewDestination(sup)

			err := d.HandlePayload(context.Background(), []byte(tt.payload))
			if err == nil || errors.GetExitCode(err) != tt.wantCode {
				t.Errorf("HandlePayload error = %v, want code %d", err, tt.wantCode)
			}
			if sup.kills != 0 || len(sup.starts) != 0 {
				t.Errorf("supervisor invoked: kills=%d starts=%d", sup.kills, len(sup.starts))
			}
		})
	}
}

func TestDestination_KillStrayDisabled(t *testing.T) {
	sup := &recordingSupervisor{}
	d := NewDestination(sup, WithKillStray(false))

	if err := d.HandlePayload(context.Background(), []byte(validPayload)); err != nil {
		t.Fatal(err)
	}
	if sup.kills != 0 {
		t.Error("stray kill should be skipped")
	}
	if len(sup.starts) != 1 {
		t.Errorf("starts = %d, want 1", len(sup.starts))
	}
}

func TestDestination_RecordsEvents(t *testing.T) {
	logger := audit.NewLogger(t.TempDir())
	sup := &recordingSupervisor{}
	d := NewDestination(sup, WithSessionIDs(sequentialIDs()), WithDestinationRecorder(logger))

	if err := d.HandlePayload(context.Background(), []byte(validPayload)); err != nil {
		t.Fatal(err)
	}

	events, err := logger.Events("session-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Type != audit.EventProxyStarted {
		t.Errorf("events = %+v", events)
	}
	if strings.Contains(events[0].Details, "destination-token") {
		t.Error("token must not be recorded")
	}
}

func TestDestination_Concurrent(t *testing.T) {
	exec := system.NewMockExecutor()
	sup := proxy.NewSupervisor("/usr/local/bin/localproxy",
		proxy.WithExecutor(exec),
		proxy.WithProcessTable(system.NewMockProcessTable()),
		proxy.WithOutput(io.Discard, io.Discard),
	)
	d := NewDestination(sup)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.HandlePayload(context.Background(), []byte(validPayload)); err != nil {
				t.Errorf("HandlePayload error: %v", err)
			}
		}()
	}
	wg.Wait()

	if sup.Len() != 10 {
		t.Errorf("tracked proxies = %d, want 10", sup.Len())
	}
}
