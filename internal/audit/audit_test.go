package audit

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestLogger_LogAndEvents(t *testing.T) {
	dir := t.TempDir()
	logger := NewLogger(dir)

	now := time.Now().Truncate(time.Millisecond)

	events := []Event{
		{Timestamp: now, Type: EventOpened, Tunnel: "tun-1", Thing: "thing-42", Details: "service=SSH"},
		{Timestamp: now.Add(time.Second), Type: EventConnected, Tunnel: "tun-1", Details: "destination"},
		{Timestamp: now.Add(2 * time.Second), Type: EventProxyStarted, Tunnel: "tun-1", Details: "port=40123"},
		{Timestamp: now.Add(3 * time.Second), Type: EventClosed, Tunnel: "tun-1"},
	}

	for _, e := range events {
		if err := logger.Log(e); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	result, err := logger.Events("tun-1")
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}

	if len(result) != len(events) {
		t.Fatalf("got %d events, want %d", len(result), len(events))
	}

	for i, e := range result {
		if e.Type != events[i].Type {
			t.Errorf("event %d: type = %q, want %q", i, e.Type, events[i].Type)
		}
		if e.Details != events[i].Details {
			t.Errorf("event %d: details = %q, want %q", i, e.Details, events[i].Details)
		}
	}
	if result[0].Thing != "thing-42" {
		t.Errorf("thing = %q", result[0].Thing)
	}
}

func TestLogger_EventsEmpty(t *testing.T) {
	logger := NewLogger(t.TempDir())

	result, err := logger.Events("nonexistent")
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("got %d events, want 0", len(result))
	}
}

func TestLogger_LogEvent(t *testing.T) {
	logger := NewLogger(t.TempDir())

	if err := logger.LogEvent(EventAttached, "tun-9", "thing-1", "rotated"); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	events, err := logger.Events("tun-9")
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}

	e := events[0]
	if e.Type != EventAttached || e.Tunnel != "tun-9" || e.Details != "rotated" {
		t.Errorf("event = %+v", e)
	}
	if e.Timestamp.IsZero() {
		t.Error("timestamp should be set automatically")
	}
}

func TestLogger_RequiresTunnel(t *testing.T) {
	logger := NewLogger(t.TempDir())
	if err := logger.LogEvent(EventError, "", "", "boom"); err == nil {
		t.Error("expected error for empty tunnel id")
	}
}

func TestLogger_PathStaysInStateDir(t *testing.T) {
	dir := t.TempDir()
	logger := NewLogger(dir)

	if err := logger.LogEvent(EventError, "../../escape", "", ""); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), "escape.events.jsonl")); err == nil {
		t.Error("event log escaped the state directory")
	}

	var found bool
	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err == nil && strings.HasSuffix(path, "escape.events.jsonl") {
			found = true
		}
		return nil
	})
	if !found {
		t.Error("event log should be written inside the state directory")
	}
}

func TestLogger_Tunnels(t *testing.T) {
	logger := NewLogger(t.TempDir())

	ids, err := logger.Tunnels()
	if err != nil || len(ids) != 0 {
		t.Fatalf("Tunnels on empty dir = %v, %v", ids, err)
	}

	for _, id := range []string{"tun-b", "tun-a"} {
		logger.LogEvent(EventOpened, id, "", "")
	}

	ids, err = logger.Tunnels()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(ids, ",") != "tun-a,tun-b" {
		t.Errorf("Tunnels = %v", ids)
	}
}

func TestLogger_Remove(t *testing.T) {
	logger := NewLogger(t.TempDir())

	logger.LogEvent(EventOpened, "removable", "", "")

	if err := logger.Remove("removable"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	events, err := logger.Events("removable")
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events after remove, want 0", len(events))
	}

	if err := logger.Remove("nonexistent"); err != nil {
		t.Errorf("Remove should not error for nonexistent: %v", err)
	}
}

func TestLogger_ConcurrentWrites(t *testing.T) {
	logger := NewLogger(t.TempDir())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.LogEvent(EventNotification, "agent", "", "ssh")
		}()
	}
	wg.Wait()

	events, err := logger.Events("agent")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 20 {
		t.Errorf("got %d events, want 20", len(events))
	}
}

func TestLogger_EventOrder(t *testing.T) {
	logger := NewLogger(t.TempDir())

	base := time.Now()
	for i := 0; i < 5; i++ {
		logger.Log(Event{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Type:      EventState,
			Tunnel:    "order-test",
			Details:   string(rune('A' + i)),
		})
	}

	events, _ := logger.Events("order-test")
	if len(events) != 5 {
		t.Fatalf("got %d events, want 5", len(events))
	}

	for i := 1; i < len(events); i++ {
		if events[i].Timestamp.Before(events[i-1].Timestamp) {
			t.Errorf("event %d timestamp before event %d", i, i-1)
		}
	}
}
