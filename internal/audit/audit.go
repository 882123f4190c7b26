// Package audit records tunnel lifecycle events.
// Events are stored as JSON Lines (JSONL) files, one per tunnel.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// EventType classifies a lifecycle event.
type EventType string

const (
	EventOpened       EventType = "opened"
	EventAttached     EventType = "attached"
	EventState        EventType = "state"
	EventConnected    EventType = "connected"
	EventProxyStarted EventType = "proxy-started"
	EventProxyStopped EventType = "proxy-stopped"
	EventSSHExited    EventType = "ssh-exited"
	EventClosed       EventType = "closed"
	EventNotification EventType = "notification"
	EventError        EventType = "error"
)

const eventSuffix = ".events.jsonl"

// Event represents a single audit log entry.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Tunnel    string    `json:"tunnel"`
	Thing     string    `json:"thing,omitempty"`
	Details   string    `json:"details,omitempty"`
}

// Logger writes and reads audit events for tunnels.
// Events are stored in {stateDir}/tunnels/{id}.events.jsonl.
type Logger struct {
	stateDir string
	mu       sync.Mutex
}

// NewLogger creates a new audit logger rooted at stateDir.
func NewLogger(stateDir string) *Logger {
	return &Logger{stateDir: stateDir}
}

func (l *Logger) tunnelsDir() string {
	return filepath.Join(l.stateDir, "tunnels")
}

// eventPath returns the path to the JSONL event log for a tunnel. The id
// comes from the control plane or the command line, so it is joined
// without letting it escape the tunnels directory.
func (l *Logger) eventPath(tunnel string) (string, error) {
	if tunnel == "" {
		return "", fmt.Errorf("tunnel id is required")
	}
	return securejoin.SecureJoin(l.tunnelsDir(), tunnel+eventSuffix)
}

// Log appends an event to the tunnel's audit log.
func (l *Logger) Log(event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	path, err := l.eventPath(event.Tunnel)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create audit log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	return nil
}

// LogEvent is a convenience method that creates and logs an event.
func (l *Logger) LogEvent(eventType EventType, tunnel, thing, details string) error {
	return l.Log(Event{
		Timestamp: time.Now(),
		Type:      eventType,
		Tunnel:    tunnel,
		Thing:     thing,
		Details:   details,
	})
}

// Events reads all events for a tunnel in chronological order.
func (l *Logger) Events(tunnel string) ([]Event, error) {
	path, err := l.eventPath(tunnel)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			continue // Skip malformed lines
		}
		events = append(events, event)
	}

	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("error reading audit log: %w", err)
	}

	return events, nil
}

// Tunnels returns the ids that have an event log, sorted.
func (l *Logger) Tunnels() ([]string, error) {
	entries, err := os.ReadDir(l.tunnelsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), eventSuffix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), eventSuffix))
	}
	sort.Strings(ids)
	return ids, nil
}

// Remove deletes the audit log for a tunnel.
func (l *Logger) Remove(tunnel string) error {
	path, err := l.eventPath(tunnel)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
