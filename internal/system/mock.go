package system

import (
	"context"
	"sync"
)

// MockExecutor implements CommandExecutor for testing.
type MockExecutor struct {
	mu sync.Mutex

	// Commands records all executed and started commands for verification.
	Commands []MockCommand

	// Processes holds every process returned by Start, in order.
	Processes []*MockProcess

	// InteractiveErr is returned by ExecuteInteractive if set.
	InteractiveErr error

	// StartErr is returned by Start if set.
	StartErr error

	// OnInteractive, if set, runs inside ExecuteInteractive before it returns.
	OnInteractive func(name string, args []string)

	nextPid int
}

// MockCommand records an executed command.
type MockCommand struct {
	Name        string
	Args        []string
	Env         []string
	Interactive bool
}

// NewMockExecutor creates a new MockExecutor.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{
		Commands: make([]MockCommand, 0),
		nextPid:  1000,
	}
}

func (m *MockExecutor) ExecuteInteractive(ctx context.Context, name string, args ...string) error {
	m.mu.Lock()
	m.Commands = append(m.Commands, MockCommand{Name: name, Args: args, Interactive: true})
	hook := m.OnInteractive
	err := m.InteractiveErr
	m.mu.Unlock()

	if hook != nil {
		hook(name, args)
	}
	return err
}

func (m *MockExecutor) Start(spec ProcessSpec) (Process, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Commands = append(m.Commands, MockCommand{Name: spec.Name, Args: spec.Args, Env: spec.Env})

	if m.StartErr != nil {
		return nil, m.StartErr
	}

	m.nextPid++
	p := &MockProcess{pid: m.nextPid, exited: make(chan struct{})}
	m.Processes = append(m.Processes, p)
	return p, nil
}

// LastCommand returns the most recently executed command.
func (m *MockExecutor) LastCommand() (MockCommand, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Commands) == 0 {
		return MockCommand{}, false
	}
	return m.Commands[len(m.Commands)-1], true
}

// Started returns a snapshot of the processes returned by Start.
func (m *MockExecutor) Started() []*MockProcess {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockProcess(nil), m.Processes...)
}

// Interactive returns the commands run through ExecuteInteractive.
func (m *MockExecutor) Interactive() []MockCommand {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []MockCommand
	for _, c := range m.Commands {
		if c.Interactive {
			out = append(out, c)
		}
	}
	return out
}

// Reset clears all recorded commands and processes.
func (m *MockExecutor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Commands = make([]MockCommand, 0)
	m.Processes = nil
}

// MockProcess implements Process for testing. Terminate makes Wait return.
type MockProcess struct {
	mu         sync.Mutex
	pid        int
	terminates int
	exited     chan struct{}

	// TerminateErr is returned by Terminate if set.
	TerminateErr error
}

func (p *MockProcess) Pid() int {
	return p.pid
}

func (p *MockProcess) Terminate() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.terminates++
	p.exitLocked()
	return p.TerminateErr
}

// Exit ends the process as if it died on its own. Wait returns.
func (p *MockProcess) Exit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exitLocked()
}

func (p *MockProcess) exitLocked() {
	select {
	case <-p.exited:
	default:
		close(p.exited)
	}
}

func (p *MockProcess) Wait() error {
	<-p.exited
	return nil
}

// Terminates returns how many times Terminate was called.
func (p *MockProcess) Terminates() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminates
}

// MockProcessTable implements ProcessTable for testing.
type MockProcessTable struct {
	mu sync.Mutex

	// Running maps process names to how many instances are "running".
	Running map[string]int

	// Calls records every name passed to KillByName.
	Calls []string

	// Excepted records the pids each KillByName call was told to spare.
	Excepted [][]int

	// Err is returned by KillByName if set.
	Err error
}

// NewMockProcessTable creates an empty MockProcessTable.
func NewMockProcessTable() *MockProcessTable {
	return &MockProcessTable{Running: make(map[string]int)}
}

func (t *MockProcessTable) KillByName(ctx context.Context, name string, except ...int) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = append(t.Calls, name)
	t.Excepted = append(t.Excepted, except)
	if t.Err != nil {
		return 0, t.Err
	}
	n := t.Running[name]
	delete(t.Running, name)
	return n, nil
}

// KillCalls returns the number of KillByName calls.
func (t *MockProcessTable) KillCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Calls)
}
