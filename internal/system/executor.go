package system

import (
	"context"
	"os"
	"os/exec"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/yuriipolishchuk/ssh2iot/internal/logging"
)

// osExecutor implements CommandExecutor using real OS operations.
type osExecutor struct{}

func (e *osExecutor) ExecuteInteractive(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func (e *osExecutor) Start(spec ProcessSpec) (Process, error) {
	// Not bound to a context: the caller owns the lifetime through Terminate.
	cmd := exec.Command(spec.Name, spec.Args...)
	cmd.Env = spec.Env
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &osProcess{cmd: cmd}, nil
}

type osProcess struct {
	cmd *exec.Cmd
}

func (p *osProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *osProcess) Terminate() error {
	return p.cmd.Process.Signal(syscall.SIGTERM)
}

func (p *osProcess) Wait() error {
	return p.cmd.Wait()
}

// psTable implements ProcessTable with gopsutil.
type psTable struct{}

func (t *psTable) KillByName(ctx context.Context, name string, except ...int) (int, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0, err
	}

	skip := map[int32]bool{int32(os.Getpid()): true}
	for _, pid := range except {
		skip[int32(pid)] = true
	}
	killed := 0
	for _, p := range procs {
		if skip[p.Pid] {
			continue
		}
		pname, err := p.NameWithContext(ctx)
		if err != nil || pname != name {
			continue
		}
		if err := p.KillWithContext(ctx); err != nil {
			logging.Debug("failed to kill process", "pid", p.Pid, "name", pname, "error", err)
			continue
		}
		killed++
	}
	return killed, nil
}
