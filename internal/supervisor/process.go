package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// process tracks one spawned engine. waitLoop is the only caller of
// cmd.Wait; everyone else observes exit through done.
type process struct {
	cmd     *exec.Cmd
	started time.Time
	done    chan struct{}

	// err is written before done is closed.
	err error
}

func newProcess(cmd *exec.Cmd) *process {
	return &process{cmd: cmd, done: make(chan struct{})}
}

func (p *process) start() error {
	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	p.started = time.Now()
	go p.waitLoop()
	return nil
}

func (p *process) waitLoop() {
	p.err = p.cmd.Wait()
	close(p.done)
}

// Done is closed when the process has exited and been reaped.
func (p *process) Done() <-chan struct{} {
	return p.done
}

func (p *process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// exitCode returns the exit status, or -1 if the process is still running
// or was ended by a signal.
func (p *process) exitCode() int {
	if !p.exited() || p.cmd.ProcessState == nil {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}

func (p *process) pid() int {
	if p.cmd.Process == nil {
		return -1
	}
	return p.cmd.Process.Pid
}

func (p *process) signal(sig os.Signal) error {
	if p.exited() {
		return errProcessExited
	}
	return p.cmd.Process.Signal(sig)
}

func (p *process) terminate() error {
	return p.signal(syscall.SIGTERM)
}

func (p *process) kill() error {
	return p.signal(syscall.SIGKILL)
}

func (p *process) runtime() time.Duration {
	if p.started.IsZero() {
		return 0
	}
	return time.Since(p.started)
}
