package ptywrap

import (
	"context"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// Child is an agent process running under a pseudoterminal.
type Child struct {
	cmd    *exec.Cmd
	master *os.File
}

// SpawnChild starts command under a new PTY sized rows x cols, replacing
// the manual openpty/fork/setsid/execvp sequence with creack/pty's
// higher-level StartWithSize, which performs the same setsid/TIOCSCTTY/
// dup2 plumbing internally.
func SpawnChild(command []string, rows, cols int) (*Child, error) {
	cmd := exec.CommandContext(context.Background(), command[0], command[1:]...)
	cmd.Env = os.Environ()

	// Graceful termination on context cancellation: SIGTERM first, with a
	// bounded grace period before exec.Cmd escalates to Kill. The
	// background context is never canceled, so in practice the child is
	// stopped by the signals the session forwards to it.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = 5 * time.Second

	master, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
	if err != nil {
		return nil, err
	}
	return &Child{cmd: cmd, master: master}, nil
}

// PID returns the child process's PID.
func (c *Child) PID() int {
	return c.cmd.Process.Pid
}

// Master returns the PTY master end, for reading agent output and
// writing user input / injected content.
func (c *Child) Master() *os.File {
	return c.master
}

// SetSize propagates a new terminal size to the PTY master. The kernel
// delivers SIGWINCH to the child automatically.
func (c *Child) SetSize(rows, cols int) error {
	return pty.Setsize(c.master, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
}

// Signal sends sig to the child's entire process group, so signals
// reach any grandchildren the agent itself spawned.
func (c *Child) Signal(sig syscall.Signal) error {
	return syscall.Kill(-c.cmd.Process.Pid, sig)
}

// Wait blocks until the child exits and returns its exit code, mapping a
// termination by signal to 128+signal per POSIX convention.
func (c *Child) Wait() int {
	err := c.cmd.Wait()
	if err == nil {
		return 0
	}
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return 1
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok {
		return exitErr.ExitCode()
	}
	if status.Signaled() {
		return 128 + int(status.Signal())
	}
	return status.ExitStatus()
}
