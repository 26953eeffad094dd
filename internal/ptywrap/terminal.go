package ptywrap

import (
	"os"

	"golang.org/x/term"
)

// TerminalGuard puts stdin into raw mode and restores it on Close.
//
// Raw mode disables line buffering, local echo, and signal generation by
// the terminal driver, so keystrokes are forwarded to the PTY immediately
// instead of being line-edited by the kernel tty layer.
//
// Suspend/Resume exist for SIGTSTP/SIGCONT reentrancy: the wrapper
// restores the terminal before stopping itself so the user's shell
// behaves normally while the wrapper is stopped, then re-enters raw mode
// on resume.
type TerminalGuard struct {
	fd    int
	state *term.State
}

// EnterRawMode captures stdin's current settings and switches it to raw
// mode.
func EnterRawMode() (*TerminalGuard, error) {
	fd := int(os.Stdin.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	return &TerminalGuard{fd: fd, state: state}, nil
}

// Suspend restores the original terminal settings. Called immediately
// before the wrapper raises SIGSTOP on itself in response to SIGTSTP.
func (g *TerminalGuard) Suspend() error {
	return term.Restore(g.fd, g.state)
}

// Resume re-enters raw mode after SIGCONT. Only the terminal mode is
// reapplied — the captured original state is unchanged, so a later
// Close still restores the pre-session settings.
func (g *TerminalGuard) Resume() error {
	if _, err := term.MakeRaw(g.fd); err != nil {
		return err
	}
	return nil
}

// Close restores the terminal to its pre-session settings. Safe to call
// from a defer — it is the safety net for every exit path.
func (g *TerminalGuard) Close() error {
	return term.Restore(g.fd, g.state)
}

// TerminalSize reads stdout's current window size, for sizing the child
// PTY at startup and on SIGWINCH.
func TerminalSize() (rows, cols int, err error) {
	cols, rows, err = term.GetSize(int(os.Stdout.Fd()))
	return rows, cols, err
}
