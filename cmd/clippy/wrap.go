package main

import (
	"errors"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/pithecene-io/clippy/internal/ptywrap"
)

func wrapCmd() *cobra.Command {
	var pattern string
	var session string

	cmd := &cobra.Command{
		Use:   "wrap -- <agent-command...>",
		Short: "Run an agent under turn detection and broker relay",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if pattern == "" {
				pattern = cfg.Pattern
			}
			if pattern == "" {
				pattern = "generic"
			}
			code, err := ptywrap.Run(pattern, session, args)
			if err != nil {
				// creack/pty looks up the executable in the parent process,
				// so a missing command surfaces here as a Go error instead
				// of a forked child's _exit(127) — map it back to the exit
				// code a shell would give, since callers script against it.
				if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
					os.Exit(127)
				}
				return err
			}
			os.Exit(code)
			return nil
		},
	}
	cmd.Flags().StringVar(&pattern, "pattern", "", "Turn-boundary preset (generic, claude, aider) or a custom regex")
	cmd.Flags().StringVar(&session, "session", "", "Explicit session id (default: generated)")
	return cmd
}
