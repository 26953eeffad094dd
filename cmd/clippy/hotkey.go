package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pithecene-io/clippy/internal/broker/server"
	"github.com/pithecene-io/clippy/internal/client"
)

// hotkeyCmd is a thin wrapper over the client package: capture the
// source session's latest turn, then paste it into the target
// session, in one shot. It resolves no window focus itself — a
// terminal multiplexer keybinding is expected to supply both session
// ids (e.g. via its own active-pane lookup), matching the Non-goal
// that excludes a standalone global-hotkey/X11 daemon from this build.
func hotkeyCmd() *cobra.Command {
	var from, to, socketPath string

	cmd := &cobra.Command{
		Use:   "hotkey",
		Short: "Capture from one session and paste into another, in one shot",
		RunE: func(cmd *cobra.Command, args []string) error {
			if from == "" {
				return fmt.Errorf("--from is required")
			}
			if to == "" {
				return fmt.Errorf("--to is required")
			}

			sockPath := socketPath
			if sockPath == "" {
				path, err := server.ResolveSocketPath()
				if err != nil {
					return err
				}
				sockPath = path
			}

			c, err := client.Connect(sockPath)
			if err != nil {
				return err
			}
			defer c.Close()

			if _, err := c.Capture(from); err != nil {
				return fmt.Errorf("capture %s: %w", from, err)
			}
			if err := c.Paste(to); err != nil {
				return fmt.Errorf("paste to %s: %w", to, err)
			}
			client.PrintPaste(os.Stdout, to)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Session to capture from (the focused session)")
	cmd.Flags().StringVar(&to, "to", "", "Session to paste into")
	cmd.Flags().StringVar(&socketPath, "socket", "", "Unix socket path (default: $XDG_RUNTIME_DIR/clippy/broker.sock)")
	return cmd
}
