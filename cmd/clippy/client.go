package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pithecene-io/clippy/internal/broker/server"
	"github.com/pithecene-io/clippy/internal/client"
)

// connectClient resolves the broker socket path and dials it.
func connectClient(socketPath string) (*client.Client, error) {
	sockPath := socketPath
	if sockPath == "" {
		path, err := server.ResolveSocketPath()
		if err != nil {
			return nil, err
		}
		sockPath = path
	}
	return client.Connect(sockPath)
}

func clientCmd() *cobra.Command {
	var socketPath string

	root := &cobra.Command{
		Use:   "client",
		Short: "Direct CLI access to broker queries and commands",
	}
	root.PersistentFlags().StringVar(&socketPath, "socket", "", "Unix socket path (default: $XDG_RUNTIME_DIR/clippy/broker.sock)")

	root.AddCommand(
		clientListSessionsCmd(&socketPath),
		clientCaptureCmd(&socketPath),
		clientPasteCmd(&socketPath),
		clientGetTurnCmd(&socketPath),
		clientListTurnsCmd(&socketPath),
		clientCaptureByIDCmd(&socketPath),
		clientDeliverCmd(&socketPath),
	)
	return root
}

func clientListSessionsCmd(socketPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list-sessions",
		Short: "List sessions currently registered with the broker",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connectClient(*socketPath)
			if err != nil {
				return err
			}
			defer c.Close()
			sessions, err := c.ListSessions()
			if err != nil {
				return err
			}
			client.PrintSessions(os.Stdout, sessions)
			return nil
		},
	}
}

func clientCaptureCmd(socketPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "capture <session>",
		Short: "Capture the most recent completed turn on a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connectClient(*socketPath)
			if err != nil {
				return err
			}
			defer c.Close()
			result, err := c.Capture(args[0])
			if err != nil {
				return err
			}
			client.PrintCapture(os.Stdout, result)
			return nil
		},
	}
}

func clientCaptureByIDCmd(socketPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "capture-by-id <turn-id>",
		Short: "Capture a specific turn by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connectClient(*socketPath)
			if err != nil {
				return err
			}
			defer c.Close()
			result, err := c.CaptureByID(args[0])
			if err != nil {
				return err
			}
			client.PrintCapture(os.Stdout, result)
			return nil
		},
	}
}

func clientPasteCmd(socketPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "paste <session>",
		Short: "Inject the relay buffer into a session's wrapper",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connectClient(*socketPath)
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.Paste(args[0]); err != nil {
				return err
			}
			client.PrintPaste(os.Stdout, args[0])
			return nil
		},
	}
}

func clientGetTurnCmd(socketPath *string) *cobra.Command {
	var metadataOnly bool
	cmd := &cobra.Command{
		Use:   "get-turn <turn-id>",
		Short: "Print a stored turn's content and metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connectClient(*socketPath)
			if err != nil {
				return err
			}
			defer c.Close()
			turn, err := c.GetTurn(args[0])
			if err != nil {
				return err
			}
			return client.PrintTurn(turn, metadataOnly)
		},
	}
	cmd.Flags().BoolVar(&metadataOnly, "metadata-only", false, "Print metadata only, omitting turn content")
	return cmd
}

func clientListTurnsCmd(socketPath *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list-turns <session>",
		Short: "List turns retained for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connectClient(*socketPath)
			if err != nil {
				return err
			}
			defer c.Close()
			turns, err := c.ListTurns(args[0], uint32(limit))
			if err != nil {
				return err
			}
			client.PrintTurns(os.Stdout, turns)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum turns to list (0: broker default)")
	return cmd
}

func clientDeliverCmd(socketPath *string) *cobra.Command {
	var sink, session, path string
	cmd := &cobra.Command{
		Use:   "deliver",
		Short: "Deliver the relay buffer to a sink (clipboard, file, inject)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.ValidateDeliverArgs(sink, session, path); err != nil {
				return err
			}
			c, err := connectClient(*socketPath)
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.Deliver(sink, session, path); err != nil {
				return err
			}
			client.PrintDeliver(os.Stdout, sink)
			return nil
		},
	}
	cmd.Flags().StringVar(&sink, "sink", "", "Sink to deliver to: clipboard, file, or inject")
	cmd.Flags().StringVar(&session, "session", "", "Target session (required for inject sink)")
	cmd.Flags().StringVar(&path, "path", "", "Target file path (required for file sink)")
	cmd.MarkFlagRequired("sink")
	return cmd
}
