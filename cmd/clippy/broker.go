package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pithecene-io/clippy/internal/broker/server"
	"github.com/pithecene-io/clippy/internal/config"
)

func brokerCmd() *cobra.Command {
	var ringDepth int
	var maxTurnSize int
	var socketPath string

	cmd := &cobra.Command{
		Use:   "broker",
		Short: "Run the broker daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			file := loadConfig()
			overrides := config.Overrides{SocketPath: socketPath}
			if cmd.Flags().Changed("ring-depth") {
				overrides.RingDepth = &ringDepth
			}
			if cmd.Flags().Changed("max-turn-size") {
				overrides.MaxTurnSize = &maxTurnSize
			}
			if cmd.Flags().Changed("ring-depth") && ringDepth < 1 {
				return fmt.Errorf("--ring-depth must be at least 1, got %d", ringDepth)
			}
			resolved := config.Resolve(overrides, file)

			sockPath := resolved.SocketPath
			if sockPath == "" {
				path, err := server.ResolveSocketPath()
				if err != nil {
					return err
				}
				sockPath = path
			}

			lis, err := server.Bind(sockPath)
			if err != nil {
				return err
			}

			configDir, err := config.GetUserConfigDir()
			configPath := ""
			if err == nil {
				configPath = configFilePath(configDir)
			}

			return server.RunUntilSignal(lis, sockPath, configPath, server.Config{
				RingDepth:   resolved.RingDepth,
				MaxTurnSize: resolved.MaxTurnSize,
			})
		},
	}
	cmd.Flags().IntVar(&ringDepth, "ring-depth", config.DefaultRingDepth, "Turns retained per session")
	cmd.Flags().IntVar(&maxTurnSize, "max-turn-size", config.DefaultMaxTurnSize, "Maximum bytes stored per turn")
	cmd.Flags().StringVar(&socketPath, "socket", "", "Unix socket path (default: $XDG_RUNTIME_DIR/clippy/broker.sock)")
	return cmd
}
