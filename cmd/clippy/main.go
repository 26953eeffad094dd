// Command clippy is a keyboard-driven relay between a terminal running
// an AI agent and the clipboard, a file, or another agent's terminal.
// It has four faces: wrap (run an agent under turn detection), broker
// (the daemon that holds session/turn state), hotkey (a thin
// capture-then-paste helper), and client (direct broker queries).
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pithecene-io/clippy/internal/config"
	"github.com/pithecene-io/clippy/internal/logger"
)

func main() {
	logger.Init("info", "")

	root := &cobra.Command{
		Use:   "clippy",
		Short: "keyboard-driven relay for terminal AI agents",
		Long:  "Wraps an agent's PTY, detects completed turns, and relays them to the clipboard, a file, or another agent on demand.",
	}

	root.AddCommand(
		wrapCmd(),
		brokerCmd(),
		hotkeyCmd(),
		clientCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves clippy.yaml under the user config dir, tolerating
// its absence — callers fall through to Resolve's built-in defaults.
func loadConfig() *config.Config {
	dir, err := config.GetUserConfigDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "clippy: %v\n", err)
		return &config.Config{}
	}
	file, err := config.LoadFile(configFilePath(dir))
	if err != nil {
		fmt.Fprintf(os.Stderr, "clippy: load config: %v\n", err)
		return &config.Config{}
	}
	return file
}

func configFilePath(dir string) string {
	return filepath.Join(dir, "clippy.yaml")
}
