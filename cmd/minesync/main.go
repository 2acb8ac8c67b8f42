// Command minesync is a terminal client and loopback server for
// multiplayer minesweeper rooms.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/luciancaetano/minesync/internal/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "minesync",
		Short: "Realtime client for multiplayer minesweeper",
		Long: `minesync connects to a multiplayer minesweeper room, keeps the
connection alive and reconnects when it drops.

It also ships a loopback server that speaks the same protocol, so a
client can be exercised without a real game server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to "+config.ConfigFileName+" (default ./"+config.ConfigFileName+" if present)")

	rootCmd.AddCommand(
		connectCmd(),
		serveCmd(),
		schemaCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		errorMsg("%v", err)
		os.Exit(1)
	}
}

// loadConfig reads the file named by --config, or minesync.json in the
// working directory when it exists, or the defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		return config.LoadFile(path)
	}
	if _, err := os.Stat(config.ConfigFileName); err == nil {
		return config.LoadFile(config.ConfigFileName)
	}
	return config.New(), nil
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

// errorMsg prints an error message.
func errorMsg(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "\033[31m✗\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an informational line.
func info(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s\n", fmt.Sprintf(format, args...))
}
