package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ┌─┐┬  ┬┌┬┐┌─┐┬─┐┬─┐┌┬┐
  └─┐│  ││││├┤ ├┬┘├┬┘ │
  └─┘┴─┘┴┴ ┴└─┘┴└─┴└─ ┴
`

// configPath is the --config flag shared by every command.
var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "slimerrt",
		Short: "Realtime multiplayer game server and client",
		Long: `slimerrt runs the network layer of a small multiplayer game.

The server accepts players over UDP or WebSocket, welcomes them,
relays chat and forwards input to the simulation. The client
command is a headless chat client for poking at a running server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to slimerrt.json (default: nearest slimerrt.json above the working directory)")

	rootCmd.AddCommand(
		serveCmd(),
		connectCmd(),
		archiveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}

// printBanner prints the ASCII art banner.
func printBanner() {
	fmt.Print(banner)
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Printf("\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}
