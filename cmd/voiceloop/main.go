package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/koscakluka/ema-voiceloop/internal/config"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var (
	cfgPath  string
	envPaths []string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "voiceloop",
		Short: "Voice confirmation loop that keeps listening and speaking apart",
		Long: `voiceloop listens through a speech recognizer, speaks through a
speech synthesizer and never does both at once. Hosts ask it to confirm
intents by voice over HTTP, MCP or the interactive console.

Serve over HTTP:       voiceloop serve
Serve MCP on stdio:    voiceloop mcp
Interactive console:   voiceloop console
Write a config file:   voiceloop config init`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadEnv(envPaths...)
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.voiceloop.yaml)")
	rootCmd.PersistentFlags().StringSliceVar(&envPaths, "env", nil, ".env files to load (default .env)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "voiceloop %s (commit: %s, built: %s)\n", Version, GitCommit, BuildTime)
		},
	})
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(mcpCmd())
	rootCmd.AddCommand(consoleCmd())
	rootCmd.AddCommand(configCmd())

	return rootCmd
}
