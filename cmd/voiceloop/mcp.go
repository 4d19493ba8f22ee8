package main

import (
	"context"
	"errors"

	mcpserver "github.com/koscakluka/ema-voiceloop/internal/server/mcp"
	"github.com/spf13/cobra"
)

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the voice loop as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			loop, err := newVoiceloop(ctx, cfg)
			if err != nil {
				return err
			}
			defer loop.Close()

			stopHotkey := startHotkey(ctx, loop)
			defer stopHotkey()

			server := mcpserver.NewServer(mcpserver.Config{
				ServerName:    "voiceloop",
				ServerVersion: Version,
			}, loop.dispatcher, loop.orchestrator)
			if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
