package main

import (
	"fmt"

	"github.com/koscakluka/ema-voiceloop/internal/console"
	"github.com/spf13/cobra"
)

func consoleCmd() *cobra.Command {
	var autoStart bool

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Drive the voice loop from an interactive terminal",
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

			if autoStart {
				if _, err := loop.orchestrator.StartService(ctx); err != nil {
					return fmt.Errorf("failed to start service: %w", err)
				}
			}

			stopHotkey := startHotkey(ctx, loop)
			defer stopHotkey()

			return console.Run(ctx, loop.dispatcher, loop.orchestrator)
		},
	}

	cmd.Flags().BoolVar(&autoStart, "start", true, "start the listener service immediately")
	return cmd
}
