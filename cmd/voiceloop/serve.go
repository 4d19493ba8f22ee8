package main

import (
	"context"
	"fmt"

	"github.com/koscakluka/ema-voiceloop/internal/input"
	httpserver "github.com/koscakluka/ema-voiceloop/internal/server/http"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var address string
	var autoStart bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve commands and events over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if address != "" {
				cfg.Server.Address = address
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

			fmt.Fprintf(cmd.ErrOrStderr(), "voiceloop listening on http://%s\n", cfg.Server.Address)
			server := httpserver.NewServer(loop.dispatcher, loop.orchestrator)
			return server.Run(ctx, cfg.Server.Address)
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "listen address (overrides server.address)")
	cmd.Flags().BoolVar(&autoStart, "start", false, "start the listener service immediately")
	return cmd
}

// startHotkey registers the configured pause/resume hotkey when enabled and
// returns its cleanup.
func startHotkey(ctx context.Context, loop *voiceloop) func() {
	if !loop.cfg.Hotkey.Enabled {
		return func() {}
	}

	toggle := input.NewHotkeyToggle(loop.orchestrator, nil)
	if err := toggle.Start(ctx, loop.cfg.Hotkey.Keys); err != nil {
		logger.Warn("hotkey unavailable", "keys", loop.cfg.Hotkey.Keys, "error", err)
		return func() {}
	}
	return toggle.Stop
}
