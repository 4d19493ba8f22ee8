package mcp

import (
	"context"
	"fmt"

	"github.com/koscakluka/ema-voiceloop/internal/commands"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

type Config struct {
	ServerName    string
	ServerVersion string
}

// Server exposes the command surface as MCP tools over stdio.
type Server struct {
	config       Config
	mcpServer    *sdk.Server
	dispatcher   *commands.Dispatcher
	orchestrator commands.Orchestrator
}

func NewServer(cfg Config, dispatcher *commands.Dispatcher, orchestrator commands.Orchestrator) *Server {
	if cfg.ServerName == "" {
		cfg.ServerName = "voiceloop"
	}
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}

	s := &Server{
		config:       cfg,
		dispatcher:   dispatcher,
		orchestrator: orchestrator,
	}
	s.mcpServer = sdk.NewServer(&sdk.Implementation{
		Name:    cfg.ServerName,
		Version: cfg.ServerVersion,
	}, nil)
	s.registerTools()

	return s
}

// Run serves over stdio until ctx ends or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	if err := s.mcpServer.Run(ctx, &sdk.StdioTransport{}); err != nil {
		return fmt.Errorf("mcp server failed: %w", err)
	}
	return nil
}

// Connect serves a single session over transport.
func (s *Server) Connect(ctx context.Context, transport sdk.Transport) (*sdk.ServerSession, error) {
	return s.mcpServer.Connect(ctx, transport, nil)
}
