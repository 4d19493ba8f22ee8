package mcp

import (
	"context"
	"fmt"

	"github.com/koscakluka/ema-voiceloop/internal/commands"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

type NoArgs struct{}

type ConfirmIntentArgs struct {
	ConfirmationText  string `json:"confirmationText" jsonschema:"Question spoken to the user"`
	PositiveCommand   string `json:"positiveCommand" jsonschema:"Reply that confirms"`
	NegativeCommand   string `json:"negativeCommand" jsonschema:"Reply that declines"`
	VoiceInputMessage string `json:"voiceInputMessage,omitempty" jsonschema:"Prompt spoken after the free-form reply"`
	VoiceInput        bool   `json:"voiceInput,omitempty" jsonschema:"Capture a free-form reply before confirming"`
}

type CancelConfirmationArgs struct {
	Immediate bool `json:"immediate,omitempty" jsonschema:"Stop speech and clear the session right away"`
}

type SpeakArgs struct {
	SpeechText string `json:"speechText" jsonschema:"Text to speak"`
	Queue      bool   `json:"queue,omitempty" jsonschema:"Speak after the current utterance instead of replacing it"`
}

type SetSpeakerArgs struct {
	Pitch string `json:"pitch" jsonschema:"Pitch multiplier as a decimal string such as 1.2"`
	Rate  string `json:"rate" jsonschema:"Speech rate multiplier as a decimal string such as 0.9"`
}

func (s *Server) registerTools() {
	addCommandTool(s, "start_service", commands.StartService, func(NoArgs) any { return commands.NoArgs{} })
	addCommandTool(s, "stop_service", commands.StopService, func(NoArgs) any { return commands.NoArgs{} })
	addCommandTool(s, "confirm_intent", commands.ConfirmIntent, func(args ConfirmIntentArgs) any {
		return commands.ConfirmIntentArgs(args)
	})
	addCommandTool(s, "cancel_confirmation", commands.CancelConfirmation, func(args CancelConfirmationArgs) any {
		return commands.CancelConfirmationArgs(args)
	})
	addCommandTool(s, "resume_listening", commands.ResumeListening, func(NoArgs) any { return commands.NoArgs{} })
	addCommandTool(s, "pause_listening", commands.PauseListening, func(NoArgs) any { return commands.NoArgs{} })
	addCommandTool(s, "speak", commands.Speak, func(args SpeakArgs) any {
		return commands.SpeakArgs(args)
	})
	addCommandTool(s, "set_speaker", commands.SetSpeaker, func(args SetSpeakerArgs) any {
		return commands.SetSpeakerArgs(args)
	})
	addCommandTool(s, "lower_volume", commands.LowerVolume, func(NoArgs) any { return commands.NoArgs{} })
	addCommandTool(s, "raise_volume", commands.RaiseVolume, func(NoArgs) any { return commands.NoArgs{} })
	addCommandTool(s, "grant_permission", commands.GrantPermission, func(NoArgs) any { return commands.NoArgs{} })

	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:        "turn_state",
		Description: "Report whether the loop is idle, listening, speaking or ducked",
	}, s.handleTurnState)
}

// addCommandTool registers a tool that forwards its arguments to a
// dispatcher command.
func addCommandTool[In any](s *Server, toolName string, name commands.Name, convert func(In) any) {
	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:        toolName,
		Description: s.dispatcher.Description(name),
	}, func(ctx context.Context, _ *sdk.CallToolRequest, args In) (*sdk.CallToolResult, any, error) {
		result, err := s.dispatcher.Run(ctx, name, convert(args))
		if err != nil {
			logger.Warn("tool call failed", "tool", toolName, "error", err)
			return &sdk.CallToolResult{
				IsError: true,
				Content: []sdk.Content{&sdk.TextContent{Text: err.Error()}},
			}, nil, nil
		}

		content := []sdk.Content{}
		if result.Ack != "" {
			content = append(content, &sdk.TextContent{Text: result.Ack})
		}
		content = append(content, &sdk.TextContent{Text: fmt.Sprintf("Turn state: %s", result.State)})
		return &sdk.CallToolResult{Content: content}, nil, nil
	})
}

func (s *Server) handleTurnState(ctx context.Context, req *sdk.CallToolRequest, args NoArgs) (*sdk.CallToolResult, any, error) {
	content := []sdk.Content{
		&sdk.TextContent{Text: fmt.Sprintf("Turn state: %s", s.orchestrator.TurnState())},
	}
	if session, ok := s.orchestrator.Session(); ok {
		content = append(content, &sdk.TextContent{Text: fmt.Sprintf(
			"Confirmation %q: %s (%d/%d tries)",
			session.ConfirmationText, session.Phase, session.TriesUsed, session.MaxTries,
		)})
	}
	return &sdk.CallToolResult{Content: content}, nil, nil
}
