// Package commands is the host command surface shared by the HTTP, MCP and
// console front ends. Every command takes a JSON object validated against a
// schema reflected from its argument struct.
package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"

	reflectschema "github.com/invopop/jsonschema"
	orchestration "github.com/koscakluka/ema-voiceloop/core"
	"github.com/koscakluka/ema-voiceloop/core/events"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	ErrUnknownCommand   = errors.New("unknown command")
	ErrInvalidArguments = errors.New("invalid command arguments")
)

// Orchestrator is the part of *orchestration.Orchestrator the front ends
// drive.
type Orchestrator interface {
	StartService(ctx context.Context) (string, error)
	StopService() (string, error)
	ConfirmIntent(request orchestration.ConfirmationRequest) (string, error)
	CancelConfirmation(immediate bool) (string, error)
	ResumeListening() (string, error)
	PauseListening() (string, error)
	Speak(text string, queue bool)
	SetSpeaker(pitch, rate float64)
	LowerVolume() error
	RaiseVolume() error
	GrantPermission()
	TurnState() orchestration.TurnState
	Session() (orchestration.ConfirmationSession, bool)
	Subscribe(buffer int) (<-chan events.Event, func())
}

var _ Orchestrator = (*orchestration.Orchestrator)(nil)

type Name string

const (
	StartService       Name = "startService"
	StopService        Name = "stopService"
	ConfirmIntent      Name = "confirmIntent"
	CancelConfirmation Name = "cancelConfirmation"
	ResumeListening    Name = "resumeListening"
	PauseListening     Name = "pauseListening"
	Speak              Name = "speak"
	SetSpeaker         Name = "setSpeaker"
	LowerVolume        Name = "lowerVolume"
	RaiseVolume        Name = "raiseVolume"
	GrantPermission    Name = "grantPermission"
)

type NoArgs struct{}

type ConfirmIntentArgs struct {
	ConfirmationText  string `json:"confirmationText" jsonschema:"minLength=1,description=Question spoken to the user"`
	PositiveCommand   string `json:"positiveCommand" jsonschema:"minLength=1,description=Reply that confirms"`
	NegativeCommand   string `json:"negativeCommand" jsonschema:"minLength=1,description=Reply that declines"`
	VoiceInputMessage string `json:"voiceInputMessage,omitempty" jsonschema:"description=Prompt spoken after the free-form reply"`
	VoiceInput        bool   `json:"voiceInput,omitempty" jsonschema:"description=Capture a free-form reply before confirming"`
}

func (a ConfirmIntentArgs) Request() orchestration.ConfirmationRequest {
	return orchestration.ConfirmationRequest{
		ConfirmationText:  a.ConfirmationText,
		PositiveCommand:   a.PositiveCommand,
		NegativeCommand:   a.NegativeCommand,
		VoiceInputMessage: a.VoiceInputMessage,
		VoiceInput:        a.VoiceInput,
	}
}

type CancelConfirmationArgs struct {
	Immediate bool `json:"immediate,omitempty" jsonschema:"description=Stop speech and clear the session right away"`
}

type SpeakArgs struct {
	SpeechText string `json:"speechText" jsonschema:"minLength=1,description=Text to speak"`
	Queue      bool   `json:"queue,omitempty" jsonschema:"description=Speak after the current utterance instead of replacing it"`
}

// SetSpeakerArgs carries string encoded multipliers such as "1.2".
type SetSpeakerArgs struct {
	Pitch string `json:"pitch" jsonschema:"pattern=^[0-9]*\\.?[0-9]+$,description=Pitch multiplier"`
	Rate  string `json:"rate" jsonschema:"pattern=^[0-9]*\\.?[0-9]+$,description=Speech rate multiplier"`
}

// Result is what a command reports back to the caller.
type Result struct {
	Ack   string `json:"ack,omitempty"`
	State string `json:"state"`
}

type command struct {
	name        Name
	description string
	newArgs     func() any
	schemaJSON  []byte
	schema      *jsonschema.Schema
	run         func(ctx context.Context, d *Dispatcher, args any) (string, error)
}

// Dispatcher runs named commands against an orchestrator.
type Dispatcher struct {
	orchestrator Orchestrator
	// serviceCtx bounds a service started through StartService; request
	// contexts end too early for that.
	serviceCtx context.Context
	commands   map[Name]*command
}

func NewDispatcher(serviceCtx context.Context, orchestrator Orchestrator) (*Dispatcher, error) {
	d := &Dispatcher{
		orchestrator: orchestrator,
		serviceCtx:   serviceCtx,
		commands:     map[Name]*command{},
	}

	for _, cmd := range definitions() {
		if err := cmd.compile(); err != nil {
			return nil, fmt.Errorf("failed to compile %s schema: %w", cmd.name, err)
		}
		d.commands[cmd.name] = cmd
	}
	return d, nil
}

// Names lists the known commands in a stable order.
func (d *Dispatcher) Names() []Name {
	names := make([]Name, 0, len(d.commands))
	for name := range d.commands {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (d *Dispatcher) Description(name Name) string {
	if cmd, ok := d.commands[name]; ok {
		return cmd.description
	}
	return ""
}

// Schema returns the JSON schema of a command's arguments.
func (d *Dispatcher) Schema(name Name) ([]byte, bool) {
	cmd, ok := d.commands[name]
	if !ok {
		return nil, false
	}
	return cmd.schemaJSON, true
}

// Execute validates raw against the command's schema and runs it. An empty
// body counts as an empty object.
func (d *Dispatcher) Execute(ctx context.Context, name Name, raw []byte) (Result, error) {
	ctx, span := tracer.Start(ctx, "voiceloop.command")
	defer span.End()
	span.SetAttributes(attribute.String("voiceloop.command", string(name)))

	result, err := d.execute(ctx, name, raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("command failed", "command", string(name), "error", err)
	}
	return result, err
}

func (d *Dispatcher) execute(ctx context.Context, name Name, raw []byte) (Result, error) {
	cmd, ok := d.commands[name]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("{}")
	}

	var document any
	if err := json.Unmarshal(raw, &document); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}
	if err := cmd.schema.Validate(document); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}

	args := cmd.newArgs()
	if err := json.Unmarshal(raw, args); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}

	ack, err := cmd.run(ctx, d, reflect.ValueOf(args).Elem().Interface())
	if err != nil {
		return Result{}, err
	}
	return Result{Ack: ack, State: d.orchestrator.TurnState().String()}, nil
}

// Run is Execute for callers that already hold typed arguments.
func (d *Dispatcher) Run(ctx context.Context, name Name, args any) (Result, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}
	return d.Execute(ctx, name, raw)
}

func (c *command) compile() error {
	reflector := reflectschema.Reflector{DoNotReference: true, Anonymous: true}
	schema := reflector.Reflect(c.newArgs())

	data, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}

	url := "mem://commands/" + string(c.name) + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	c.schemaJSON = data
	c.schema = compiled
	return nil
}

// ParseSpeakerValue parses a string encoded multiplier. An empty string
// means the default of 1.
func ParseSpeakerValue(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 1, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidArguments, value)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%w: %q must be positive", ErrInvalidArguments, value)
	}
	return parsed, nil
}

func definitions() []*command {
	return []*command{
		{
			name:        StartService,
			description: "Start listening for speech",
			newArgs:     func() any { return &NoArgs{} },
			run: func(_ context.Context, d *Dispatcher, _ any) (string, error) {
				return d.orchestrator.StartService(d.serviceCtx)
			},
		},
		{
			name:        StopService,
			description: "Stop listening and speaking and close the event stream",
			newArgs:     func() any { return &NoArgs{} },
			run: func(_ context.Context, d *Dispatcher, _ any) (string, error) {
				return d.orchestrator.StopService()
			},
		},
		{
			name:        ConfirmIntent,
			description: "Ask the user to confirm an intent by voice",
			newArgs:     func() any { return &ConfirmIntentArgs{} },
			run: func(_ context.Context, d *Dispatcher, args any) (string, error) {
				return d.orchestrator.ConfirmIntent(args.(ConfirmIntentArgs).Request())
			},
		},
		{
			name:        CancelConfirmation,
			description: "Cancel the confirmation in progress",
			newArgs:     func() any { return &CancelConfirmationArgs{} },
			run: func(_ context.Context, d *Dispatcher, args any) (string, error) {
				return d.orchestrator.CancelConfirmation(args.(CancelConfirmationArgs).Immediate)
			},
		},
		{
			name:        ResumeListening,
			description: "Resume listening after a pause",
			newArgs:     func() any { return &NoArgs{} },
			run: func(_ context.Context, d *Dispatcher, _ any) (string, error) {
				return d.orchestrator.ResumeListening()
			},
		},
		{
			name:        PauseListening,
			description: "Pause listening while the service keeps running",
			newArgs:     func() any { return &NoArgs{} },
			run: func(_ context.Context, d *Dispatcher, _ any) (string, error) {
				return d.orchestrator.PauseListening()
			},
		},
		{
			name:        Speak,
			description: "Speak text to the user",
			newArgs:     func() any { return &SpeakArgs{} },
			run: func(_ context.Context, d *Dispatcher, args any) (string, error) {
				speak := args.(SpeakArgs)
				d.orchestrator.Speak(speak.SpeechText, speak.Queue)
				return "", nil
			},
		},
		{
			name:        SetSpeaker,
			description: "Set the pitch and rate of later speech",
			newArgs:     func() any { return &SetSpeakerArgs{} },
			run: func(_ context.Context, d *Dispatcher, args any) (string, error) {
				speaker := args.(SetSpeakerArgs)
				pitch, err := ParseSpeakerValue(speaker.Pitch)
				if err != nil {
					return "", err
				}
				rate, err := ParseSpeakerValue(speaker.Rate)
				if err != nil {
					return "", err
				}
				d.orchestrator.SetSpeaker(pitch, rate)
				return "", nil
			},
		},
		{
			name:        LowerVolume,
			description: "Lower the output volume one step",
			newArgs:     func() any { return &NoArgs{} },
			run: func(_ context.Context, d *Dispatcher, _ any) (string, error) {
				return "", d.orchestrator.LowerVolume()
			},
		},
		{
			name:        RaiseVolume,
			description: "Raise the output volume one step",
			newArgs:     func() any { return &NoArgs{} },
			run: func(_ context.Context, d *Dispatcher, _ any) (string, error) {
				return "", d.orchestrator.RaiseVolume()
			},
		},
		{
			name:        GrantPermission,
			description: "Re-arm recognition after microphone permission was granted",
			newArgs:     func() any { return &NoArgs{} },
			run: func(_ context.Context, d *Dispatcher, _ any) (string, error) {
				d.orchestrator.GrantPermission()
				return "", nil
			},
		},
	}
}
