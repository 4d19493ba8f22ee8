package console

import (
	"errors"
	"fmt"
	"strings"

	"github.com/koscakluka/ema-voiceloop/internal/commands"
)

var (
	ErrEmptyLine      = errors.New("empty line")
	ErrUnknownVerb    = errors.New("unknown verb")
	ErrMissingOperand = errors.New("missing operand")
)

// invocation is a typed line resolved to a dispatcher command.
type invocation struct {
	name commands.Name
	args any
}

const usage = `start | stop
confirm <question> | <yes reply> | <no reply>
ask <question> | <prompt> | <yes reply> | <no reply>
cancel [now]
pause | resume
say <text> | speak <text> | queue <text>
speaker <pitch> <rate>
louder | quieter
grant
help | quit`

// parseLine turns a typed line into a command. Confirmation operands are
// separated by "|".
func parseLine(line string) (invocation, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return invocation{}, ErrEmptyLine
	}

	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(verb) {
	case "start":
		return invocation{name: commands.StartService, args: commands.NoArgs{}}, nil
	case "stop":
		return invocation{name: commands.StopService, args: commands.NoArgs{}}, nil
	case "pause":
		return invocation{name: commands.PauseListening, args: commands.NoArgs{}}, nil
	case "resume":
		return invocation{name: commands.ResumeListening, args: commands.NoArgs{}}, nil
	case "louder":
		return invocation{name: commands.RaiseVolume, args: commands.NoArgs{}}, nil
	case "quieter":
		return invocation{name: commands.LowerVolume, args: commands.NoArgs{}}, nil
	case "grant":
		return invocation{name: commands.GrantPermission, args: commands.NoArgs{}}, nil

	case "cancel":
		immediate := strings.EqualFold(rest, "now")
		return invocation{name: commands.CancelConfirmation, args: commands.CancelConfirmationArgs{Immediate: immediate}}, nil

	case "say", "speak", "queue":
		if rest == "" {
			return invocation{}, fmt.Errorf("%w: %s needs text", ErrMissingOperand, verb)
		}
		return invocation{name: commands.Speak, args: commands.SpeakArgs{
			SpeechText: rest,
			Queue:      strings.EqualFold(verb, "queue"),
		}}, nil

	case "speaker":
		fields := strings.Fields(rest)
		if len(fields) != 2 {
			return invocation{}, fmt.Errorf("%w: speaker needs pitch and rate", ErrMissingOperand)
		}
		return invocation{name: commands.SetSpeaker, args: commands.SetSpeakerArgs{Pitch: fields[0], Rate: fields[1]}}, nil

	case "confirm":
		operands := splitOperands(rest)
		if len(operands) != 3 {
			return invocation{}, fmt.Errorf("%w: confirm needs question, yes and no replies", ErrMissingOperand)
		}
		return invocation{name: commands.ConfirmIntent, args: commands.ConfirmIntentArgs{
			ConfirmationText: operands[0],
			PositiveCommand:  operands[1],
			NegativeCommand:  operands[2],
		}}, nil

	case "ask":
		operands := splitOperands(rest)
		if len(operands) != 4 {
			return invocation{}, fmt.Errorf("%w: ask needs question, prompt, yes and no replies", ErrMissingOperand)
		}
		return invocation{name: commands.ConfirmIntent, args: commands.ConfirmIntentArgs{
			ConfirmationText:  operands[0],
			VoiceInputMessage: operands[1],
			PositiveCommand:   operands[2],
			NegativeCommand:   operands[3],
			VoiceInput:        true,
		}}, nil

	default:
		return invocation{}, fmt.Errorf("%w: %q", ErrUnknownVerb, verb)
	}
}

func splitOperands(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, "|")
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
	}
	return parts
}
