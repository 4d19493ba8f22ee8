package orchestration

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-voiceloop/core/events"
)

const DefaultMaxTries = 20

// ConfirmationRequest describes a confirmation the host wants the user to
// answer by voice.
type ConfirmationRequest struct {
	ConfirmationText  string `json:"confirmationText"`
	PositiveCommand   string `json:"positiveCommand"`
	NegativeCommand   string `json:"negativeCommand"`
	VoiceInputMessage string `json:"voiceInputMessage,omitempty"`
	VoiceInput        bool   `json:"voiceInput,omitempty"`
}

func (r ConfirmationRequest) Validate() error {
	var missing []string
	if strings.TrimSpace(r.ConfirmationText) == "" {
		missing = append(missing, "confirmation text")
	}
	if strings.TrimSpace(r.PositiveCommand) == "" {
		missing = append(missing, "positive command")
	}
	if strings.TrimSpace(r.NegativeCommand) == "" {
		missing = append(missing, "negative command")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncompleteIntent, strings.Join(missing, ", "))
	}
	return nil
}

func (r ConfirmationRequest) acknowledgement() string {
	return fmt.Sprintf(
		"Requested confirmation for: %s\n Positive Reply: %s\n Negative Reply: %s\n Voice Input Message: %s\n Voice Input: %t",
		r.ConfirmationText, r.PositiveCommand, r.NegativeCommand, r.VoiceInputMessage, r.VoiceInput,
	)
}

type ConfirmationPhase int

const (
	PhaseAwaitingVoiceInput ConfirmationPhase = iota
	PhaseAwaitingConfirmation
	PhaseResolved
)

func (p ConfirmationPhase) String() string {
	switch p {
	case PhaseAwaitingVoiceInput:
		return "awaiting_voice_input"
	case PhaseAwaitingConfirmation:
		return "awaiting_confirmation"
	case PhaseResolved:
		return "resolved"
	default:
		return fmt.Sprintf("ConfirmationPhase(%d)", int(p))
	}
}

// ConfirmationSession is one in-flight confirmation. There is at most one,
// owned by the runtime; Orchestrator.Session hands out copies.
type ConfirmationSession struct {
	ID               string
	ConfirmationText string
	PositiveCommand  string
	NegativeCommand  string
	VoiceInputPrompt string
	WantsVoiceInput  bool

	TriesUsed int
	MaxTries  int

	VoiceReply   string
	MatchedReply string
	Phase        ConfirmationPhase
	Succeeded    bool
	Cancelled    bool
	CreatedAt    time.Time

	positive commandPattern
	negative commandPattern
}

func newConfirmationSession(request ConfirmationRequest, maxTries int) *ConfirmationSession {
	if maxTries <= 0 {
		maxTries = DefaultMaxTries
	}

	phase := PhaseAwaitingConfirmation
	if request.VoiceInput {
		phase = PhaseAwaitingVoiceInput
	}

	return &ConfirmationSession{
		ID:               uuid.NewString(),
		ConfirmationText: request.ConfirmationText,
		PositiveCommand:  request.PositiveCommand,
		NegativeCommand:  request.NegativeCommand,
		VoiceInputPrompt: request.VoiceInputMessage,
		WantsVoiceInput:  request.VoiceInput,
		MaxTries:         maxTries,
		Phase:            phase,
		CreatedAt:        time.Now(),
		positive:         compileCommand(request.PositiveCommand),
		negative:         compileCommand(request.NegativeCommand),
	}
}

func (s *ConfirmationSession) IsResolved() bool {
	return s.Phase == PhaseResolved
}

// advance moves the session forward. Phases never go back.
func (s *ConfirmationSession) advance(to ConfirmationPhase) error {
	if to <= s.Phase {
		return fmt.Errorf("cannot move confirmation from %s to %s", s.Phase, to)
	}
	s.Phase = to
	return nil
}

// captureVoiceReply stores the first non-empty utterance heard while waiting
// for voice input.
func (s *ConfirmationSession) captureVoiceReply(utterance string) bool {
	utterance = strings.TrimSpace(utterance)
	if s.Phase != PhaseAwaitingVoiceInput || s.VoiceReply != "" || utterance == "" {
		return false
	}
	s.VoiceReply = utterance
	return true
}

// match reports the reply token when it matches either command. The
// positive command wins when both match.
func (s *ConfirmationSession) match(utterance string) (string, bool) {
	token := firstToken(utterance)
	if s.positive.matches(token) || s.negative.matches(token) {
		return token, true
	}
	return "", false
}

// recordMismatch counts a failed try and reports whether the budget is
// exhausted.
func (s *ConfirmationSession) recordMismatch() bool {
	if s.TriesUsed < s.MaxTries {
		s.TriesUsed++
	}
	return s.TriesUsed >= s.MaxTries
}

// confirmationPrompt is spoken after voice input was captured.
func (s *ConfirmationSession) confirmationPrompt() string {
	parts := []string{strings.TrimRight(s.VoiceReply, ".!? ") + "."}
	if prompt := strings.TrimSpace(s.VoiceInputPrompt); prompt != "" {
		parts = append(parts, prompt)
	}
	parts = append(parts, fmt.Sprintf("Say %s or %s.", s.PositiveCommand, s.NegativeCommand))
	return strings.Join(parts, " ")
}

func (s *ConfirmationSession) result() events.ConfirmationResult {
	return events.ConfirmationResult{
		SessionID:          s.ID,
		OriginalText:       s.ConfirmationText,
		MatchedReply:       s.MatchedReply,
		VoiceInputCaptured: s.VoiceReply,
		Succeeded:          s.Succeeded,
	}
}
