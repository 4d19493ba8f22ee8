package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrUnknownKind is returned when a payload or event kind has no mapping.
var ErrUnknownKind = errors.New("unknown event kind")

// Payload is the flat wire form of every event. Fields that do not apply to
// an event kind are left empty.
type Payload struct {
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`

	SessionID   string `json:"sessionId,omitempty"`
	UtteranceID string `json:"utteranceId,omitempty"`

	Text    string `json:"text,omitempty"`
	Partial bool   `json:"partial,omitempty"`

	ConfirmationText string `json:"confirmationText,omitempty"`
	PositiveCommand  string `json:"positiveCommand,omitempty"`
	NegativeCommand  string `json:"negativeCommand,omitempty"`
	VoiceInputPrompt string `json:"voiceInputMessage,omitempty"`
	VoiceInput       bool   `json:"voiceInput,omitempty"`

	OriginalText       string `json:"originalText,omitempty"`
	MatchedReply       string `json:"matchedReply,omitempty"`
	VoiceInputCaptured string `json:"voiceInputCaptured,omitempty"`
	Succeeded          bool   `json:"succeeded,omitempty"`
	Immediate          bool   `json:"immediate,omitempty"`

	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`

	Engine string `json:"engine,omitempty"`
	Error  string `json:"error,omitempty"`
}

// MarshalPayload encodes an event as flat JSON.
func MarshalPayload(event Event) ([]byte, error) {
	payload, err := ToPayload(event)
	if err != nil {
		return nil, err
	}
	return json.Marshal(payload)
}

// ParsePayload decodes flat JSON produced by MarshalPayload.
func ParsePayload(data []byte) (Event, error) {
	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode event payload: %w", err)
	}
	return FromPayload(payload)
}

func ToPayload(event Event) (Payload, error) {
	payload := Payload{Kind: event.Kind(), Timestamp: event.Timestamp()}

	switch e := event.(type) {
	case ServiceStarted, ServiceStopped, PermissionGranted:
	case RecognizedText:
		payload.Text = e.Text
		payload.Partial = e.Partial
	case RecognitionFailed:
		payload.Error = errorText(e.Err)
	case SpeechStarted:
		payload.UtteranceID = e.UtteranceID
	case SpeechDone:
		payload.UtteranceID = e.UtteranceID
	case SpeechFailed:
		payload.UtteranceID = e.UtteranceID
		payload.Error = errorText(e.Err)
	case ConfirmationRequested:
		payload.SessionID = e.SessionID
		payload.ConfirmationText = e.ConfirmationText
		payload.PositiveCommand = e.PositiveCommand
		payload.NegativeCommand = e.NegativeCommand
		payload.VoiceInputPrompt = e.VoiceInputPrompt
		payload.VoiceInput = e.WantsVoiceInput
	case ConfirmationVoiceInputCaptured:
		payload.SessionID = e.SessionID
		payload.Text = e.Text
	case ConfirmationResolved:
		payload.SessionID = e.Result.SessionID
		payload.OriginalText = e.Result.OriginalText
		payload.MatchedReply = e.Result.MatchedReply
		payload.VoiceInputCaptured = e.Result.VoiceInputCaptured
		payload.Succeeded = e.Result.Succeeded
		payload.Error = errorText(e.Err)
	case ConfirmationCancelled:
		payload.SessionID = e.SessionID
		payload.Immediate = e.Immediate
	case NoConfirmationInProgress:
		payload.Text = e.Text
		payload.Error = errorText(e.Err)
	case TurnStateChanged:
		payload.From = e.From
		payload.To = e.To
	case EngineInitFailed:
		payload.Engine = e.Engine
		payload.Error = errorText(e.Err)
	case PermissionDenied:
		payload.Engine = e.Engine
		payload.Error = errorText(e.Err)
	default:
		return Payload{}, fmt.Errorf("%w: %q", ErrUnknownKind, event.Kind())
	}

	return payload, nil
}

func FromPayload(payload Payload) (Event, error) {
	base := newBaseAt(payload.Kind, payload.Timestamp)

	switch payload.Kind {
	case KindServiceStarted:
		return ServiceStarted{Base: base}, nil
	case KindServiceStopped:
		return ServiceStopped{Base: base}, nil
	case KindPermissionGranted:
		return PermissionGranted{Base: base}, nil
	case KindRecognizedText:
		return RecognizedText{Base: base, Text: payload.Text, Partial: payload.Partial}, nil
	case KindRecognitionFailed:
		return RecognitionFailed{Base: base, Err: errorFromText(payload.Error)}, nil
	case KindSpeechStarted:
		return SpeechStarted{Base: base, UtteranceID: payload.UtteranceID}, nil
	case KindSpeechDone:
		return SpeechDone{Base: base, UtteranceID: payload.UtteranceID}, nil
	case KindSpeechFailed:
		return SpeechFailed{Base: base, UtteranceID: payload.UtteranceID, Err: errorFromText(payload.Error)}, nil
	case KindConfirmationRequested:
		return ConfirmationRequested{
			Base:             base,
			SessionID:        payload.SessionID,
			ConfirmationText: payload.ConfirmationText,
			PositiveCommand:  payload.PositiveCommand,
			NegativeCommand:  payload.NegativeCommand,
			VoiceInputPrompt: payload.VoiceInputPrompt,
			WantsVoiceInput:  payload.VoiceInput,
		}, nil
	case KindConfirmationVoiceInputCaptured:
		return ConfirmationVoiceInputCaptured{Base: base, SessionID: payload.SessionID, Text: payload.Text}, nil
	case KindConfirmationResolved:
		return ConfirmationResolved{
			Base: base,
			Result: ConfirmationResult{
				SessionID:          payload.SessionID,
				OriginalText:       payload.OriginalText,
				MatchedReply:       payload.MatchedReply,
				VoiceInputCaptured: payload.VoiceInputCaptured,
				Succeeded:          payload.Succeeded,
			},
			Err: errorFromText(payload.Error),
		}, nil
	case KindConfirmationCancelled:
		return ConfirmationCancelled{Base: base, SessionID: payload.SessionID, Immediate: payload.Immediate}, nil
	case KindNoConfirmationInProgress:
		return NoConfirmationInProgress{Base: base, Text: payload.Text, Err: errorFromText(payload.Error)}, nil
	case KindTurnStateChanged:
		return TurnStateChanged{Base: base, From: payload.From, To: payload.To}, nil
	case KindEngineInitFailed:
		return EngineInitFailed{Base: base, Engine: payload.Engine, Err: errorFromText(payload.Error)}, nil
	case KindPermissionDenied:
		return PermissionDenied{Base: base, Engine: payload.Engine, Err: errorFromText(payload.Error)}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, payload.Kind)
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func errorFromText(text string) error {
	if text == "" {
		return nil
	}
	return errors.New(text)
}
