package orchestration

import (
	"context"
	"time"

	"github.com/koscakluka/ema-voiceloop/core/audio"
	"github.com/koscakluka/ema-voiceloop/core/events"
	"github.com/koscakluka/ema-voiceloop/core/speechtotext"
	"github.com/koscakluka/ema-voiceloop/core/texttospeech"
)

type OrchestratorOption func(*Orchestrator)

// SpeechRecognizer listens until StopListening or an error. Recognizers that
// also implement SendAudio(audio []byte) error are fed from the configured
// AudioInput.
type SpeechRecognizer interface {
	StartListening(ctx context.Context, opts ...speechtotext.ListeningOption) error
	StopListening() error
}

func WithSpeechRecognizer(client SpeechRecognizer) OrchestratorOption {
	return func(o *Orchestrator) {
		o.speechToText.set(client)
	}
}

// SpeechSynthesizer speaks utterances one at a time and reports exactly one
// of done or error for each through the texttospeech callbacks.
type SpeechSynthesizer interface {
	Speak(ctx context.Context, text string, opts ...texttospeech.SpeakOption) error
	Stop() error
}

func WithSpeechSynthesizer(client SpeechSynthesizer) OrchestratorOption {
	return func(o *Orchestrator) {
		o.textToSpeech.set(client)
	}
}

type AudioInput interface {
	Stream(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
}

func WithAudioInput(client AudioInput) OrchestratorOption {
	return func(o *Orchestrator) { o.audioInput.set(client) }
}

func WithAudioFocus(controller audio.FocusController) OrchestratorOption {
	return func(o *Orchestrator) { o.audioFocus.set(controller) }
}

// WithMaxTries sets how many mismatched replies a confirmation absorbs before
// it fails. Non-positive values keep the default.
func WithMaxTries(maxTries int) OrchestratorOption {
	return func(o *Orchestrator) {
		if maxTries > 0 {
			o.settings.maxTries = maxTries
		}
	}
}

func WithVoiceCaptureWindow(window time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if window > 0 {
			o.settings.captureWindow = window
		}
	}
}

func WithCooldown(cooldown time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if cooldown > 0 {
			o.settings.cooldown = cooldown
		}
	}
}

// WithPhrases overrides what is spoken after a matched reply and after the
// tries run out. Empty strings keep the defaults.
func WithPhrases(acknowledgement, failureNotice string) OrchestratorOption {
	return func(o *Orchestrator) {
		if acknowledgement != "" {
			o.settings.acknowledgement = acknowledgement
		}
		if failureNotice != "" {
			o.settings.failureNotice = failureNotice
		}
	}
}

func WithSpeakerVoice(voice texttospeech.VoiceSettings) OrchestratorOption {
	return func(o *Orchestrator) {
		o.voice = normalizeVoice(voice)
	}
}

// WithEventSink registers a sink receiving every event in order.
func WithEventSink(sink EventSink) OrchestratorOption {
	return func(o *Orchestrator) { o.emitter.addSink(sink) }
}

func WithEventCallback(callback func(event events.Event)) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks.onEvent = callback }
}

// WithConfirmationResultCallback registers a callback for resolved
// confirmations. err is ErrRetryExhausted for a failed one.
func WithConfirmationResultCallback(callback func(result events.ConfirmationResult, err error)) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks.onConfirmationResult = callback }
}

// WithRecognizedTextCallback registers a callback for utterances of the free
// listening stream. Replies consumed by a confirmation are not reported.
func WithRecognizedTextCallback(callback func(text string, partial bool)) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks.onRecognizedText = callback }
}

func WithTurnStateCallback(callback func(from, to TurnState)) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks.onTurnStateChanged = callback }
}

// WithInputAudioCallback registers a callback for raw input audio chunks.
//
// The provided slice is passed through as-is (no defensive copy). The
// callback runs inline on the capture path and should not block.
func WithInputAudioCallback(callback func(audio []byte)) OrchestratorOption {
	return func(o *Orchestrator) { o.onInputAudio = callback }
}
