package texttospeech

import "github.com/google/uuid"

type QueueMode int

const (
	// QueueAdd plays the utterance after everything already queued.
	QueueAdd QueueMode = iota
	// QueueFlush drops queued utterances and interrupts the current one.
	QueueFlush
)

func (m QueueMode) String() string {
	if m == QueueFlush {
		return "flush"
	}
	return "queue"
}

// VoiceSettings are multipliers around the engine's default voice, 1.0 being
// unchanged.
type VoiceSettings struct {
	Pitch float64
	Rate  float64
}

func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{Pitch: 1, Rate: 1}
}

func (v VoiceSettings) IsDefault() bool {
	return v == DefaultVoiceSettings()
}

type SpeakOptions struct {
	UtteranceID string
	Mode        QueueMode
	Voice       VoiceSettings

	// StartedCallback is called when the utterance starts rendering.
	StartedCallback func(utteranceID string)
	// DoneCallback is called once the utterance has been played.
	DoneCallback func(utteranceID string)
	// ErrorCallback is called instead of DoneCallback when the utterance
	// failed or was flushed.
	ErrorCallback func(utteranceID string, err error)
}

type SpeakOption func(*SpeakOptions)

// NewSpeakOptions applies opts over no-op callbacks. A missing utterance ID
// is generated.
func NewSpeakOptions(opts ...SpeakOption) SpeakOptions {
	options := SpeakOptions{Voice: DefaultVoiceSettings()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.UtteranceID == "" {
		options.UtteranceID = uuid.NewString()
	}
	if options.StartedCallback == nil {
		options.StartedCallback = func(string) {}
	}
	if options.DoneCallback == nil {
		options.DoneCallback = func(string) {}
	}
	if options.ErrorCallback == nil {
		options.ErrorCallback = func(string, error) {}
	}
	if options.Voice.Pitch <= 0 {
		options.Voice.Pitch = 1
	}
	if options.Voice.Rate <= 0 {
		options.Voice.Rate = 1
	}
	return options
}

func WithUtteranceID(id string) SpeakOption {
	return func(o *SpeakOptions) {
		o.UtteranceID = id
	}
}

func WithQueueMode(mode QueueMode) SpeakOption {
	return func(o *SpeakOptions) {
		o.Mode = mode
	}
}

func WithVoiceSettings(voice VoiceSettings) SpeakOption {
	return func(o *SpeakOptions) {
		o.Voice = voice
	}
}

func WithStartedCallback(callback func(utteranceID string)) SpeakOption {
	return func(o *SpeakOptions) {
		o.StartedCallback = callback
	}
}

func WithDoneCallback(callback func(utteranceID string)) SpeakOption {
	return func(o *SpeakOptions) {
		o.DoneCallback = callback
	}
}

func WithErrorCallback(callback func(utteranceID string, err error)) SpeakOption {
	return func(o *SpeakOptions) {
		o.ErrorCallback = callback
	}
}
