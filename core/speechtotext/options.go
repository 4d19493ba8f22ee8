package speechtotext

import "github.com/koscakluka/ema-voiceloop/core/audio"

type ListeningOptions struct {
	// ResultCallback receives one final transcript per utterance.
	ResultCallback func(transcript string)
	// PartialResultCallback receives interim transcripts of the current
	// utterance.
	PartialResultCallback func(transcript string)
	// ErrorCallback receives errors raised while listening. Listening is
	// considered ended after an error.
	ErrorCallback func(err error)

	SpeechStartedCallback func()

	EncodingInfo audio.EncodingInfo
}

type ListeningOption func(*ListeningOptions)

// NewListeningOptions applies opts over no-op callbacks and the default
// encoding.
func NewListeningOptions(opts ...ListeningOption) ListeningOptions {
	options := ListeningOptions{EncodingInfo: audio.GetDefaultEncodingInfo()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.ResultCallback == nil {
		options.ResultCallback = func(string) {}
	}
	if options.PartialResultCallback == nil {
		options.PartialResultCallback = func(string) {}
	}
	if options.ErrorCallback == nil {
		options.ErrorCallback = func(error) {}
	}
	if options.SpeechStartedCallback == nil {
		options.SpeechStartedCallback = func() {}
	}
	if options.EncodingInfo.IsZero() {
		options.EncodingInfo = audio.GetDefaultEncodingInfo()
	}
	return options
}

func WithResultCallback(callback func(transcript string)) ListeningOption {
	return func(o *ListeningOptions) {
		o.ResultCallback = callback
	}
}

func WithPartialResultCallback(callback func(transcript string)) ListeningOption {
	return func(o *ListeningOptions) {
		o.PartialResultCallback = callback
	}
}

func WithErrorCallback(callback func(err error)) ListeningOption {
	return func(o *ListeningOptions) {
		o.ErrorCallback = callback
	}
}

func WithSpeechStartedCallback(callback func()) ListeningOption {
	return func(o *ListeningOptions) {
		o.SpeechStartedCallback = callback
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) ListeningOption {
	return func(o *ListeningOptions) {
		o.EncodingInfo = encodingInfo
	}
}
