// Package vosk provides an offline speech recognizer backed by a local Vosk
// model.
package vosk

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	vosk "github.com/alphacep/vosk-api/go"
	"github.com/koscakluka/ema-voiceloop/core/audio"
	"github.com/koscakluka/ema-voiceloop/core/speechtotext"
)

// waveformRecognizer is the subset of *vosk.VoskRecognizer the client uses.
type waveformRecognizer interface {
	AcceptWaveform(buffer []byte) int
	Result() string
	PartialResult() string
	FinalResult() string
	Free()
}

type Recognizer struct {
	model      *vosk.VoskModel
	recognizer waveformRecognizer
	sampleRate int

	listening     bool
	options       speechtotext.ListeningOptions
	lastPartial   string
	speechStarted bool

	mu sync.Mutex
}

// NewRecognizer loads the model at modelPath. Loading is slow; do it once per
// process.
func NewRecognizer(modelPath string, sampleRate int) (*Recognizer, error) {
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}

	vosk.SetLogLevel(-1)

	model, err := vosk.NewModel(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load vosk model from %q: %w", modelPath, err)
	}

	recognizer, err := vosk.NewRecognizer(model, float64(sampleRate))
	if err != nil {
		model.Free()
		return nil, fmt.Errorf("failed to create vosk recognizer: %w", err)
	}

	return &Recognizer{model: model, recognizer: recognizer, sampleRate: sampleRate}, nil
}

func newRecognizerWith(recognizer waveformRecognizer, sampleRate int) *Recognizer {
	return &Recognizer{recognizer: recognizer, sampleRate: sampleRate}
}

func (r *Recognizer) StartListening(_ context.Context, opts ...speechtotext.ListeningOption) error {
	options := speechtotext.NewListeningOptions(opts...)
	if options.EncodingInfo.Format != audio.EncodingLinear16 {
		return fmt.Errorf("vosk needs linear16 audio, got %s", options.EncodingInfo.Format.Name())
	}
	if options.EncodingInfo.SampleRate != r.sampleRate {
		return fmt.Errorf("vosk model loaded for %d Hz, got %d Hz", r.sampleRate, options.EncodingInfo.SampleRate)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recognizer == nil {
		return fmt.Errorf("vosk recognizer closed")
	}

	r.options = options
	r.listening = true
	r.lastPartial = ""
	r.speechStarted = false
	return nil
}

// StopListening discards whatever the current utterance has collected so it
// cannot leak into the next turn.
func (r *Recognizer) StopListening() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.listening {
		return nil
	}
	r.listening = false
	if r.recognizer != nil {
		_ = r.recognizer.FinalResult()
	}
	return nil
}

func (r *Recognizer) SendAudio(buffer []byte) error {
	r.mu.Lock()
	if !r.listening || r.recognizer == nil {
		r.mu.Unlock()
		return nil
	}

	var final, partial string
	if r.recognizer.AcceptWaveform(buffer) != 0 {
		final = parseText(r.recognizer.Result(), "text")
		r.lastPartial = ""
		r.speechStarted = false
	} else {
		partial = parseText(r.recognizer.PartialResult(), "partial")
		if partial == r.lastPartial {
			partial = ""
		} else {
			r.lastPartial = partial
		}
	}
	startedNow := partial != "" && !r.speechStarted
	if startedNow {
		r.speechStarted = true
	}
	options := r.options
	r.mu.Unlock()

	if startedNow {
		options.SpeechStartedCallback()
	}
	if partial != "" {
		options.PartialResultCallback(partial)
	}
	if final != "" {
		options.ResultCallback(final)
	}
	return nil
}

func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listening = false
	if r.recognizer != nil {
		r.recognizer.Free()
		r.recognizer = nil
	}
	if r.model != nil {
		r.model.Free()
		r.model = nil
	}
	return nil
}

func parseText(raw, field string) string {
	var result map[string]any
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return ""
	}
	text, _ := result[field].(string)
	return strings.TrimSpace(text)
}
