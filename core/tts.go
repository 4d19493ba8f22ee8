package orchestration

import (
	"context"
	"fmt"

	"github.com/koscakluka/ema-voiceloop/core/texttospeech"
)

type textToSpeech struct {
	// client stores the configured synthesizer.
	client SpeechSynthesizer
}

func newTextToSpeech(client SpeechSynthesizer) *textToSpeech {
	return &textToSpeech{client: client}
}

func (t *textToSpeech) set(client SpeechSynthesizer) {
	if t != nil {
		t.client = client
	}
}

func (t *textToSpeech) isConfigured() bool { return t != nil && t.client != nil }

func (t *textToSpeech) speak(ctx context.Context, text string, opts ...texttospeech.SpeakOption) error {
	if !t.isConfigured() {
		return fmt.Errorf("no speech synthesizer configured")
	}

	if err := t.client.Speak(ctx, text, opts...); err != nil {
		return fmt.Errorf("failed to queue utterance: %w", err)
	}
	return nil
}

// stop flushes everything queued or playing. Flushed utterances report
// texttospeech.ErrFlushed.
func (t *textToSpeech) stop() error {
	if !t.isConfigured() {
		return nil
	}

	if err := t.client.Stop(); err != nil {
		return fmt.Errorf("failed to stop speech synthesizer: %w", err)
	}
	return nil
}

func (t *textToSpeech) close() error {
	if !t.isConfigured() {
		return nil
	}

	switch c := t.client.(type) {
	case interface{ Close() error }:
		if err := c.Close(); err != nil {
			return fmt.Errorf("failed to close speech synthesizer: %w", err)
		}
	case interface{ Close() }:
		c.Close()
	}
	return nil
}
