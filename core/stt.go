package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/koscakluka/ema-voiceloop/core/speechtotext"
)

type audioSink interface {
	SendAudio(audio []byte) error
}

type speechToText struct {
	// client stores the configured recognizer.
	client SpeechRecognizer
	// sink is set when the recognizer consumes captured audio.
	sink audioSink

	listening atomic.Bool
}

func newSpeechToText(client SpeechRecognizer) *speechToText {
	s := &speechToText{}
	s.set(client)
	return s
}

func (s *speechToText) set(client SpeechRecognizer) {
	if s == nil {
		return
	}
	s.client = client
	s.sink = nil
	if sink, ok := client.(audioSink); ok {
		s.sink = sink
	}
}

func (s *speechToText) isConfigured() bool { return s != nil && s.client != nil }
func (s *speechToText) isListening() bool  { return s != nil && s.listening.Load() }

func (s *speechToText) start(ctx context.Context, opts ...speechtotext.ListeningOption) error {
	if !s.isConfigured() {
		return fmt.Errorf("no speech recognizer configured")
	}

	if err := s.client.StartListening(ctx, opts...); err != nil {
		return fmt.Errorf("failed to start listening: %w", err)
	}
	s.listening.Store(true)
	return nil
}

func (s *speechToText) stop() error {
	if !s.isConfigured() || !s.listening.CompareAndSwap(true, false) {
		return nil
	}

	if err := s.client.StopListening(); err != nil {
		return fmt.Errorf("failed to stop listening: %w", err)
	}
	return nil
}

// markStopped records that the recognizer ended listening on its own.
func (s *speechToText) markStopped() {
	if s != nil {
		s.listening.Store(false)
	}
}

// sendAudio forwards captured audio while a listening turn is active.
func (s *speechToText) sendAudio(audio []byte) {
	if !s.isListening() || s.sink == nil {
		return
	}

	if err := s.sink.SendAudio(audio); err != nil && !errors.Is(err, speechtotext.ErrNotListening) {
		logger.Debug("failed to forward audio to recognizer", "error", err)
	}
}

func (s *speechToText) close() error {
	if !s.isConfigured() {
		return nil
	}

	switch c := s.client.(type) {
	case interface{ Close() error }:
		if err := c.Close(); err != nil {
			return fmt.Errorf("failed to close speech recognizer: %w", err)
		}
	case interface{ Close() }:
		c.Close()
	}
	return nil
}
