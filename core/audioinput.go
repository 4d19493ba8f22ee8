package orchestration

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/koscakluka/ema-voiceloop/core/audio"
)

type audioInput struct {
	// client stores the configured input client used for streaming audio.
	client AudioInput

	// connected reports whether a concrete input client is configured.
	connected atomic.Bool
	// isCapturing reports whether the input client is currently capturing.
	isCapturing atomic.Bool
}

func newAudioInput(client AudioInput) *audioInput {
	a := &audioInput{}
	a.set(client)
	return a
}

func (a *audioInput) set(client AudioInput) {
	if a == nil {
		return
	}

	a.client = client
	a.isCapturing.Store(false)
	a.connected.Store(client != nil)
}

func (a *audioInput) IsConfigured() bool { return a != nil && a.connected.Load() }
func (a *audioInput) IsCapturing() bool  { return a != nil && a.isCapturing.Load() }

// start begins streaming captured audio to onAudio. Clients may block in
// Stream or return right away; either way capture lasts until stop. A failed
// stream is reported through onError.
func (a *audioInput) start(ctx context.Context, onAudio func(audio []byte), onError func(error)) {
	if !a.IsConfigured() {
		return
	}
	if !a.isCapturing.CompareAndSwap(false, true) {
		return
	}

	go func() {
		if err := a.client.Stream(ctx, onAudio); err != nil {
			a.isCapturing.Store(false)
			if ctx.Err() == nil && onError != nil {
				onError(fmt.Errorf("failed to capture audio: %w", err))
			}
		}
	}()
}

func (a *audioInput) stop() error {
	if !a.IsConfigured() || !a.isCapturing.CompareAndSwap(true, false) {
		return nil
	}

	if err := a.client.StopCapture(); err != nil {
		return fmt.Errorf("failed to stop audio capture: %w", err)
	}
	return nil
}

func (a *audioInput) encodingInfo() audio.EncodingInfo {
	if !a.IsConfigured() {
		return audio.GetDefaultEncodingInfo()
	}
	if withEncoding, ok := a.client.(interface{ EncodingInfo() audio.EncodingInfo }); ok {
		return withEncoding.EncodingInfo()
	}
	return audio.GetDefaultEncodingInfo()
}

func (a *audioInput) close() error {
	err := a.stop()
	if a.IsConfigured() {
		switch c := a.client.(type) {
		case interface{ Close() error }:
			if closeErr := c.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("failed to close audio input: %w", closeErr)
			}
		case interface{ Close() }:
			c.Close()
		}
	}
	return err
}
