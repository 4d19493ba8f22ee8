package miniaudio

import (
	"context"
	"fmt"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-voiceloop/core/audio"
)

// Client owns one malgo context with a capture device feeding recognizers
// and a playback device rendering synthesized speech.
type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext
	encodingInfo audio.EncodingInfo

	playbackClient
	captureClient
}

type ClientOption func(*Client)

// WithGainSource scales every played sample by the source's gain, which is
// how ducking reaches the speaker.
func WithGainSource(source audio.GainSource) ClientOption {
	return func(c *Client) {
		c.playbackClient.gain = source
	}
}

// WithSampleRate overrides the default 16 kHz device rate.
func WithSampleRate(sampleRate int) ClientOption {
	return func(c *Client) {
		c.encodingInfo.SampleRate = sampleRate
	}
}

func NewClient(opts ...ClientOption) (*Client, error) {
	client := Client{encodingInfo: audio.GetDefaultEncodingInfo()}
	for _, opt := range opts {
		opt(&client)
	}

	audioCtx, err := malgo.InitContext(
		nil,
		malgo.ContextConfig{},
		func(message string) { logger.Debug("malgo", "message", message) },
	)
	if err != nil {
		return nil, fmt.Errorf("malgo init context failed: %w", err)
	}
	client.audioContext = audioCtx

	sampleRate := uint32(client.encodingInfo.SampleRate)
	if err := client.playbackClient.Init(audioCtx, sampleRate); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize playback client: %w", err)
	}

	if err := client.playbackClient.Start(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}

	if err := client.captureClient.Init(audioCtx, sampleRate); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize capture client: %w", err)
	}

	return &client, nil
}

func (c *Client) Stream(_ context.Context, onAudio func(audio []byte)) error {
	return c.captureClient.Start(onAudio)
}

func (c *Client) StopCapture() error {
	return c.captureClient.Stop()
}

func (c *Client) Close() {
	_ = c.captureClient.Uninit()
	_ = c.playbackClient.Uninit()
	if c.audioContext != nil {
		_ = c.audioContext.Uninit()
		c.audioContext.Free()
		c.audioContext = nil
	}
}

func (c *Client) SendAudio(audio []byte) error {
	return c.playbackClient.SendAudio(audio)
}

func (c *Client) ClearBuffer() {
	c.playbackClient.ClearBuffer()
}

func (c *Client) Mark(name string, callback func(string)) error {
	return c.playbackClient.Mark(name, callback)
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return c.encodingInfo
}
