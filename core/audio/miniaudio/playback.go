package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-voiceloop/core/audio"
)

type playbackClient struct {
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	config       malgo.DeviceConfig

	gain audio.GainSource

	pending []byte
	marks   []playbackMark

	mu      sync.Mutex
	audioMu sync.Mutex
}

type playbackMark struct {
	name     string
	position int
	callback func(string)
}

func (c *playbackClient) Init(audioContext *malgo.AllocatedContext, sampleRate uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	channels := 1
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	c.config = malgo.DefaultDeviceConfig(malgo.Playback)
	c.config.SampleRate = sampleRate
	c.config.Playback.Format = format
	c.config.Playback.Channels = uint32(channels)
	c.config.Alsa.NoMMap = 1
	c.config.PeriodSizeInFrames = sampleRate / 10 // ~100ms of audio
	c.config.Periods = 4

	c.audioContext = audioContext

	var err error
	if c.device, err = malgo.InitDevice(
		c.audioContext.Context,
		c.config,
		malgo.DeviceCallbacks{Data: c.processAudio(bytesPerFrame)},
	); err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}

	return nil
}

func (c *playbackClient) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}

	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	return nil
}

func (c *playbackClient) SendAudio(audio []byte) error {
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	} else if !c.device.IsStarted() {
		return fmt.Errorf("device not started")
	}

	c.audioMu.Lock()
	defer c.audioMu.Unlock()
	c.pending = append(c.pending, audio...)
	return nil
}

// ClearBuffer drops queued audio. Pending marks fire immediately so waiting
// speakers are released.
func (c *playbackClient) ClearBuffer() {
	c.audioMu.Lock()
	c.pending = nil
	dropped := c.marks
	c.marks = nil
	c.audioMu.Unlock()

	go fireMarks(dropped)
}

// Mark calls callback once every byte queued before it has been played.
func (c *playbackClient) Mark(name string, callback func(string)) error {
	c.audioMu.Lock()
	defer c.audioMu.Unlock()
	c.marks = append(c.marks, playbackMark{
		name:     name,
		position: len(c.pending),
		callback: callback,
	})
	return nil
}

func (c *playbackClient) Uninit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}

	c.device.Uninit()
	c.device = nil

	return nil
}

func (c *playbackClient) processAudio(bytesPerFrame int) malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		need := int(frameCount) * bytesPerFrame

		c.audioMu.Lock()
		n := min(need, len(c.pending))
		copy(pOutput, c.pending[:n])
		c.pending = c.pending[n:]
		passed := c.advanceMarks(need)
		c.audioMu.Unlock()

		if n > 0 && c.gain != nil {
			audio.ScaleLinear16(pOutput[:n], c.gain.Gain())
		}
		if len(passed) > 0 {
			go fireMarks(passed)
		}
	}
}

// advanceMarks must be called with audioMu held.
func (c *playbackClient) advanceMarks(played int) []playbackMark {
	passed := 0
	for i := range c.marks {
		if c.marks[i].position <= played {
			passed++
			continue
		}
		c.marks[i].position -= played
	}
	if passed == 0 {
		return nil
	}

	toCall := c.marks[:passed]
	c.marks = c.marks[passed:]
	return toCall
}

func fireMarks(marks []playbackMark) {
	for _, mark := range marks {
		if mark.callback != nil {
			mark.callback(mark.name)
		}
	}
}
