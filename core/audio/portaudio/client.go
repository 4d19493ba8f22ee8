package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/ema-voiceloop/core/audio"
)

// Client is a blocking duplex PortAudio stream. Stream reads the microphone
// until the context ends or StopCapture is called; SendAudio writes to the
// speaker synchronously.
type Client struct {
	bufferSize    int
	stream        *portaudio.Stream
	leftoverAudio []byte
	gain          audio.GainSource

	in  []int16
	out []int16

	capturing atomic.Bool
	stopCh    chan struct{}

	writeMu sync.Mutex
	startMu sync.Mutex
	started bool
}

type ClientOption func(*Client)

// WithGainSource scales every played sample by the source's gain.
func WithGainSource(source audio.GainSource) ClientOption {
	return func(c *Client) {
		c.gain = source
	}
}

func NewClient(bufferSize int, opts ...ClientOption) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	client := &Client{
		bufferSize: bufferSize,
		in:         make([]int16, bufferSize),
		out:        make([]int16, bufferSize),
	}
	for _, opt := range opts {
		opt(client)
	}

	stream, err := portaudio.OpenDefaultStream(1, 1, audio.DefaultSampleRate, bufferSize, client.in, client.out)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open portaudio stream: %w", err)
	}
	client.stream = stream

	return client, nil
}

func (c *Client) ensureStarted() error {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	if c.started {
		return nil
	}
	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("failed to start portaudio stream: %w", err)
	}
	c.started = true
	return nil
}

func (c *Client) Stream(ctx context.Context, onAudio func(audio []byte)) error {
	if !c.capturing.CompareAndSwap(false, true) {
		return nil
	}
	defer c.capturing.Store(false)

	if err := c.ensureStarted(); err != nil {
		return err
	}

	c.startMu.Lock()
	c.stopCh = make(chan struct{})
	stopCh := c.stopCh
	c.startMu.Unlock()

	logger.Info("microphone capture started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stopCh:
			return nil
		default:
			if err := c.stream.Read(); err != nil {
				logger.Warn("failed to read from portaudio stream", "error", err)
				continue
			}

			audioBuffer := bytes.Buffer{}
			_ = binary.Write(&audioBuffer, binary.LittleEndian, c.in)
			onAudio(audioBuffer.Bytes())
		}
	}
}

func (c *Client) StopCapture() error {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	if c.stopCh != nil {
		close(c.stopCh)
		c.stopCh = nil
	}
	return nil
}

func (c *Client) Close() {
	_ = c.StopCapture()
	_ = c.stream.Close()
	_ = portaudio.Terminate()
}

func (c *Client) SendAudio(audio []byte) error {
	if err := c.ensureStarted(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	bufferSize := c.bufferSize * 2
	audio = append(c.leftoverAudio, audio...)
	for len(audio) >= bufferSize {
		if err := c.writeChunk(audio[:bufferSize]); err != nil {
			return err
		}
		audio = audio[bufferSize:]
	}
	c.leftoverAudio = append([]byte(nil), audio...)

	return nil
}

func (c *Client) writeChunk(chunk []byte) error {
	if err := binary.Read(bytes.NewReader(chunk), binary.LittleEndian, c.out); err != nil {
		return fmt.Errorf("failed to decode audio chunk: %w", err)
	}
	if c.gain != nil {
		audio.ScaleInt16(c.out, c.gain.Gain())
	}
	if err := c.stream.Write(); err != nil {
		return fmt.Errorf("failed to write to portaudio stream: %w", err)
	}
	return nil
}

func (c *Client) ClearBuffer() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.leftoverAudio = nil
}

// Mark flushes the partial buffer padded with silence and then calls
// callback. Writes are blocking, so everything before the mark has been
// handed to the device when it fires.
func (c *Client) Mark(name string, callback func(string)) error {
	c.writeMu.Lock()
	var err error
	if len(c.leftoverAudio) > 0 {
		chunk := make([]byte, c.bufferSize*2)
		copy(chunk, c.leftoverAudio)
		c.leftoverAudio = nil
		err = c.writeChunk(chunk)
	}
	c.writeMu.Unlock()

	if callback != nil {
		callback(name)
	}
	return err
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: audio.DefaultSampleRate,
		Format:     audio.EncodingLinear16,
	}
}
