package deepgram

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-voiceloop/core/audio"
	"github.com/koscakluka/ema-voiceloop/core/texttospeech"
)

type deepgramVoice string

const defaultVoice deepgramVoice = "aura-2-thalia-en"

func GetAvailableVoices() []deepgramVoice {
	return []deepgramVoice{
		"aura-2-thalia-en",
		"aura-2-andromeda-en",
		"aura-2-helena-en",
		"aura-2-apollo-en",
		"aura-2-arcas-en",
		"aura-asteria-en",
		"aura-orion-en",
	}
}

func ParseVoice(name string) (deepgramVoice, error) {
	if name == "" {
		return defaultVoice, nil
	}
	voice := deepgramVoice(name)
	if !slices.Contains(GetAvailableVoices(), voice) {
		return "", fmt.Errorf("invalid voice %q", name)
	}
	return voice, nil
}

// SpeechClient speaks through Deepgram's streaming speak API and plays the
// audio through a Player. Utterances are rendered one at a time; the
// websocket is reused between them.
type SpeechClient struct {
	apiKey       string
	host         string
	scheme       string
	voice        deepgramVoice
	player       texttospeech.Player
	encodingInfo audio.EncodingInfo

	queue *texttospeech.UtteranceQueue

	conn       *websocket.Conn
	connEvents chan connEvent
	// discarding drops audio that belongs to a cleared utterance until the
	// server confirms the clear.
	discarding bool
	connMu     sync.Mutex
}

type SpeechClientOption func(*SpeechClient)

func WithAPIKey(apiKey string) SpeechClientOption {
	return func(c *SpeechClient) {
		c.apiKey = apiKey
	}
}

// WithHost points the client at another speak endpoint, scheme being ws or
// wss.
func WithHost(scheme, host string) SpeechClientOption {
	return func(c *SpeechClient) {
		c.scheme = scheme
		c.host = host
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) SpeechClientOption {
	return func(c *SpeechClient) {
		c.encodingInfo = encodingInfo
	}
}

func NewSpeechClient(voice deepgramVoice, player texttospeech.Player, opts ...SpeechClientOption) (*SpeechClient, error) {
	if player == nil {
		return nil, fmt.Errorf("player is required")
	}
	if voice == "" {
		voice = defaultVoice
	}
	if !slices.Contains(GetAvailableVoices(), voice) {
		return nil, fmt.Errorf("invalid voice")
	}

	client := &SpeechClient{
		apiKey:       os.Getenv("DEEPGRAM_API_KEY"),
		scheme:       "wss",
		host:         "api.deepgram.com",
		voice:        voice,
		player:       player,
		encodingInfo: audio.GetDefaultEncodingInfo(),
	}
	for _, opt := range opts {
		opt(client)
	}
	client.queue = texttospeech.NewUtteranceQueue(client.render)

	return client, nil
}

func (c *SpeechClient) Speak(_ context.Context, text string, opts ...texttospeech.SpeakOption) error {
	return c.queue.Enqueue(text, texttospeech.NewSpeakOptions(opts...))
}

func (c *SpeechClient) Stop() error {
	c.queue.Flush()
	return nil
}

func (c *SpeechClient) Close() error {
	c.queue.Close()

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return nil
	}
	_ = c.conn.WriteJSON(closeMsg)
	err := c.conn.Close()
	c.conn = nil
	return err
}
