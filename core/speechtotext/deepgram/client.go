package deepgram

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-voiceloop/core/speechtotext"
)

const defaultEndpoint = "wss://api.deepgram.com/v1/listen"

// RecognitionClient streams microphone audio to Deepgram and reports one
// transcript per utterance. The websocket stays open between listening
// turns; audio outside a turn is dropped and silence keeps the stream alive.
type RecognitionClient struct {
	apiKey   string
	endpoint string
	model    string
	language string

	conn   *websocket.Conn
	connMu sync.Mutex

	listening atomic.Bool

	options   speechtotext.ListeningOptions
	optionsMu sync.RWMutex

	lastMsgTs             time.Time
	accumulatedTranscript string
	unendedSegment        bool
	transcriptMu          sync.Mutex

	cancel context.CancelFunc
}

type RecognitionClientOption func(*RecognitionClient)

// WithAPIKey overrides DEEPGRAM_API_KEY.
func WithAPIKey(apiKey string) RecognitionClientOption {
	return func(c *RecognitionClient) {
		c.apiKey = apiKey
	}
}

func WithEndpoint(endpoint string) RecognitionClientOption {
	return func(c *RecognitionClient) {
		c.endpoint = endpoint
	}
}

func WithModel(model string) RecognitionClientOption {
	return func(c *RecognitionClient) {
		c.model = model
	}
}

func WithLanguage(language string) RecognitionClientOption {
	return func(c *RecognitionClient) {
		c.language = language
	}
}

func NewRecognitionClient(opts ...RecognitionClientOption) *RecognitionClient {
	client := &RecognitionClient{
		apiKey:   os.Getenv("DEEPGRAM_API_KEY"),
		endpoint: defaultEndpoint,
		model:    "nova-3",
		language: "en-US",
		options:  speechtotext.NewListeningOptions(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func (c *RecognitionClient) currentOptions() speechtotext.ListeningOptions {
	c.optionsMu.RLock()
	defer c.optionsMu.RUnlock()
	return c.options
}

func (c *RecognitionClient) IsListening() bool {
	return c.listening.Load()
}
