package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-voiceloop/core/audio"
	"github.com/koscakluka/ema-voiceloop/core/speechtotext"
	"go.opentelemetry.io/otel/codes"
)

func (c *RecognitionClient) StartListening(ctx context.Context, opts ...speechtotext.ListeningOption) error {
	ctx, span := tracer.Start(ctx, "deepgram.start_listening")
	defer span.End()

	options := speechtotext.NewListeningOptions(opts...)
	encoding, err := convertEncoding(options.EncodingInfo)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("invalid encoding: %w", err)
	}

	c.optionsMu.Lock()
	c.options = options
	c.optionsMu.Unlock()
	c.resetTranscript()

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		conn, err := c.connectWebsocket(ctx, connectionOptions{
			sampleRate: encoding.SampleRate,
			encoding:   encoding.Format.Name(),
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("failed to open websocket: %w", err)
		}

		// The stream outlives the call that opened it, so it gets its own
		// context, cancelled by Close.
		streamCtx, cancel := context.WithCancel(context.Background())
		c.conn = conn
		c.cancel = cancel
		c.lastMsgTs = time.Now()
		go c.readAndProcessMessages(streamCtx, conn, options.EncodingInfo)
	}

	c.listening.Store(true)
	return nil
}

func (c *RecognitionClient) StopListening() error {
	c.listening.Store(false)
	c.resetTranscript()
	return nil
}

func (c *RecognitionClient) Close() error {
	c.listening.Store(false)

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.conn == nil {
		return nil
	}

	err := c.conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: string(api.TypeCloseStreamResponse)})
	_ = c.conn.Close()
	c.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close deepgram stream: %w", err)
	}
	return nil
}

type connectionOptions struct {
	sampleRate int
	encoding   string
}

func (c *RecognitionClient) connectWebsocket(ctx context.Context, options connectionOptions) (*websocket.Conn, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	listenUrl, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid deepgram endpoint: %w", err)
	}
	queryParams := listenUrl.Query()
	queryParams.Set("encoding", options.encoding)
	queryParams.Set("sample_rate", strconv.Itoa(options.sampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", c.model)
	queryParams.Set("language", c.language)
	queryParams.Set("smart_format", "true")
	queryParams.Set("utterance_end_ms", "1000")
	queryParams.Set("interim_results", "true")
	queryParams.Set("endpointing", "300")
	queryParams.Set("vad_events", "true")

	listenUrl.RawQuery = queryParams.Encode()
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, listenUrl.String(),
		http.Header{"Authorization": {"Token " + c.apiKey}})
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: deepgram returned %s", speechtotext.ErrPermissionDenied, resp.Status)
		}
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

func (c *RecognitionClient) sendKeepAlive() {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return
	}

	if err := c.conn.WriteJSON(
		struct {
			Type string `json:"type"`
		}{
			Type: "KeepAlive",
		}); err != nil {
		logger.Warn("failed to write keep alive to deepgram", "error", err)
	}
}

// SendAudio forwards captured audio while listening and drops it otherwise.
func (c *RecognitionClient) SendAudio(audio []byte) error {
	if !c.listening.Load() {
		return nil
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return speechtotext.ErrNotListening
	}

	c.lastMsgTs = time.Now()
	if err := c.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fmt.Errorf("failed to write to deepgram client: %w", err)
	}
	return nil
}

func (c *RecognitionClient) sendSilence(audio []byte) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return nil
	}

	if err := c.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fmt.Errorf("failed to write to deepgram client: %w", err)
	}
	return nil
}

func (c *RecognitionClient) sinceLastMessage() time.Duration {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return time.Since(c.lastMsgTs)
}

func (c *RecognitionClient) readAndProcessMessages(ctx context.Context, conn *websocket.Conn, encoding audio.EncodingInfo) {
	silenceCtx, silenceCancel := context.WithCancel(ctx)
	defer silenceCancel()

	go c.generateSilence(silenceCtx, encoding)

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			c.connMu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.connMu.Unlock()
			_ = conn.Close()

			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return
			}
			logger.Warn("failed to read deepgram websocket message", "error", err)
			if c.listening.CompareAndSwap(true, false) {
				c.currentOptions().ErrorCallback(fmt.Errorf("deepgram stream ended: %w", err))
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			c.processMessage(msg)
		}
	}
}

var errEmptyMessageType = errors.New("deepgram message without type")

func (c *RecognitionClient) processMessage(msg []byte) error {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.Warn("failed to unmarshal deepgram message", "error", err)
		return err
	}
	if parsedMsg.Type == "" {
		return errEmptyMessageType
	}
	if !c.listening.Load() {
		return nil
	}
	options := c.currentOptions()

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			logger.Warn("failed to unmarshal deepgram results", "error", err)
			return err
		}
		transcript := ""
		if len(msgResp.Channel.Alternatives) > 0 {
			transcript = strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript)
		}
		if msgResp.IsFinal {
			if len(transcript) > 0 {
				c.transcriptMu.Lock()
				c.accumulatedTranscript += " " + transcript
				c.transcriptMu.Unlock()
			}
			if msgResp.SpeechFinal {
				c.onSpeechEnded(options)
			}
		} else if len(transcript) > 0 {
			c.transcriptMu.Lock()
			interim := strings.TrimSpace(c.accumulatedTranscript + " " + transcript)
			c.transcriptMu.Unlock()
			options.PartialResultCallback(interim)
		}

	case api.TypeUtteranceEndResponse:
		c.transcriptMu.Lock()
		unended := c.unendedSegment
		c.transcriptMu.Unlock()
		if unended {
			c.onSpeechEnded(options)
		}

	case api.TypeSpeechStartedResponse:
		c.transcriptMu.Lock()
		c.unendedSegment = true
		c.transcriptMu.Unlock()
		options.SpeechStartedCallback()
	}

	return nil
}

func (c *RecognitionClient) onSpeechEnded(options speechtotext.ListeningOptions) {
	c.transcriptMu.Lock()
	c.unendedSegment = false
	fullTranscript := strings.TrimSpace(c.accumulatedTranscript)
	c.accumulatedTranscript = ""
	c.transcriptMu.Unlock()

	if len(fullTranscript) > 0 {
		options.ResultCallback(fullTranscript)
	}
}

func (c *RecognitionClient) resetTranscript() {
	c.transcriptMu.Lock()
	defer c.transcriptMu.Unlock()
	c.accumulatedTranscript = ""
	c.unendedSegment = false
}

func (c *RecognitionClient) generateSilence(ctx context.Context, encoding audio.EncodingInfo) {
	type silenceGeneratorState string
	const (
		silenceGeneratorStateWaiting   silenceGeneratorState = "waiting"
		silenceGeneratorStateSilence   silenceGeneratorState = "silence"
		silenceGeneratorStateKeepAlive silenceGeneratorState = "keepAlive"
	)

	const durationMs = 50
	const milisecondsPerSecond = 1000
	ticker := time.NewTicker(durationMs * time.Millisecond)
	defer ticker.Stop()

	chunk := make([]byte, encoding.BytesPerSecond()*durationMs/milisecondsPerSecond)
	for i := range chunk {
		chunk[i] = encoding.SilenceValue()
	}

	var state = silenceGeneratorStateWaiting
	var firstSilenceTime time.Time
	var lastKeepAliveTime time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			quiet := c.sinceLastMessage() > durationMs*time.Millisecond
			switch state {
			case silenceGeneratorStateWaiting:
				if quiet {
					state = silenceGeneratorStateSilence
					firstSilenceTime = time.Now()
				}

			case silenceGeneratorStateSilence:
				if !quiet {
					state = silenceGeneratorStateWaiting
					continue
				}
				if time.Since(firstSilenceTime) >= time.Second {
					state = silenceGeneratorStateKeepAlive
					lastKeepAliveTime = time.Now()
					continue
				}

				if err := c.sendSilence(chunk); err != nil {
					logger.Warn("sending silence audio failed", "error", err)
				}

			case silenceGeneratorStateKeepAlive:
				if !quiet {
					state = silenceGeneratorStateWaiting
					continue
				}

				if time.Since(lastKeepAliveTime) >= 5*time.Second {
					lastKeepAliveTime = time.Now()
					c.sendKeepAlive()
				}
			}
		}
	}
}
