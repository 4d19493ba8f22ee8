package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-voiceloop/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type websocketMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

var (
	flushMsg = websocketMessage{Type: "Flush"}
	clearMsg = websocketMessage{Type: "Clear"}
	closeMsg = websocketMessage{Type: "Close"}
)

func sendTextMsg(text string) websocketMessage {
	return websocketMessage{Type: "Speak", Text: text}
}

type connEvent struct {
	flushed bool
	err     error
}

func (c *SpeechClient) render(ctx context.Context, text string, options texttospeech.SpeakOptions) error {
	ctx, span := tracer.Start(ctx, "deepgram.speak", trace.WithAttributes(
		attribute.String("utterance_id", options.UtteranceID),
	))
	defer span.End()

	if !options.Voice.IsDefault() {
		logger.Debug("deepgram voices ignore pitch and rate", "pitch", options.Voice.Pitch, "rate", options.Voice.Rate)
	}

	events, err := c.send(sendTextMsg(text), flushMsg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	select {
	case event := <-events:
		if event.err != nil {
			span.RecordError(event.err)
			span.SetStatus(codes.Error, event.err.Error())
			return event.err
		}
	case <-ctx.Done():
		c.clear()
		return ctx.Err()
	}

	if err := texttospeech.AwaitPlayback(ctx, c.player, options.UtteranceID); err != nil {
		c.clear()
		return err
	}
	return nil
}

// send writes msgs on the shared connection, dialing it first if needed.
func (c *SpeechClient) send(msgs ...websocketMessage) (<-chan connEvent, error) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		conn, err := c.connectWebsocket()
		if err != nil {
			return nil, fmt.Errorf("failed to open websocket: %w", err)
		}
		c.conn = conn
		c.connEvents = make(chan connEvent, 1)
		c.discarding = false
		go c.processIncomingMessages(conn, c.connEvents)
	}

	// a flush of an interrupted utterance may still be buffered
	select {
	case event := <-c.connEvents:
		if event.err != nil {
			return nil, event.err
		}
	default:
	}

	for _, msg := range msgs {
		if err := c.conn.WriteJSON(msg); err != nil {
			_ = c.conn.Close()
			c.conn = nil
			return nil, fmt.Errorf("failed to send %s message: %w", msg.Type, err)
		}
	}
	return c.connEvents, nil
}

func (c *SpeechClient) clear() {
	c.player.ClearBuffer()

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return
	}
	c.discarding = true
	if err := c.conn.WriteJSON(clearMsg); err != nil {
		logger.Warn("failed to clear deepgram speech", "error", err)
	}
}

func (c *SpeechClient) connectWebsocket() (*websocket.Conn, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	urlValues := url.Values{}
	urlValues.Set("encoding", c.encodingInfo.Format.Name())
	urlValues.Set("sample_rate", strconv.Itoa(c.encodingInfo.SampleRate))
	urlValues.Set("model", string(c.voice))
	urlValues.Set("container", "none")

	conn, _, err := websocket.DefaultDialer.Dial(
		(&url.URL{
			Scheme: c.scheme,
			Host:   c.host, Path: "/v1/speak",
			RawQuery: urlValues.Encode(),
		}).String(),
		http.Header{"Authorization": {"token " + c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

func (c *SpeechClient) processIncomingMessages(conn *websocket.Conn, events chan<- connEvent) {
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			c.connMu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.connMu.Unlock()

			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.Warn("deepgram speak websocket read failed", "error", err)
			}
			select {
			case events <- connEvent{err: fmt.Errorf("deepgram speak stream ended: %w", err)}:
			default:
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			c.connMu.Lock()
			discarding := c.discarding
			c.connMu.Unlock()
			if discarding {
				continue
			}
			if err := c.player.SendAudio(msg); err != nil {
				logger.Warn("failed to play deepgram audio", "error", err)
			}

		case websocket.TextMessage:
			var parsedMsg websocketMessage
			if err := json.Unmarshal(msg, &parsedMsg); err != nil {
				logger.Debug("failed to unmarshal deepgram message", "error", err)
				continue
			}

			switch parsedMsg.Type {
			case "Flushed":
				c.connMu.Lock()
				discarding := c.discarding
				c.connMu.Unlock()
				if discarding {
					continue
				}
				select {
				case events <- connEvent{flushed: true}:
				default:
				}
			case "Cleared":
				c.connMu.Lock()
				c.discarding = false
				c.connMu.Unlock()
			case "Warning":
				logger.Warn("deepgram speak warning", "message", string(msg))
			}
		}
	}
}
