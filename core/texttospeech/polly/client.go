// Package polly speaks through Amazon Polly. Pitch and rate map onto SSML
// prosody.
package polly

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"
	"github.com/koscakluka/ema-voiceloop/core/audio"
	"github.com/koscakluka/ema-voiceloop/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrRejected marks utterances Polly refused, retrying them is pointless.
	ErrRejected = errors.New("polly rejected the utterance")
	// ErrUnavailable marks throttling, credential and service failures.
	ErrUnavailable = errors.New("polly unavailable")
)

type synthClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

type Config struct {
	Region  string
	VoiceID string
	Engine  string
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Region) == "" {
		c.Region = "us-east-1"
	}
	if strings.TrimSpace(c.VoiceID) == "" {
		c.VoiceID = "Joanna"
	}
	if strings.TrimSpace(c.Engine) == "" {
		c.Engine = "standard"
	}
	return c
}

// chunkSize is ~100ms of 16 kHz linear16 audio.
const chunkSize = 3200

type SpeechClient struct {
	cfg    Config
	player texttospeech.Player

	client   synthClient
	clientMu sync.Mutex

	queue *texttospeech.UtteranceQueue
}

func NewSpeechClient(cfg Config, player texttospeech.Player) (*SpeechClient, error) {
	return newSpeechClientWith(cfg, player, nil)
}

func newSpeechClientWith(cfg Config, player texttospeech.Player, client synthClient) (*SpeechClient, error) {
	if player == nil {
		return nil, fmt.Errorf("player is required")
	}
	speechClient := &SpeechClient{cfg: cfg.withDefaults(), player: player, client: client}
	speechClient.queue = texttospeech.NewUtteranceQueue(speechClient.render)
	return speechClient, nil
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
	return nil
}

func (c *SpeechClient) resolveClient(ctx context.Context) (synthClient, error) {
	c.clientMu.Lock()
	defer c.clientMu.Unlock()

	if c.client != nil {
		return c.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(c.cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %v", ErrUnavailable, err)
	}
	c.client = polly.NewFromConfig(awsCfg)
	return c.client, nil
}

func (c *SpeechClient) neural() bool {
	return strings.EqualFold(c.cfg.Engine, "neural")
}

func (c *SpeechClient) render(ctx context.Context, text string, options texttospeech.SpeakOptions) error {
	ctx, span := tracer.Start(ctx, "polly.speak", trace.WithAttributes(
		attribute.String("utterance_id", options.UtteranceID),
		attribute.String("voice", c.cfg.VoiceID),
	))
	defer span.End()

	err := c.synthesizeAndPlay(ctx, text, options)
	if err != nil && ctx.Err() == nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *SpeechClient) synthesizeAndPlay(ctx context.Context, text string, options texttospeech.SpeakOptions) error {
	client, err := c.resolveClient(ctx)
	if err != nil {
		return err
	}

	engine := pollytypes.EngineStandard
	if c.neural() {
		engine = pollytypes.EngineNeural
	}

	output, err := client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:       engine,
		OutputFormat: pollytypes.OutputFormatPcm,
		SampleRate:   aws.String(fmt.Sprint(audio.DefaultSampleRate)),
		Text:         aws.String(buildSSML(text, options.Voice, !c.neural())),
		TextType:     pollytypes.TextTypeSsml,
		VoiceId:      pollytypes.VoiceId(c.cfg.VoiceID),
	})
	if err != nil {
		return classifyError(err)
	}
	if output == nil || output.AudioStream == nil {
		return fmt.Errorf("%w: empty audio stream", ErrUnavailable)
	}
	defer output.AudioStream.Close()

	buffer := make([]byte, chunkSize)
	for {
		if ctx.Err() != nil {
			c.player.ClearBuffer()
			return ctx.Err()
		}
		n, readErr := io.ReadFull(output.AudioStream, buffer)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buffer[:n])
			if err := c.player.SendAudio(chunk); err != nil {
				return fmt.Errorf("failed to play polly audio: %w", err)
			}
		}
		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			break
		}
		if readErr != nil {
			return fmt.Errorf("failed to read polly audio: %w", readErr)
		}
	}

	return texttospeech.AwaitPlayback(ctx, c.player, options.UtteranceID)
}

func classifyError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "InvalidSsmlException", "TextLengthExceededException", "LexiconNotFoundException", "InvalidSampleRateException":
			return fmt.Errorf("%w (%s): %v", ErrRejected, apiErr.ErrorCode(), err)
		default:
			return fmt.Errorf("%w (%s): %v", ErrUnavailable, apiErr.ErrorCode(), err)
		}
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
