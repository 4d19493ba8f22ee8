package main

import (
	"context"
	"fmt"

	orchestration "github.com/koscakluka/ema-voiceloop/core"
	"github.com/koscakluka/ema-voiceloop/core/audio"
	"github.com/koscakluka/ema-voiceloop/core/audio/miniaudio"
	"github.com/koscakluka/ema-voiceloop/core/audio/portaudio"
	deepgramstt "github.com/koscakluka/ema-voiceloop/core/speechtotext/deepgram"
	"github.com/koscakluka/ema-voiceloop/core/speechtotext/vosk"
	"github.com/koscakluka/ema-voiceloop/core/texttospeech"
	deepgramtts "github.com/koscakluka/ema-voiceloop/core/texttospeech/deepgram"
	"github.com/koscakluka/ema-voiceloop/core/texttospeech/polly"
	"github.com/koscakluka/ema-voiceloop/internal/commands"
	"github.com/koscakluka/ema-voiceloop/internal/config"
)

// audioBackend is a device that both captures for the recognizer and plays
// for the synthesizer.
type audioBackend interface {
	orchestration.AudioInput
	texttospeech.Player
	EncodingInfo() audio.EncodingInfo
	Close()
}

// voiceloop is a fully wired orchestrator and the dispatcher driving it.
type voiceloop struct {
	cfg          *config.Config
	orchestrator *orchestration.Orchestrator
	dispatcher   *commands.Dispatcher
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithFallback(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newVoiceloop builds the engines named by the config. serviceCtx bounds
// the service once a host starts it.
func newVoiceloop(serviceCtx context.Context, cfg *config.Config) (*voiceloop, error) {
	focus := audio.NewSoftwareFocus(
		audio.WithDuckLevel(cfg.Audio.DuckLevel),
		audio.WithVolumeStep(cfg.Audio.VolumeStep),
	)

	backend, err := newAudioBackend(cfg, focus)
	if err != nil {
		return nil, err
	}

	recognizer, err := newRecognizer(cfg)
	if err != nil {
		backend.Close()
		return nil, err
	}

	synthesizer, err := newSynthesizer(cfg, backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	orchestrator := orchestration.NewOrchestrator(
		orchestration.WithAudioInput(backend),
		orchestration.WithAudioFocus(focus),
		orchestration.WithSpeechRecognizer(recognizer),
		orchestration.WithSpeechSynthesizer(synthesizer),
		orchestration.WithMaxTries(cfg.Service.MaxTries),
		orchestration.WithVoiceCaptureWindow(cfg.Service.CaptureWindow),
		orchestration.WithCooldown(cfg.Service.Cooldown),
		orchestration.WithPhrases(cfg.Service.Acknowledgement, cfg.Service.FailureNotice),
		orchestration.WithSpeakerVoice(texttospeech.VoiceSettings{
			Pitch: cfg.Service.Pitch,
			Rate:  cfg.Service.Rate,
		}),
	)

	dispatcher, err := commands.NewDispatcher(serviceCtx, orchestrator)
	if err != nil {
		orchestrator.Close()
		return nil, err
	}

	return &voiceloop{cfg: cfg, orchestrator: orchestrator, dispatcher: dispatcher}, nil
}

func (v *voiceloop) Close() {
	v.orchestrator.Close()
}

func newAudioBackend(cfg *config.Config, focus *audio.SoftwareFocus) (audioBackend, error) {
	switch cfg.Audio.Backend {
	case config.AudioPortaudio:
		client, err := portaudio.NewClient(cfg.Audio.BufferSize, portaudio.WithGainSource(focus))
		if err != nil {
			return nil, fmt.Errorf("failed to open portaudio: %w", err)
		}
		return client, nil
	default:
		client, err := miniaudio.NewClient(
			miniaudio.WithGainSource(focus),
			miniaudio.WithSampleRate(cfg.Recognizer.SampleRate),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to open miniaudio: %w", err)
		}
		return client, nil
	}
}

func newRecognizer(cfg *config.Config) (orchestration.SpeechRecognizer, error) {
	switch cfg.Recognizer.Engine {
	case config.RecognizerVosk:
		recognizer, err := vosk.NewRecognizer(cfg.Recognizer.ModelPath, cfg.Recognizer.SampleRate)
		if err != nil {
			return nil, fmt.Errorf("failed to load vosk model: %w", err)
		}
		return recognizer, nil
	default:
		return deepgramstt.NewRecognitionClient(
			deepgramstt.WithModel(cfg.Recognizer.Model),
			deepgramstt.WithLanguage(cfg.Recognizer.Language),
		), nil
	}
}

func newSynthesizer(cfg *config.Config, backend audioBackend) (orchestration.SpeechSynthesizer, error) {
	switch cfg.Synthesizer.Engine {
	case config.SynthesizerPolly:
		client, err := polly.NewSpeechClient(polly.Config{
			Region:  cfg.Synthesizer.Region,
			VoiceID: cfg.Synthesizer.PollyVoice,
			Engine:  cfg.Synthesizer.PollyEngine,
		}, backend)
		if err != nil {
			return nil, fmt.Errorf("failed to create polly client: %w", err)
		}
		return client, nil
	default:
		voice, err := deepgramtts.ParseVoice(cfg.Synthesizer.Voice)
		if err != nil {
			return nil, err
		}
		client, err := deepgramtts.NewSpeechClient(voice, backend, deepgramtts.WithEncodingInfo(backend.EncodingInfo()))
		if err != nil {
			return nil, fmt.Errorf("failed to create deepgram speech client: %w", err)
		}
		return client, nil
	}
}
