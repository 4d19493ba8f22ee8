package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g.
// VOICELOOP_SERVICE_MAX_TRIES.
const EnvPrefix = "VOICELOOP"

const (
	RecognizerDeepgram = "deepgram"
	RecognizerVosk     = "vosk"

	SynthesizerDeepgram = "deepgram"
	SynthesizerPolly    = "polly"

	AudioMiniaudio = "miniaudio"
	AudioPortaudio = "portaudio"
)

// Config represents the application configuration
type Config struct {
	Service     ServiceConfig     `yaml:"service" mapstructure:"service"`
	Recognizer  RecognizerConfig  `yaml:"recognizer" mapstructure:"recognizer"`
	Synthesizer SynthesizerConfig `yaml:"synthesizer" mapstructure:"synthesizer"`
	Audio       AudioConfig       `yaml:"audio" mapstructure:"audio"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Hotkey      HotkeyConfig      `yaml:"hotkey" mapstructure:"hotkey"`
}

// ServiceConfig tunes the confirmation protocol and the speaker voice.
type ServiceConfig struct {
	MaxTries        int           `yaml:"max_tries" mapstructure:"max_tries"`
	CaptureWindow   time.Duration `yaml:"capture_window" mapstructure:"capture_window"`
	Cooldown        time.Duration `yaml:"cooldown" mapstructure:"cooldown"`
	Acknowledgement string        `yaml:"acknowledgement" mapstructure:"acknowledgement"`
	FailureNotice   string        `yaml:"failure_notice" mapstructure:"failure_notice"`
	Pitch           float64       `yaml:"pitch" mapstructure:"pitch"`
	Rate            float64       `yaml:"rate" mapstructure:"rate"`
}

type RecognizerConfig struct {
	Engine     string `yaml:"engine" mapstructure:"engine"`
	ModelPath  string `yaml:"model_path" mapstructure:"model_path"`
	SampleRate int    `yaml:"sample_rate" mapstructure:"sample_rate"`
	Model      string `yaml:"model" mapstructure:"model"`
	Language   string `yaml:"language" mapstructure:"language"`
}

type SynthesizerConfig struct {
	Engine string `yaml:"engine" mapstructure:"engine"`
	Voice  string `yaml:"voice" mapstructure:"voice"`
	Region string `yaml:"region" mapstructure:"region"`

	// PollyVoice replaces Voice for Polly, whose voices are named like
	// "Joanna".
	PollyVoice  string `yaml:"polly_voice" mapstructure:"polly_voice"`
	// PollyEngine is "standard" or "neural".
	PollyEngine string `yaml:"polly_engine" mapstructure:"polly_engine"`
}

type AudioConfig struct {
	Backend    string  `yaml:"backend" mapstructure:"backend"`
	BufferSize int     `yaml:"buffer_size" mapstructure:"buffer_size"`
	DuckLevel  float64 `yaml:"duck_level" mapstructure:"duck_level"`
	VolumeStep float64 `yaml:"volume_step" mapstructure:"volume_step"`
}

type ServerConfig struct {
	Address string `yaml:"address" mapstructure:"address"`
}

type HotkeyConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Keys    string `yaml:"keys" mapstructure:"keys"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Service.MaxTries = 20
	cfg.Service.CaptureWindow = 4 * time.Second
	cfg.Service.Cooldown = 3 * time.Second
	cfg.Service.Acknowledgement = "Okay."
	cfg.Service.FailureNotice = "Sorry, I could not confirm that."
	cfg.Service.Pitch = 1
	cfg.Service.Rate = 1

	cfg.Recognizer.Engine = RecognizerDeepgram
	cfg.Recognizer.SampleRate = 16000
	cfg.Recognizer.Model = "nova-3"
	cfg.Recognizer.Language = "en-US"

	cfg.Synthesizer.Engine = SynthesizerDeepgram
	cfg.Synthesizer.Voice = "aura-2-thalia-en"
	cfg.Synthesizer.Region = "us-east-1"
	cfg.Synthesizer.PollyVoice = "Joanna"
	cfg.Synthesizer.PollyEngine = "standard"

	cfg.Audio.Backend = AudioMiniaudio
	cfg.Audio.BufferSize = 1024
	cfg.Audio.DuckLevel = 0.3
	cfg.Audio.VolumeStep = 0.1

	cfg.Server.Address = "localhost:8080"

	cfg.Hotkey.Enabled = false
	cfg.Hotkey.Keys = "ctrl+shift+space"

	return cfg
}

// Load reads the configuration at path, or only the defaults when path is
// empty, and applies VOICELOOP_* environment overrides on top.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithFallback attempts to load configuration from multiple locations
// Priority: explicit path > ~/.voiceloop.yaml > defaults
func LoadWithFallback(explicitPath string) (*Config, error) {
	if explicitPath != "" {
		return Load(explicitPath)
	}

	if path, ok := UserConfigPath(); ok {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return Load("")
}

// UserConfigPath is where `config init` writes by default.
func UserConfigPath() (string, bool) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", false
	}
	return filepath.Join(homeDir, ".voiceloop.yaml"), true
}

// LoadEnv loads .env files into the process environment. Missing files are
// skipped; existing variables are not overridden.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func (c *Config) Validate() error {
	var problems []string
	if c.Service.MaxTries <= 0 {
		problems = append(problems, "service.max_tries must be positive")
	}
	if c.Service.CaptureWindow <= 0 {
		problems = append(problems, "service.capture_window must be positive")
	}
	if c.Service.Cooldown <= 0 {
		problems = append(problems, "service.cooldown must be positive")
	}
	if c.Service.Pitch < 0 || c.Service.Rate < 0 {
		problems = append(problems, "service.pitch and service.rate must not be negative")
	}

	switch c.Recognizer.Engine {
	case RecognizerDeepgram:
	case RecognizerVosk:
		if c.Recognizer.ModelPath == "" {
			problems = append(problems, "recognizer.model_path is required for vosk")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown recognizer.engine %q", c.Recognizer.Engine))
	}
	if c.Recognizer.SampleRate <= 0 {
		problems = append(problems, "recognizer.sample_rate must be positive")
	}

	switch c.Synthesizer.Engine {
	case SynthesizerDeepgram, SynthesizerPolly:
	default:
		problems = append(problems, fmt.Sprintf("unknown synthesizer.engine %q", c.Synthesizer.Engine))
	}

	switch c.Audio.Backend {
	case AudioMiniaudio, AudioPortaudio:
	default:
		problems = append(problems, fmt.Sprintf("unknown audio.backend %q", c.Audio.Backend))
	}
	if c.Audio.BufferSize <= 0 {
		problems = append(problems, "audio.buffer_size must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// setDefaults registers every key with viper so environment overrides reach
// keys missing from the file.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("service.max_tries", cfg.Service.MaxTries)
	v.SetDefault("service.capture_window", cfg.Service.CaptureWindow)
	v.SetDefault("service.cooldown", cfg.Service.Cooldown)
	v.SetDefault("service.acknowledgement", cfg.Service.Acknowledgement)
	v.SetDefault("service.failure_notice", cfg.Service.FailureNotice)
	v.SetDefault("service.pitch", cfg.Service.Pitch)
	v.SetDefault("service.rate", cfg.Service.Rate)

	v.SetDefault("recognizer.engine", cfg.Recognizer.Engine)
	v.SetDefault("recognizer.model_path", cfg.Recognizer.ModelPath)
	v.SetDefault("recognizer.sample_rate", cfg.Recognizer.SampleRate)
	v.SetDefault("recognizer.model", cfg.Recognizer.Model)
	v.SetDefault("recognizer.language", cfg.Recognizer.Language)

	v.SetDefault("synthesizer.engine", cfg.Synthesizer.Engine)
	v.SetDefault("synthesizer.voice", cfg.Synthesizer.Voice)
	v.SetDefault("synthesizer.region", cfg.Synthesizer.Region)
	v.SetDefault("synthesizer.polly_voice", cfg.Synthesizer.PollyVoice)
	v.SetDefault("synthesizer.polly_engine", cfg.Synthesizer.PollyEngine)

	v.SetDefault("audio.backend", cfg.Audio.Backend)
	v.SetDefault("audio.buffer_size", cfg.Audio.BufferSize)
	v.SetDefault("audio.duck_level", cfg.Audio.DuckLevel)
	v.SetDefault("audio.volume_step", cfg.Audio.VolumeStep)

	v.SetDefault("server.address", cfg.Server.Address)

	v.SetDefault("hotkey.enabled", cfg.Hotkey.Enabled)
	v.SetDefault("hotkey.keys", cfg.Hotkey.Keys)
}
