package rtconsole

import (
	"fmt"
	"log/slog"
	"os"
	"time"
)

const (
	ApiKeyEnvVarNameShort = "OPENAI_KEY"
	ApiKeyEnvVarNameLong  = "OPENAI_API_KEY"
)

// TurnMode is the turn-detection policy: manual push-to-talk or
// server-driven voice activity detection.
type TurnMode string

const (
	TurnModeNone      TurnMode = "none"
	TurnModeServerVAD TurnMode = "server_vad"
)

type config struct {
	model              string
	apiKey             string
	url                string
	instruction        string
	greeting           string
	voice              string
	temperature        float64
	transcriptionModel string
	turnMode           TurnMode
	latencyMS          int
	logger             *slog.Logger
}

func (c *config) latency() time.Duration {
	return time.Duration(c.latencyMS) * time.Millisecond
}

func (c *config) validate() error {
	if c.apiKey == "" {
		return fmt.Errorf("missing api key")
	}
	switch c.turnMode {
	case TurnModeNone, TurnModeServerVAD:
	default:
		return fmt.Errorf("invalid turn mode: %q", c.turnMode)
	}
	if c.temperature < 0 || c.temperature > 1 {
		return fmt.Errorf("temperature out of range: %f", c.temperature)
	}
	return nil
}

type Option func(*config)

func WithVoice(voice string) Option {
	return func(c *config) {
		c.voice = voice
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

func WithDefaultLogger() Option {
	return WithLogger(slog.Default())
}

func WithTemperature(temperature float64) Option {
	return func(c *config) {
		c.temperature = temperature
	}
}

func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

func WithURL(url string) Option {
	return func(c *config) {
		c.url = url
	}
}

func WithKey(apiKey string) Option {
	return func(c *config) {
		c.apiKey = apiKey
	}
}

func WithEnvKey(vars ...string) Option {
	return func(c *config) {
		for _, envVarName := range vars {
			if k := os.Getenv(envVarName); k != "" {
				c.apiKey = k
				return
			}
		}
	}
}

func WithInstruction(instruction string) Option {
	return func(c *config) {
		c.instruction = instruction
	}
}

// WithGreeting sets the user message sent right after connecting so the
// agent speaks first.
func WithGreeting(greeting string) Option {
	return func(c *config) {
		c.greeting = greeting
	}
}

func WithTranscriptionModel(model string) Option {
	return func(c *config) {
		c.transcriptionModel = model
	}
}

func WithTurnMode(mode TurnMode) Option {
	return func(c *config) {
		c.turnMode = mode
	}
}

// WithLatency sets the audio chunking latency in milliseconds.
func WithLatency(latencyMS int) Option {
	return func(c *config) {
		c.latencyMS = latencyMS
	}
}

func WithOptions(opts ...Option) Option {
	return func(c *config) {
		for _, opt := range opts {
			opt(c)
		}
	}
}

func withDefaults() Option {
	return WithOptions(
		WithLogger(slog.New(slog.DiscardHandler)),
		WithVoice("alloy"),
		WithInstruction("You are a helpful, witty assistant. Speak quickly as if excited."),
		WithGreeting("Hello!"),
		WithTemperature(0.8),
		WithTranscriptionModel("whisper-1"),
		WithTurnMode(TurnModeNone),
		WithLatency(200),
		WithModel("gpt-4o-realtime-preview-2024-10-01"),
		WithURL("wss://api.openai.com/v1/realtime"),
		WithEnvKey(ApiKeyEnvVarNameShort, ApiKeyEnvVarNameLong),
	)
}
