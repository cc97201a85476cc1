// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Preference store backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Config holds all application configuration.
type Config struct {
	DiscordToken  string `env:"DISCORD_TOKEN"`
	CommandPrefix string `env:"COMMAND_PREFIX" envDefault:"!"`

	HTTPPort string `env:"PORT" envDefault:"8080"`
	GRPCPort string `env:"GRPC_PORT" envDefault:"50051"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	Upstream    UpstreamConfig    `envPrefix:"GROQ_"`
	Voice       VoiceConfig       `envPrefix:"VOICE_"`
	Idle        IdleConfig        `envPrefix:"IDLE_"`
	Preferences PreferencesConfig `envPrefix:"PREFERENCES_"`
	RateLimit   RateLimitConfig   `envPrefix:"RATE_LIMIT_"`
	Admin       AdminConfig       `envPrefix:"ADMIN_"`

	HistoryLimit   int           `env:"HISTORY_LIMIT" envDefault:"20"`
	TypingInterval time.Duration `env:"TYPING_INTERVAL" envDefault:"1s"`
	ThinkPauseMax  time.Duration `env:"THINK_PAUSE_MAX" envDefault:"2s"`
	TempDir        string        `env:"TEMP_DIR"`
}

// UpstreamConfig controls the OpenAI-compatible chat and STT endpoints.
type UpstreamConfig struct {
	APIKey         string        `env:"API_KEY"`
	BaseURL        string        `env:"BASE_URL" envDefault:"https://api.groq.com/openai/v1/"`
	ChatModel      string        `env:"CHAT_MODEL" envDefault:"llama"`
	STTModel       string        `env:"STT_MODEL" envDefault:"whisper-large-v3"`
	Temperature    float64       `env:"TEMPERATURE" envDefault:"0.7"`
	MaxTokens      int64         `env:"MAX_TOKENS" envDefault:"2000"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s"`
	ProxyAddr      string        `env:"PROXY_ADDR"`
}

// VoiceConfig controls speech synthesis and playback.
type VoiceConfig struct {
	TTSBinary    string        `env:"TTS_BINARY" envDefault:"espeak-ng"`
	FFmpegBinary string        `env:"FFMPEG_BINARY" envDefault:"ffmpeg"`
	SpeechRate   float64       `env:"SPEECH_RATE" envDefault:"1.0"`
	MaxChars     int           `env:"MAX_CHARS" envDefault:"500"`
	Grace        time.Duration `env:"PLAYBACK_GRACE" envDefault:"5s"`
}

// IdleConfig controls the idle re-engagement sweep.
type IdleConfig struct {
	Interval    time.Duration `env:"INTERVAL" envDefault:"300s"`
	MinAge      time.Duration `env:"MIN_AGE" envDefault:"600s"`
	MaxAge      time.Duration `env:"MAX_AGE" envDefault:"1800s"`
	Probability float64       `env:"PROBABILITY" envDefault:"0.1"`
}

// PreferencesConfig selects and locates the preference store.
type PreferencesConfig struct {
	Backend string `env:"BACKEND" envDefault:"json"`
	Path    string `env:"PATH" envDefault:"user_preferences.json"`
	DBPath  string `env:"DB_PATH" envDefault:"./data/chatcord.db"`
}

// RateLimitConfig bounds how often one user can trigger a model call.
type RateLimitConfig struct {
	PerMinute float64 `env:"PER_MINUTE" envDefault:"20"`
	Burst     int     `env:"BURST" envDefault:"5"`
}

// AdminConfig protects the inspection API.
type AdminConfig struct {
	// Addr is the host the admin HTTP listener binds to.
	Addr string `env:"ADDR" envDefault:"127.0.0.1"`
	// Token, when set, must be presented as a bearer token on /api and /ws.
	// It is required unless Addr is a loopback host.
	Token          string   `env:"TOKEN"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
}

// ListenAddr returns the admin listener address for port.
func (a AdminConfig) ListenAddr(port string) string {
	return net.JoinHostPort(a.Addr, port)
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.DiscordToken == "" {
		return errors.New("DISCORD_TOKEN cannot be empty")
	}
	if c.Upstream.APIKey == "" {
		return errors.New("GROQ_API_KEY cannot be empty")
	}
	if c.HTTPPort == "" {
		return errors.New("PORT cannot be empty")
	}
	if c.Upstream.RequestTimeout <= 0 {
		return errors.New("GROQ_REQUEST_TIMEOUT must be > 0")
	}
	if c.Upstream.Temperature < 0.1 || c.Upstream.Temperature > 1.5 {
		return fmt.Errorf("GROQ_TEMPERATURE must be between 0.1 and 1.5, got %v", c.Upstream.Temperature)
	}
	if c.Voice.SpeechRate < 0.5 || c.Voice.SpeechRate > 2.0 {
		return fmt.Errorf("VOICE_SPEECH_RATE must be between 0.5 and 2.0, got %v", c.Voice.SpeechRate)
	}
	if c.HistoryLimit <= 0 {
		return errors.New("HISTORY_LIMIT must be > 0")
	}
	if c.TypingInterval <= 0 {
		return errors.New("TYPING_INTERVAL must be > 0")
	}
	if c.Idle.Interval <= 0 {
		return errors.New("IDLE_INTERVAL must be > 0")
	}
	if c.Idle.MinAge >= c.Idle.MaxAge {
		return errors.New("IDLE_MIN_AGE must be less than IDLE_MAX_AGE")
	}
	if c.Idle.Probability < 0 || c.Idle.Probability > 1 {
		return errors.New("IDLE_PROBABILITY must be within [0, 1]")
	}
	switch c.Preferences.Backend {
	case BackendJSON:
		if c.Preferences.Path == "" {
			return errors.New("PREFERENCES_PATH cannot be empty")
		}
	case BackendSQLite:
		if c.Preferences.DBPath == "" {
			return errors.New("PREFERENCES_DB_PATH cannot be empty")
		}
	default:
		return fmt.Errorf("PREFERENCES_BACKEND must be %q or %q, got %q", BackendJSON, BackendSQLite, c.Preferences.Backend)
	}
	if c.Admin.Token == "" && !isLoopbackHost(c.Admin.Addr) {
		return fmt.Errorf("ADMIN_TOKEN is required when ADMIN_ADDR %q is not loopback", c.Admin.Addr)
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	return nil
}
