// Package config manages application configuration from config.yaml,
// TALKPIPE_* environment variables, and default values.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ErrConfiguration indicates a configuration loading or validation failure.
var ErrConfiguration = errors.New("configuration error")

// Config defines the application configuration parameters for all
// components: logging, storage, AI providers, conversation memory,
// personality, knowledge snapshots, analytics, and the Telegram connector.
type Config struct {
	Log          LogConfig          `mapstructure:"log"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Providers    ProvidersConfig    `mapstructure:"providers"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Personality  PersonalityConfig  `mapstructure:"personality"`
	Knowledge    KnowledgeConfig    `mapstructure:"knowledge"`
	Analytics    AnalyticsConfig    `mapstructure:"analytics"`
	Telegram     TelegramConfig     `mapstructure:"telegram"`
}

// LogConfig controls log level and output format.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DatabaseConfig controls the SQLite database location.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// ProvidersConfig holds the configuration for each generation backend and
// the shared rate limiting and circuit breaking parameters.
type ProvidersConfig struct {
	// Priority lists provider names in fallback order.
	Priority []string `mapstructure:"priority" validate:"required,min=1,dive,oneof=openai gemini"`

	OpenAI OpenAIConfig `mapstructure:"openai"`
	Gemini GeminiConfig `mapstructure:"gemini"`

	RequestTimeout       time.Duration `mapstructure:"request_timeout"        validate:"min=1s,max=10m"`
	RateWindow           time.Duration `mapstructure:"rate_window"            validate:"min=1s"`
	RateLimit            int           `mapstructure:"rate_limit"             validate:"min=1"`
	MaxConsecutiveErrors int           `mapstructure:"max_consecutive_errors" validate:"min=1"`
}

// OpenAIConfig configures the OpenAI-compatible provider adapter.
type OpenAIConfig struct {
	Token       string  `mapstructure:"token"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	Temperature float32 `mapstructure:"temperature" validate:"min=0,max=2"`
	MaxTokens   int     `mapstructure:"max_tokens"  validate:"min=1"`
}

// GeminiConfig configures the Gemini provider adapter.
type GeminiConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float32 `mapstructure:"temperature" validate:"min=0,max=2"`
	MaxTokens   int32   `mapstructure:"max_tokens"  validate:"min=1"`
}

// ConversationConfig controls the conversation memory cache.
type ConversationConfig struct {
	MaxMessages       int           `mapstructure:"max_messages"        validate:"min=1"`
	MaxIntents        int           `mapstructure:"max_intents"         validate:"min=1"`
	MaxEmotionHistory int           `mapstructure:"max_emotion_history" validate:"min=1"`
	IdleEviction      time.Duration `mapstructure:"idle_eviction"       validate:"min=1m"`
	SweepCron         string        `mapstructure:"sweep_cron"          validate:"required"`
}

// PersonalityConfig carries the configured personality profile values.
// Empty fields fall back to the default profile.
type PersonalityConfig struct {
	Type               string            `mapstructure:"type"`
	CommunicationStyle string            `mapstructure:"communication_style"`
	ResponseLength     string            `mapstructure:"response_length"`
	EmotionalTone      string            `mapstructure:"emotional_tone"`
	IndustryType       string            `mapstructure:"industry_type"`
	BrandVoice         map[string]string `mapstructure:"brand_voice"`
	CustomInstructions string            `mapstructure:"custom_instructions"`
	GreetingMessage    string            `mapstructure:"greeting_message"`
	FallbackResponses  []string          `mapstructure:"fallback_responses"`
}

// KnowledgeConfig controls the spreadsheet-backed knowledge snapshot cache.
type KnowledgeConfig struct {
	SnapshotURL  string        `mapstructure:"snapshot_url"  validate:"omitempty,url"`
	PollCron     string        `mapstructure:"poll_cron"     validate:"required"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" validate:"min=1s"`
}

// AnalyticsConfig controls the fire-and-forget analytics sink.
type AnalyticsConfig struct {
	BufferSize int           `mapstructure:"buffer_size" validate:"min=1"`
	Retention  time.Duration `mapstructure:"retention"   validate:"min=1h"`
	TrimCron   string        `mapstructure:"trim_cron"   validate:"required"`
}

// TelegramConfig configures the inbound chat connector.
type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

// Load loads and validates configuration from:
// 1. Default values
// 2. The YAML file at configPath
// 3. TALKPIPE_* environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("TALKPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow missing config file; defaults plus env vars remain usable.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !strings.Contains(err.Error(), "no such file") {
			return nil, fmt.Errorf("%w: failed to read config file: %v", ErrConfiguration, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrConfiguration, err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", true)

	v.SetDefault("database.path", "talkpipe.db")

	v.SetDefault("providers.priority", []string{"openai", "gemini"})
	v.SetDefault("providers.request_timeout", 30*time.Second)
	v.SetDefault("providers.rate_window", time.Minute)
	v.SetDefault("providers.rate_limit", 60)
	v.SetDefault("providers.max_consecutive_errors", 5)

	v.SetDefault("providers.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("providers.openai.model", "gpt-4o")
	v.SetDefault("providers.openai.temperature", 0.7)
	v.SetDefault("providers.openai.max_tokens", 1024)

	v.SetDefault("providers.gemini.model", "gemini-2.0-flash")
	v.SetDefault("providers.gemini.temperature", 0.7)
	v.SetDefault("providers.gemini.max_tokens", 1024)

	v.SetDefault("conversation.max_messages", 50)
	v.SetDefault("conversation.max_intents", 20)
	v.SetDefault("conversation.max_emotion_history", 20)
	v.SetDefault("conversation.idle_eviction", 24*time.Hour)
	v.SetDefault("conversation.sweep_cron", "0 * * * *")

	v.SetDefault("knowledge.poll_cron", "*/5 * * * *")
	v.SetDefault("knowledge.fetch_timeout", 15*time.Second)

	v.SetDefault("analytics.buffer_size", 256)
	v.SetDefault("analytics.retention", 30*24*time.Hour)
	v.SetDefault("analytics.trim_cron", "30 3 * * *")
}
