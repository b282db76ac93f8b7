package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"

	"github.com/spigell/swipe-sync/internal/ai/gemini"
	"github.com/spigell/swipe-sync/internal/api"
	"github.com/spigell/swipe-sync/internal/filtering"
	"github.com/spigell/swipe-sync/internal/gesture"
	"github.com/spigell/swipe-sync/internal/realtime"
)

const (
	defaultRealtimeURL      = "ws://localhost:3001"
	defaultAPITimeout       = 10 * time.Second
	defaultHandshakeTimeout = 45 * time.Second
	defaultGeminiModel      = "gemini-2.5-flash"
)

type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Gesture  GestureConfig  `mapstructure:"gesture"`
	Matching MatchingConfig `mapstructure:"matching"`
	AI       AIConfig       `mapstructure:"ai"`
}

type APIConfig struct {
	URL       string        `mapstructure:"url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user-agent"`
}

type RealtimeConfig struct {
	URL                  string        `mapstructure:"url"`
	ReconnectInterval    time.Duration `mapstructure:"reconnect-interval"`
	MaxReconnectAttempts int           `mapstructure:"max-reconnect-attempts"`
	OutboxSize           int           `mapstructure:"outbox-size"`
	HandshakeTimeout     time.Duration `mapstructure:"handshake-timeout"`
}

type AuthConfig struct {
	UserID    string `mapstructure:"user-id"`
	Token     string `mapstructure:"token"`
	TokenFile string `mapstructure:"token-file"`
}

type GestureConfig struct {
	Threshold float64 `mapstructure:"threshold"`
}

type MatchingConfig struct {
	IncludeInactive  bool     `mapstructure:"include-inactive"`
	ExcludeCompanies []string `mapstructure:"exclude-companies"`
	Skills           []string `mapstructure:"skills"`
	Location         string   `mapstructure:"location"`
	Limit            int      `mapstructure:"limit"`
}

type AIConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Provider        string        `mapstructure:"provider"`
	MinimumFitScore float64       `mapstructure:"minimum-fit-score"`
	Concurrency     int           `mapstructure:"concurrency"`
	Gemini          *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKeyFile   string                 `mapstructure:"api-key-file"`
	Model        string                 `mapstructure:"model"`
	MaxRetries   int                    `mapstructure:"max-retries"`
	MaxLogLength int                    `mapstructure:"max-log-length"`
	Prompt       gemini.PromptOverrides `mapstructure:"prompt"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.url", api.DefaultBaseURL)
	v.SetDefault("api.timeout", defaultAPITimeout)

	v.SetDefault("realtime.url", defaultRealtimeURL)
	v.SetDefault("realtime.reconnect-interval", realtime.DefaultReconnectInterval)
	v.SetDefault("realtime.max-reconnect-attempts", realtime.DefaultMaxReconnectAttempts)
	v.SetDefault("realtime.outbox-size", realtime.DefaultOutboxSize)
	v.SetDefault("realtime.handshake-timeout", defaultHandshakeTimeout)

	v.SetDefault("gesture.threshold", gesture.DefaultThreshold)

	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.gemini.model", defaultGeminiModel)
	v.SetDefault("ai.gemini.max-retries", 3)
}

// loadConfig decodes and validates the settings held by v.
func loadConfig(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	sections := []struct {
		name string
		v    validation.Validatable
	}{
		{"api", &c.API},
		{"realtime", &c.Realtime},
		{"auth", &c.Auth},
		{"gesture", &c.Gesture},
		{"matching", &c.Matching},
		{"ai", &c.AI},
	}

	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

func (c *APIConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.URL, validation.Required, validation.By(urlWithScheme("http", "https"))),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

func (c *RealtimeConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.URL, validation.Required, validation.By(urlWithScheme("ws", "wss", "http", "https"))),
		validation.Field(&c.ReconnectInterval, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxReconnectAttempts, validation.Min(0)),
		validation.Field(&c.OutboxSize, validation.Min(0)),
		validation.Field(&c.HandshakeTimeout, validation.Min(time.Duration(0))),
	)
}

// Validate leaves the user id optional: it falls back to the id reported by the API.
func (c *AuthConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TokenFile, validation.When(c.Token == "", validation.Required.Error("token or token-file is required"))),
	)
}

func (c *GestureConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Threshold, validation.Min(0.0)),
	)
}

func (c *MatchingConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Limit, validation.Min(0)),
		validation.Field(&c.ExcludeCompanies, validation.Each(validation.Required)),
	)
}

func (c *AIConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	// Gemini is validated through its own Validate method once present.
	return validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.In("", "gemini").Error("only gemini is supported")),
		validation.Field(&c.MinimumFitScore, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.Concurrency, validation.Min(0)),
		validation.Field(&c.Gemini, validation.Required.Error("gemini configuration is required when ai is enabled")),
	)
}

func (c *GeminiConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Model, validation.Required),
		validation.Field(&c.MaxRetries, validation.Min(0)),
		validation.Field(&c.MaxLogLength, validation.Min(0)),
	)
}

// filteringConfig maps the user facing sections onto the filter pipeline settings.
func (c *Config) filteringConfig() *filtering.Config {
	cfg := &filtering.Config{
		IncludeInactive:  c.Matching.IncludeInactive,
		ExcludeCompanies: c.Matching.ExcludeCompanies,
		AI: &filtering.AIConfig{
			Enabled:         c.AI.Enabled,
			MinimumFitScore: c.AI.MinimumFitScore,
			Concurrency:     c.AI.Concurrency,
		},
	}
	if c.AI.Gemini != nil {
		cfg.AI.Gemini = &filtering.GeminiConfig{
			Model:        c.AI.Gemini.Model,
			MaxRetries:   c.AI.Gemini.MaxRetries,
			MaxLogLength: c.AI.Gemini.MaxLogLength,
		}
	}
	return cfg
}

func (c *Config) filters() *api.Filters {
	return &api.Filters{
		Skills:   c.Matching.Skills,
		Location: c.Matching.Location,
		Limit:    c.Matching.Limit,
	}
}

func urlWithScheme(schemes ...string) validation.RuleFunc {
	return func(value any) error {
		raw, _ := value.(string)
		if raw == "" {
			return nil
		}
		u, err := url.Parse(raw)
		if err != nil {
			return errors.New("must be a valid URL")
		}
		for _, s := range schemes {
			if strings.EqualFold(u.Scheme, s) && u.Host != "" {
				return nil
			}
		}
		return fmt.Errorf("must be an absolute URL with scheme %s", strings.Join(schemes, ", "))
	}
}
