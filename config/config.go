// Package config loads mathchat settings.
//
// Values are layered: Default, then an optional YAML file, then a .env file,
// then the process environment. Command-line flags are applied last by the
// caller. Only the credential is read from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mhpenta/mathchat"
)

type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Gemini    GeminiConfig    `yaml:"gemini"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Chat      ChatConfig      `yaml:"chat"`
}

type ServerConfig struct {
	Listen string `yaml:"listen"`
	Mode   string `yaml:"mode"` // debug/test/release

	// MaxMultipartMemory caps the in-memory part of a multipart upload, in bytes.
	MaxMultipartMemory int64 `yaml:"max_multipart_memory"`
}

type GeminiConfig struct {
	APIKey      string   `yaml:"api_key"`
	BaseURL     string   `yaml:"base_url"`
	Model       string   `yaml:"model"`
	AspectRatio string   `yaml:"aspect_ratio"`
	Temperature *float32 `yaml:"temperature"`
}

// RateLimitConfig overrides the model's published limits. Zero keeps the
// model default; Disabled turns admission control off.
type RateLimitConfig struct {
	Disabled          bool `yaml:"disabled"`
	TokensPerMinute   int  `yaml:"tokens_per_minute"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
}

type WebSocketConfig struct {
	PingInterval int `yaml:"ping_interval"` // seconds
	PongTimeout  int `yaml:"pong_timeout"`  // seconds

	// AllowedOrigins lists extra origins (scheme://host[:port]) allowed to
	// open the feed. Same-host pages are always allowed; "*" allows any.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type ChatConfig struct {
	Greeting       string `yaml:"greeting"`
	PromptTemplate string `yaml:"prompt_template"`
}

// credentials is the only part of the config read from the environment.
type credentials struct {
	APIKey       string `env:"API_KEY"`
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:             ":8080",
			Mode:               "release",
			MaxMultipartMemory: 32 << 20,
		},
		Gemini: GeminiConfig{
			Model: string(mathchat.ModelDefault),
		},
		WebSocket: WebSocketConfig{
			PingInterval: 30,
			PongTimeout:  10,
		},
		Chat: ChatConfig{
			Greeting:       mathchat.Greeting,
			PromptTemplate: mathchat.DefaultPromptTemplate,
		},
	}
}

// Load builds a Config from path (optional), the given .env files (".env"
// when none are given) and the environment. Missing .env files are ignored.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := loadDotenv(envFiles...); err != nil {
		return nil, err
	}

	var creds credentials
	if err := env.Parse(&creds); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	switch {
	case creds.APIKey != "":
		cfg.Gemini.APIKey = creds.APIKey
	case creds.GeminiAPIKey != "":
		cfg.Gemini.APIKey = creds.GeminiAPIKey
	}

	return cfg, nil
}

func loadDotenv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

var validModes = map[string]bool{"debug": true, "test": true, "release": true}

// Validate reports the first unusable setting as a *mathchat.ConfigError.
func (c *Config) Validate() error {
	if c.Gemini.APIKey == "" {
		return &mathchat.ConfigError{Field: "gemini.api_key", Err: mathchat.ErrMissingAPIKey}
	}
	if c.Server.Listen == "" {
		return &mathchat.ConfigError{Field: "server.listen", Err: errors.New("listen address is required")}
	}
	if !validModes[c.Server.Mode] {
		return &mathchat.ConfigError{Field: "server.mode", Err: fmt.Errorf("unknown mode %q", c.Server.Mode)}
	}
	if c.Server.MaxMultipartMemory <= 0 {
		return &mathchat.ConfigError{Field: "server.max_multipart_memory", Err: errors.New("must be positive")}
	}
	if t := c.Gemini.Temperature; t != nil && (*t < 0 || *t > 2) {
		return &mathchat.ConfigError{Field: "gemini.temperature", Err: fmt.Errorf("%v is outside [0, 2]", *t)}
	}
	if c.RateLimit.TokensPerMinute < 0 || c.RateLimit.RequestsPerMinute < 0 {
		return &mathchat.ConfigError{Field: "rate_limit", Err: errors.New("limits cannot be negative")}
	}
	if c.WebSocket.PingInterval <= 0 {
		return &mathchat.ConfigError{Field: "websocket.ping_interval", Err: errors.New("must be positive")}
	}
	if c.WebSocket.PongTimeout <= 0 {
		return &mathchat.ConfigError{Field: "websocket.pong_timeout", Err: errors.New("must be positive")}
	}
	return nil
}

// ProviderConfig returns the provider settings.
func (c *Config) ProviderConfig() *mathchat.ProviderConfig {
	return &mathchat.ProviderConfig{
		Provider: mathchat.ProviderGeminiAPI,
		APIKey:   c.Gemini.APIKey,
		BaseURL:  c.Gemini.BaseURL,
	}
}

// GenerateConfig returns the per-request generation options.
func (c *Config) GenerateConfig() *mathchat.GenerateConfig {
	return &mathchat.GenerateConfig{
		Model:       mathchat.Model(c.Gemini.Model),
		AspectRatio: mathchat.AspectRatio(c.Gemini.AspectRatio),
		Temperature: c.Gemini.Temperature,
	}
}

func (w WebSocketConfig) PingPeriod() time.Duration {
	return time.Duration(w.PingInterval) * time.Second
}

func (w WebSocketConfig) PongWait() time.Duration {
	return time.Duration(w.PongTimeout) * time.Second
}
