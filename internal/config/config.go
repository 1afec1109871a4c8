// Package config loads the service configuration from compiled defaults,
// an optional TOML file and ZAI_-prefixed environment variables, in that
// precedence order.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config is the effective service configuration. Durations are configured
// in whole seconds to keep the environment surface simple.
type Config struct {
	// Upstream endpoint and credentials.
	APIBase          string `koanf:"api_base" validate:"required,url"`
	UpstreamToken    string `koanf:"upstream_token"`
	AnonTokenEnabled bool   `koanf:"anon_token_enabled"`
	ModelName        string `koanf:"model_name" validate:"required"`

	// Listener.
	Port int `koanf:"port" validate:"min=1,max=65535"`

	// Behavior.
	DebugMode     bool   `koanf:"debug_mode"`
	ThinkTagsMode string `koanf:"think_tags_mode" validate:"oneof=think pure raw"`

	// Cache TTLs in seconds, plus the shared store's entry cap.
	ModelsCacheTTL    int `koanf:"models_cache_ttl" validate:"min=0"`
	AuthTokenCacheTTL int `koanf:"auth_token_cache_ttl" validate:"min=0"`
	ContentCacheTTL   int `koanf:"content_cache_ttl" validate:"min=0"`
	CacheMaxSize      int `koanf:"cache_max_size" validate:"min=1"`

	LogLevel string `koanf:"log_level" validate:"required"`

	// Inbound HTTP limits.
	CORSOrigins           string `koanf:"cors_origins"`
	RequestTimeout        int    `koanf:"request_timeout" validate:"min=1"`
	StreamTimeout         int    `koanf:"stream_timeout" validate:"min=1"`
	ToolCallTimeout       int    `koanf:"tool_call_timeout" validate:"min=1"`
	MaxConcurrentRequests int64  `koanf:"max_concurrent_requests" validate:"min=1"`

	// Inbound access key gate. Disabled unless both are set.
	APIKey        string `koanf:"api_key" validate:"required_if=APIKeyEnabled true"`
	APIKeyEnabled bool   `koanf:"api_key_enabled"`

	EnablePerformanceMonitoring bool `koanf:"enable_performance_monitoring"`
}

var defaults = map[string]any{
	"api_base":                      "https://chat.z.ai",
	"port":                          8089,
	"model_name":                    "glm-4.5v",
	"debug_mode":                    false,
	"think_tags_mode":               "think",
	"anon_token_enabled":            true,
	"models_cache_ttl":              300,
	"auth_token_cache_ttl":          600,
	"content_cache_ttl":             3600,
	"cache_max_size":                1000,
	"log_level":                     "info",
	"cors_origins":                  "*",
	"request_timeout":               60,
	"stream_timeout":                120,
	"tool_call_timeout":             30,
	"max_concurrent_requests":       100,
	"enable_performance_monitoring": true,
}

// Load builds the configuration. An empty path skips the file layer;
// a non-empty path must exist and parse.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(".", env.Opt{
		Prefix: "ZAI_",
		TransformFunc: func(key, value string) (string, any) {
			return strings.ToLower(strings.TrimPrefix(key, "ZAI_")), value
		},
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ListenAddr is the listener address for the configured port.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Level parses the configured log level. Debug mode forces debug.
func (c *Config) Level() (slog.Level, error) {
	if c.DebugMode {
		return slog.LevelDebug, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// AccessKey returns the inbound bearer key, or empty when the gate is off.
func (c *Config) AccessKey() string {
	if !c.APIKeyEnabled {
		return ""
	}
	return c.APIKey
}

// Origins returns the configured CORS origins, comma-separated in the
// environment.
func (c *Config) Origins() []string {
	parts := strings.Split(c.CORSOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// ModelsTTL is how long the formatted model list stays cached.
func (c *Config) ModelsTTL() time.Duration {
	return time.Duration(c.ModelsCacheTTL) * time.Second
}

// TokenTTL is how long an anonymous upstream token stays cached.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.AuthTokenCacheTTL) * time.Second
}

// ContentTTL is how long rendered reasoning buffers stay cached.
func (c *Config) ContentTTL() time.Duration {
	return time.Duration(c.ContentCacheTTL) * time.Second
}

// RequestDeadline bounds non-streaming requests.
func (c *Config) RequestDeadline() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// StreamDeadline bounds streaming requests.
func (c *Config) StreamDeadline() time.Duration {
	return time.Duration(c.StreamTimeout) * time.Second
}

// ToolTimeout bounds a single tool call from open to close.
func (c *Config) ToolTimeout() time.Duration {
	return time.Duration(c.ToolCallTimeout) * time.Second
}
