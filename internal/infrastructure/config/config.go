package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Page      PageConfig
	Sandbox   SandboxConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8000"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// PageConfig holds the host page configuration.
type PageConfig struct {
	URL           string        `envconfig:"PAGE_URL" default:"http://localhost:3000/"`
	ScriptTimeout time.Duration `envconfig:"SCRIPT_TIMEOUT" default:"5s"`
	TimerInterval time.Duration `envconfig:"PAGE_TIMER_INTERVAL" default:"10ms"`
}

// SandboxConfig holds sandbox defaults applied to every app.
type SandboxConfig struct {
	PluginsFile         string `envconfig:"SANDBOX_PLUGINS_FILE"`
	TagName             string `envconfig:"SANDBOX_TAG_NAME" default:"micro-app"`
	Disabled            bool   `envconfig:"SANDBOX_DISABLED" default:"false"`
	DisableMemoryRouter bool   `envconfig:"SANDBOX_DISABLE_MEMORY_ROUTER" default:"false"`
	DisablePatchRequest bool   `envconfig:"SANDBOX_DISABLE_PATCH_REQUEST" default:"false"`
	KeepRouterState     bool   `envconfig:"SANDBOX_KEEP_ROUTER_STATE" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Page: PageConfig{
			URL:           "http://localhost:3000/",
			ScriptTimeout: 5 * time.Second,
			TimerInterval: 10 * time.Millisecond,
		},
		Sandbox: SandboxConfig{
			TagName: "micro-app",
		},
	}
}

// Validate checks values envconfig cannot check by type.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Page.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("PAGE_URL must be an absolute url: %q", c.Page.URL)
	}
	if c.Page.ScriptTimeout <= 0 {
		return fmt.Errorf("SCRIPT_TIMEOUT must be positive")
	}
	if c.Page.TimerInterval <= 0 {
		return fmt.Errorf("PAGE_TIMER_INTERVAL must be positive")
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be positive when rate limiting is enabled")
	}
	return nil
}
