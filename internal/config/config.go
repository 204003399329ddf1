// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Redis      RedisConfig      `mapstructure:"redis"`
	DataForSEO DataForSEOConfig `mapstructure:"dataforseo"`
	PageRank   PageRankConfig   `mapstructure:"pagerank"`
	Google     GoogleConfig     `mapstructure:"google"`
	Research   ResearchConfig   `mapstructure:"research"`
	Email      EmailConfig      `mapstructure:"email"`
	Poller     PollerConfig     `mapstructure:"poller"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int    `mapstructure:"port"`
	PublicBaseURL  string `mapstructure:"public_base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// AuthConfig defines dashboard authentication.
type AuthConfig struct {
	Password string `mapstructure:"password"`
	APIKey   string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// RedisConfig points at the KV store. An empty URL selects the in-memory
// store, useful for local development.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// DataForSEOConfig holds SEO data API credentials.
type DataForSEOConfig struct {
	Login    string `mapstructure:"login"`
	Password string `mapstructure:"password"`
}

// PageRankConfig holds the page-rank API key.
type PageRankConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// GoogleConfig holds OAuth client credentials for Search Console access.
type GoogleConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url"`
}

// ResearchConfig configures the generative research service.
type ResearchConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// EmailConfig configures transactional report delivery.
type EmailConfig struct {
	APIKey string `mapstructure:"api_key"`
	From   string `mapstructure:"from"`
}

// PollerConfig bounds the asynchronous SERP task poller.
type PollerConfig struct {
	MaxAttempts     int `mapstructure:"max_attempts"`
	IntervalSeconds int `mapstructure:"interval_seconds"`
	JitterSeconds   int `mapstructure:"jitter_seconds"`
}

// SchedulerConfig gates the periodic project refresh loop.
type SchedulerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	IntervalHours int  `mapstructure:"interval_hours"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LINKBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.public_base_url", "http://localhost:8080")
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("logging.development", true)

	// Empty defaults register the env-only keys with viper so AutomaticEnv
	// can populate them during Unmarshal.
	v.SetDefault("auth.password", "")
	v.SetDefault("auth.api_key", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("dataforseo.login", "")
	v.SetDefault("dataforseo.password", "")
	v.SetDefault("pagerank.api_key", "")
	v.SetDefault("google.client_id", "")
	v.SetDefault("google.client_secret", "")
	v.SetDefault("google.redirect_url", "")
	v.SetDefault("research.api_key", "")
	v.SetDefault("email.api_key", "")

	v.SetDefault("research.model", "claude-sonnet-4-5")
	v.SetDefault("research.timeout_seconds", 120)
	v.SetDefault("email.from", "WebLeadsNow Reports <reports@webleadsnow.com>")
	v.SetDefault("poller.max_attempts", 12)
	v.SetDefault("poller.interval_seconds", 5)
	v.SetDefault("poller.jitter_seconds", 1)
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.interval_hours", 24)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Password == "" && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.password or auth.api_key must be set")
	}
	if c.Poller.MaxAttempts <= 0 {
		return fmt.Errorf("poller.max_attempts must be > 0")
	}
	if c.Poller.IntervalSeconds <= 0 {
		return fmt.Errorf("poller.interval_seconds must be > 0")
	}
	if c.Scheduler.Enabled && c.Scheduler.IntervalHours <= 0 {
		return fmt.Errorf("scheduler.interval_hours must be > 0 when the scheduler is enabled")
	}
	return nil
}

// ServerTimeout converts the request timeout config to a duration.
func (c Config) ServerTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}

// ResearchTimeout converts the research client timeout config to a duration.
func (c Config) ResearchTimeout() time.Duration {
	return time.Duration(c.Research.TimeoutSeconds) * time.Second
}

// PollInterval converts the poller interval config to a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Poller.IntervalSeconds) * time.Second
}

// PollJitter converts the poller jitter config to a duration.
func (c Config) PollJitter() time.Duration {
	return time.Duration(c.Poller.JitterSeconds) * time.Second
}
