// Package config provides configuration management for Humanlink.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration sections for Humanlink.
type Config struct {
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	Channel     ChannelConfig     `mapstructure:"channel" yaml:"channel"`
	Telegram    TelegramConfig    `mapstructure:"telegram" yaml:"telegram"`
	NATS        NATSConfig        `mapstructure:"nats" yaml:"nats"`
	History     HistoryConfig     `mapstructure:"history" yaml:"history"`
	MCP         MCPConfig         `mapstructure:"mcp" yaml:"mcp"`
	Interaction InteractionConfig `mapstructure:"interaction" yaml:"interaction"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig holds HTTP server configuration for the web channel API.
type ServerConfig struct {
	Host         string `mapstructure:"host" yaml:"host"`
	Port         int    `mapstructure:"port" yaml:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout" yaml:"readTimeout"`   // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout" yaml:"writeTimeout"` // in seconds
}

// ChannelConfig selects the active render channel.
type ChannelConfig struct {
	// Kind is one of: console, web, telegram, nats.
	Kind string `mapstructure:"kind" yaml:"kind"`
}

// TelegramConfig holds Telegram Bot API configuration for the chat-bot channel.
type TelegramConfig struct {
	Token       string `mapstructure:"token" yaml:"token,omitempty"`
	ChatID      int64  `mapstructure:"chatId" yaml:"chatId"`
	PollTimeout int    `mapstructure:"pollTimeout" yaml:"pollTimeout"` // long-poll timeout in seconds
	APIBaseURL  string `mapstructure:"apiBaseUrl" yaml:"apiBaseUrl"`
}

// NATSConfig holds NATS configuration for the message-bus chat transport.
type NATSConfig struct {
	URL           string `mapstructure:"url" yaml:"url"`
	SubjectPrefix string `mapstructure:"subjectPrefix" yaml:"subjectPrefix"`
	MaxReconnects int    `mapstructure:"maxReconnects" yaml:"maxReconnects"`
}

// HistoryConfig holds the interaction history store configuration.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"` // SQLite database path, ":memory:" allowed
}

// MCPConfig holds the embedded MCP server configuration.
type MCPConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" yaml:"port"`
}

// InteractionConfig holds interaction defaults applied by the orchestrator.
type InteractionConfig struct {
	DefaultTimeout int `mapstructure:"defaultTimeout" yaml:"defaultTimeout"` // in seconds, 0 = none
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	OutputPath string `mapstructure:"outputPath" yaml:"outputPath"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// PollTimeoutDuration returns the Telegram long-poll timeout as a time.Duration.
func (t *TelegramConfig) PollTimeoutDuration() time.Duration {
	return time.Duration(t.PollTimeout) * time.Second
}

// DefaultTimeoutDuration returns the default interaction timeout as a time.Duration.
func (i *InteractionConfig) DefaultTimeoutDuration() time.Duration {
	return time.Duration(i.DefaultTimeout) * time.Second
}

// detectDefaultLogFormat returns the appropriate log format based on environment.
// Returns "json" for production environments, "text" for terminal use.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("HUMANLINK_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	// Channel defaults
	v.SetDefault("channel.kind", "console")

	// Telegram defaults
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chatId", 0)
	v.SetDefault("telegram.pollTimeout", 25)
	v.SetDefault("telegram.apiBaseUrl", "https://api.telegram.org")

	// NATS defaults
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subjectPrefix", "humanlink")
	v.SetDefault("nats.maxReconnects", 10)

	// History defaults
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "humanlink.db")

	// MCP defaults
	v.SetDefault("mcp.enabled", true)
	v.SetDefault("mcp.port", 9090)

	// Interaction defaults: no deadline unless the caller sets one
	v.SetDefault("interaction.defaultTimeout", 0)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix HUMANLINK_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory
// or /etc/humanlink/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("HUMANLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit bindings where env var naming differs from the camelCase config key.
	_ = v.BindEnv("telegram.token", "HUMANLINK_TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("telegram.chatId", "HUMANLINK_TELEGRAM_CHAT_ID", "TELEGRAM_CHAT_ID")
	_ = v.BindEnv("telegram.pollTimeout", "HUMANLINK_TELEGRAM_POLL_TIMEOUT")
	_ = v.BindEnv("nats.subjectPrefix", "HUMANLINK_NATS_SUBJECT_PREFIX")
	_ = v.BindEnv("history.path", "HUMANLINK_HISTORY_PATH")
	_ = v.BindEnv("mcp.port", "HUMANLINK_MCP_PORT")
	_ = v.BindEnv("interaction.defaultTimeout", "HUMANLINK_INTERACTION_DEFAULT_TIMEOUT")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/humanlink/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
// Channel-specific credentials are validated by the channel constructors,
// not here, so a console-only run needs no Telegram or NATS settings.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	validKinds := map[string]bool{"console": true, "web": true, "telegram": true, "nats": true}
	if !validKinds[strings.ToLower(cfg.Channel.Kind)] {
		errs = append(errs, "channel.kind must be one of: console, web, telegram, nats")
	}

	if cfg.Telegram.PollTimeout <= 0 {
		errs = append(errs, "telegram.pollTimeout must be positive")
	}

	if cfg.MCP.Enabled && (cfg.MCP.Port <= 0 || cfg.MCP.Port > 65535) {
		errs = append(errs, "mcp.port must be between 1 and 65535")
	}

	if cfg.History.Enabled && cfg.History.Path == "" {
		errs = append(errs, "history.path is required when history.enabled is set")
	}

	if cfg.Interaction.DefaultTimeout < 0 {
		errs = append(errs, "interaction.defaultTimeout must not be negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Dump renders the effective configuration as YAML, with the Telegram token
// redacted. Used by the --print-config flag.
func (c *Config) Dump() (string, error) {
	clone := *c
	if clone.Telegram.Token != "" {
		clone.Telegram.Token = "***"
	}
	out, err := yaml.Marshal(&clone)
	if err != nil {
		return "", fmt.Errorf("error marshaling config: %w", err)
	}
	return string(out), nil
}
