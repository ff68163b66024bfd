package config

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Database  DatabaseConfig  `json:"database" mapstructure:"database"`
	Providers ProvidersConfig `json:"providers" mapstructure:"providers"`
	Email     EmailConfig     `json:"email" mapstructure:"email"`
	Server    ServerConfig    `json:"server" mapstructure:"server"`
	Scheduler SchedulerConfig `json:"scheduler" mapstructure:"scheduler"`
	Queue     QueueConfig     `json:"queue" mapstructure:"queue"`

	// EncryptionKey protects provider tokens at rest. Base64, 32 bytes decoded.
	EncryptionKey string `json:"encryption_key" mapstructure:"encryption_key"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Type       string `json:"type" mapstructure:"type"` // sqlite or postgres
	SQLitePath string `json:"sqlite_path" mapstructure:"sqlite_path"`
	Host       string `json:"host" mapstructure:"host"`
	Port       int    `json:"port" mapstructure:"port"`
	User       string `json:"user" mapstructure:"user"`
	Password   string `json:"password" mapstructure:"password"`
	Name       string `json:"name" mapstructure:"name"`
	SSLMode    string `json:"ssl_mode" mapstructure:"ssl_mode"`
}

// ProvidersConfig contains star-provider settings
type ProvidersConfig struct {
	// Enabled lists the provider names tokens may reference.
	Enabled []string `json:"enabled" mapstructure:"enabled"`

	// GitHubAPIURL overrides the GitHub API base URL (tests, GHE).
	GitHubAPIURL string `json:"github_api_url" mapstructure:"github_api_url"`

	// RequestTimeoutSeconds bounds a single page fetch.
	RequestTimeoutSeconds int `json:"request_timeout_seconds" mapstructure:"request_timeout_seconds"`
}

// EmailConfig contains outbound email settings
type EmailConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	SMTPHost string `json:"smtp_host" mapstructure:"smtp_host"`
	SMTPPort int    `json:"smtp_port" mapstructure:"smtp_port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	From     string `json:"from" mapstructure:"from"`

	// ForkURL is linked in the email footer.
	ForkURL string `json:"fork_url" mapstructure:"fork_url"`
}

// ServerConfig contains the feed server settings
type ServerConfig struct {
	Listen  string `json:"listen" mapstructure:"listen"`
	BaseURL string `json:"base_url" mapstructure:"base_url"`
}

// SchedulerConfig contains the hourly dispatch loop settings
type SchedulerConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
}

// QueueConfig contains task queue settings
type QueueConfig struct {
	Workers int `json:"workers" mapstructure:"workers"`
	Size    int `json:"size" mapstructure:"size"`
}

func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Type:       "sqlite",
			SQLitePath: "./starminder.db",
			Host:       "localhost",
			Port:       5432,
			SSLMode:    "disable",
		},
		Providers: ProvidersConfig{
			Enabled:               []string{"github"},
			GitHubAPIURL:          "https://api.github.com",
			RequestTimeoutSeconds: 30,
		},
		Email: EmailConfig{
			Enabled:  false,
			SMTPPort: 587,
			From:     "Starminder <notifications@starminder.xyz>",
			ForkURL:  "https://github.com/nkantar/Starminder",
		},
		Server: ServerConfig{
			Listen:  ":8080",
			BaseURL: "http://localhost:8080",
		},
		Scheduler: SchedulerConfig{
			Enabled: true,
		},
		Queue: QueueConfig{
			Workers: 4,
			Size:    256,
		},
	}
}

// LoadConfigWithViper builds the configuration from viper (config file,
// STARMINDER_* environment variables, and bound flags), falling back to
// defaults for anything unset.
func LoadConfigWithViper() (*Config, error) {
	cfg := DefaultConfig()

	viper.SetDefault("database.type", cfg.Database.Type)
	viper.SetDefault("database.sqlite_path", cfg.Database.SQLitePath)
	viper.SetDefault("database.host", cfg.Database.Host)
	viper.SetDefault("database.port", cfg.Database.Port)
	viper.SetDefault("database.ssl_mode", cfg.Database.SSLMode)
	viper.SetDefault("providers.enabled", cfg.Providers.Enabled)
	viper.SetDefault("providers.github_api_url", cfg.Providers.GitHubAPIURL)
	viper.SetDefault("providers.request_timeout_seconds", cfg.Providers.RequestTimeoutSeconds)
	viper.SetDefault("email.smtp_port", cfg.Email.SMTPPort)
	viper.SetDefault("email.from", cfg.Email.From)
	viper.SetDefault("email.fork_url", cfg.Email.ForkURL)
	viper.SetDefault("server.listen", cfg.Server.Listen)
	viper.SetDefault("server.base_url", cfg.Server.BaseURL)
	viper.SetDefault("scheduler.enabled", cfg.Scheduler.Enabled)
	viper.SetDefault("queue.workers", cfg.Queue.Workers)
	viper.SetDefault("queue.size", cfg.Queue.Size)

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}

	if len(c.Providers.Enabled) == 0 {
		return fmt.Errorf("no providers enabled")
	}
	for _, name := range c.Providers.Enabled {
		if name != "github" {
			return fmt.Errorf("unknown provider: %s", name)
		}
	}

	if c.EncryptionKey != "" {
		key, err := base64.StdEncoding.DecodeString(c.EncryptionKey)
		if err != nil {
			return fmt.Errorf("encryption key is not valid base64: %w", err)
		}
		if len(key) != 32 {
			return fmt.Errorf("encryption key must decode to 32 bytes, got %d", len(key))
		}
	}

	if c.Email.Enabled && c.Email.SMTPHost == "" {
		return fmt.Errorf("email enabled but smtp_host is empty")
	}

	return nil
}

// SaveToFile saves the configuration to a file
func (c *Config) SaveToFile(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigPath returns the default config file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "starminder.json"
	}

	return filepath.Join(home, ".config", "starminder", "config.json")
}
