// Package config loads and validates the full application
// configuration from YAML, with environment variable overrides for
// credentials and deploy-time settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/blueherald/blueherald/internal/agent"
	"github.com/blueherald/blueherald/internal/archive"
	"github.com/blueherald/blueherald/internal/filter"
	"github.com/blueherald/blueherald/internal/generate"
	"github.com/blueherald/blueherald/internal/mgmt"
	"github.com/blueherald/blueherald/internal/news"
	"github.com/blueherald/blueherald/internal/publish"
	"github.com/blueherald/blueherald/internal/scheduler"
)

// LogConfig controls the global zerolog setup.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"; empty auto-detects a TTY
}

// RedisConfig configures the shared news cache. Leaving Addr empty
// falls back to the in-process cache.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// Config is the full application configuration.
type Config struct {
	Agent     agent.Config     `yaml:"agent"`
	News      news.Config      `yaml:"news"`
	Generate  generate.Config  `yaml:"generate"`
	Filter    filter.Config    `yaml:"filter"`
	Bluesky   publish.Config   `yaml:"bluesky"`
	Scheduler scheduler.Config `yaml:"scheduler"`
	Server    mgmt.Config      `yaml:"server"`
	Archive   archive.Config   `yaml:"archive"`
	Redis     RedisConfig      `yaml:"redis"`
	Log       LogConfig        `yaml:"log"`
}

// Default returns the configuration used when no file is provided.
func Default() Config {
	return Config{
		Agent:     agent.DefaultConfig(),
		News:      news.DefaultConfig(),
		Generate:  generate.DefaultConfig(),
		Filter:    filter.DefaultConfig(),
		Bluesky:   publish.DefaultConfig(),
		Scheduler: scheduler.DefaultConfig(),
		Server:    mgmt.DefaultConfig(),
		Archive:   archive.DefaultConfig(),
		Redis:     RedisConfig{KeyPrefix: "blueherald:news:"},
		Log:       LogConfig{Level: "info"},
	}
}

// Load reads the YAML file at path on top of the defaults, applies
// environment overrides and validates the result. An empty path skips
// the file and uses defaults plus environment only.
func Load(path string) (Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// applyEnv lets credentials and deploy settings come from the
// environment instead of the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("BLUESKY_HANDLE"); v != "" {
		c.Bluesky.Handle = v
	}
	if v := os.Getenv("BLUESKY_APP_PASSWORD"); v != "" {
		c.Bluesky.Password = v
	}
	if v := os.Getenv("PERPLEXITY_API_KEY"); v != "" {
		c.News.APIKey = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Archive.DSN = v
		c.Archive.Enabled = true
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate collects every problem rather than stopping at the first.
func (c *Config) Validate() error {
	var problems []string

	if c.Bluesky.Handle == "" {
		problems = append(problems, "bluesky.handle is required")
	}
	if c.Bluesky.Password == "" {
		problems = append(problems, "bluesky.password is required")
	}
	if c.News.APIKey == "" {
		problems = append(problems, "news.api_key is required")
	}
	if c.Scheduler.Interval <= 0 {
		problems = append(problems, "scheduler.interval must be positive")
	}
	if c.Scheduler.MaxExecutionTime <= 0 {
		problems = append(problems, "scheduler.max_execution_time must be positive")
	}
	if c.Scheduler.MaxExecutionTime >= c.Scheduler.Interval {
		problems = append(problems, "scheduler.max_execution_time must be shorter than scheduler.interval")
	}
	if c.Agent.MinEngagementScore < 0 || c.Agent.MinEngagementScore > 1 {
		problems = append(problems, "agent.min_engagement_score must be between 0 and 1")
	}
	if c.Filter.DuplicateThreshold < 0 || c.Filter.DuplicateThreshold > 1 {
		problems = append(problems, "filter.duplicate_threshold must be between 0 and 1")
	}
	if c.Generate.MaxPostLength <= 0 || c.Generate.MaxPostLength > 300 {
		problems = append(problems, "generate.max_post_length must be between 1 and 300")
	}
	if c.Bluesky.MaxRetries < 0 {
		problems = append(problems, "bluesky.max_retries must not be negative")
	}
	if c.Archive.Enabled && c.Archive.DSN == "" {
		problems = append(problems, "archive.dsn is required when archive is enabled")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		problems = append(problems, "server.port must be a valid port number")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// View returns the configuration as served by the management API,
// with credentials masked.
func (c *Config) View() map[string]interface{} {
	return map[string]interface{}{
		"agent": map[string]interface{}{
			"query":                c.Agent.Query,
			"news_limit":           c.Agent.NewsLimit,
			"min_engagement_score": c.Agent.MinEngagementScore,
		},
		"news": map[string]interface{}{
			"model":          c.News.Model,
			"content_themes": c.News.ContentThemes,
			"api_key":        mask(c.News.APIKey),
		},
		"bluesky": map[string]interface{}{
			"service_url": c.Bluesky.ServiceURL,
			"handle":      c.Bluesky.Handle,
			"password":    mask(c.Bluesky.Password),
			"max_retries": c.Bluesky.MaxRetries,
		},
		"scheduler": map[string]interface{}{
			"interval":           c.Scheduler.Interval.String(),
			"max_execution_time": c.Scheduler.MaxExecutionTime.String(),
		},
		"filter": map[string]interface{}{
			"duplicate_threshold": c.Filter.DuplicateThreshold,
			"quality_threshold":   c.Filter.QualityThreshold,
		},
		"archive": map[string]interface{}{
			"enabled": c.Archive.Enabled,
		},
	}
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:2] + "****" + secret[len(secret)-2:]
}
