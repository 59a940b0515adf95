// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tchan1002/pathfinder/internal/storage/postgres"
	"github.com/tchan1002/pathfinder/internal/storage/snapshots"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	DB        postgres.Config  `mapstructure:"db"`
	Crawler   CrawlerConfig    `mapstructure:"crawler"`
	LLM       LLMConfig        `mapstructure:"llm"`
	Snapshots snapshots.Config `mapstructure:"snapshots"`
	Logging   LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// CrawlerConfig governs the crawl pipeline.
type CrawlerConfig struct {
	UserAgent       string `mapstructure:"user_agent"`
	MaxPagesDefault int    `mapstructure:"max_pages_default"`
	NavTimeoutSec   int    `mapstructure:"nav_timeout_seconds"`
	DelayMs         int    `mapstructure:"delay_ms"`
	RenderEnabled   bool   `mapstructure:"render_enabled"`
}

// LLMConfig configures the model provider. An empty APIKey selects the
// deterministic local provider.
type LLMConfig struct {
	APIKey     string `mapstructure:"api_key"`
	APIURL     string `mapstructure:"api_url"`
	ChatModel  string `mapstructure:"chat_model"`
	EmbedModel string `mapstructure:"embed_model"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment. Environment variables use the
// PATHFINDER_ prefix with dots replaced by underscores, e.g.
// PATHFINDER_SERVER_PORT.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PATHFINDER")
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
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("crawler.user_agent", "pathfinder-bot/0.1")
	v.SetDefault("crawler.max_pages_default", 200)
	v.SetDefault("crawler.nav_timeout_seconds", 30)
	v.SetDefault("crawler.delay_ms", 250)
	v.SetDefault("crawler.render_enabled", true)
	v.SetDefault("llm.api_url", "https://api.openai.com/v1")
	v.SetDefault("llm.chat_model", "gpt-4o-mini")
	v.SetDefault("llm.embed_model", "text-embedding-3-small")
	v.SetDefault("snapshots.base_dir", "./snapshots")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.TimeoutSeconds <= 0 {
		return fmt.Errorf("server.timeout_seconds must be > 0")
	}
	if c.Crawler.MaxPagesDefault <= 0 {
		return fmt.Errorf("crawler.max_pages_default must be > 0")
	}
	if c.Crawler.NavTimeoutSec <= 0 {
		return fmt.Errorf("crawler.nav_timeout_seconds must be > 0")
	}
	if c.LLM.APIKey != "" && (c.LLM.ChatModel == "" || c.LLM.EmbedModel == "") {
		return fmt.Errorf("llm.chat_model and llm.embed_model must be set when llm.api_key is set")
	}
	if c.Snapshots.BaseDir == "" {
		return fmt.Errorf("snapshots.base_dir must be set")
	}
	return nil
}

// NavTimeout returns the navigation timeout as a duration.
func (c CrawlerConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSec) * time.Second
}

// Delay returns the politeness delay between fetches.
func (c CrawlerConfig) Delay() time.Duration {
	return time.Duration(c.DelayMs) * time.Millisecond
}
