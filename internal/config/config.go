// Package config loads the engine configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	LLM       LLMConfig       `mapstructure:"llm"`
	TTS       TTSConfig       `mapstructure:"tts"`
	Twilio    TwilioConfig    `mapstructure:"twilio"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
}

type ServerConfig struct {
	Addr            string   `mapstructure:"addr"`
	SchedulerSecret string   `mapstructure:"scheduler_secret"`
	CORSOrigins     []string `mapstructure:"cors_origins"`
	AudioDir        string   `mapstructure:"audio_dir"`
	AudioBaseURL    string   `mapstructure:"audio_base_url"`
}

type DatabaseConfig struct {
	Path        string        `mapstructure:"path"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type SchedulerConfig struct {
	CronSpec         string        `mapstructure:"cron_spec"`
	TickBudget       time.Duration `mapstructure:"tick_budget"`
	WindowMinutes    int           `mapstructure:"window_minutes"`
	UsersPerSecond   float64       `mapstructure:"users_per_second"`
	BenefitThreshold float64       `mapstructure:"benefit_threshold"`
}

// TierConfig describes one model rung of a ladder.
type TierConfig struct {
	Provider    string  `mapstructure:"provider"` // openai | anthropic
	Name        string  `mapstructure:"name"`
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	CostPer1KIn float64 `mapstructure:"cost_per_1k_in"`
	CostPer1KOu float64 `mapstructure:"cost_per_1k_out"`
}

type LLMConfig struct {
	Conversational []TierConfig `mapstructure:"conversational"`
	Summary        []TierConfig `mapstructure:"summary"`
	Emergency      *TierConfig  `mapstructure:"emergency"`
}

// TTSProviderConfig describes one speech provider in chain order.
type TTSProviderConfig struct {
	Name     string `mapstructure:"name"`
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
	Voice    string `mapstructure:"voice"`
}

type TTSConfig struct {
	Providers  []TTSProviderConfig `mapstructure:"providers"`
	MaxTextLen int                 `mapstructure:"max_text_len"`
	SilentLast bool                `mapstructure:"silent_last"`
}

type TwilioConfig struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	FromNumber string `mapstructure:"from_number"`
	BaseURL    string `mapstructure:"base_url"`
}

type OutboxConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

// Load reads the YAML file at path (optional) and applies BEACON_* env
// overrides, then fills defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("BEACON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.AudioDir == "" {
		c.Server.AudioDir = "data/audio"
	}
	if c.Server.AudioBaseURL == "" {
		c.Server.AudioBaseURL = "http://localhost:8080/audio"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/beacon.db"
	}
	if c.Database.BusyTimeout <= 0 {
		c.Database.BusyTimeout = 5 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Scheduler.CronSpec == "" {
		c.Scheduler.CronSpec = "0 * * * *" // hourly
	}
	if c.Scheduler.TickBudget <= 0 {
		c.Scheduler.TickBudget = 55 * time.Second
	}
	if c.Scheduler.WindowMinutes <= 0 {
		c.Scheduler.WindowMinutes = 10
	}
	if c.Scheduler.UsersPerSecond <= 0 {
		c.Scheduler.UsersPerSecond = 2
	}
	if c.TTS.MaxTextLen <= 0 {
		c.TTS.MaxTextLen = 3000
	}
	if c.Outbox.PollInterval <= 0 {
		c.Outbox.PollInterval = 5 * time.Second
	}
	if c.Outbox.MaxAttempts <= 0 {
		c.Outbox.MaxAttempts = 5
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Server.SchedulerSecret == "" {
		return fmt.Errorf("server.scheduler_secret is required")
	}
	for _, tier := range append(append([]TierConfig{}, c.LLM.Conversational...), c.LLM.Summary...) {
		if tier.Provider != "openai" && tier.Provider != "anthropic" {
			return fmt.Errorf("llm tier %q has unknown provider %q", tier.Name, tier.Provider)
		}
	}
	if c.LLM.Emergency != nil && c.LLM.Emergency.Provider != "openai" && c.LLM.Emergency.Provider != "anthropic" {
		return fmt.Errorf("llm emergency tier has unknown provider %q", c.LLM.Emergency.Provider)
	}
	return nil
}
