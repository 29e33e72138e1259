package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the runtime options for the oracle service.
type Config struct {
	ListenAddress     string        `yaml:"listen"`
	ChainID           uint64        `yaml:"chain_id"`
	VerifyingContract string        `yaml:"verifying_contract"`
	SignerKey         string        `yaml:"signer_key"`
	SignerKeyFile     string        `yaml:"signer_key_file"`
	SignerKeyEnv      string        `yaml:"signer_key_env"`
	DatabaseURL       string        `yaml:"database_url"`
	RequestTimeoutSec int           `yaml:"request_timeout_seconds"`
	RequestTimeout    time.Duration `yaml:"-"`

	Twitter   TwitterConfig   `yaml:"twitter"`
	Discord   DiscordConfig   `yaml:"discord"`
	Referral  ReferralConfig  `yaml:"referral"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Environment string `yaml:"environment"`
}

// TelemetryConfig controls the optional OTLP exporters.
type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
	Headers  string `yaml:"headers"`
	Traces   bool   `yaml:"traces"`
	Metrics  bool   `yaml:"metrics"`
}

// TwitterConfig holds Twitter API credentials and task targets.
type TwitterConfig struct {
	BearerToken   string   `yaml:"bearer_token"`
	TargetUserID  string   `yaml:"target_user_id"`
	MentionHandle string   `yaml:"mention_handle"`
	MemeHashtags  []string `yaml:"meme_hashtags"`
	WindowHours   int      `yaml:"window_hours"`
}

// DiscordConfig holds bot credentials and the guild the oracle verifies.
type DiscordConfig struct {
	BotToken      string `yaml:"bot_token"`
	GuildID       string `yaml:"guild_id"`
	MinTenureDays int    `yaml:"min_tenure_days"`
}

// ReferralConfig tunes the referral funnel.
type ReferralConfig struct {
	CodeLength          int     `yaml:"code_length"`
	RewardPerConversion float64 `yaml:"reward_per_conversion"`
}

// RateLimitConfig bounds per-client request rates at the HTTP boundary.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// Load reads configuration from disk, resolves signer key indirection, and
// applies defaults.
func Load(path string) (Config, error) {
	cfg := Config{
		ListenAddress:     ":3001",
		RequestTimeoutSec: 10,
		Twitter:           TwitterConfig{WindowHours: 24},
		Discord:           DiscordConfig{MinTenureDays: 1},
		Referral:          ReferralConfig{CodeLength: 8, RewardPerConversion: 0.1},
		RateLimit:         RateLimitConfig{RequestsPerMinute: 100, Burst: 20},
	}
	if strings.TrimSpace(path) == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":3001"
	}
	if cfg.ChainID == 0 {
		return Config{}, fmt.Errorf("chain_id required")
	}
	cfg.VerifyingContract = strings.TrimSpace(cfg.VerifyingContract)
	if cfg.VerifyingContract == "" {
		return Config{}, fmt.Errorf("verifying_contract required")
	}

	cfg.SignerKey = strings.TrimSpace(cfg.SignerKey)
	cfg.SignerKeyEnv = strings.TrimSpace(cfg.SignerKeyEnv)
	cfg.SignerKeyFile = strings.TrimSpace(cfg.SignerKeyFile)
	if cfg.SignerKey == "" {
		switch {
		case cfg.SignerKeyEnv != "":
			value := strings.TrimSpace(os.Getenv(cfg.SignerKeyEnv))
			if value == "" {
				return Config{}, fmt.Errorf("signer key env %s is empty", cfg.SignerKeyEnv)
			}
			cfg.SignerKey = value
		case cfg.SignerKeyFile != "":
			raw, err := os.ReadFile(cfg.SignerKeyFile)
			if err != nil {
				return Config{}, fmt.Errorf("read signer key file: %w", err)
			}
			cfg.SignerKey = strings.TrimSpace(string(raw))
		default:
			return Config{}, fmt.Errorf("signer_key, signer_key_env, or signer_key_file required")
		}
	}

	if cfg.RequestTimeoutSec <= 0 {
		cfg.RequestTimeoutSec = 10
	}
	cfg.RequestTimeout = time.Duration(cfg.RequestTimeoutSec) * time.Second

	if cfg.Twitter.WindowHours <= 0 {
		cfg.Twitter.WindowHours = 24
	}
	if cfg.Discord.MinTenureDays <= 0 {
		cfg.Discord.MinTenureDays = 1
	}
	if cfg.Referral.CodeLength <= 0 {
		cfg.Referral.CodeLength = 8
	}
	if cfg.Referral.RewardPerConversion <= 0 {
		cfg.Referral.RewardPerConversion = 0.1
	}
	if cfg.RateLimit.RequestsPerMinute <= 0 {
		cfg.RateLimit.RequestsPerMinute = 100
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 20
	}
	return cfg, nil
}
