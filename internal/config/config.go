// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"` // per non-streaming request
}

type AuthConfig struct {
	Token     string `yaml:"token"`      // bearer credential from the identity provider
	TokenFile string `yaml:"token_file"` // re-read on every request when set
}

type PollConfig struct {
	Interval     time.Duration            `yaml:"interval"`
	StallTimeout time.Duration            `yaml:"stall_timeout"` // silent poller stop -> local failure
	ClaimTTL     time.Duration            `yaml:"claim_ttl"`
	MaxWait      map[string]time.Duration `yaml:"max_wait"` // keyed by job type
}

type ETAConfig struct {
	Fast       time.Duration `yaml:"fast"`
	Quality    time.Duration `yaml:"quality"`
	CapPercent float64       `yaml:"cap_percent"`
	Tick       time.Duration `yaml:"tick"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type RedisConfig struct {
	URL      string `yaml:"url"` // empty -> in-memory job tracking
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"` // postgres DSN; used for job tracking when redis.url is empty
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type DownloadConfig struct {
	Dir string `yaml:"dir"`
}

type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

type Config struct {
	API      APIConfig      `yaml:"api"`
	Auth     AuthConfig     `yaml:"auth"`
	Poll     PollConfig     `yaml:"poll"`
	ETA      ETAConfig      `yaml:"eta"`
	Log      LogConfig      `yaml:"log"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
	HTTP     HTTPConfig     `yaml:"http"`
	Download DownloadConfig `yaml:"download"`
	Telegram TelegramConfig `yaml:"telegram"`
	Workers  int            `yaml:"workers"`

	Runtime RuntimeConfig `yaml:"-"`
}

// TokenEnv overrides auth.token when set.
const TokenEnv = "STUDIO_TOKEN"

// LoadConfig reads the YAML file at path. A missing file is not an error
// when path is the default, so the CLI works from env alone.
func LoadConfig(path string, dev bool) (*Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && path == DefaultPath:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if v := strings.TrimSpace(os.Getenv(TokenEnv)); v != "" {
		cfg.Auth.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("STUDIO_API_URL")); v != "" {
		cfg.API.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" && cfg.Database.URL == "" {
		cfg.Database.URL = v
	}
	applyDefaults(&cfg)

	// Minimal validation
	if cfg.API.BaseURL == "" {
		return nil, errors.New("api.base_url is required")
	}
	if cfg.ETA.CapPercent <= 0 || cfg.ETA.CapPercent >= 100 {
		return nil, errors.New("eta.cap_percent must be between 0 and 100")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

const DefaultPath = "studio.yaml"

func applyDefaults(cfg *Config) {
	cfg.API.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.API.BaseURL), "/")
	if cfg.API.Timeout <= 0 {
		cfg.API.Timeout = 30 * time.Second
	}
	if cfg.Poll.Interval <= 0 {
		cfg.Poll.Interval = 3 * time.Second
	}
	if cfg.Poll.StallTimeout <= 0 {
		cfg.Poll.StallTimeout = 30 * time.Second
	}
	if cfg.Poll.ClaimTTL <= 0 {
		cfg.Poll.ClaimTTL = 2 * time.Minute
	}
	defaultsMaxWait := map[string]time.Duration{
		"image_2d":              10 * time.Minute,
		"model_3d":              45 * time.Minute,
		"artifact":              10 * time.Minute,
		"zoning_report":         15 * time.Minute,
		"technical_info_report": 15 * time.Minute,
	}
	if cfg.Poll.MaxWait == nil {
		cfg.Poll.MaxWait = map[string]time.Duration{}
	}
	for k, v := range defaultsMaxWait {
		if cfg.Poll.MaxWait[k] <= 0 {
			cfg.Poll.MaxWait[k] = v
		}
	}
	if cfg.ETA.Fast <= 0 {
		cfg.ETA.Fast = 45 * time.Second
	}
	if cfg.ETA.Quality <= 0 {
		cfg.ETA.Quality = 10 * time.Minute
	}
	if cfg.ETA.CapPercent == 0 {
		cfg.ETA.CapPercent = 95
	}
	if cfg.ETA.Tick <= 0 {
		cfg.ETA.Tick = time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "studio"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = "127.0.0.1:8787"
	}
	if cfg.Download.Dir == "" {
		cfg.Download.Dir = "downloads"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
}
