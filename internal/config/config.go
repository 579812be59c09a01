package config

import (
	"fmt"
	"os"
	"time"

	"ripandrun-ingest/internal/models"

	"gopkg.in/yaml.v2"
)

// Defaults applied when the corresponding YAML value is absent
const (
	DefaultDayInterval   = 15 * time.Minute
	DefaultNightInterval = time.Hour
	DefaultNightStart    = 23
	DefaultNightEnd      = 6
	DefaultLookback      = 72 * time.Hour
	DefaultMaxPerCycle   = 15
	DefaultQueueInterval = time.Minute
	DefaultMaxRetries    = 3
	DefaultRetention     = 500
	DefaultRedisTTL      = 7 * 24 * time.Hour
	DefaultRecogTimeout  = 2 * time.Minute
)

// Load reads the configuration from the specified YAML file and returns a
// Config struct. ${VAR} references in the file are expanded from the
// environment so credentials can stay out of the YAML.
func Load(filepath string) (*models.Config, error) {
	configFile, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(configFile))

	var config models.Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, err
	}

	applyDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyDefaults(cfg *models.Config) {
	if cfg.Poller.DayInterval == 0 {
		cfg.Poller.DayInterval = DefaultDayInterval
	}
	if cfg.Poller.NightInterval == 0 {
		cfg.Poller.NightInterval = DefaultNightInterval
	}
	if cfg.Poller.NightStartHour == 0 && cfg.Poller.NightEndHour == 0 {
		cfg.Poller.NightStartHour = DefaultNightStart
		cfg.Poller.NightEndHour = DefaultNightEnd
	}
	if cfg.Poller.Lookback == 0 {
		cfg.Poller.Lookback = DefaultLookback
	}
	if cfg.Poller.MaxPerCycle == 0 {
		cfg.Poller.MaxPerCycle = DefaultMaxPerCycle
	}
	if cfg.Queue.Interval == 0 {
		cfg.Queue.Interval = DefaultQueueInterval
	}
	if cfg.Queue.MaxRetries == 0 {
		cfg.Queue.MaxRetries = DefaultMaxRetries
	}
	if cfg.Watermark.Backend == "" {
		cfg.Watermark.Backend = "file"
	}
	if cfg.Watermark.Retention == 0 {
		cfg.Watermark.Retention = DefaultRetention
	}
	if cfg.Watermark.RedisTTL == 0 {
		cfg.Watermark.RedisTTL = DefaultRedisTTL
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "sqlite"
	}
	if cfg.Recognition.Timeout == 0 {
		cfg.Recognition.Timeout = DefaultRecogTimeout
	}
	if cfg.Recognition.Model == "" {
		cfg.Recognition.Model = "gpt-4o"
	}
	if cfg.Email.MailBox == "" {
		cfg.Email.MailBox = "INBOX"
	}
}

func validate(cfg *models.Config) error {
	if cfg.Email.Imap == "" {
		return fmt.Errorf("email.imap is required")
	}
	if cfg.Email.Login == "" || cfg.Email.Password == "" {
		return fmt.Errorf("email.login and email.password are required")
	}
	if cfg.Paths.Drop == "" {
		return fmt.Errorf("paths.drop is required")
	}
	if cfg.Paths.Quarantine == "" {
		return fmt.Errorf("paths.quarantine is required")
	}
	switch cfg.Watermark.Backend {
	case "file":
		if cfg.Paths.State == "" {
			return fmt.Errorf("paths.state is required for the file watermark backend")
		}
	case "redis":
		if cfg.Watermark.RedisURL == "" {
			return fmt.Errorf("watermark.redisUrl is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown watermark backend %q", cfg.Watermark.Backend)
	}
	switch cfg.Storage.Backend {
	case "sqlite", "postgres":
		if cfg.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	if h := cfg.Poller.NightStartHour; h < 0 || h > 23 {
		return fmt.Errorf("poller.nightStartHour must be 0-23, got %d", h)
	}
	if h := cfg.Poller.NightEndHour; h < 0 || h > 23 {
		return fmt.Errorf("poller.nightEndHour must be 0-23, got %d", h)
	}
	return nil
}
