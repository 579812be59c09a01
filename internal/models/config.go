package models

import "time"

// Config represents the application configuration
type Config struct {
	Email         EmailConfig       `yaml:"email"`
	TargetFrom    string            `yaml:"targetFrom"`
	TargetSubject string            `yaml:"targetSubject"`
	Paths         PathsConfig       `yaml:"paths"`
	Poller        PollerConfig      `yaml:"poller"`
	Queue         QueueConfig       `yaml:"queue"`
	Watermark     WatermarkConfig   `yaml:"watermark"`
	Recognition   RecognitionConfig `yaml:"recognition"`
	Storage       StorageConfig     `yaml:"storage"`
	DefaultUnitID string            `yaml:"defaultUnitId"`
}

// EmailConfig represents IMAP email configuration
type EmailConfig struct {
	Imap     string `yaml:"imap"`
	Login    string `yaml:"login"`
	Password string `yaml:"password"`
	MailBox  string `yaml:"mailbox"`
}

// PathsConfig holds the filesystem locations shared by the two loops.
// Drop is written by the mail poller and drained by the file queue,
// Quarantine receives documents that failed processing, State holds the
// watermark file.
type PathsConfig struct {
	Drop       string `yaml:"drop"`
	Quarantine string `yaml:"quarantine"`
	State      string `yaml:"state"`
}

// PollerConfig controls the mail polling loop. The night interval applies
// between NightStartHour and NightEndHour, which may span midnight.
type PollerConfig struct {
	DayInterval    time.Duration `yaml:"dayInterval"`
	NightInterval  time.Duration `yaml:"nightInterval"`
	NightStartHour int           `yaml:"nightStartHour"`
	NightEndHour   int           `yaml:"nightEndHour"`
	Lookback       time.Duration `yaml:"lookback"`
	MaxPerCycle    int           `yaml:"maxPerCycle"`
}

// QueueConfig controls the file processing loop
type QueueConfig struct {
	Interval   time.Duration `yaml:"interval"`
	MaxRetries int           `yaml:"maxRetries"`
}

// WatermarkConfig selects and tunes the seen-message store.
// Backend is "file" or "redis".
type WatermarkConfig struct {
	Backend   string        `yaml:"backend"`
	Retention int           `yaml:"retention"`
	RedisURL  string        `yaml:"redisUrl"`
	RedisTTL  time.Duration `yaml:"redisTtl"`
}

// RecognitionConfig holds the document recognition service settings
type RecognitionConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"apiKey"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

// StorageConfig selects the incident store backend, "sqlite" or "postgres"
type StorageConfig struct {
	Backend string `yaml:"backend"`
	DSN     string `yaml:"dsn"`
}
