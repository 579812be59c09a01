package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}
	return path
}

const minimalConfig = `email:
  imap: "imap.test.com:993"
  login: "station54@example.org"
  password: "testpass"
targetFrom: "alerts@mailfax.example.com"
targetSubject: "Rip and Run"
paths:
  drop: "/var/lib/ripandrun/drop"
  quarantine: "/var/lib/ripandrun/quarantine"
  state: "/var/lib/ripandrun/processed_emails.txt"
storage:
  dsn: "/var/lib/ripandrun/rip_and_runs.db"
recognition:
  endpoint: "https://api.openai.com/v1/chat/completions"
  apiKey: "sk-test"
`

func TestLoad(t *testing.T) {
	yamlContent := `email:
  imap: "imap.test.com:993"
  login: "station54@example.org"
  password: "testpass"
  mailbox: "Faxes"
targetFrom: "alerts@mailfax.example.com"
targetSubject: "Rip and Run"
paths:
  drop: "/var/lib/ripandrun/drop"
  quarantine: "/var/lib/ripandrun/quarantine"
  state: "/var/lib/ripandrun/processed_emails.txt"
poller:
  dayInterval: 5m
  nightInterval: 2h
  nightStartHour: 22
  nightEndHour: 5
  lookback: 48h
  maxPerCycle: 10
queue:
  interval: 30s
  maxRetries: 5
watermark:
  backend: file
  retention: 200
recognition:
  endpoint: "https://api.openai.com/v1/chat/completions"
  apiKey: "sk-test"
  model: "gpt-4o"
  timeout: 90s
storage:
  backend: sqlite
  dsn: "/var/lib/ripandrun/rip_and_runs.db"
defaultUnitId: "54-1"
`

	cfg, err := Load(writeConfig(t, yamlContent))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Email.Imap != "imap.test.com:993" {
		t.Errorf("Expected imap 'imap.test.com:993', got '%s'", cfg.Email.Imap)
	}
	if cfg.Email.MailBox != "Faxes" {
		t.Errorf("Expected mailbox 'Faxes', got '%s'", cfg.Email.MailBox)
	}
	if cfg.TargetFrom != "alerts@mailfax.example.com" {
		t.Errorf("Expected targetFrom 'alerts@mailfax.example.com', got '%s'", cfg.TargetFrom)
	}
	if cfg.Poller.DayInterval != 5*time.Minute {
		t.Errorf("Expected dayInterval 5m, got %v", cfg.Poller.DayInterval)
	}
	if cfg.Poller.NightInterval != 2*time.Hour {
		t.Errorf("Expected nightInterval 2h, got %v", cfg.Poller.NightInterval)
	}
	if cfg.Poller.NightStartHour != 22 || cfg.Poller.NightEndHour != 5 {
		t.Errorf("Expected night window 22-5, got %d-%d",
			cfg.Poller.NightStartHour, cfg.Poller.NightEndHour)
	}
	if cfg.Poller.Lookback != 48*time.Hour {
		t.Errorf("Expected lookback 48h, got %v", cfg.Poller.Lookback)
	}
	if cfg.Queue.Interval != 30*time.Second {
		t.Errorf("Expected queue interval 30s, got %v", cfg.Queue.Interval)
	}
	if cfg.Queue.MaxRetries != 5 {
		t.Errorf("Expected maxRetries 5, got %d", cfg.Queue.MaxRetries)
	}
	if cfg.Watermark.Retention != 200 {
		t.Errorf("Expected retention 200, got %d", cfg.Watermark.Retention)
	}
	if cfg.Recognition.Timeout != 90*time.Second {
		t.Errorf("Expected recognition timeout 90s, got %v", cfg.Recognition.Timeout)
	}
	if cfg.DefaultUnitID != "54-1" {
		t.Errorf("Expected defaultUnitId '54-1', got '%s'", cfg.DefaultUnitID)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Poller.DayInterval != DefaultDayInterval {
		t.Errorf("Expected default dayInterval %v, got %v", DefaultDayInterval, cfg.Poller.DayInterval)
	}
	if cfg.Poller.NightInterval != DefaultNightInterval {
		t.Errorf("Expected default nightInterval %v, got %v", DefaultNightInterval, cfg.Poller.NightInterval)
	}
	if cfg.Poller.NightStartHour != DefaultNightStart || cfg.Poller.NightEndHour != DefaultNightEnd {
		t.Errorf("Expected default night window %d-%d, got %d-%d",
			DefaultNightStart, DefaultNightEnd, cfg.Poller.NightStartHour, cfg.Poller.NightEndHour)
	}
	if cfg.Poller.MaxPerCycle != DefaultMaxPerCycle {
		t.Errorf("Expected default maxPerCycle %d, got %d", DefaultMaxPerCycle, cfg.Poller.MaxPerCycle)
	}
	if cfg.Queue.Interval != DefaultQueueInterval {
		t.Errorf("Expected default queue interval %v, got %v", DefaultQueueInterval, cfg.Queue.Interval)
	}
	if cfg.Queue.MaxRetries != DefaultMaxRetries {
		t.Errorf("Expected default maxRetries %d, got %d", DefaultMaxRetries, cfg.Queue.MaxRetries)
	}
	if cfg.Watermark.Backend != "file" {
		t.Errorf("Expected default watermark backend 'file', got '%s'", cfg.Watermark.Backend)
	}
	if cfg.Watermark.Retention != DefaultRetention {
		t.Errorf("Expected default retention %d, got %d", DefaultRetention, cfg.Watermark.Retention)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("Expected default storage backend 'sqlite', got '%s'", cfg.Storage.Backend)
	}
	if cfg.Recognition.Timeout != DefaultRecogTimeout {
		t.Errorf("Expected default recognition timeout %v, got %v", DefaultRecogTimeout, cfg.Recognition.Timeout)
	}
	if cfg.Recognition.Model != "gpt-4o" {
		t.Errorf("Expected default model 'gpt-4o', got '%s'", cfg.Recognition.Model)
	}
	if cfg.Email.MailBox != "INBOX" {
		t.Errorf("Expected default mailbox 'INBOX', got '%s'", cfg.Email.MailBox)
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("MAIL_PASSWORD", "secret-from-env")
	t.Setenv("RECOG_API_KEY", "sk-from-env")

	content := strings.ReplaceAll(minimalConfig, `password: "testpass"`, `password: "${MAIL_PASSWORD}"`)
	content = strings.ReplaceAll(content, `apiKey: "sk-test"`, `apiKey: "${RECOG_API_KEY}"`)

	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Email.Password != "secret-from-env" {
		t.Errorf("Expected password from environment, got '%s'", cfg.Email.Password)
	}
	if cfg.Recognition.APIKey != "sk-from-env" {
		t.Errorf("Expected apiKey from environment, got '%s'", cfg.Recognition.APIKey)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(string) string
		wantErr string
	}{
		{
			name:    "Missing imap server",
			mutate:  func(c string) string { return strings.ReplaceAll(c, `imap: "imap.test.com:993"`, `imap: ""`) },
			wantErr: "email.imap",
		},
		{
			name:    "Missing credentials",
			mutate:  func(c string) string { return strings.ReplaceAll(c, `password: "testpass"`, `password: ""`) },
			wantErr: "email.login and email.password",
		},
		{
			name:    "Missing drop path",
			mutate:  func(c string) string { return strings.ReplaceAll(c, `drop: "/var/lib/ripandrun/drop"`, `drop: ""`) },
			wantErr: "paths.drop",
		},
		{
			name: "File watermark without state path",
			mutate: func(c string) string {
				return strings.ReplaceAll(c, `state: "/var/lib/ripandrun/processed_emails.txt"`, `state: ""`)
			},
			wantErr: "paths.state",
		},
		{
			name:    "Redis watermark without URL",
			mutate:  func(c string) string { return c + "watermark:\n  backend: redis\n" },
			wantErr: "watermark.redisUrl",
		},
		{
			name:    "Unknown watermark backend",
			mutate:  func(c string) string { return c + "watermark:\n  backend: dynamo\n" },
			wantErr: "unknown watermark backend",
		},
		{
			name: "Missing storage DSN",
			mutate: func(c string) string {
				return strings.ReplaceAll(c, `dsn: "/var/lib/ripandrun/rip_and_runs.db"`, `dsn: ""`)
			},
			wantErr: "storage.dsn",
		},
		{
			name:    "Unknown storage backend",
			mutate:  func(c string) string { return c + "storage:\n  backend: mongo\n  dsn: x\n" },
			wantErr: "unknown storage backend",
		},
		{
			name:    "Night start hour out of range",
			mutate:  func(c string) string { return c + "poller:\n  nightStartHour: 25\n  nightEndHour: 6\n" },
			wantErr: "nightStartHour",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.mutate(minimalConfig)))
			if err == nil {
				t.Fatal("Load() succeeded, expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load() succeeded on missing file")
	}
}
