package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:        "https://example.com/data",
			PollInterval:   5 * time.Minute,
			Timeout:        30 * time.Second,
			MaxRetries:     3,
			RetryDelayBase: time.Second,
			RatePerSecond:  2,
			PeriodLookback: 11,
		},
		Pricing: PricingConfig{
			SuppliersPath:         "leveranciers.json",
			DistributionCostsPath: "distributie.json",
			DayAheadEntity:        "sensor.day_ahead",
			CurrentPriceEntity:    "sensor.current",
		},
		Storage: StorageConfig{
			DBPath:       "./data/test.db",
			RegistryPath: "./data/registry.json",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func TestLoadAndValidate(t *testing.T) {
	// Create temp config file
	content := `
api:
  base_url: "https://api.example.be/data"
  poll_interval: 10m
  max_retries: 5

pricing:
  suppliers_path: "./catalog/leveranciers.json"
  levies:
    excise_surcharge: 0.012

telegram:
  bot_token: "test_token"
  chat_id: "12345"
  enabled: true

storage:
  db_path: "./data/test.db"

logging:
  level: "debug"
  format: "text"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.PollInterval != 10*time.Minute {
		t.Errorf("Unexpected poll interval: %v", cfg.API.PollInterval)
	}
	if cfg.API.MaxRetries != 5 {
		t.Errorf("Unexpected max retries: %d", cfg.API.MaxRetries)
	}
	if cfg.API.Timeout != 30*time.Second {
		t.Errorf("Default timeout not applied: %v", cfg.API.Timeout)
	}
	if cfg.Pricing.Levies.ExciseSurcharge != 0.012 {
		t.Errorf("Unexpected excise surcharge: %f", cfg.Pricing.Levies.ExciseSurcharge)
	}
	if cfg.Pricing.Levies.GreenCertificates != 0.0114 {
		t.Errorf("Default green certificates not applied: %f", cfg.Pricing.Levies.GreenCertificates)
	}
	if cfg.Storage.RegistryPath != "./data/sec_sensors.json" {
		t.Errorf("Default registry path not applied: %s", cfg.Storage.RegistryPath)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("TARIFFWATCH_API_POLL_INTERVAL", "15m")
	t.Setenv("TARIFFWATCH_LOGGING_LEVEL", "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.API.PollInterval != 15*time.Minute {
		t.Errorf("env override not applied: %v", cfg.API.PollInterval)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("env override not applied: %s", cfg.Logging.Level)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing telegram token when enabled", func(c *Config) { c.Telegram.Enabled = true; c.Telegram.ChatID = "1" }, true},
		{"poll interval too short", func(c *Config) { c.API.PollInterval = 30 * time.Second }, true},
		{"lookback out of range", func(c *Config) { c.API.PeriodLookback = 12 }, true},
		{"zero rate", func(c *Config) { c.API.RatePerSecond = 0 }, true},
		{"missing registry path", func(c *Config) { c.Storage.RegistryPath = "" }, true},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
