package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Pricing  PricingConfig  `mapstructure:"pricing"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// APIConfig holds Smart Energy Control API configuration
type APIConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	RatePerSecond  float64       `mapstructure:"rate_per_second"`
	PeriodLookback int           `mapstructure:"period_lookback"` // months to step back when a period is empty
}

// PricingConfig holds the static catalog and upstream market price settings
type PricingConfig struct {
	SuppliersPath         string       `mapstructure:"suppliers_path"`
	DistributionCostsPath string       `mapstructure:"distribution_costs_path"`
	DayAheadEntity        string       `mapstructure:"day_ahead_entity"`
	CurrentPriceEntity    string       `mapstructure:"current_price_entity"`
	MarketFeedURL         string       `mapstructure:"market_feed_url"` // optional; empty = entities are fed externally
	Levies                LeviesConfig `mapstructure:"levies"`
}

// LeviesConfig holds the fixed per-kWh levies added to every buy price
type LeviesConfig struct {
	ExciseSurcharge    float64 `mapstructure:"excise_surcharge"`
	EnergyContribution float64 `mapstructure:"energy_contribution"`
	ConnectionFee      float64 `mapstructure:"connection_fee"`
	GreenCertificates  float64 `mapstructure:"green_certificates"`
	Cogeneration       float64 `mapstructure:"cogeneration"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	DBPath       string `mapstructure:"db_path"`
	RegistryPath string `mapstructure:"registry_path"`
	MaxStates    int    `mapstructure:"max_states"`
}

// MetricsConfig holds the Prometheus endpoint configuration
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"` // empty disables the endpoint
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("TARIFFWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// API defaults
	v.SetDefault("api.base_url", "https://api.smartenergycontrol.be/data")
	v.SetDefault("api.poll_interval", "5m")
	v.SetDefault("api.timeout", "30s")
	v.SetDefault("api.max_retries", 3)
	v.SetDefault("api.retry_delay_base", "1s")
	v.SetDefault("api.rate_per_second", 2.0)
	v.SetDefault("api.period_lookback", 11)

	// Pricing defaults
	v.SetDefault("pricing.suppliers_path", "./data/leveranciers.json")
	v.SetDefault("pricing.distribution_costs_path", "./data/distributiekosten_per_distributeur.json")
	v.SetDefault("pricing.day_ahead_entity", "sensor.average_electricity_price_today")
	v.SetDefault("pricing.current_price_entity", "sensor.current_electricity_market_price")
	v.SetDefault("pricing.market_feed_url", "")
	v.SetDefault("pricing.levies.excise_surcharge", 0.014210)
	v.SetDefault("pricing.levies.energy_contribution", 0.001926)
	v.SetDefault("pricing.levies.connection_fee", 0.00075)
	v.SetDefault("pricing.levies.green_certificates", 0.0114)
	v.SetDefault("pricing.levies.cogeneration", 0.004)

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/tariffwatch.db")
	v.SetDefault("storage.registry_path", "./data/sec_sensors.json")
	v.SetDefault("storage.max_states", 2000)

	// Metrics defaults
	v.SetDefault("metrics.listen_addr", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate API config
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.API.PollInterval < 1*time.Minute {
		return fmt.Errorf("api.poll_interval must be at least 1 minute")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	if c.API.MaxRetries < 1 {
		return fmt.Errorf("api.max_retries must be at least 1")
	}
	if c.API.RatePerSecond <= 0 {
		return fmt.Errorf("api.rate_per_second must be positive")
	}
	if c.API.PeriodLookback < 0 || c.API.PeriodLookback > 11 {
		return fmt.Errorf("api.period_lookback must be between 0 and 11")
	}

	// Validate Pricing config
	if c.Pricing.SuppliersPath == "" {
		return fmt.Errorf("pricing.suppliers_path is required")
	}
	if c.Pricing.DistributionCostsPath == "" {
		return fmt.Errorf("pricing.distribution_costs_path is required")
	}
	if c.Pricing.DayAheadEntity == "" || c.Pricing.CurrentPriceEntity == "" {
		return fmt.Errorf("pricing.day_ahead_entity and pricing.current_price_entity are required")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Storage config
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Storage.RegistryPath == "" {
		return fmt.Errorf("storage.registry_path is required")
	}
	if c.Storage.MaxStates < 0 {
		return fmt.Errorf("storage.max_states must not be negative")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
