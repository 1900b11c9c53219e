// Package commands implements the tariffwatch command line.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/tariffwatch/internal/config"
	"github.com/rewired-gh/tariffwatch/internal/logger"
	"github.com/rewired-gh/tariffwatch/internal/registry"
	"github.com/rewired-gh/tariffwatch/internal/secapi"
	"github.com/rewired-gh/tariffwatch/internal/storage"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "tariffwatch",
	Short: "Electricity tariff and contract tracking service",
	Long: `tariffwatch computes supplier tariffs from day-ahead market prices and
tracks live prices of contracts published by the Smart Energy Control API.

Examples:
  tariffwatch run --config configs/config.yaml
  tariffwatch entry add-contracts --api-key KEY --zip 2060
  tariffwatch wizard ENTRY_ID --energy Elektriciteit --mode Dynamisch --segment Woning
  tariffwatch contracts set-current ENTRY_ID IDENTITY`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "Path to configuration file")
}

// loadConfig reads and validates the configuration and initializes logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Debug("Configuration loaded from %s", configPath)
	return cfg, nil
}

// resources are the stores every command works on.
type resources struct {
	cfg   *config.Config
	store *storage.Storage
	book  *registry.Book
}

func openResources() (*resources, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := storage.New(cfg.Storage.MaxStates, cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	book, err := registry.Open(registry.NewFileStore(cfg.Storage.RegistryPath))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}
	return &resources{cfg: cfg, store: store, book: book}, nil
}

func (r *resources) Close() {
	if err := r.book.Flush(); err != nil {
		logger.Error("Failed to flush registry: %v", err)
	}
	if err := r.store.Close(); err != nil {
		logger.Error("Failed to close storage: %v", err)
	}
}

func apiClient(cfg *config.Config, apiKey string) *secapi.Client {
	return secapi.NewClient(cfg.API.BaseURL, apiKey, secapi.ClientConfig{
		Timeout:        cfg.API.Timeout,
		MaxRetries:     cfg.API.MaxRetries,
		RetryDelayBase: cfg.API.RetryDelayBase,
		RatePerSecond:  cfg.API.RatePerSecond,
		PeriodLookback: cfg.API.PeriodLookback,
	})
}
