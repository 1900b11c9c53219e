package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/rewired-gh/tariffwatch/internal/app"
	"github.com/rewired-gh/tariffwatch/internal/hub"
	"github.com/rewired-gh/tariffwatch/internal/logger"
	"github.com/rewired-gh/tariffwatch/internal/metrics"
	"github.com/rewired-gh/tariffwatch/internal/pricing"
	"github.com/rewired-gh/tariffwatch/internal/telegram"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the service",
	Long: `Loads every configured entry, refreshes contract prices on their schedules
and recomputes supplier tariffs until interrupted.`,
	RunE: runService,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runService(cmd *cobra.Command, args []string) error {
	res, err := openResources()
	if err != nil {
		return err
	}
	defer res.Close()
	cfg := res.cfg

	h := hub.New()
	a, err := app.New(cfg, h, res.store, res.book)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	if cfg.Metrics.ListenAddr != "" {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return err
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		server := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}
		go func() {
			logger.Info("Metrics listening on %s", cfg.Metrics.ListenAddr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed: %v", err)
			}
		}()
		defer server.Close()
	}

	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			return err
		}
		logger.Info("Telegram client initialized successfully")
		a.SetNotifier(telegramClient)
		telegramClient.SetStatusFunc(a.Status)
		telegramClient.ListenForCommands(ctx)
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	if err := a.SetupAll(ctx); err != nil {
		return err
	}
	defer a.Close()

	var feed *pricing.Feed
	if cfg.Pricing.MarketFeedURL != "" {
		feed = pricing.NewFeed(cfg.Pricing.MarketFeedURL, cfg.API.Timeout, h, pricing.Sources{
			DayAhead:     cfg.Pricing.DayAheadEntity,
			CurrentPrice: cfg.Pricing.CurrentPriceEntity,
		})
		defer feed.Close()
	}

	consecutiveFailures := 0
	handleFeedResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Market feed poll failed: %v", err)
			if consecutiveFailures == 1 && telegramClient != nil {
				if sendErr := telegramClient.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
			return
		}
		if consecutiveFailures > 0 && telegramClient != nil {
			if sendErr := telegramClient.SendRecovery(consecutiveFailures); sendErr != nil {
				logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
			}
		}
		consecutiveFailures = 0
	}

	logger.Info("Service started (%d entries, poll interval %v)", len(a.Loaded()), cfg.API.PollInterval)
	if feed != nil {
		handleFeedResult(feed.Poll(ctx))
	}

	ticker := time.NewTicker(cfg.API.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Service stopped")
			return nil

		case <-ticker.C:
			if feed != nil {
				handleFeedResult(feed.Poll(ctx))
			}
			if err := res.store.RotateStates(); err != nil {
				logger.Warn("Failed to rotate entity states: %v", err)
			}
		}
	}
}
