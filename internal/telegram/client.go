// Package telegram sends current-contract and refresh health notifications
// via the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/tariffwatch/internal/models"
)

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration

	mu     sync.RWMutex
	status func() string
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// SetStatusFunc sets the text the /current command replies with.
func (c *Client) SetStatusFunc(fn func() string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = fn
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(update.Message)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "ping":
		reply := tgbotapi.NewMessage(msg.Chat.ID, "Pong")
		c.bot.Send(reply) //nolint:errcheck
	case "current":
		c.mu.RLock()
		status := c.status
		c.mu.RUnlock()
		text := "No current contract"
		if status != nil {
			text = status()
		}
		c.bot.Send(tgbotapi.NewMessage(msg.Chat.ID, text)) //nolint:errcheck
	}
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendError sends a refresh error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(refreshErr error) error {
	return c.sendMarkdownV2(formatError(refreshErr))
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(failureCount int) error {
	return c.sendMarkdownV2(formatRecovery(failureCount))
}

// SendDesignationChange announces a new current contract of an entry.
func (c *Client) SendDesignationChange(entryTitle string, contract models.DiscoveredContract, identity string) error {
	return c.sendMarkdownV2(formatDesignation(entryTitle, contract, identity))
}

func formatError(err error) string {
	return fmt.Sprintf("⚠️ *Contract refresh error*\n`%s`", escapeMarkdownV2(err.Error()))
}

func formatRecovery(failureCount int) string {
	return fmt.Sprintf("✅ *Contract refresh recovered* after %d consecutive failure\\(s\\)", failureCount)
}

// formatDesignation renders the contract and, when known, its live prices.
func formatDesignation(entryTitle string, contract models.DiscoveredContract, identity string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔌 *Current contract changed* \\(%s\\)\n\n", escapeMarkdownV2(entryTitle))
	if identity == "" {
		b.WriteString("No contract is designated")
		return b.String()
	}
	if contract.Supplier != "" {
		fmt.Fprintf(&b, "%s · %s\n", escapeMarkdownV2(contract.Supplier), escapeMarkdownV2(contract.Product))
		fmt.Fprintf(&b, "%s, %s\n", escapeMarkdownV2(contract.PriceComponent), escapeMarkdownV2(contract.PricingMode))
	}
	if contract.Prices != nil {
		pair := contract.PricePair()
		fmt.Fprintf(&b, "Afname: *%s* €/kWh\n", escapeMarkdownV2(strconv.FormatFloat(pair.Buy, 'f', -1, 64)))
		fmt.Fprintf(&b, "Injectie: *%s* €/kWh\n", escapeMarkdownV2(strconv.FormatFloat(pair.Sell, 'f', -1, 64)))
	}
	fmt.Fprintf(&b, "`%s`", escapeMarkdownV2(identity))
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
