package telegram

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rewired-gh/tariffwatch/internal/models"
)

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello World"},
		{"Hello_World", "Hello\\_World"},
		{"Test*bold*", "Test\\*bold\\*"},
		{"Price: 0.25", "Price: 0\\.25"},
		{"Fluvius (Limburg)", "Fluvius \\(Limburg\\)"},
		{"Zon & Wind+", "Zon & Wind\\+"},
		{"`code`", "\\`code\\`"},
		{"#header", "\\#header"},
		{"{brace}", "\\{brace\\}"},
		{"end!", "end\\!"},
		{"", ""},
		{"_*[]()~`>#+-=|{}.!", "\\_\\*\\[\\]\\(\\)\\~\\`\\>\\#\\+\\-\\=\\|\\{\\}\\.\\!"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := escapeMarkdownV2(tt.input)
			if result != tt.expected {
				t.Errorf("escapeMarkdownV2(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFormatDesignation(t *testing.T) {
	buy, sell := 0.2512, 0.04
	c := models.DiscoveredContract{
		ContractFilter: models.ContractFilter{
			Supplier: "Engie", Product: "Dynamic", PriceComponent: "Energie", PricingMode: "Dynamisch",
		},
		ID:     7,
		Prices: &models.LivePrices{CurrentPrice: &buy, CurrentInjectionPrice: &sell},
	}
	msg := formatDesignation("sec", c, "sec_engie_dynamic_energie_elektriciteit_woning_dynamisch_7")

	for _, want := range []string{
		"*Current contract changed* \\(sec\\)",
		"Engie · Dynamic",
		"Afname: *0\\.2512* €/kWh",
		"Injectie: *0\\.04* €/kWh",
		"`sec\\_engie\\_dynamic\\_energie\\_elektriciteit\\_woning\\_dynamisch\\_7`",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}

	cleared := formatDesignation("sec", models.DiscoveredContract{}, "")
	if !strings.Contains(cleared, "No contract is designated") {
		t.Errorf("unexpected cleared message: %s", cleared)
	}
}

func TestFormatErrorAndRecovery(t *testing.T) {
	if got := formatError(errors.New("status 503.")); !strings.Contains(got, "`status 503\\.`") {
		t.Errorf("error message not escaped: %s", got)
	}
	if got := formatRecovery(3); !strings.Contains(got, "after 3 consecutive") {
		t.Errorf("unexpected recovery message: %s", got)
	}
}

func TestNewClient_InvalidChatID(t *testing.T) {
	// The chat ID is parsed before the bot token is checked against the API.
	_, err := NewClient("", "not-a-number", 3, time.Second)
	if err == nil {
		t.Error("Expected error for invalid chat ID, got nil")
	}
}
