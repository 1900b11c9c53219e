package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rewired-gh/tariffwatch/internal/hub"
	"github.com/rewired-gh/tariffwatch/internal/metrics"
	"github.com/rewired-gh/tariffwatch/internal/models"
	"github.com/rewired-gh/tariffwatch/internal/tariff"
)

// Feed fills the upstream market price entities from an HTTP endpoint
// returning {"prices": [{"time": ..., "price": ...}, ...]} in €/kWh.
type Feed struct {
	url        string
	httpClient *http.Client
	hub        *hub.Hub
	sources    Sources
	now        func() time.Time
}

// NewFeed creates a feed publishing into h.
func NewFeed(url string, timeout time.Duration, h *hub.Hub, sources Sources) *Feed {
	if sources.DayAhead == "" {
		sources.DayAhead = DefaultDayAheadEntity
	}
	if sources.CurrentPrice == "" {
		sources.CurrentPrice = DefaultCurrentPriceEntity
	}
	return &Feed{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		hub:        h,
		sources:    sources,
		now:        time.Now,
	}
}

// Poll fetches the feed once and publishes both market price entities. The
// current price is the sample of the current hour; it is left untouched
// when the feed has none.
func (f *Feed) Poll(ctx context.Context) error {
	samples, err := f.fetch(ctx)
	metrics.ObserveAPIRequest("market_feed", err)
	if err != nil {
		f.hub.SetUnavailable(f.sources.DayAhead)
		return err
	}

	now := f.now()
	y, m, d := now.Date()
	var total float64
	var count int
	var current *models.PriceSample
	for i := range samples {
		t := samples[i].Time.In(now.Location())
		ty, tm, td := t.Date()
		if ty != y || tm != m || td != d {
			continue
		}
		total += samples[i].Price
		count++
		if t.Hour() == now.Hour() {
			current = &samples[i]
		}
	}
	var avg float64
	if count > 0 {
		avg = tariff.Round5(total / float64(count))
	}

	f.hub.Set(f.sources.DayAhead, avg, map[string]any{AttrPrices: samples})
	if current != nil {
		f.hub.Set(f.sources.CurrentPrice, current.Price, map[string]any{"time": current.Time})
	}
	return nil
}

func (f *Feed) fetch(ctx context.Context) ([]models.PriceSample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch market feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("market feed returned status %d", resp.StatusCode)
	}

	var body struct {
		Prices []any `json:"prices"`
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode market feed: %w", err)
	}
	return parseSamples(body.Prices, f.now().Location())
}

// Close releases idle connections.
func (f *Feed) Close() {
	f.httpClient.CloseIdleConnections()
}
