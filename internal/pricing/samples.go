// Package pricing publishes supplier tariff entities computed from the
// day-ahead market price entities.
package pricing

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rewired-gh/tariffwatch/internal/models"
)

// Upstream market price entities.
const (
	DefaultDayAheadEntity     = "sensor.average_electricity_price_today"
	DefaultCurrentPriceEntity = "sensor.current_electricity_market_price"
)

// AttrPrices is the day-ahead entity attribute holding the hourly samples.
const AttrPrices = "prices"

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, strings.TrimSpace(s), loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}

// parseNumber accepts the numeric shapes an entity value can take.
func parseNumber(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, fmt.Errorf("value %v (%T) is not a number", v, v)
	}
}

// parseSamples reads the hourly samples from a day-ahead entity attribute.
// It accepts typed samples or the decoded JSON form [{time, price}].
// Times without a zone are read in loc.
func parseSamples(v any, loc *time.Location) ([]models.PriceSample, error) {
	switch list := v.(type) {
	case nil:
		return nil, nil
	case []models.PriceSample:
		return list, nil
	case []map[string]any:
		items := make([]any, len(list))
		for i, m := range list {
			items[i] = m
		}
		return parseSamples(items, loc)
	case []any:
		out := make([]models.PriceSample, 0, len(list))
		for i, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("sample %d: %T is not an object", i, item)
			}
			var ts time.Time
			switch t := m["time"].(type) {
			case time.Time:
				ts = t
			case string:
				parsed, err := parseTime(t, loc)
				if err != nil {
					return nil, fmt.Errorf("sample %d: %w", i, err)
				}
				ts = parsed
			default:
				return nil, fmt.Errorf("sample %d: time: %w", i, models.ErrMissingField)
			}
			price, err := parseNumber(m["price"])
			if err != nil {
				return nil, fmt.Errorf("sample %d: price: %w", i, err)
			}
			out = append(out, models.PriceSample{Time: ts, Price: price})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("prices attribute %T is not a list", v)
	}
}
