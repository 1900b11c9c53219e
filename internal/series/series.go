// Package series turns a day-ahead market price series into derived consumer
// prices, daily statistics and a rolling next-24-hours window.
package series

import (
	"sort"
	"time"

	"github.com/rewired-gh/tariffwatch/internal/models"
	"github.com/rewired-gh/tariffwatch/internal/tariff"
)

// Sentinels left in Stats when a day has no samples.
const (
	NoDataHighest = -100.0
	NoDataLowest  = 100.0
)

// Stats are the daily aggregates of one derived price.
type Stats struct {
	Average float64
	Highest float64
	Lowest  float64
	Count   int
}

// HasData reports whether the stats were computed from at least one sample.
// Highest and Lowest hold the sentinels otherwise.
func (s Stats) HasData() bool { return s.Count > 0 }

func newStats() Stats {
	return Stats{Highest: NoDataHighest, Lowest: NoDataLowest}
}

func (s *Stats) add(v float64) {
	s.Count++
	s.Average += v
	if v > s.Highest {
		s.Highest = v
	}
	if v < s.Lowest {
		s.Lowest = v
	}
}

func (s *Stats) finish() {
	if s.Count > 0 {
		s.Average /= float64(s.Count)
	}
}

// Summary is everything derived from one refresh of the price series.
type Summary struct {
	Date              string
	Value             float64
	Today             []models.DerivedPricePoint
	Tomorrow          []models.DerivedPricePoint
	TomorrowAvailable bool
	Buy               Stats
	Sell              Stats
	Next24Hourly      []models.DerivedPricePoint
	Next24HalfHourly  []models.DerivedPricePoint
}

// Aggregate derives the summary for the local day of now. Samples may span
// several days; only today's and tomorrow's are used.
func Aggregate(samples []models.PriceSample, s models.FeeSchedule, c tariff.Constants, now time.Time) (Summary, error) {
	loc := now.Location()
	today := dayStart(now)
	tomorrow := today.AddDate(0, 0, 1)
	dayAfter := today.AddDate(0, 0, 2)

	ordered := make([]models.PriceSample, len(samples))
	copy(ordered, samples)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Time.Before(ordered[j].Time) })

	var todays, tomorrows []models.PriceSample
	for _, sample := range ordered {
		t := sample.Time.In(loc)
		switch {
		case !t.Before(today) && t.Before(tomorrow):
			todays = append(todays, sample)
		case !t.Before(tomorrow) && t.Before(dayAfter):
			tomorrows = append(tomorrows, sample)
		}
	}

	sum := Summary{
		Date:              today.Format("02/01/2006 00:00 MST"),
		Buy:               newStats(),
		Sell:              newStats(),
		TomorrowAvailable: len(tomorrows) == 24,
		Today:             []models.DerivedPricePoint{},
		Tomorrow:          []models.DerivedPricePoint{},
	}

	var rawTotal float64
	for _, sample := range todays {
		p, err := derive(sample, s, c, loc)
		if err != nil {
			return Summary{}, err
		}
		rawTotal += sample.Price
		sum.Buy.add(p.Buy)
		sum.Sell.add(p.Sell)
		sum.Today = append(sum.Today, p)
	}
	sum.Buy.finish()
	sum.Sell.finish()
	if len(todays) > 0 {
		sum.Value = tariff.Round5(rawTotal / float64(len(todays)))
	}

	if sum.TomorrowAvailable {
		for _, sample := range tomorrows {
			p, err := derive(sample, s, c, loc)
			if err != nil {
				return Summary{}, err
			}
			sum.Tomorrow = append(sum.Tomorrow, p)
		}
	}

	window := Next24(append(append([]models.PriceSample{}, todays...), tomorrows...), now.Hour())
	sum.Next24Hourly = make([]models.DerivedPricePoint, 0, len(window))
	sum.Next24HalfHourly = make([]models.DerivedPricePoint, 0, 2*len(window))
	for _, sample := range window {
		p, err := derive(sample, s, c, loc)
		if err != nil {
			return Summary{}, err
		}
		sum.Next24Hourly = append(sum.Next24Hourly, p)
		sum.Next24HalfHourly = append(sum.Next24HalfHourly, p, p)
	}

	return sum, nil
}

// Next24 returns up to 24 samples starting at index hour. The window is
// shorter when fewer samples remain.
func Next24(samples []models.PriceSample, hour int) []models.PriceSample {
	if hour >= len(samples) {
		return nil
	}
	end := hour + 24
	if end > len(samples) {
		end = len(samples)
	}
	return samples[hour:end]
}

func derive(sample models.PriceSample, s models.FeeSchedule, c tariff.Constants, loc *time.Location) (models.DerivedPricePoint, error) {
	pair, err := tariff.Pair(s, c, sample.Price)
	if err != nil {
		return models.DerivedPricePoint{}, err
	}
	return models.DerivedPricePoint{
		Time: sample.Time.In(loc).Format("15:04"),
		Buy:  pair.Buy,
		Sell: pair.Sell,
	}, nil
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Amount is one timestamped price in the entity attribute lists.
type Amount struct {
	Time   string  `json:"time"`
	Amount float64 `json:"amount"`
}

func split(points []models.DerivedPricePoint) (buy, sell []Amount) {
	buy = make([]Amount, 0, len(points))
	sell = make([]Amount, 0, len(points))
	for _, p := range points {
		buy = append(buy, Amount{Time: p.Time, Amount: p.Buy})
		sell = append(sell, Amount{Time: p.Time, Amount: p.Sell})
	}
	return buy, sell
}

// Attributes flattens the summary into the entity attribute names.
func (s Summary) Attributes() map[string]any {
	attrs := map[string]any{
		"date":                   s.Date,
		"tomorrow_available":     s.TomorrowAvailable,
		"average_afname_today":   s.Buy.Average,
		"highest_afname_today":   s.Buy.Highest,
		"lowest_afname_today":    s.Buy.Lowest,
		"average_injectie_today": s.Sell.Average,
		"highest_injectie_today": s.Sell.Highest,
		"lowest_injectie_today":  s.Sell.Lowest,
	}
	lists := []struct {
		buyKey, sellKey string
		points          []models.DerivedPricePoint
	}{
		{"afname", "injectie", s.Today},
		{"afname_tomorrow", "injectie_tomorrow", s.Tomorrow},
		{"afname_next24_60", "injectie_next24_60", s.Next24Hourly},
		{"afname_next24_30", "injectie_next24_30", s.Next24HalfHourly},
	}
	for _, l := range lists {
		buy, sell := split(l.points)
		attrs[l.buyKey] = buy
		attrs[l.sellKey] = sell
	}
	return attrs
}
