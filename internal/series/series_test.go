package series

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/tariffwatch/internal/models"
	"github.com/rewired-gh/tariffwatch/internal/tariff"
)

var cet = time.FixedZone("CET", 3600)

// unitSchedule makes buy = raw*1000*1.06/100 and sell = raw*1000/100.
var unitSchedule = models.FeeSchedule{Dynamic: true, MeterFactor: 1, InjectionFactor: 1}

func hourly(day time.Time, n int, price func(i int) float64) []models.PriceSample {
	out := make([]models.PriceSample, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.PriceSample{Time: day.Add(time.Duration(i) * time.Hour), Price: price(i)})
	}
	return out
}

func TestAggregate_TodayAndTomorrow(t *testing.T) {
	today := time.Date(2026, 10, 18, 0, 0, 0, 0, cet)
	now := today.Add(10*time.Hour + 15*time.Minute)

	samples := append(
		hourly(today, 24, func(i int) float64 { return 0.01 * float64(i+1) }),
		hourly(today.AddDate(0, 0, 1), 24, func(i int) float64 { return 0.05 })...,
	)

	sum, err := Aggregate(samples, unitSchedule, tariff.Constants{}, now)
	require.NoError(t, err)

	assert.True(t, sum.TomorrowAvailable)
	assert.Len(t, sum.Today, 24)
	assert.Len(t, sum.Tomorrow, 24)
	assert.Equal(t, "00:00", sum.Today[0].Time)
	assert.Equal(t, "23:00", sum.Today[23].Time)

	// mean of 0.01..0.24
	assert.InDelta(t, 0.125, sum.Value, 1e-9)

	assert.InDelta(t, 0.106, sum.Buy.Lowest, 1e-9)
	assert.InDelta(t, 2.544, sum.Buy.Highest, 1e-9)
	assert.InDelta(t, 0.1, sum.Sell.Lowest, 1e-9)
	assert.InDelta(t, 2.4, sum.Sell.Highest, 1e-9)
	assert.InDelta(t, 1.25, sum.Sell.Average, 1e-9)

	require.Len(t, sum.Next24Hourly, 24)
	assert.Equal(t, "10:00", sum.Next24Hourly[0].Time)
	assert.Equal(t, "09:00", sum.Next24Hourly[23].Time)
	require.Len(t, sum.Next24HalfHourly, 48)
	assert.Equal(t, sum.Next24HalfHourly[0], sum.Next24HalfHourly[1])
	assert.Equal(t, sum.Next24Hourly[5], sum.Next24HalfHourly[10])
}

func TestAggregate_TomorrowIncomplete(t *testing.T) {
	today := time.Date(2026, 10, 18, 0, 0, 0, 0, cet)
	now := today.Add(20 * time.Hour)
	samples := append(
		hourly(today, 24, func(int) float64 { return 0.1 }),
		hourly(today.AddDate(0, 0, 1), 12, func(int) float64 { return 0.2 })...,
	)

	sum, err := Aggregate(samples, unitSchedule, tariff.Constants{}, now)
	require.NoError(t, err)

	assert.False(t, sum.TomorrowAvailable)
	assert.Empty(t, sum.Tomorrow)
	// 4 hours left today plus the 12 partial hours of tomorrow
	assert.Len(t, sum.Next24Hourly, 16)
}

func TestAggregate_Empty(t *testing.T) {
	sum, err := Aggregate(nil, unitSchedule, tariff.Constants{}, time.Date(2026, 10, 18, 9, 0, 0, 0, cet))
	require.NoError(t, err)

	assert.Zero(t, sum.Value)
	assert.Zero(t, sum.Buy.Average)
	assert.False(t, sum.Buy.HasData())
	assert.Equal(t, NoDataHighest, sum.Buy.Highest)
	assert.Equal(t, NoDataLowest, sum.Buy.Lowest)
	assert.Equal(t, NoDataLowest, sum.Sell.Lowest)
	assert.Empty(t, sum.Today)
	assert.Empty(t, sum.Next24Hourly)
}

func TestAggregate_SellMinimumTracksLowest(t *testing.T) {
	today := time.Date(2026, 10, 18, 0, 0, 0, 0, cet)
	prices := []float64{0.10, -0.02, 0.30, 0.05}
	samples := hourly(today, len(prices), func(i int) float64 { return prices[i] })

	sum, err := Aggregate(samples, unitSchedule, tariff.Constants{}, today.Add(time.Hour))
	require.NoError(t, err)

	assert.InDelta(t, -0.2, sum.Sell.Lowest, 1e-9)
	assert.InDelta(t, 3.0, sum.Sell.Highest, 1e-9)
}

func TestAggregate_UnorderedInputAndOtherDays(t *testing.T) {
	today := time.Date(2026, 10, 18, 0, 0, 0, 0, cet)
	samples := []models.PriceSample{
		{Time: today.Add(2 * time.Hour), Price: 0.3},
		{Time: today.AddDate(0, 0, -1), Price: 9},
		{Time: today, Price: 0.1},
		{Time: today.Add(time.Hour), Price: 0.2},
	}

	sum, err := Aggregate(samples, unitSchedule, tariff.Constants{}, today)
	require.NoError(t, err)
	require.Len(t, sum.Today, 3)
	assert.Equal(t, []string{"00:00", "01:00", "02:00"}, []string{sum.Today[0].Time, sum.Today[1].Time, sum.Today[2].Time})
	assert.InDelta(t, 0.2, sum.Value, 1e-9)
}

func TestNext24(t *testing.T) {
	day := time.Date(2026, 10, 18, 0, 0, 0, 0, cet)
	samples := hourly(day, 30, func(i int) float64 { return float64(i) })

	assert.Len(t, Next24(samples, 0), 24)
	assert.Len(t, Next24(samples, 10), 20)
	assert.Nil(t, Next24(samples, 30))
	assert.Nil(t, Next24(nil, 3))
}

func TestSummaryAttributes(t *testing.T) {
	today := time.Date(2026, 10, 18, 0, 0, 0, 0, cet)
	sum, err := Aggregate(hourly(today, 2, func(int) float64 { return 0.1 }), unitSchedule, tariff.Constants{}, today)
	require.NoError(t, err)

	attrs := sum.Attributes()
	buy, ok := attrs["afname"].([]Amount)
	require.True(t, ok)
	require.Len(t, buy, 2)
	assert.Equal(t, Amount{Time: "00:00", Amount: 1.06}, buy[0])
	assert.Equal(t, false, attrs["tomorrow_available"])
	assert.Equal(t, "18/10/2026 00:00 CET", attrs["date"])
	assert.Len(t, attrs["injectie_next24_30"], 4)
}
