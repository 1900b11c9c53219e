package tariff

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/tariffwatch/internal/models"
)

func TestBuyPrice_DynamicAndFixedAgree(t *testing.T) {
	var c Constants

	dynamic := models.FeeSchedule{Dynamic: true, MeterFactor: 1.0, InjectionFactor: 1.0}
	buy, err := BuyPrice(dynamic, c, 0.10)
	require.NoError(t, err)
	assert.Equal(t, 1.06, buy)

	fixed := models.FeeSchedule{Dynamic: false, MeterFactor: 1.0, FixedIndex: 100, InjectionFactor: 1.0}
	buy, err = BuyPrice(fixed, c, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.06, buy)
}

func TestBuyPrice_AddsLeviesAndWithdrawalFee(t *testing.T) {
	c := NewConstants(Levies{
		ExciseSurcharge:    0.014210,
		EnergyContribution: 0.001926,
		ConnectionFee:      0.00075,
		GreenCertificates:  0.0114,
		Cogeneration:       0.004,
	}, models.DistributionCost{Region: "Fluvius (Antwerpen)", WithdrawalFee: 0.05})

	s := models.FeeSchedule{Dynamic: true, MeterFactor: 1.1, BalancingCost: 1.5}
	got, err := BuyPrice(s, c, 0.08)
	require.NoError(t, err)

	want := math.Round(((1.1*0.08*1000+1.5)*1.06/100+0.014210+0.001926+0.00075+0.0114+0.004+0.05)*1e5) / 1e5
	assert.InDelta(t, want, got, 1e-9)
	assert.Equal(t, "Fluvius (Antwerpen)", c.Region)
}

func TestBuyPrice_MonotonicInRawPrice(t *testing.T) {
	s := models.FeeSchedule{Dynamic: true, MeterFactor: 1.02, BalancingCost: 0.9}
	c := Constants{WithdrawalFee: 0.04}
	prev := math.Inf(-1)
	for raw := 0.0; raw <= 0.5; raw += 0.00037 {
		got, err := BuyPrice(s, c, raw)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got, prev, "raw=%f", raw)
		prev = got
	}
}

func TestSellPrice(t *testing.T) {
	tests := []struct {
		name     string
		schedule models.FeeSchedule
		raw      float64
		want     float64
	}{
		{"dynamic", models.FeeSchedule{Dynamic: true, InjectionFactor: 1.0}, 0.10, 1.0},
		{"dynamic with cost", models.FeeSchedule{Dynamic: true, InjectionFactor: 0.9, InjectionCost: 1.2}, 0.05, 0.438},
		{"fixed", models.FeeSchedule{InjectionFactor: 1.0, FixedIndex: 80, InjectionCost: 2}, 0.5, 0.78},
		{"negative market price", models.FeeSchedule{Dynamic: true, InjectionFactor: 1.0}, -0.01, -0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SellPrice(tt.schedule, tt.raw)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestFormulas_RejectMalformedSchedule(t *testing.T) {
	bad := models.FeeSchedule{Dynamic: true, MeterFactor: math.Inf(1)}
	_, err := BuyPrice(bad, Constants{}, 0.1)
	var ise *models.InvalidScheduleError
	assert.True(t, errors.As(err, &ise))

	_, err = Pair(models.FeeSchedule{InjectionCost: math.NaN()}, Constants{}, 0.1)
	assert.True(t, errors.As(err, &ise))
}

func TestRound5(t *testing.T) {
	assert.Equal(t, 0.12346, Round5(0.123456))
	assert.Equal(t, 1.06, Round5(1.0600000000000001))
	assert.Equal(t, -0.00001, Round5(-0.000005))
}
