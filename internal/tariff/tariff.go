// Package tariff derives consumer buy ("afname") and sell ("injectie") prices
// from a raw market price and a supplier's fee schedule.
package tariff

import (
	"github.com/shopspring/decimal"

	"github.com/rewired-gh/tariffwatch/internal/models"
)

// vatFactor is applied to the energy part of the buy price.
const vatFactor = 1.06

// Levies are the fixed per-kWh surcharges added to every buy price.
type Levies struct {
	ExciseSurcharge    float64 `json:"bijz_accijns"`
	EnergyContribution float64 `json:"bijdrage_energie"`
	ConnectionFee      float64 `json:"aansluitingsvergoeding"`
	GreenCertificates  float64 `json:"gsc"`
	Cogeneration       float64 `json:"wkk"`
}

// Sum returns the total of all levies.
func (l Levies) Sum() float64 {
	return l.ExciseSurcharge + l.EnergyContribution + l.ConnectionFee + l.GreenCertificates + l.Cogeneration
}

// Constants are the process-wide fees resolved once at setup: the fixed
// levies plus the fees of the configured distribution region.
type Constants struct {
	Levies
	Region            string
	WithdrawalFee     float64
	CapacityTariff    float64
	GridManagementFee float64
}

// NewConstants combines the levies with a region's distribution costs.
func NewConstants(levies Levies, region models.DistributionCost) Constants {
	return Constants{
		Levies:            levies,
		Region:            region.Region,
		WithdrawalFee:     region.WithdrawalFee,
		CapacityTariff:    region.CapacityTariff,
		GridManagementFee: region.GridManagementFee,
	}
}

// Round5 rounds v to five decimal places, half away from zero.
func Round5(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(5).Float64()
	return f
}

// BuyPrice returns the consumer withdrawal price for a raw market price.
// Fixed-price schedules ignore raw and use their index instead.
func BuyPrice(s models.FeeSchedule, c Constants, raw float64) (float64, error) {
	if err := s.Validate(); err != nil {
		return 0, err
	}
	energy := s.MeterFactor * s.FixedIndex
	if s.Dynamic {
		energy = s.MeterFactor * raw * 1000
	}
	return Round5((energy+s.BalancingCost)*vatFactor/100 + c.Levies.Sum() + c.WithdrawalFee), nil
}

// SellPrice returns the consumer injection price for a raw market price.
func SellPrice(s models.FeeSchedule, raw float64) (float64, error) {
	if err := s.Validate(); err != nil {
		return 0, err
	}
	energy := s.InjectionFactor * s.FixedIndex
	if s.Dynamic {
		energy = s.InjectionFactor * raw * 1000
	}
	return Round5((energy - s.InjectionCost) / 100), nil
}

// Pair returns both prices for raw.
func Pair(s models.FeeSchedule, c Constants, raw float64) (models.PricePair, error) {
	buy, err := BuyPrice(s, c, raw)
	if err != nil {
		return models.PricePair{}, err
	}
	sell, err := SellPrice(s, raw)
	if err != nil {
		return models.PricePair{}, err
	}
	return models.PricePair{Buy: buy, Sell: sell}, nil
}
