// Package models defines the core domain records: fee schedules, price samples,
// catalog contracts, and configuration entries.
package models

import (
	"math"
	"time"
)

// FeeSchedule holds a supplier's pricing formula parameters as published in
// the static supplier catalog.
type FeeSchedule struct {
	Dynamic         bool    `json:"dynamisch" yaml:"dynamisch"`
	MeterFactor     float64 `json:"meterfactor" yaml:"meterfactor"`
	BalancingCost   float64 `json:"balanceringskost" yaml:"balanceringskost"`
	FixedIndex      float64 `json:"index" yaml:"index"`
	InjectionFactor float64 `json:"injectiefactor" yaml:"injectiefactor"`
	InjectionCost   float64 `json:"injectiekost" yaml:"injectiekost"`
	YearlyCost      float64 `json:"yearly_cost" yaml:"yearly_cost"`
}

// Validate checks that every numeric field is a finite number.
func (s FeeSchedule) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"meterfactor", s.MeterFactor},
		{"balanceringskost", s.BalancingCost},
		{"index", s.FixedIndex},
		{"injectiefactor", s.InjectionFactor},
		{"injectiekost", s.InjectionCost},
		{"yearly_cost", s.YearlyCost},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return &InvalidScheduleError{Field: f.name, Reason: "not a finite number"}
		}
	}
	return nil
}

// DistributionCost is the fee set of one distribution region.
type DistributionCost struct {
	Region            string  `json:"regio" yaml:"regio"`
	CapacityTariff    float64 `json:"capaciteitstarief" yaml:"capaciteitstarief"`
	WithdrawalFee     float64 `json:"afname" yaml:"afname"`
	GridManagementFee float64 `json:"databeheer" yaml:"databeheer"`
}

// PriceSample is one hourly raw market price.
type PriceSample struct {
	Time  time.Time `json:"time"`
	Price float64   `json:"price"`
}

// DerivedPricePoint is a consumer price for one slot of the day.
type DerivedPricePoint struct {
	Time string  `json:"time"`
	Buy  float64 `json:"afname"`
	Sell float64 `json:"injectie"`
}

// PricePair is a buy ("afname") and sell ("injectie") price pair.
type PricePair struct {
	Buy  float64 `json:"afname"`
	Sell float64 `json:"injectie"`
}

// Role selects one element of a PricePair.
type Role string

const (
	RoleBuy  Role = "afname"
	RoleSell Role = "injectie"
)

// Index returns the position of the role in the ordered pair.
func (r Role) Index() int {
	if r == RoleSell {
		return 1
	}
	return 0
}

// Select returns the element of p for role r.
func (p PricePair) Select(r Role) float64 {
	if r.Index() == 1 {
		return p.Sell
	}
	return p.Buy
}

// AttrPricePair is the state attribute under which live-price entities
// publish their PricePair.
const AttrPricePair = "price_pair"
