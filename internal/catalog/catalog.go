// Package catalog loads the static supplier fee and distribution cost tables.
// Both files are JSON in practice; they are decoded with a YAML parser so a
// hand-maintained YAML copy works as well.
package catalog

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/rewired-gh/tariffwatch/internal/models"
)

type rawSchedule struct {
	Dynamic         *bool    `yaml:"dynamisch"`
	MeterFactor     *float64 `yaml:"meterfactor"`
	BalancingCost   *float64 `yaml:"balanceringskost"`
	FixedIndex      *float64 `yaml:"index"`
	InjectionFactor *float64 `yaml:"injectiefactor"`
	InjectionCost   *float64 `yaml:"injectiekost"`
	YearlyCost      *float64 `yaml:"yearly_cost"`
}

func (r rawSchedule) schedule() (models.FeeSchedule, error) {
	if r.Dynamic == nil {
		return models.FeeSchedule{}, &models.InvalidScheduleError{Field: "dynamisch", Reason: "is missing"}
	}
	required := []struct {
		name  string
		value *float64
	}{
		{"meterfactor", r.MeterFactor},
		{"balanceringskost", r.BalancingCost},
		{"injectiefactor", r.InjectionFactor},
		{"injectiekost", r.InjectionCost},
	}
	if !*r.Dynamic {
		required = append(required, struct {
			name  string
			value *float64
		}{"index", r.FixedIndex})
	}
	for _, f := range required {
		if f.value == nil {
			return models.FeeSchedule{}, &models.InvalidScheduleError{Field: f.name, Reason: "is missing"}
		}
	}
	s := models.FeeSchedule{
		Dynamic:         *r.Dynamic,
		MeterFactor:     *r.MeterFactor,
		BalancingCost:   *r.BalancingCost,
		InjectionFactor: *r.InjectionFactor,
		InjectionCost:   *r.InjectionCost,
	}
	if r.FixedIndex != nil {
		s.FixedIndex = *r.FixedIndex
	}
	if r.YearlyCost != nil {
		s.YearlyCost = *r.YearlyCost
	}
	return s, s.Validate()
}

// Suppliers maps supplier keys to their fee schedule.
type Suppliers map[string]models.FeeSchedule

// Names returns the supplier keys in sorted order.
func (s Suppliers) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseSuppliers decodes a supplier table.
func ParseSuppliers(data []byte) (Suppliers, error) {
	var raw map[string]rawSchedule
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode supplier catalog: %w", err)
	}
	out := make(Suppliers, len(raw))
	for name, r := range raw {
		s, err := r.schedule()
		if err != nil {
			return nil, fmt.Errorf("supplier %s: %w", name, err)
		}
		out[name] = s
	}
	return out, nil
}

// LoadSuppliers reads and decodes the supplier table at path.
func LoadSuppliers(path string) (Suppliers, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read supplier catalog: %w", err)
	}
	return ParseSuppliers(data)
}

// ParseDistributionCosts decodes a distribution cost table.
func ParseDistributionCosts(data []byte) ([]models.DistributionCost, error) {
	var costs []models.DistributionCost
	if err := yaml.Unmarshal(data, &costs); err != nil {
		return nil, fmt.Errorf("failed to decode distribution costs: %w", err)
	}
	for i, c := range costs {
		if c.Region == "" {
			return nil, fmt.Errorf("distribution cost %d: regio: %w", i, models.ErrMissingField)
		}
	}
	return costs, nil
}

// LoadDistributionCosts reads and decodes the distribution cost table at path.
func LoadDistributionCosts(path string) ([]models.DistributionCost, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read distribution costs: %w", err)
	}
	return ParseDistributionCosts(data)
}

// FindRegion returns the distribution costs of region.
func FindRegion(costs []models.DistributionCost, region string) (models.DistributionCost, bool) {
	for _, c := range costs {
		if c.Region == region {
			return c, true
		}
	}
	return models.DistributionCost{}, false
}
