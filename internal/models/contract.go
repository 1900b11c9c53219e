package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
)

// ContractFilter selects one catalog entry's price components for a
// reporting period. A filter with empty fields is partial.
type ContractFilter struct {
	EnergyType     string `json:"energietype"`
	PricingMode    string `json:"vast_variabel_dynamisch"`
	Segment        string `json:"segment"`
	Supplier       string `json:"handelsnaam"`
	Product        string `json:"productnaam"`
	PriceComponent string `json:"prijsonderdeel"`
}

// Complete reports whether every field of the filter is set.
func (f ContractFilter) Complete() bool {
	return f.EnergyType != "" && f.PricingMode != "" && f.Segment != "" &&
		f.Supplier != "" && f.Product != "" && f.PriceComponent != ""
}

// Query returns the non-empty filter fields as individually percent-encoded
// key=value parameters, in the order the remote API documents them.
func (f ContractFilter) Query() []string {
	pairs := [][2]string{
		{"energietype", f.EnergyType},
		{"vast_variabel_dynamisch", f.PricingMode},
		{"segment", f.Segment},
		{"handelsnaam", f.Supplier},
		{"productnaam", f.Product},
		{"prijsonderdeel", f.PriceComponent},
	}
	var params []string
	for _, p := range pairs {
		if p[1] == "" {
			continue
		}
		params = append(params, p[0]+"="+url.QueryEscape(p[1]))
	}
	return params
}

// Matches reports whether c satisfies every non-empty field of the filter.
func (f ContractFilter) Matches(c ContractFilter) bool {
	check := func(want, got string) bool { return want == "" || want == got }
	return check(f.EnergyType, c.EnergyType) &&
		check(f.PricingMode, c.PricingMode) &&
		check(f.Segment, c.Segment) &&
		check(f.Supplier, c.Supplier) &&
		check(f.Product, c.Product) &&
		check(f.PriceComponent, c.PriceComponent)
}

// LivePrices is the price block attached to catalog rows when live pricing
// is requested. Fields other than the two live prices are kept in Extra.
type LivePrices struct {
	CurrentPrice          *float64                   `json:"current_price,omitempty"`
	CurrentInjectionPrice *float64                   `json:"current_injection_price,omitempty"`
	Extra                 map[string]json.RawMessage `json:"-"`
}

type livePrices LivePrices

func (p *LivePrices) UnmarshalJSON(data []byte) error {
	var base livePrices
	if err := json.Unmarshal(data, &base); err != nil {
		return err
	}
	extra, err := extraFields(data, "current_price", "current_injection_price")
	if err != nil {
		return err
	}
	*p = LivePrices(base)
	p.Extra = extra
	return nil
}

func (p LivePrices) MarshalJSON() ([]byte, error) {
	return withExtra(livePrices(p), p.Extra)
}

// DiscoveredContract is one row of the remote contract catalog. Columns
// without a typed field are kept in Extra and survive a JSON round trip.
type DiscoveredContract struct {
	ContractFilter
	ID           int                        `json:"id"`
	ContractType string                     `json:"contracttype"`
	Prices       *LivePrices                `json:"prices,omitempty"`
	Extra        map[string]json.RawMessage `json:"-"`
}

type discoveredContract DiscoveredContract

var contractKeys = []string{
	"energietype", "vast_variabel_dynamisch", "segment", "handelsnaam",
	"productnaam", "prijsonderdeel", "id", "contracttype", "prices",
}

func (c *DiscoveredContract) UnmarshalJSON(data []byte) error {
	var base discoveredContract
	if err := json.Unmarshal(data, &base); err != nil {
		return err
	}
	extra, err := extraFields(data, contractKeys...)
	if err != nil {
		return err
	}
	*c = DiscoveredContract(base)
	c.Extra = extra
	return nil
}

func (c DiscoveredContract) MarshalJSON() ([]byte, error) {
	return withExtra(discoveredContract(c), c.Extra)
}

// Attributes returns the full catalog row as a generic map.
func (c DiscoveredContract) Attributes() (map[string]any, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var attrs map[string]any
	if err := json.Unmarshal(data, &attrs); err != nil {
		return nil, err
	}
	return attrs, nil
}

// extraFields returns the members of the JSON object data that are not in
// known, or nil when there are none.
func extraFields(data []byte, known ...string) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	for k, v := range all {
		var buf bytes.Buffer
		if err := json.Compact(&buf, v); err != nil {
			return nil, err
		}
		all[k] = buf.Bytes()
	}
	return all, nil
}

// withExtra marshals base and adds the extra members that base does not
// already define.
func withExtra(base any, extra map[string]json.RawMessage) ([]byte, error) {
	data, err := json.Marshal(base)
	if err != nil || len(extra) == 0 {
		return data, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, ok := all[k]; !ok {
			all[k] = v
		}
	}
	return json.Marshal(all)
}

// Validate checks that the fields used to derive an identity are present.
func (c *DiscoveredContract) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"energietype", c.EnergyType},
		{"vast_variabel_dynamisch", c.PricingMode},
		{"segment", c.Segment},
		{"handelsnaam", c.Supplier},
		{"productnaam", c.Product},
		{"prijsonderdeel", c.PriceComponent},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("contract %d: %s: %w", c.ID, r.name, ErrMissingField)
		}
	}
	if c.ID <= 0 {
		return fmt.Errorf("contract: id: %w", ErrMissingField)
	}
	return nil
}

// PricePair returns the live buy/sell prices of the contract. Missing values are zero.
func (c *DiscoveredContract) PricePair() PricePair {
	var p PricePair
	if c.Prices == nil {
		return p
	}
	if c.Prices.CurrentPrice != nil {
		p.Buy = *c.Prices.CurrentPrice
	}
	if c.Prices.CurrentInjectionPrice != nil {
		p.Sell = *c.Prices.CurrentInjectionPrice
	}
	return p
}
