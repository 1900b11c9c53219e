package models

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"
)

func TestDiscoveredContractValidate(t *testing.T) {
	valid := ContractFilter{
		EnergyType:     "Elektriciteit",
		PricingMode:    "Dynamisch",
		Segment:        "Woning",
		Supplier:       "SupplierX",
		Product:        "ProductY",
		PriceComponent: "Energie",
	}
	tests := []struct {
		name     string
		contract DiscoveredContract
		wantErr  bool
	}{
		{
			name:     "valid contract",
			contract: DiscoveredContract{ContractFilter: valid, ID: 7},
			wantErr:  false,
		},
		{
			name:     "missing id",
			contract: DiscoveredContract{ContractFilter: valid},
			wantErr:  true,
		},
		{
			name: "missing supplier",
			contract: DiscoveredContract{ContractFilter: ContractFilter{
				EnergyType:     "Elektriciteit",
				PricingMode:    "Dynamisch",
				Segment:        "Woning",
				Product:        "ProductY",
				PriceComponent: "Energie",
			}, ID: 7},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.contract.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("DiscoveredContract.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrMissingField) {
				t.Errorf("expected ErrMissingField, got %v", err)
			}
		})
	}
}

func TestDiscoveredContractJSON(t *testing.T) {
	raw := `{"energietype":"Elektriciteit","vast_variabel_dynamisch":"Vast","segment":"Woning",
		"handelsnaam":"Eneco","productnaam":"Zon & Wind","prijsonderdeel":"Energie",
		"contracttype":"1 jaar","id":42,"prices":{"current_price":0.21}}`
	var c DiscoveredContract
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if c.Supplier != "Eneco" || c.ID != 42 || c.ContractType != "1 jaar" {
		t.Errorf("unexpected contract: %+v", c)
	}
	pair := c.PricePair()
	if pair.Buy != 0.21 || pair.Sell != 0 {
		t.Errorf("PricePair() = %+v", pair)
	}
}

func TestDiscoveredContractJSON_KeepsUnknownColumns(t *testing.T) {
	raw := `{"energietype":"Elektriciteit","vast_variabel_dynamisch":"Vast","segment":"Woning",
		"handelsnaam":"Eneco","productnaam":"Groen","prijsonderdeel":"Energie",
		"contracttype":"1 jaar","id":42,"formule":"vast","eenheid":"c€/kWh",
		"prices":{"current_price":0.21,"vaste_vergoeding":4.5}}`
	var c DiscoveredContract
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if string(c.Extra["formule"]) != `"vast"` || len(c.Extra) != 2 {
		t.Errorf("Extra = %s", c.Extra)
	}
	if string(c.Prices.Extra["vaste_vergoeding"]) != "4.5" {
		t.Errorf("Prices.Extra = %s", c.Prices.Extra)
	}

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var again DiscoveredContract
	if err := json.Unmarshal(data, &again); err != nil {
		t.Fatalf("Unmarshal round trip: %v", err)
	}
	if !reflect.DeepEqual(c, again) {
		t.Errorf("round trip changed the row:\n got %+v\nwant %+v", again, c)
	}

	var plain DiscoveredContract
	if err := json.Unmarshal([]byte(`{"id":1,"prices":{"current_price":0.1}}`), &plain); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if plain.Extra != nil || plain.Prices.Extra != nil {
		t.Errorf("expected no extra columns, got %v / %v", plain.Extra, plain.Prices.Extra)
	}
}

func TestContractFilterQuery(t *testing.T) {
	f := ContractFilter{EnergyType: "Elektriciteit", Supplier: "Zon & Wind"}
	got := f.Query()
	want := []string{"energietype=Elektriciteit", "handelsnaam=Zon+%26+Wind"}
	if len(got) != len(want) {
		t.Fatalf("Query() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Query()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if f.Complete() {
		t.Error("partial filter reported complete")
	}
}

func TestFeeScheduleValidate(t *testing.T) {
	if err := (FeeSchedule{MeterFactor: 1}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	err := FeeSchedule{MeterFactor: math.NaN()}.Validate()
	var ise *InvalidScheduleError
	if !errors.As(err, &ise) {
		t.Fatalf("expected InvalidScheduleError, got %v", err)
	}
	if ise.Field != "meterfactor" {
		t.Errorf("field = %q", ise.Field)
	}
}

func TestEntryValidate(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		entry   Entry
		wantErr bool
	}{
		{"valid contracts", Entry{ID: "a", Domain: DomainContracts, Data: map[string]string{DataAPIKey: "k"}, CreatedAt: now, UpdatedAt: now}, false},
		{"contracts without key", Entry{ID: "a", Domain: DomainContracts, CreatedAt: now, UpdatedAt: now}, true},
		{"pricing without region", Entry{ID: "a", Domain: DomainPricing, Data: map[string]string{DataSupplier: "x"}, CreatedAt: now, UpdatedAt: now}, true},
		{"unknown domain", Entry{ID: "a", Domain: "other"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entry.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Entry.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPricePairSelect(t *testing.T) {
	p := PricePair{Buy: 0.3, Sell: 0.05}
	if p.Select(RoleBuy) != 0.3 || p.Select(RoleSell) != 0.05 {
		t.Errorf("Select mismatch for %+v", p)
	}
	if RoleBuy.Index() != 0 || RoleSell.Index() != 1 {
		t.Error("role indices out of order")
	}
}
