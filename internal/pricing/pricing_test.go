package pricing

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/tariffwatch/internal/catalog"
	"github.com/rewired-gh/tariffwatch/internal/hub"
	"github.com/rewired-gh/tariffwatch/internal/models"
	"github.com/rewired-gh/tariffwatch/internal/series"
	"github.com/rewired-gh/tariffwatch/internal/tariff"
)

var cest = time.FixedZone("CEST", 2*3600)

func fixedNow() time.Time {
	return time.Date(2026, time.October, 18, 13, 20, 0, 0, cest)
}

func unitSchedule() models.FeeSchedule {
	return models.FeeSchedule{Dynamic: true, MeterFactor: 1, InjectionFactor: 1}
}

func dayAheadPrices(day time.Time, hours int, price float64) []any {
	out := make([]any, 0, hours)
	for h := 0; h < hours; h++ {
		ts := time.Date(day.Year(), day.Month(), day.Day(), h, 0, 0, 0, cest)
		out = append(out, map[string]any{
			"time":  ts.Format("2006-01-02 15:04:05-07:00"),
			"price": price,
		})
	}
	return out
}

func TestParseSamples(t *testing.T) {
	samples, err := parseSamples([]any{
		map[string]any{"time": "2026-10-18 01:00:00+02:00", "price": 0.1},
		map[string]any{"time": "2026-10-18T02:00:00+02:00", "price": "0.2"},
		map[string]any{"time": "2026-10-18 03:00:00", "price": 3},
	}, cest)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, 1, samples[0].Time.Hour())
	assert.Equal(t, 0.2, samples[1].Price)
	assert.Equal(t, 3.0, samples[2].Price)

	_, err = parseSamples([]any{map[string]any{"price": 0.1}}, cest)
	assert.ErrorIs(t, err, models.ErrMissingField)
	_, err = parseSamples([]any{map[string]any{"time": "yesterday", "price": 0.1}}, cest)
	assert.Error(t, err)
	_, err = parseSamples("not a list", cest)
	assert.Error(t, err)

	empty, err := parseSamples(nil, cest)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSupplierEntity_Update(t *testing.T) {
	h := hub.New()
	e := NewSupplierEntity(h, "engie", "engie", unitSchedule(), tariff.Constants{}, DefaultDayAheadEntity)
	e.now = fixedNow
	e.Start()
	defer e.Close()

	s, ok := h.Get("engie_24u")
	require.True(t, ok)
	assert.Equal(t, 0.0, s.Value, "no upstream data yet")
	assert.Equal(t, series.NoDataHighest, s.Attributes["highest_afname_today"])

	h.Set(DefaultDayAheadEntity, 0.1, map[string]any{AttrPrices: dayAheadPrices(fixedNow(), 24, 0.10)})

	s, _ = h.Get("engie_24u")
	assert.Equal(t, 0.1, s.Value)
	assert.Equal(t, false, s.Attributes["tomorrow_available"])
	assert.Equal(t, "engie", s.Attributes["supplier"])
	assert.InDelta(t, 1.06, s.Attributes["average_afname_today"], 1e-9)
	assert.Equal(t, 1.0, s.Attributes["lowest_injectie_today"])
	assert.Len(t, s.Attributes["afname"], 24)
	assert.Len(t, s.Attributes["afname_next24_60"], 11)
	assert.Len(t, s.Attributes["injectie_next24_30"], 22)
	assert.Equal(t, false, s.Attributes["last_update_failed"])

	h.Set(DefaultDayAheadEntity, 0.1, map[string]any{AttrPrices: "garbage"})
	s, _ = h.Get("engie_24u")
	assert.Equal(t, 0.1, s.Value, "previous summary kept")
	assert.Equal(t, true, s.Attributes["last_update_failed"])
}

func TestSupplierEntity_UpstreamUnavailableKeepsSummary(t *testing.T) {
	h := hub.New()
	e := NewSupplierEntity(h, "engie", "engie", unitSchedule(), tariff.Constants{}, DefaultDayAheadEntity)
	e.now = fixedNow
	e.Start()
	defer e.Close()

	h.Set(DefaultDayAheadEntity, 0.1, map[string]any{AttrPrices: dayAheadPrices(fixedNow(), 24, 0.10)})
	before, _ := h.Get("engie_24u")
	require.Equal(t, 0.1, before.Value)

	h.SetUnavailable(DefaultDayAheadEntity)
	s, _ := h.Get("engie_24u")
	assert.Equal(t, 0.1, s.Value)
	assert.Equal(t, before.Attributes["average_afname_today"], s.Attributes["average_afname_today"])
	assert.Equal(t, before.Attributes["highest_afname_today"], s.Attributes["highest_afname_today"])
	assert.Equal(t, true, s.Attributes["last_update_failed"])
	assert.ErrorIs(t, e.update(), ErrSourceUnavailable)
	assert.Equal(t, 0.1, e.Summary().Value)

	h.Set(DefaultDayAheadEntity, 0.2, map[string]any{AttrPrices: dayAheadPrices(fixedNow(), 24, 0.20)})
	s, _ = h.Get("engie_24u")
	assert.Equal(t, 0.2, s.Value)
	assert.Equal(t, false, s.Attributes["last_update_failed"])
}

func TestSupplierEntity_TomorrowAvailable(t *testing.T) {
	h := hub.New()
	prices := append(dayAheadPrices(fixedNow(), 24, 0.10), dayAheadPrices(fixedNow().AddDate(0, 0, 1), 24, 0.20)...)
	h.Set(DefaultDayAheadEntity, 0.1, map[string]any{AttrPrices: prices})

	e := NewSupplierEntity(h, "engie", "engie", unitSchedule(), tariff.Constants{}, DefaultDayAheadEntity)
	e.now = fixedNow
	e.Update()

	sum := e.Summary()
	assert.True(t, sum.TomorrowAvailable)
	assert.Len(t, sum.Tomorrow, 24)
	require.Len(t, sum.Next24Hourly, 24)
	assert.Equal(t, "13:00", sum.Next24Hourly[0].Time)
	assert.Equal(t, 2.12, sum.Next24Hourly[23].Buy)
}

func TestCurrentPriceEntity(t *testing.T) {
	h := hub.New()
	buy := NewCurrentPriceEntity(h, "engie", "engie", unitSchedule(), tariff.Constants{}, models.RoleBuy, DefaultCurrentPriceEntity)
	sell := NewCurrentPriceEntity(h, "engie", "engie", unitSchedule(), tariff.Constants{}, models.RoleSell, DefaultCurrentPriceEntity)
	buy.Start()
	sell.Start()
	defer buy.Close()
	defer sell.Close()

	assert.Equal(t, "engie_current_afname", buy.ID())
	assert.Equal(t, "engie_current_injectie", sell.ID())

	h.Set(DefaultCurrentPriceEntity, "0.10", nil)
	assert.Equal(t, 1.06, buy.Value())
	assert.Equal(t, 1.0, sell.Value())
	s, _ := h.Get("engie_current_afname")
	assert.Equal(t, 1.06, s.Value)
	assert.Equal(t, "€/kWh", s.Attributes["unit_of_measurement"])

	h.Set(DefaultCurrentPriceEntity, "unknown", nil)
	assert.Equal(t, 1.06, buy.Value(), "malformed market price ignored")
}

func testSetOptions() Options {
	suppliers := catalog.Suppliers{
		"engie":   unitSchedule(),
		"luminus": {MeterFactor: 1, FixedIndex: 100, InjectionFactor: 1},
	}
	return Options{
		Suppliers: suppliers,
		Costs: []models.DistributionCost{
			{Region: "Fluvius (Antwerpen)", CapacityTariff: 45.5, WithdrawalFee: 0.05, GridManagementFee: 17.8},
			{Region: "Fluvius (Limburg)", CapacityTariff: 41.2, WithdrawalFee: 0.04, GridManagementFee: 17.8},
		},
		Levies:   tariff.Levies{ExciseSurcharge: 0.01},
		Supplier: "luminus",
		Region:   "Fluvius (Limburg)",
	}
}

func TestNewSet(t *testing.T) {
	h := hub.New()
	set, err := NewSet(h, testSetOptions())
	require.NoError(t, err)
	set.Start()
	defer set.Close()

	assert.Equal(t, 0.04, set.Constants.WithdrawalFee)
	assert.Equal(t, "Fluvius (Limburg)", set.Constants.Region)
	assert.ElementsMatch(t, []string{
		"engie_24u", "luminus_24u", "current_contract_24u",
		"engie_current_afname", "engie_current_injectie",
		"luminus_current_afname", "luminus_current_injectie",
		"current_contract_current_afname", "current_contract_current_injectie",
		ConstantsEntityID,
	}, set.IDs())

	h.Set(DefaultCurrentPriceEntity, 0.5, nil)
	s, ok := h.Get("current_contract_current_afname")
	require.True(t, ok)
	assert.Equal(t, tariff.Round5(100*1.06/100+0.01+0.04), s.Value, "fixed schedule ignores the market price")

	c, ok := h.Get(ConstantsEntityID)
	require.True(t, ok)
	assert.Equal(t, 0.01, c.Attributes["bijz_accijns"])
	assert.Equal(t, 41.2, c.Attributes["capaciteitstarief_current"])
	assert.Equal(t, []RegionTariff{{"Antwerpen", 45.5}, {"Limburg", 41.2}}, c.Attributes["capaciteitstarief"])
}

func TestNewSet_UnknownSelection(t *testing.T) {
	opts := testSetOptions()
	opts.Region = "Sibelga"
	_, err := NewSet(hub.New(), opts)
	assert.ErrorContains(t, err, "Sibelga")

	opts = testSetOptions()
	opts.Supplier = "nobody"
	_, err = NewSet(hub.New(), opts)
	assert.ErrorContains(t, err, "nobody")
}

func TestFeed_Poll(t *testing.T) {
	var b strings.Builder
	b.WriteString(`{"prices": [`)
	for hr := 0; hr < 24; hr++ {
		if hr > 0 {
			b.WriteString(",")
		}
		ts := time.Date(2026, time.October, 18, hr, 0, 0, 0, cest)
		fmt.Fprintf(&b, `{"time": %q, "price": %.2f}`, ts.Format(time.RFC3339), float64(hr)/100)
	}
	b.WriteString(`]}`)
	body := b.String()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	h := hub.New()
	f := NewFeed(srv.URL, time.Second, h, Sources{})
	f.now = fixedNow
	defer f.Close()

	require.NoError(t, f.Poll(context.Background()))
	cur, ok := h.Get(DefaultCurrentPriceEntity)
	require.True(t, ok)
	assert.Equal(t, 0.13, cur.Value)

	day, ok := h.Get(DefaultDayAheadEntity)
	require.True(t, ok)
	assert.Equal(t, 0.115, day.Value)
	samples, ok := day.Attributes[AttrPrices].([]models.PriceSample)
	require.True(t, ok)
	assert.Len(t, samples, 24)
}

func TestFeed_PollFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	h := hub.New()
	f := NewFeed(srv.URL, time.Second, h, Sources{})
	assert.Error(t, f.Poll(context.Background()))
	s, ok := h.Get(DefaultDayAheadEntity)
	require.True(t, ok)
	assert.False(t, s.Available)
}
