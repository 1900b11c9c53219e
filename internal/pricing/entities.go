package pricing

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rewired-gh/tariffwatch/internal/hub"
	"github.com/rewired-gh/tariffwatch/internal/logger"
	"github.com/rewired-gh/tariffwatch/internal/metrics"
	"github.com/rewired-gh/tariffwatch/internal/models"
	"github.com/rewired-gh/tariffwatch/internal/series"
	"github.com/rewired-gh/tariffwatch/internal/tariff"
)

// CurrentContract is the entity name prefix of the configured supplier.
const CurrentContract = "current_contract"

// ConstantsEntityID is the id of the constants entity.
const ConstantsEntityID = "smartenergycontrol_constants"

// ErrSourceUnavailable reports a missing or unavailable upstream entity.
var ErrSourceUnavailable = errors.New("upstream entity unavailable")

// SupplierEntity publishes the day summary of one supplier as <name>_24u.
type SupplierEntity struct {
	hub       *hub.Hub
	name      string
	alias     string
	schedule  models.FeeSchedule
	constants tariff.Constants
	source    string
	now       func() time.Time

	mu       sync.Mutex
	unsub    hub.Unsubscribe
	summary  series.Summary
	computed bool // summary was derived from upstream prices
	failed   bool
}

// NewSupplierEntity creates the entity. alias is the catalog supplier key;
// name differs from it only for the current contract entity.
func NewSupplierEntity(h *hub.Hub, name, alias string, schedule models.FeeSchedule, c tariff.Constants, source string) *SupplierEntity {
	return &SupplierEntity{
		hub:       h,
		name:      name,
		alias:     alias,
		schedule:  schedule,
		constants: c,
		source:    source,
		now:       time.Now,
	}
}

// ID returns the entity id.
func (e *SupplierEntity) ID() string {
	return e.name + "_24u"
}

// Start subscribes to the day-ahead entity and publishes the first summary.
func (e *SupplierEntity) Start() {
	e.mu.Lock()
	if e.unsub == nil {
		e.unsub = e.hub.Subscribe(e.source, func(hub.Event) { e.Update() })
	}
	e.mu.Unlock()
	e.Update()
}

// Update recomputes the summary from the day-ahead entity. Failures keep
// the previous summary and flag the entity.
func (e *SupplierEntity) Update() {
	start := time.Now()
	err := e.update()
	metrics.ObserveRefresh("supplier", start, err)
	if err != nil {
		logger.Warn("Failed to update %s: %v", e.ID(), err)
	}
}

func (e *SupplierEntity) update() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	var samples []models.PriceSample
	state, ok := e.hub.Get(e.source)
	if ok && state.Available {
		var err error
		samples, err = parseSamples(state.Attributes[AttrPrices], now.Location())
		if err != nil {
			e.failed = true
			e.publishLocked()
			return fmt.Errorf("%s: %w", e.source, err)
		}
	} else if e.computed {
		e.failed = true
		e.publishLocked()
		return fmt.Errorf("%s: %w", e.source, ErrSourceUnavailable)
	}

	sum, err := series.Aggregate(samples, e.schedule, e.constants, now)
	if err != nil {
		e.failed = true
		e.publishLocked()
		return err
	}
	e.summary = sum
	e.computed = ok && state.Available
	e.failed = false
	e.publishLocked()
	return nil
}

// Summary returns the last computed summary.
func (e *SupplierEntity) Summary() series.Summary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.summary
}

func (e *SupplierEntity) publishLocked() {
	attrs := e.summary.Attributes()
	if e.summary.Date == "" {
		attrs["date"] = e.now().Format("02/01/2006 00:00 MST")
	}
	attrs["supplier"] = e.alias
	attrs["dynamic"] = e.schedule.Dynamic
	attrs["yearly_cost"] = e.schedule.YearlyCost
	attrs["meterfactor"] = e.schedule.MeterFactor
	attrs["balanceringskost"] = e.schedule.BalancingCost
	attrs["injectiefactor"] = e.schedule.InjectionFactor
	attrs["injectiekost"] = e.schedule.InjectionCost
	attrs["last_update_failed"] = e.failed
	e.hub.Set(e.ID(), e.summary.Value, attrs)
}

// Close stops listening to the day-ahead entity.
func (e *SupplierEntity) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.unsub != nil {
		e.unsub()
		e.unsub = nil
	}
}

// CurrentPriceEntity publishes one role's price for the current market
// price as <name>_current_<role>.
type CurrentPriceEntity struct {
	hub       *hub.Hub
	name      string
	alias     string
	schedule  models.FeeSchedule
	constants tariff.Constants
	role      models.Role
	source    string

	mu    sync.Mutex
	unsub hub.Unsubscribe
	value float64
}

// NewCurrentPriceEntity creates the entity for role.
func NewCurrentPriceEntity(h *hub.Hub, name, alias string, schedule models.FeeSchedule, c tariff.Constants, role models.Role, source string) *CurrentPriceEntity {
	return &CurrentPriceEntity{
		hub:       h,
		name:      name,
		alias:     alias,
		schedule:  schedule,
		constants: c,
		role:      role,
		source:    source,
	}
}

// ID returns the entity id.
func (e *CurrentPriceEntity) ID() string {
	return e.name + "_current_" + string(e.role)
}

// Start subscribes to the current market price entity.
func (e *CurrentPriceEntity) Start() {
	e.mu.Lock()
	if e.unsub == nil {
		e.unsub = e.hub.Subscribe(e.source, func(hub.Event) { e.Update() })
	}
	e.mu.Unlock()
	e.Update()
}

// Update recomputes the price. A missing or malformed market price keeps
// the previous value.
func (e *CurrentPriceEntity) Update() {
	state, ok := e.hub.Get(e.source)
	if !ok || !state.Available {
		e.publish()
		return
	}
	raw, err := parseNumber(state.Value)
	if err != nil {
		logger.Warn("Ignoring %s for %s: %v", e.source, e.ID(), err)
		return
	}

	var v float64
	switch e.role {
	case models.RoleSell:
		v, err = tariff.SellPrice(e.schedule, raw)
	default:
		v, err = tariff.BuyPrice(e.schedule, e.constants, raw)
	}
	if err != nil {
		logger.Warn("Failed to compute %s: %v", e.ID(), err)
		return
	}

	e.mu.Lock()
	e.value = v
	e.mu.Unlock()
	e.publish()
}

// Value returns the last computed price.
func (e *CurrentPriceEntity) Value() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value
}

func (e *CurrentPriceEntity) publish() {
	e.hub.Set(e.ID(), e.Value(), map[string]any{
		"state_class":         "measurement",
		"unit_of_measurement": "€/kWh",
		"device_class":        "monetary",
		"icon":                "mdi:currency-eur",
		"name":                e.alias,
	})
}

// Close stops listening to the market price entity.
func (e *CurrentPriceEntity) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.unsub != nil {
		e.unsub()
		e.unsub = nil
	}
}

// RegionTariff is the capacity tariff of one region.
type RegionTariff struct {
	Region         string  `json:"region"`
	CapacityTariff float64 `json:"capaciteitstarief"`
}

// ConstantsAttributes lists the levies, per-region capacity tariffs and the
// resolved fees of the configured region.
func ConstantsAttributes(c tariff.Constants, costs []models.DistributionCost) map[string]any {
	regions := make([]RegionTariff, 0, len(costs))
	for _, dc := range costs {
		regions = append(regions, RegionTariff{Region: shortRegion(dc.Region), CapacityTariff: dc.CapacityTariff})
	}
	attrs := map[string]any{
		"bijz_accijns":              c.ExciseSurcharge,
		"bijdrage_energie":          c.EnergyContribution,
		"aansluitingsvergoeding":    c.ConnectionFee,
		"gsc":                       c.GreenCertificates,
		"wkk":                       c.Cogeneration,
		"capaciteitstarief":         regions,
		"capaciteitstarief_current": c.CapacityTariff,
		"afname_current":            c.WithdrawalFee,
		"databeheer_current":        c.GridManagementFee,
		"region":                    c.Region,
	}
	if len(costs) > 0 {
		attrs["databeheer"] = costs[0].GridManagementFee
	}
	return attrs
}

// shortRegion turns "Fluvius (Antwerpen)" into "Antwerpen".
func shortRegion(region string) string {
	fields := strings.SplitN(region, " ", 2)
	if len(fields) < 2 {
		return region
	}
	return strings.NewReplacer("(", "", ")", "").Replace(fields[1])
}
