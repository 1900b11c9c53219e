package pricing

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/rewired-gh/tariffwatch/internal/catalog"
	"github.com/rewired-gh/tariffwatch/internal/hub"
	"github.com/rewired-gh/tariffwatch/internal/logger"
	"github.com/rewired-gh/tariffwatch/internal/models"
	"github.com/rewired-gh/tariffwatch/internal/tariff"
)

// Sources names the upstream market price entities.
type Sources struct {
	DayAhead     string
	CurrentPrice string
}

// Options configures a pricing Set.
type Options struct {
	Suppliers    catalog.Suppliers
	Costs        []models.DistributionCost
	Levies       tariff.Levies
	Supplier     string
	Region       string
	Sources      Sources
	HourlyUpdate bool
}

// Set is every entity of one pricing configuration entry.
type Set struct {
	Constants tariff.Constants
	Suppliers []*SupplierEntity
	Prices    []*CurrentPriceEntity

	hub  *hub.Hub
	cron *cron.Cron
}

// NewSet resolves the region, builds the constants once and creates an
// aggregate entity plus buy and sell entities per supplier, the same for the
// configured supplier under the current contract name, and the constants
// entity.
func NewSet(h *hub.Hub, opts Options) (*Set, error) {
	region, ok := catalog.FindRegion(opts.Costs, opts.Region)
	if !ok {
		return nil, fmt.Errorf("unknown distribution region %q", opts.Region)
	}
	current, ok := opts.Suppliers[opts.Supplier]
	if !ok {
		return nil, fmt.Errorf("unknown supplier %q", opts.Supplier)
	}
	if opts.Sources.DayAhead == "" {
		opts.Sources.DayAhead = DefaultDayAheadEntity
	}
	if opts.Sources.CurrentPrice == "" {
		opts.Sources.CurrentPrice = DefaultCurrentPriceEntity
	}

	s := &Set{
		Constants: tariff.NewConstants(opts.Levies, region),
		hub:       h,
	}

	add := func(name, alias string, schedule models.FeeSchedule) {
		s.Suppliers = append(s.Suppliers, NewSupplierEntity(h, name, alias, schedule, s.Constants, opts.Sources.DayAhead))
		for _, role := range []models.Role{models.RoleBuy, models.RoleSell} {
			s.Prices = append(s.Prices, NewCurrentPriceEntity(h, name, alias, schedule, s.Constants, role, opts.Sources.CurrentPrice))
		}
	}
	for _, name := range opts.Suppliers.Names() {
		add(name, name, opts.Suppliers[name])
	}
	add(CurrentContract, opts.Supplier, current)

	h.Set(ConstantsEntityID, 0, ConstantsAttributes(s.Constants, opts.Costs))

	if opts.HourlyUpdate {
		s.cron = cron.New(cron.WithChain(cron.Recover(logger.CronLogger{}), cron.SkipIfStillRunning(logger.CronLogger{})))
		if _, err := s.cron.AddFunc("@hourly", s.UpdateAll); err != nil {
			return nil, fmt.Errorf("failed to schedule hourly update: %w", err)
		}
	}
	return s, nil
}

// Start subscribes every entity to its upstream entity and starts the
// hourly refresh.
func (s *Set) Start() {
	for _, e := range s.Suppliers {
		e.Start()
	}
	for _, e := range s.Prices {
		e.Start()
	}
	if s.cron != nil {
		s.cron.Start()
	}
	logger.Info("Pricing entities started (%d suppliers, region %s)", len(s.Suppliers), s.Constants.Region)
}

// UpdateAll recomputes every supplier summary. The day-ahead window moves
// with the clock even when the upstream entity does not change.
func (s *Set) UpdateAll() {
	for _, e := range s.Suppliers {
		e.Update()
	}
}

// IDs returns the entity ids of the set.
func (s *Set) IDs() []string {
	ids := make([]string, 0, len(s.Suppliers)+len(s.Prices)+1)
	for _, e := range s.Suppliers {
		ids = append(ids, e.ID())
	}
	for _, e := range s.Prices {
		ids = append(ids, e.ID())
	}
	return append(ids, ConstantsEntityID)
}

// Close stops the hourly refresh and releases all subscriptions.
func (s *Set) Close() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	for _, e := range s.Suppliers {
		e.Close()
	}
	for _, e := range s.Prices {
		e.Close()
	}
}
