// Package app sets up and tears down the runtime of configuration entries:
// contract tracking entries and supplier pricing entries.
package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rewired-gh/tariffwatch/internal/catalog"
	"github.com/rewired-gh/tariffwatch/internal/config"
	"github.com/rewired-gh/tariffwatch/internal/contracts"
	"github.com/rewired-gh/tariffwatch/internal/hub"
	"github.com/rewired-gh/tariffwatch/internal/logger"
	"github.com/rewired-gh/tariffwatch/internal/models"
	"github.com/rewired-gh/tariffwatch/internal/pricing"
	"github.com/rewired-gh/tariffwatch/internal/registry"
	"github.com/rewired-gh/tariffwatch/internal/secapi"
	"github.com/rewired-gh/tariffwatch/internal/tariff"
	"github.com/rewired-gh/tariffwatch/internal/tracker"
	"github.com/rewired-gh/tariffwatch/internal/wizard"
)

// ErrNotLoaded is returned for an entry without a running setup.
var ErrNotLoaded = errors.New("entry not loaded")

// ErrPricingLoaded is returned when a second pricing entry is set up. The
// supplier entity ids are shared, so only one pricing entry runs at a time.
var ErrPricingLoaded = errors.New("a pricing entry is already loaded")

// Store is the persistence the runtime needs.
type Store interface {
	tracker.OptionsStore
	hub.Persister
	ListEntries(ctx context.Context, domain string) ([]*models.Entry, error)
	LoadStates() ([]hub.State, error)
}

// Notifier receives refresh health and current contract changes.
type Notifier interface {
	contracts.Notifier
	SendDesignationChange(entryTitle string, contract models.DiscoveredContract, identity string) error
}

type contractsRuntime struct {
	entry   *models.Entry
	client  *secapi.Client
	tracker *tracker.Tracker
	mirror  *tracker.Mirror
	roles   []*tracker.RoleMirror
	poller  *contracts.Poller
	unsub   func()
}

// App owns the hub and every loaded entry.
type App struct {
	cfg   *config.Config
	hub   *hub.Hub
	store Store
	book  *registry.Book
	bus   *tracker.Broadcaster

	mu        sync.Mutex
	notifier  Notifier
	contracts map[string]*contractsRuntime
	pricing   map[string]*pricing.Set
}

// New restores the last persisted entity states into h and starts
// persisting every later write.
func New(cfg *config.Config, h *hub.Hub, store Store, book *registry.Book) (*App, error) {
	states, err := store.LoadStates()
	if err != nil {
		return nil, fmt.Errorf("failed to load entity states: %w", err)
	}
	for _, s := range states {
		h.Restore(s)
	}
	h.SetPersister(store)
	logger.Debug("Restored %d entity states", len(states))

	return &App{
		cfg:       cfg,
		hub:       h,
		store:     store,
		book:      book,
		bus:       tracker.NewBroadcaster(),
		contracts: make(map[string]*contractsRuntime),
		pricing:   make(map[string]*pricing.Set),
	}, nil
}

// Hub returns the entity hub.
func (a *App) Hub() *hub.Hub {
	return a.hub
}

// SetNotifier enables notifications for entries set up afterwards.
func (a *App) SetNotifier(n Notifier) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notifier = n
}

// SetupAll sets up every stored entry. Failing entries are logged and skipped.
func (a *App) SetupAll(ctx context.Context) error {
	entries, err := a.store.ListEntries(ctx, "")
	if err != nil {
		return err
	}
	for _, e := range entries {
		switch e.Domain {
		case models.DomainContracts:
			ok, err := a.SetupContracts(ctx, e)
			if err != nil {
				logger.Error("Failed to set up entry %s: %v", e.ID, err)
			} else if !ok {
				logger.Warn("Entry %s not loaded: the API key was rejected", e.ID)
			}
		case models.DomainPricing:
			if err := a.SetupPricing(ctx, e); err != nil {
				logger.Error("Failed to set up entry %s: %v", e.ID, err)
			}
		}
	}
	return nil
}

func (a *App) clientConfig() secapi.ClientConfig {
	return secapi.ClientConfig{
		Timeout:        a.cfg.API.Timeout,
		MaxRetries:     a.cfg.API.MaxRetries,
		RetryDelayBase: a.cfg.API.RetryDelayBase,
		RatePerSecond:  a.cfg.API.RatePerSecond,
		PeriodLookback: a.cfg.API.PeriodLookback,
	}
}

// SetupContracts validates the entry's API key and starts tracking its
// contracts. It reports false, with no error, when the key is rejected.
func (a *App) SetupContracts(ctx context.Context, entry *models.Entry) (bool, error) {
	a.mu.Lock()
	_, loaded := a.contracts[entry.ID]
	notifier := a.notifier
	a.mu.Unlock()
	if loaded {
		return false, fmt.Errorf("entry %s is already loaded", entry.ID)
	}

	client := secapi.NewClient(a.cfg.API.BaseURL, entry.Data[models.DataAPIKey], a.clientConfig())
	ok, err := client.Validate(ctx)
	if err != nil || !ok {
		client.Close()
		return false, err
	}

	tr := tracker.New(entry.ID, a.store, a.bus)
	if err := tr.Restore(ctx); err != nil {
		client.Close()
		return false, err
	}

	rt := &contractsRuntime{
		entry:   entry,
		client:  client,
		tracker: tr,
		poller:  contracts.NewPoller(client, a.cfg.API.PollInterval, a.cfg.API.Timeout),
	}
	rt.mirror = tracker.NewMirror(a.hub, a.bus, tr, entry.ID+"_current_contract")
	rt.roles = []*tracker.RoleMirror{
		tracker.NewRoleMirror(a.hub, rt.mirror.ID(), entry.ID+"_"+string(models.RoleBuy), models.RoleBuy),
		tracker.NewRoleMirror(a.hub, rt.mirror.ID(), entry.ID+"_"+string(models.RoleSell), models.RoleSell),
	}
	if notifier != nil {
		rt.poller.SetNotifier(notifier)
		rt.unsub = a.bus.Subscribe(entry.ID, func(ev tracker.CurrentContractSelected) {
			contract, _ := a.book.Get(ev.EntryID, ev.SelectedContractID)
			if err := notifier.SendDesignationChange(entry.Title, contract, ev.SelectedContractID); err != nil {
				logger.Warn("Failed to send designation notification: %v", err)
			}
		})
	}

	zip := entry.Data[models.DataZipCode]
	for _, k := range a.book.Entries(entry.ID) {
		if err := rt.poller.Track(contracts.NewEntity(a.hub, a.book, entry.ID, zip, k.Contract)); err != nil {
			logger.Warn("%v", err)
		}
	}
	a.discover(ctx, rt)

	a.mu.Lock()
	a.contracts[entry.ID] = rt
	a.mu.Unlock()

	rt.poller.Start()
	rt.poller.RefreshAll()
	logger.Info("Entry %s loaded with %d contracts", entry.ID, len(rt.poller.Entities()))
	return true, nil
}

// discover fetches the catalog for the entry's filter and tracks every
// contract seen for the first time. Without a complete filter there is
// nothing to discover yet.
func (a *App) discover(ctx context.Context, rt *contractsRuntime) {
	opts, err := a.store.GetOptions(ctx, rt.entry.ID)
	if err != nil {
		logger.Warn("Failed to read options of %s: %v", rt.entry.ID, err)
		return
	}
	if !opts.Complete() {
		logger.Info("Entry %s has no contract filter yet, skipping discovery", rt.entry.ID)
		return
	}

	zip := rt.entry.Data[models.DataZipCode]
	cat, err := rt.client.FetchCatalog(ctx, opts.ContractFilter, secapi.FetchOptions{ShowPrices: true, ZipCode: zip})
	if err != nil {
		logger.Warn("Catalog discovery for %s failed: %v", rt.entry.ID, err)
		return
	}
	rows := cat.Rows()
	added, err := a.book.Discover(rt.entry.ID, rows)
	if err != nil {
		logger.Error("Failed to persist discovered contracts: %v", err)
	}
	for _, id := range added {
		contract, _ := a.book.Get(rt.entry.ID, id)
		if err := rt.poller.Track(contracts.NewEntity(a.hub, a.book, rt.entry.ID, zip, contract)); err != nil {
			logger.Warn("%v", err)
		}
	}
	logger.Info("Discovered %d contracts for %s (%d new)", len(rows), rt.entry.ID, len(added))
}

func (a *App) runtime(entryID string) (*contractsRuntime, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rt, ok := a.contracts[entryID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotLoaded, entryID)
	}
	return rt, nil
}

// Tracker returns the current contract tracker of a loaded entry.
func (a *App) Tracker(entryID string) (*tracker.Tracker, error) {
	rt, err := a.runtime(entryID)
	if err != nil {
		return nil, err
	}
	return rt.tracker, nil
}

// SetCurrent designates a registered contract of a loaded entry.
func (a *App) SetCurrent(ctx context.Context, entryID, identity string) error {
	rt, err := a.runtime(entryID)
	if err != nil {
		return err
	}
	return wizard.SetCurrent(ctx, a.book, rt.tracker, identity)
}

// RemoveContract deletes a contract from the registry, stops refreshing it
// and clears the designation when it was the current contract.
func (a *App) RemoveContract(ctx context.Context, entryID, identity string) error {
	rt, err := a.runtime(entryID)
	if err != nil {
		return err
	}
	existed, err := a.book.Remove(entryID, identity)
	if err != nil {
		return err
	}
	if !existed {
		return fmt.Errorf("contract %s is not registered for %s", identity, entryID)
	}
	rt.poller.Untrack(identity)
	a.hub.SetUnavailable(identity)
	if _, err := rt.tracker.ClearIf(ctx, identity); err != nil {
		return fmt.Errorf("failed to clear designation: %w", err)
	}
	return nil
}

// SetupPricing loads the static catalogs and starts the supplier entities
// of a pricing entry.
func (a *App) SetupPricing(_ context.Context, entry *models.Entry) error {
	if err := a.checkPricingSlot(entry.ID); err != nil {
		return err
	}

	suppliers, err := catalog.LoadSuppliers(a.cfg.Pricing.SuppliersPath)
	if err != nil {
		return err
	}
	costs, err := catalog.LoadDistributionCosts(a.cfg.Pricing.DistributionCostsPath)
	if err != nil {
		return err
	}
	lv := a.cfg.Pricing.Levies
	set, err := pricing.NewSet(a.hub, pricing.Options{
		Suppliers: suppliers,
		Costs:     costs,
		Levies: tariff.Levies{
			ExciseSurcharge:    lv.ExciseSurcharge,
			EnergyContribution: lv.EnergyContribution,
			ConnectionFee:      lv.ConnectionFee,
			GreenCertificates:  lv.GreenCertificates,
			Cogeneration:       lv.Cogeneration,
		},
		Supplier: entry.Data[models.DataSupplier],
		Region:   entry.Data[models.DataDistributionRegion],
		Sources: pricing.Sources{
			DayAhead:     a.cfg.Pricing.DayAheadEntity,
			CurrentPrice: a.cfg.Pricing.CurrentPriceEntity,
		},
		HourlyUpdate: true,
	})
	if err != nil {
		return err
	}
	a.mu.Lock()
	if err := a.checkPricingSlotLocked(entry.ID); err != nil {
		a.mu.Unlock()
		set.Close()
		return err
	}
	a.pricing[entry.ID] = set
	a.mu.Unlock()
	set.Start()
	return nil
}

func (a *App) checkPricingSlot(entryID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.checkPricingSlotLocked(entryID)
}

func (a *App) checkPricingSlotLocked(entryID string) error {
	if _, loaded := a.pricing[entryID]; loaded {
		return fmt.Errorf("entry %s is already loaded", entryID)
	}
	for id := range a.pricing {
		return fmt.Errorf("%w: %s", ErrPricingLoaded, id)
	}
	return nil
}

// Unload stops the entry's schedules, releases its subscriptions, flushes
// the registry and closes its HTTP client.
func (a *App) Unload(entryID string) error {
	a.mu.Lock()
	rt, isContracts := a.contracts[entryID]
	set, isPricing := a.pricing[entryID]
	delete(a.contracts, entryID)
	delete(a.pricing, entryID)
	a.mu.Unlock()

	switch {
	case isContracts:
		rt.poller.Stop()
		if rt.unsub != nil {
			rt.unsub()
		}
		for _, r := range rt.roles {
			r.Close()
		}
		rt.mirror.Close()
		rt.client.Close()
		if err := a.book.Flush(); err != nil {
			return fmt.Errorf("failed to flush registry: %w", err)
		}
	case isPricing:
		set.Close()
	default:
		return fmt.Errorf("%w: %s", ErrNotLoaded, entryID)
	}
	logger.Info("Entry %s unloaded", entryID)
	return nil
}

// Loaded returns the ids of every loaded entry, sorted.
func (a *App) Loaded() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]string, 0, len(a.contracts)+len(a.pricing))
	for id := range a.contracts {
		ids = append(ids, id)
	}
	for id := range a.pricing {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close unloads every entry.
func (a *App) Close() {
	for _, id := range a.Loaded() {
		if err := a.Unload(id); err != nil {
			logger.Warn("Failed to unload %s: %v", id, err)
		}
	}
}

// Status describes the current contract of every loaded contracts entry.
func (a *App) Status() string {
	a.mu.Lock()
	rts := make([]*contractsRuntime, 0, len(a.contracts))
	for _, rt := range a.contracts {
		rts = append(rts, rt)
	}
	a.mu.Unlock()
	sort.Slice(rts, func(i, j int) bool { return rts[i].entry.ID < rts[j].entry.ID })

	if len(rts) == 0 {
		return "No contracts entries loaded"
	}
	var b strings.Builder
	for _, rt := range rts {
		current, ok := rt.tracker.Current()
		if !ok {
			fmt.Fprintf(&b, "%s: no current contract\n", rt.entry.Title)
			continue
		}
		line := fmt.Sprintf("%s: %s", rt.entry.Title, current)
		if s, ok := a.hub.Get(rt.mirror.ID()); ok && s.Available {
			if pair, ok := s.Value.(models.PricePair); ok {
				line += fmt.Sprintf(" (afname %.5f, injectie %.5f €/kWh)", pair.Buy, pair.Sell)
			}
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}
