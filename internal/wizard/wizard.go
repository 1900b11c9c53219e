// Package wizard narrows a fetched contract catalog step by step down to a
// complete contract filter, and designates the current contract.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rewired-gh/tariffwatch/internal/logger"
	"github.com/rewired-gh/tariffwatch/internal/models"
	"github.com/rewired-gh/tariffwatch/internal/registry"
	"github.com/rewired-gh/tariffwatch/internal/secapi"
	"github.com/rewired-gh/tariffwatch/internal/tracker"
)

// Fixed options of the first step.
var (
	EnergyTypes  = []string{"Elektriciteit", "Gas"}
	PricingModes = []string{"Dynamisch", "Variabel", "Vast"}
	Segments     = []string{"Woning", "Onderneming"}
)

// ErrInvalidChoice is returned when a value is not among the offered options.
var ErrInvalidChoice = errors.New("invalid choice")

// ErrOutOfOrder is returned when a step is answered before the previous one.
var ErrOutOfOrder = errors.New("wizard step out of order")

// Step is a position in the flow.
type Step int

const (
	StepSelection Step = iota
	StepSupplier
	StepProduct
	StepPriceComponent
	StepDone
)

func (s Step) String() string {
	switch s {
	case StepSelection:
		return "selection"
	case StepSupplier:
		return "supplier_selection"
	case StepProduct:
		return "contract_selection"
	case StepPriceComponent:
		return "price_component_selection"
	default:
		return "done"
	}
}

func distinct(rows []models.DiscoveredContract, f models.ContractFilter, pick func(models.ContractFilter) string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range rows {
		if !f.Matches(r.ContractFilter) {
			continue
		}
		v := pick(r.ContractFilter)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Suppliers lists the suppliers offering the energy type, pricing mode and segment.
func Suppliers(rows []models.DiscoveredContract, energy, mode, segment string) []string {
	f := models.ContractFilter{EnergyType: energy, PricingMode: mode, Segment: segment}
	return distinct(rows, f, func(c models.ContractFilter) string { return c.Supplier })
}

// Products lists the products of supplier.
func Products(rows []models.DiscoveredContract, energy, mode, segment, supplier string) []string {
	f := models.ContractFilter{EnergyType: energy, PricingMode: mode, Segment: segment, Supplier: supplier}
	return distinct(rows, f, func(c models.ContractFilter) string { return c.Product })
}

// PriceComponents lists the price components of product.
func PriceComponents(rows []models.DiscoveredContract, energy, mode, segment, supplier, product string) []string {
	f := models.ContractFilter{EnergyType: energy, PricingMode: mode, Segment: segment, Supplier: supplier, Product: product}
	return distinct(rows, f, func(c models.ContractFilter) string { return c.PriceComponent })
}

// CatalogSource fetches the catalog the flow narrows.
type CatalogSource interface {
	FetchCatalog(ctx context.Context, filter models.ContractFilter, opts secapi.FetchOptions) (secapi.Catalog, error)
}

// Flow walks the selection steps over one catalog snapshot.
type Flow struct {
	rows   []models.DiscoveredContract
	filter models.ContractFilter
	step   Step
}

// NewFlow fetches the unfiltered catalog and starts at the selection step.
func NewFlow(ctx context.Context, src CatalogSource) (*Flow, error) {
	cat, err := src.FetchCatalog(ctx, models.ContractFilter{}, secapi.FetchOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch catalog: %w", err)
	}
	return NewFlowFromRows(cat.Rows()), nil
}

// NewFlowFromRows starts a flow over rows.
func NewFlowFromRows(rows []models.DiscoveredContract) *Flow {
	return &Flow{rows: rows}
}

// Step returns the step awaiting an answer.
func (f *Flow) Step() Step {
	return f.step
}

// Choices returns the options of the current step. The selection step
// offers energy types; use PricingModes and Segments for its other fields.
func (f *Flow) Choices() []string {
	c := f.filter
	switch f.step {
	case StepSelection:
		return EnergyTypes
	case StepSupplier:
		return Suppliers(f.rows, c.EnergyType, c.PricingMode, c.Segment)
	case StepProduct:
		return Products(f.rows, c.EnergyType, c.PricingMode, c.Segment, c.Supplier)
	case StepPriceComponent:
		return PriceComponents(f.rows, c.EnergyType, c.PricingMode, c.Segment, c.Supplier, c.Product)
	default:
		return nil
	}
}

func oneOf(field, v string, options []string) error {
	for _, o := range options {
		if o == v {
			return nil
		}
	}
	return fmt.Errorf("%s %q: %w", field, v, ErrInvalidChoice)
}

func (f *Flow) expect(s Step) error {
	if f.step != s {
		return fmt.Errorf("%s answered at %s: %w", s, f.step, ErrOutOfOrder)
	}
	return nil
}

// Select answers the selection step.
func (f *Flow) Select(energy, mode, segment string) error {
	if err := f.expect(StepSelection); err != nil {
		return err
	}
	if err := oneOf("energy type", energy, EnergyTypes); err != nil {
		return err
	}
	if err := oneOf("pricing mode", mode, PricingModes); err != nil {
		return err
	}
	if err := oneOf("segment", segment, Segments); err != nil {
		return err
	}
	f.filter.EnergyType, f.filter.PricingMode, f.filter.Segment = energy, mode, segment
	f.step = StepSupplier
	return nil
}

// ChooseSupplier answers the supplier step.
func (f *Flow) ChooseSupplier(supplier string) error {
	if err := f.expect(StepSupplier); err != nil {
		return err
	}
	if err := oneOf("supplier", supplier, f.Choices()); err != nil {
		return err
	}
	f.filter.Supplier = supplier
	f.step = StepProduct
	return nil
}

// ChooseProduct answers the product step.
func (f *Flow) ChooseProduct(product string) error {
	if err := f.expect(StepProduct); err != nil {
		return err
	}
	if err := oneOf("product", product, f.Choices()); err != nil {
		return err
	}
	f.filter.Product = product
	f.step = StepPriceComponent
	return nil
}

// ChoosePriceComponent answers the last step and completes the filter.
func (f *Flow) ChoosePriceComponent(component string) error {
	if err := f.expect(StepPriceComponent); err != nil {
		return err
	}
	if err := oneOf("price component", component, f.Choices()); err != nil {
		return err
	}
	f.filter.PriceComponent = component
	f.step = StepDone
	return nil
}

// Filter returns the filter so far and whether it is complete.
func (f *Flow) Filter() (models.ContractFilter, bool) {
	return f.filter, f.step == StepDone && f.filter.Complete()
}

// Apply stores the completed filter as the entry's options. The current
// contract designation is kept.
func (f *Flow) Apply(ctx context.Context, store tracker.OptionsStore, entryID string) error {
	filter, ok := f.Filter()
	if !ok {
		return fmt.Errorf("filter incomplete at %s", f.step)
	}
	opts, err := store.GetOptions(ctx, entryID)
	if err != nil {
		return fmt.Errorf("failed to read options: %w", err)
	}
	opts.ContractFilter = filter
	if err := store.UpdateOptions(ctx, entryID, opts); err != nil {
		return fmt.Errorf("failed to store options: %w", err)
	}
	logger.Info("Entry %s filter set to %s / %s / %s", entryID, filter.Supplier, filter.Product, filter.PriceComponent)
	return nil
}

// CurrentChoices lists the registered contracts the current contract can be
// chosen from.
func CurrentChoices(book *registry.Book, entryID string) []registry.Known {
	return book.Entries(entryID)
}

// SetCurrent designates identity as the current contract of the tracker's
// entry. The identity must be registered for that entry.
func SetCurrent(ctx context.Context, book *registry.Book, t *tracker.Tracker, identity string) error {
	if !book.IsKnown(t.EntryID(), identity) {
		return fmt.Errorf("contract %q: %w", identity, ErrInvalidChoice)
	}
	return t.Set(ctx, identity)
}
