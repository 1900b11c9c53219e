// Package contracts exposes discovered catalog contracts as live-price
// entities and refreshes them on independent schedules.
package contracts

import (
	"context"
	"sync"
	"time"

	"github.com/rewired-gh/tariffwatch/internal/hub"
	"github.com/rewired-gh/tariffwatch/internal/logger"
	"github.com/rewired-gh/tariffwatch/internal/metrics"
	"github.com/rewired-gh/tariffwatch/internal/models"
	"github.com/rewired-gh/tariffwatch/internal/registry"
)

// LivePriceFetcher re-fetches one contract with live pricing.
type LivePriceFetcher interface {
	FetchLivePrice(ctx context.Context, contract models.DiscoveredContract, zip string) (models.DiscoveredContract, error)
}

// Entity is the live-price entity of one discovered contract. Its state
// value is the contract's current price; the full row and its PricePair are
// published as attributes.
type Entity struct {
	hub     *hub.Hub
	book    *registry.Book
	entryID string
	id      string
	zip     string

	// refreshMu keeps refreshes of one contract strictly sequential.
	refreshMu sync.Mutex

	mu       sync.Mutex
	contract models.DiscoveredContract
	failed   bool
	failures int
	lastOK   time.Time
}

// NewEntity creates the entity for contract and publishes its last known
// state.
func NewEntity(h *hub.Hub, book *registry.Book, entryID, zip string, contract models.DiscoveredContract) *Entity {
	e := &Entity{
		hub:      h,
		book:     book,
		entryID:  entryID,
		id:       registry.DeriveIdentity(contract),
		zip:      zip,
		contract: contract,
	}
	e.mu.Lock()
	e.publishLocked()
	e.mu.Unlock()
	return e
}

// ID returns the contract identity.
func (e *Entity) ID() string {
	return e.id
}

// EntryID returns the owning configuration entry.
func (e *Entity) EntryID() string {
	return e.entryID
}

// Contract returns the last fetched catalog row.
func (e *Entity) Contract() models.DiscoveredContract {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.contract
}

// Value returns the current price, zero when the row carries none.
func (e *Entity) Value() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.contract.PricePair().Buy
}

// LastUpdateFailed reports whether the most recent refresh failed.
func (e *Entity) LastUpdateFailed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failed
}

// Refresh fetches the live row and publishes it. On failure the previous
// value stays in place, the entity is flagged and the error is returned to
// the caller for logging; the refresh boundary never panics.
func (e *Entity) Refresh(ctx context.Context, fetcher LivePriceFetcher) error {
	e.refreshMu.Lock()
	defer e.refreshMu.Unlock()

	start := time.Now()
	e.mu.Lock()
	current := e.contract
	e.mu.Unlock()

	live, err := fetcher.FetchLivePrice(ctx, current, e.zip)
	metrics.ObserveRefresh("contract", start, err)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.failed = true
		e.failures++
		e.publishLocked()
		return err
	}

	e.failed = false
	e.failures = 0
	e.lastOK = time.Now()
	e.contract = e.merge(current, live)
	if _, err := e.book.Record(e.entryID, e.id, e.contract); err != nil {
		logger.Warn("Failed to record %s: %v", e.id, err)
	}
	e.publishLocked()
	return nil
}

// merge applies a live row to the registered contract. A row of the same
// identity replaces it; any other row only contributes its prices, so the
// stored attributes always derive the entity's identity.
func (e *Entity) merge(current, live models.DiscoveredContract) models.DiscoveredContract {
	if registry.DeriveIdentity(live) == e.id {
		return live
	}
	logger.Debug("Live row %d stands in for %s; keeping registered attributes", live.ID, e.id)
	current.Prices = live.Prices
	return current
}

// ConsecutiveFailures returns the number of failed refreshes since the last
// success.
func (e *Entity) ConsecutiveFailures() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failures
}

func (e *Entity) publishLocked() {
	c := e.contract
	pair := c.PricePair()
	attrs, err := c.Attributes()
	if err != nil {
		logger.Warn("Failed to encode attributes of %s: %v", e.id, err)
		attrs = map[string]any{}
	}
	attrs["last_update_failed"] = e.failed
	attrs[models.AttrPricePair] = pair
	if !e.lastOK.IsZero() {
		attrs["last_success"] = e.lastOK
	}
	e.hub.Set(e.id, pair.Buy, attrs)
}
