package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rewired-gh/tariffwatch/internal/logger"
	"github.com/rewired-gh/tariffwatch/internal/metrics"
	"github.com/rewired-gh/tariffwatch/internal/models"
)

// OptionsStore reads and writes configuration entry options.
type OptionsStore interface {
	GetOptions(ctx context.Context, entryID string) (models.EntryOptions, error)
	UpdateOptions(ctx context.Context, entryID string, opts models.EntryOptions) error
}

// State is the designation state of an entry.
type State int

const (
	Unset State = iota
	Tracking
)

func (s State) String() string {
	if s == Tracking {
		return "tracking"
	}
	return "unset"
}

// Tracker owns the current contract designation of one configuration entry.
type Tracker struct {
	entryID string
	store   OptionsStore
	bus     *Broadcaster

	// setMu serializes designation changes; mu guards current.
	setMu   sync.Mutex
	mu      sync.RWMutex
	current string
}

// New creates a tracker in the Unset state. Call Restore to load the
// persisted designation.
func New(entryID string, store OptionsStore, bus *Broadcaster) *Tracker {
	return &Tracker{entryID: entryID, store: store, bus: bus}
}

// EntryID returns the configuration entry the tracker belongs to.
func (t *Tracker) EntryID() string {
	return t.entryID
}

// Restore re-reads the persisted designation and re-enters Tracking when
// one is present. Subscribers are notified so mirrors attach to the target.
func (t *Tracker) Restore(ctx context.Context) error {
	t.setMu.Lock()
	defer t.setMu.Unlock()

	opts, err := t.store.GetOptions(ctx, t.entryID)
	if err != nil {
		return fmt.Errorf("failed to read options of %s: %w", t.entryID, err)
	}

	t.mu.Lock()
	t.current = opts.SelectedContractID
	t.mu.Unlock()

	if opts.SelectedContractID != "" {
		logger.Info("Entry %s tracking %s", t.entryID, opts.SelectedContractID)
		t.bus.Publish(CurrentContractSelected{EntryID: t.entryID, SelectedContractID: opts.SelectedContractID})
	}
	return nil
}

// Set designates identity as the current contract: it persists the choice
// into entry options and then notifies subscribers. When Set returns, every
// mirror has moved to the new target.
func (t *Tracker) Set(ctx context.Context, identity string) error {
	if identity == "" {
		return errors.New("contract identity must not be empty")
	}
	return t.change(ctx, identity)
}

// Clear removes the designation.
func (t *Tracker) Clear(ctx context.Context) error {
	return t.change(ctx, "")
}

// ClearIf removes the designation when it points at identity. It reports
// whether the designation was cleared.
func (t *Tracker) ClearIf(ctx context.Context, identity string) (bool, error) {
	if cur, ok := t.Current(); !ok || cur != identity {
		return false, nil
	}
	return true, t.Clear(ctx)
}

func (t *Tracker) change(ctx context.Context, identity string) error {
	t.setMu.Lock()
	defer t.setMu.Unlock()

	opts, err := t.store.GetOptions(ctx, t.entryID)
	if err != nil {
		return fmt.Errorf("failed to read options of %s: %w", t.entryID, err)
	}
	opts.SelectedContractID = identity
	if err := t.store.UpdateOptions(ctx, t.entryID, opts); err != nil {
		return fmt.Errorf("failed to persist designation of %s: %w", t.entryID, err)
	}

	t.mu.Lock()
	prev := t.current
	t.current = identity
	t.mu.Unlock()

	if prev == identity {
		return nil
	}
	metrics.IncDesignationChange(t.entryID)
	if identity == "" {
		logger.Info("Entry %s cleared current contract %s", t.entryID, prev)
	} else {
		logger.Info("Entry %s current contract: %s", t.entryID, identity)
	}
	t.bus.Publish(CurrentContractSelected{EntryID: t.entryID, SelectedContractID: identity})
	return nil
}

// Current returns the designated identity, if any.
func (t *Tracker) Current() (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current, t.current != ""
}

// State returns Unset or Tracking.
func (t *Tracker) State() State {
	if _, ok := t.Current(); ok {
		return Tracking
	}
	return Unset
}
