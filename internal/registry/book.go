package registry

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/rewired-gh/tariffwatch/internal/logger"
	"github.com/rewired-gh/tariffwatch/internal/metrics"
	"github.com/rewired-gh/tariffwatch/internal/models"
)

// Known is one registry record with its identity.
type Known struct {
	Identity string
	Contract models.DiscoveredContract
}

// Book is the live registry shared by all configuration entries.
//
// The first insert of an identity is written through to the store before
// Record returns. Updates to an identity that is already known only change
// memory; they reach the store with the next write-through or Flush.
type Book struct {
	mu    sync.Mutex
	store Store
	reg   Registry
	dirty bool
}

// Open loads the registry from store.
func Open(store Store) (*Book, error) {
	reg, err := store.Load()
	if err != nil {
		return nil, err
	}
	b := &Book{store: store, reg: reg}
	for entryID, records := range reg {
		metrics.SetRegistrySize(entryID, len(records))
	}
	return b, nil
}

// IsKnown reports whether identity is registered for entryID.
func (b *Book) IsKnown(entryID, identity string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.reg[entryID][identity]
	return ok
}

// Get returns the registered contract for identity.
func (b *Book) Get(entryID, identity string) (models.DiscoveredContract, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.reg[entryID][identity]
	return rec.ExtraStateAttributes, ok
}

// Record upserts the attributes of identity. It reports whether the
// identity was new, in which case the registry has been saved.
func (b *Book) Record(entryID, identity string, attrs models.DiscoveredContract) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	records, ok := b.reg[entryID]
	if !ok {
		records = make(map[string]Record)
		b.reg[entryID] = records
	}
	if prev, known := records[identity]; known {
		if !reflect.DeepEqual(prev.ExtraStateAttributes, attrs) {
			records[identity] = Record{ExtraStateAttributes: attrs}
			b.dirty = true
		}
		return false, nil
	}

	records[identity] = Record{ExtraStateAttributes: attrs}
	metrics.SetRegistrySize(entryID, len(records))
	if err := b.saveLocked(); err != nil {
		return true, err
	}
	logger.Info("Registered contract %s for entry %s", identity, entryID)
	return true, nil
}

// Discover records every catalog row under entryID and returns the
// identities seen for the first time. Rows are handled in order; the first
// save failure stops the pass.
func (b *Book) Discover(entryID string, rows []models.DiscoveredContract) ([]string, error) {
	var added []string
	for _, row := range rows {
		id := DeriveIdentity(row)
		isNew, err := b.Record(entryID, id, row)
		if err != nil {
			return added, fmt.Errorf("failed to record %s: %w", id, err)
		}
		if isNew {
			added = append(added, id)
		}
	}
	return added, nil
}

// Remove deletes identity from entryID and saves the registry. It reports
// whether the identity existed.
func (b *Book) Remove(entryID, identity string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	records := b.reg[entryID]
	if _, ok := records[identity]; !ok {
		return false, nil
	}
	delete(records, identity)
	metrics.SetRegistrySize(entryID, len(records))
	return true, b.saveLocked()
}

// DropEntry forgets every contract of entryID and saves the registry.
func (b *Book) DropEntry(entryID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.reg[entryID]; !ok {
		return nil
	}
	delete(b.reg, entryID)
	metrics.SetRegistrySize(entryID, 0)
	return b.saveLocked()
}

// Entries returns the known contracts of entryID sorted by identity.
func (b *Book) Entries(entryID string) []Known {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Known, 0, len(b.reg[entryID]))
	for id, rec := range b.reg[entryID] {
		out = append(out, Known{Identity: id, Contract: rec.ExtraStateAttributes})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// Flush saves pending in-memory updates, if any.
func (b *Book) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.dirty {
		return nil
	}
	return b.saveLocked()
}

// Snapshot returns a copy of the in-memory registry.
func (b *Book) Snapshot() Registry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reg.Clone()
}

func (b *Book) saveLocked() error {
	if err := b.store.Save(b.reg.Clone()); err != nil {
		b.dirty = true
		return err
	}
	b.dirty = false
	return nil
}
