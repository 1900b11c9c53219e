// Package tracker keeps the designated current contract of each
// configuration entry and mirrors its live price into dependent entities.
package tracker

import "sync"

// CurrentContractSelected is published when an entry's designation changes.
// An empty SelectedContractID means the designation was cleared.
type CurrentContractSelected struct {
	EntryID            string `json:"entry_id"`
	SelectedContractID string `json:"selected_contract_id"`
}

type busSub struct {
	id uint64
	fn func(CurrentContractSelected)
}

// Broadcaster delivers designation changes to subscribers of one entry.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[string][]busSub
	nextID uint64
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string][]busSub)}
}

// Subscribe registers fn for designation changes of entryID. The returned
// function removes the subscription and may be called more than once.
func (b *Broadcaster) Subscribe(entryID string, fn func(CurrentContractSelected)) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[entryID] = append(b.subs[entryID], busSub{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subs[entryID]
			for i, s := range subs {
				if s.id == id {
					b.subs[entryID] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
			if len(b.subs[entryID]) == 0 {
				delete(b.subs, entryID)
			}
		})
	}
}

// Publish delivers ev to every subscriber of ev.EntryID before returning.
func (b *Broadcaster) Publish(ev CurrentContractSelected) {
	b.mu.Lock()
	subs := append([]busSub(nil), b.subs[ev.EntryID]...)
	b.mu.Unlock()

	for _, s := range subs {
		s.fn(ev)
	}
}

// Subscribers returns the number of subscribers of entryID.
func (b *Broadcaster) Subscribers(entryID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[entryID])
}
