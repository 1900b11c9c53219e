// Package hub holds entity states and delivers state-changed events to
// listeners subscribed to a single entity id.
package hub

import (
	"sort"
	"sync"
	"time"

	"github.com/rewired-gh/tariffwatch/internal/logger"
)

// State is the last published state of an entity.
type State struct {
	EntityID    string
	Value       any
	Attributes  map[string]any
	Available   bool
	LastUpdated time.Time
}

// Event is delivered to listeners when an entity's state is set.
type Event struct {
	EntityID string
	Old      *State
	New      State
}

// Listener receives state-changed events.
type Listener func(Event)

// Unsubscribe removes a listener. Calling it more than once is a no-op.
type Unsubscribe func()

// Entity is anything that publishes state under a stable id.
type Entity interface {
	ID() string
}

// Persister receives every state written to the hub.
type Persister interface {
	SaveState(State) error
}

type subscription struct {
	id uint64
	fn Listener
}

// Hub is safe for concurrent use. Listeners run synchronously in the
// goroutine calling Set, after the hub's lock is released.
type Hub struct {
	mu        sync.RWMutex
	states    map[string]State
	listeners map[string][]subscription
	nextID    uint64
	persist   Persister
	now       func() time.Time
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{
		states:    make(map[string]State),
		listeners: make(map[string][]subscription),
		now:       time.Now,
	}
}

// SetPersister snapshots every subsequent state write into p.
func (h *Hub) SetPersister(p Persister) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.persist = p
}

// Set stores an available state for entityID and notifies its listeners.
func (h *Hub) Set(entityID string, value any, attrs map[string]any) {
	h.write(State{EntityID: entityID, Value: value, Attributes: attrs, Available: true})
}

// SetUnavailable marks entityID unavailable, keeping its last value.
func (h *Hub) SetUnavailable(entityID string) {
	h.mu.RLock()
	prev, ok := h.states[entityID]
	h.mu.RUnlock()
	if ok && !prev.Available {
		return
	}
	prev.EntityID = entityID
	prev.Available = false
	h.write(prev)
}

// Restore seeds a state without notifying listeners.
func (h *Hub) Restore(s State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.states[s.EntityID]; ok {
		return
	}
	h.states[s.EntityID] = s
}

func (h *Hub) write(s State) {
	s.LastUpdated = h.now()

	h.mu.Lock()
	var old *State
	if prev, ok := h.states[s.EntityID]; ok {
		old = &prev
	}
	h.states[s.EntityID] = s
	subs := append([]subscription(nil), h.listeners[s.EntityID]...)
	persist := h.persist
	h.mu.Unlock()

	if persist != nil {
		if err := persist.SaveState(s); err != nil {
			logger.Warn("Failed to persist state of %s: %v", s.EntityID, err)
		}
	}

	ev := Event{EntityID: s.EntityID, Old: old, New: s}
	for _, sub := range subs {
		sub.fn(ev)
	}
}

// Get returns the current state of entityID.
func (h *Hub) Get(entityID string) (State, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.states[entityID]
	return s, ok
}

// Remove drops the state of entityID. Listeners stay registered.
func (h *Hub) Remove(entityID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.states, entityID)
}

// IDs returns every entity id with a state, sorted.
func (h *Hub) IDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.states))
	for id := range h.states {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Subscribe registers fn for state changes of exactly entityID.
func (h *Hub) Subscribe(entityID string, fn Listener) Unsubscribe {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.listeners[entityID] = append(h.listeners[entityID], subscription{id: id, fn: fn})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			subs := h.listeners[entityID]
			for i, s := range subs {
				if s.id == id {
					h.listeners[entityID] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
			if len(h.listeners[entityID]) == 0 {
				delete(h.listeners, entityID)
			}
		})
	}
}

// ListenerCount returns the number of listeners on entityID.
func (h *Hub) ListenerCount(entityID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners[entityID])
}
