package tracker

import (
	"sync"

	"github.com/rewired-gh/tariffwatch/internal/hub"
	"github.com/rewired-gh/tariffwatch/internal/logger"
	"github.com/rewired-gh/tariffwatch/internal/models"
)

// Mirror publishes the live PricePair of an entry's designated contract
// under its own entity id. On a designation change it drops the listener on
// the old target and attaches to the new one while holding its lock, so
// retargeting completes before Publish returns.
type Mirror struct {
	hub      *hub.Hub
	entityID string

	mu       sync.Mutex
	target   string
	unsub    hub.Unsubscribe
	busUnsub func()
	closed   bool
}

// NewMirror creates a mirror for t's entry published as entityID, attaches
// it to the current designation and follows later changes through bus.
func NewMirror(h *hub.Hub, bus *Broadcaster, t *Tracker, entityID string) *Mirror {
	m := &Mirror{hub: h, entityID: entityID}
	m.busUnsub = bus.Subscribe(t.EntryID(), func(ev CurrentContractSelected) {
		m.Retarget(ev.SelectedContractID)
	})
	current, _ := t.Current()
	m.Retarget(current)
	return m
}

// ID returns the mirror's entity id.
func (m *Mirror) ID() string {
	return m.entityID
}

// Target returns the identity the mirror follows; empty when unset.
func (m *Mirror) Target() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.target
}

// Retarget moves the mirror to identity. An empty identity detaches it.
func (m *Mirror) Retarget(identity string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	if m.unsub != nil && m.target == identity {
		return
	}
	if m.unsub != nil {
		m.unsub()
		m.unsub = nil
	}
	m.target = identity

	if identity == "" {
		m.hub.SetUnavailable(m.entityID)
		return
	}

	m.unsub = m.hub.Subscribe(identity, m.onState)
	if s, ok := m.hub.Get(identity); ok {
		m.applyLocked(s)
	} else {
		m.hub.SetUnavailable(m.entityID)
	}
	logger.Debug("Mirror %s now follows %s", m.entityID, identity)
}

func (m *Mirror) onState(ev hub.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || ev.EntityID != m.target {
		return
	}
	m.applyLocked(ev.New)
}

func (m *Mirror) applyLocked(s hub.State) {
	if !s.Available {
		m.hub.SetUnavailable(m.entityID)
		return
	}
	pair, ok := pairOf(s)
	if !ok {
		logger.Warn("%v", &models.MirrorParseError{EntityID: s.EntityID, Value: s.Value})
		return
	}
	m.hub.Set(m.entityID, pair, map[string]any{
		"selected_contract_id": m.target,
	})
}

func pairOf(s hub.State) (models.PricePair, bool) {
	if p, ok := s.Value.(models.PricePair); ok {
		return p, true
	}
	p, ok := s.Attributes[models.AttrPricePair].(models.PricePair)
	return p, ok
}

// Close releases both subscriptions. The mirror ignores events afterwards.
func (m *Mirror) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	if m.unsub != nil {
		m.unsub()
		m.unsub = nil
	}
	if m.busUnsub != nil {
		m.busUnsub()
	}
}

// RoleMirror publishes one element of a Mirror's PricePair.
type RoleMirror struct {
	hub      *hub.Hub
	entityID string
	source   string
	role     models.Role

	mu    sync.Mutex
	value float64
	has   bool
	unsub hub.Unsubscribe
}

// NewRoleMirror follows the PricePair published under source and exposes
// the element selected by role as entityID.
func NewRoleMirror(h *hub.Hub, source, entityID string, role models.Role) *RoleMirror {
	r := &RoleMirror{hub: h, entityID: entityID, source: source, role: role}
	r.unsub = h.Subscribe(source, r.onState)
	if s, ok := h.Get(source); ok {
		r.apply(s)
	}
	return r
}

// ID returns the role mirror's entity id.
func (r *RoleMirror) ID() string {
	return r.entityID
}

// Value returns the last good value.
func (r *RoleMirror) Value() (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value, r.has
}

func (r *RoleMirror) onState(ev hub.Event) {
	r.apply(ev.New)
}

// apply never fails: a value that is not a PricePair is logged and the
// prior value is kept. An unavailable source makes the role entity
// unavailable too.
func (r *RoleMirror) apply(s hub.State) {
	if !s.Available {
		r.hub.SetUnavailable(r.entityID)
		return
	}
	pair, ok := s.Value.(models.PricePair)
	if !ok {
		logger.Warn("%v", &models.MirrorParseError{EntityID: s.EntityID, Value: s.Value})
		return
	}

	v := pair.Select(r.role)
	r.mu.Lock()
	r.value = v
	r.has = true
	r.mu.Unlock()

	r.hub.Set(r.entityID, v, map[string]any{
		"role":   string(r.role),
		"index":  r.role.Index(),
		"source": r.source,
	})
}

// Close releases the subscription on the source mirror.
func (r *RoleMirror) Close() {
	r.unsub()
}
