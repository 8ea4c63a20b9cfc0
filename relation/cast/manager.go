package cast

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"rapport-lite/relation"
	"rapport-lite/species"
)

// Member is a spawned character: an authored definition bound to a numeric
// ref usable as a relation identity.
type Member struct {
	RefID     uint64
	Character *Character
	Species   species.Species
}

// Identity returns the relation identity for this member.
func (m *Member) Identity() *relation.Identity {
	if m == nil {
		return nil
	}
	return &relation.Identity{ID: m.RefID, Species: m.Species}
}

// Manager tracks which characters are currently spawned and hands out their
// numeric refs. Refs start high to avoid collision with player account IDs.
type Manager struct {
	registry *Registry

	mu      sync.RWMutex
	members map[uint64]*Member
	byCast  map[string]uint64 // character ID -> ref
	nextID  uint64
}

// NewManager creates a manager backed by the given registry.
func NewManager(registry *Registry) *Manager {
	return &Manager{
		registry: registry,
		members:  make(map[uint64]*Member),
		byCast:   make(map[string]uint64),
		nextID:   9_000_000,
	}
}

// Registry returns the underlying character registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Spawn activates a registered character and returns its member handle.
// A character can be spawned at most once at a time.
func (m *Manager) Spawn(characterID string) (*Member, error) {
	c := m.registry.Get(characterID)
	if c == nil {
		return nil, fmt.Errorf("unknown character %q", characterID)
	}
	sp, err := species.ParseSpecies(c.Species)
	if err != nil {
		return nil, fmt.Errorf("spawn %q: %w", characterID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, active := m.byCast[characterID]; active {
		return nil, fmt.Errorf("character %q already spawned", characterID)
	}
	m.nextID++
	member := &Member{
		RefID:     m.nextID,
		Character: c,
		Species:   sp,
	}
	m.members[member.RefID] = member
	m.byCast[characterID] = member.RefID

	log.Printf("[Cast] Spawned %s (ref=%d, %s)", c.Name, member.RefID, sp)
	return member, nil
}

// Despawn removes a member from tracking.
func (m *Manager) Despawn(refID uint64) {
	m.mu.Lock()
	member := m.members[refID]
	delete(m.members, refID)
	if member != nil {
		delete(m.byCast, member.Character.ID)
	}
	m.mu.Unlock()

	if member != nil {
		log.Printf("[Cast] Despawned %s (ref=%d)", member.Character.Name, refID)
	}
}

// Get returns the member for a ref, or nil.
func (m *Manager) Get(refID uint64) *Member {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.members[refID]
}

// IsMember reports whether a ref belongs to a spawned character.
func (m *Manager) IsMember(refID uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.members[refID] != nil
}

// Members returns every spawned member sorted by ref.
func (m *Manager) Members() []*Member {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Member, 0, len(m.members))
	for _, member := range m.members {
		out = append(out, member)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RefID < out[j].RefID })
	return out
}

// Roster returns the relation identities of every spawned member, suitable
// for Store.Initialize.
func (m *Manager) Roster() []*relation.Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*relation.Identity, 0, len(m.members))
	for _, member := range m.members {
		out = append(out, member.Identity())
	}
	return out
}
