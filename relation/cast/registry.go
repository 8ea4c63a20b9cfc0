package cast

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Registry holds all authored character definitions.
type Registry struct {
	mu         sync.RWMutex
	characters map[string]*Character
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		characters: make(map[string]*Character),
	}
}

// LoadFromFile loads character definitions from a JSON file.
func (r *Registry) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read cast file: %w", err)
	}
	return r.LoadFromJSON(data)
}

// LoadFromJSON loads character definitions from raw JSON bytes.
func (r *Registry) LoadFromJSON(data []byte) error {
	var list []*Character
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("parse cast JSON: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range list {
		if c.ID == "" {
			continue
		}
		r.characters[c.ID] = c
	}
	return nil
}

// Get returns a character by ID.
func (r *Registry) Get(id string) *Character {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.characters[id]
}

// All returns a snapshot of all characters.
func (r *Registry) All() []*Character {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Character, 0, len(r.characters))
	for _, c := range r.characters {
		out = append(out, c)
	}
	return out
}

// BySpecies returns all characters authored with the given species tag.
func (r *Registry) BySpecies(speciesName string) []*Character {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Character
	for _, c := range r.characters {
		if c.Species == speciesName {
			out = append(out, c)
		}
	}
	return out
}

// Count returns the total number of registered characters.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.characters)
}
