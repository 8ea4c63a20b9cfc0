package campaign

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
)

// Objective is the pair-tier goal that completes an episode: bring the
// directed (From,To) relationship to the named tier.
type Objective struct {
	FromID string `json:"from"`
	ToID   string `json:"to"`
	Tier   string `json:"tier"`
}

// Episode is one authored campaign beat: the cast present in the scene, the
// objective, and the characters unlocked on completion.
type Episode struct {
	ID        int       `json:"id"`
	Title     string    `json:"title"`
	CastIDs   []string  `json:"cast"`
	Objective Objective `json:"objective"`
	Unlocks   []string  `json:"unlocks,omitempty"`
}

// Registry holds the authored episode list.
type Registry struct {
	mu       sync.RWMutex
	episodes map[int]*Episode
}

func NewRegistry() *Registry {
	return &Registry{episodes: make(map[int]*Episode)}
}

func (r *Registry) LoadFromFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read episode file: %w", err)
	}
	return r.LoadFromJSON(raw)
}

func (r *Registry) LoadFromJSON(raw []byte) error {
	var episodes []*Episode
	if err := json.Unmarshal(raw, &episodes); err != nil {
		return fmt.Errorf("parse episodes: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ep := range episodes {
		if ep == nil || ep.ID <= 0 {
			continue
		}
		r.episodes[ep.ID] = ep
	}
	log.Printf("[Campaign] Loaded %d episodes", len(r.episodes))
	return nil
}

// Get returns an episode by id, or nil.
func (r *Registry) Get(id int) *Episode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.episodes[id]
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.episodes)
}

// IDs returns all episode ids in ascending order.
func (r *Registry) IDs() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int, 0, len(r.episodes))
	for id := range r.episodes {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
