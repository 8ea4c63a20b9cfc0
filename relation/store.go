package relation

import "sync"

// Store is the mutable pairwise value store between concrete characters.
// Every stored value lies in [MinValue,MaxValue] at all observable times;
// clamping happens on every write, never on read. Self pairs are never
// stored. A single logical owner issuing sequential calls is assumed; the
// mutex only guards against a concurrent host.
type Store struct {
	cfg Config

	mu     sync.Mutex
	values map[pairKey]int
	bias   *BiasTable
}

// NewStore creates an empty store for the given domain.
func NewStore(cfg Config) (*Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Store{
		cfg:    cfg,
		values: make(map[pairKey]int),
	}, nil
}

// Config returns the domain the store was created with.
func (s *Store) Config() Config { return s.cfg }

// Initialize clears all state and seeds every ordered pair of distinct roster
// members with clamp(base + bias). Nil roster entries and duplicate IDs are
// skipped silently; an empty roster leaves the store empty. The bias table
// (which may be nil, meaning "no modifiers") is remembered for lazy backfill
// and Reinitialize. Calling Initialize twice with the same arguments yields
// identical contents.
func (s *Store) Initialize(roster []*Identity, bias *BiasTable) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bias = bias
	s.values = make(map[pairKey]int, len(roster)*len(roster))

	members := dedupeRoster(roster)
	for _, from := range members {
		for _, to := range members {
			if from.ID == to.ID {
				continue
			}
			s.values[pairKey{from: from.ID, to: to.ID}] = s.seedValueLocked(from, to)
		}
	}
}

// Reinitialize is Initialize with a new roster and the previously configured
// bias table.
func (s *Store) Reinitialize(roster []*Identity) {
	s.mu.Lock()
	bias := s.bias
	s.mu.Unlock()
	s.Initialize(roster, bias)
}

// Get returns the stored value for (from,to), or the base value for any
// absent argument, self pair, or never-initialized pair. Never an error.
func (s *Store) Get(from, to *Identity) int {
	if from == nil || to == nil || from.ID == to.ID {
		return s.cfg.BaseValue
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[pairKey{from: from.ID, to: to.ID}]; ok {
		return v
	}
	return s.cfg.BaseValue
}

// Modify adds delta to the (from,to) value and clamps. Absent arguments and
// self pairs are a no-op. A pair not yet stored is first materialized with
// the same base+bias+clamp rule Initialize uses, so Modify is safe before or
// in place of Initialize. Saturation at the bounds is exact: MaxValue plus
// any positive delta stays MaxValue, MinValue plus any negative delta stays
// MinValue.
func (s *Store) Modify(from, to *Identity, delta int) {
	if from == nil || to == nil || from.ID == to.ID {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{from: from.ID, to: to.ID}
	cur, ok := s.values[key]
	if !ok {
		cur = s.seedValueLocked(from, to)
	}
	s.values[key] = s.cfg.clamp(cur + delta)
}

// Len returns the number of stored ordered pairs.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}

func (s *Store) seedValueLocked(from, to *Identity) int {
	return s.cfg.clamp(s.cfg.BaseValue + s.bias.Lookup(from.Species, to.Species))
}

// dedupeRoster drops nil entries and keeps the first occurrence of each ID.
func dedupeRoster(roster []*Identity) []*Identity {
	out := make([]*Identity, 0, len(roster))
	seen := make(map[uint64]struct{}, len(roster))
	for _, m := range roster {
		if m == nil {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	return out
}
