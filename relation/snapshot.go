package relation

import "sort"

// Snapshot returns every stored ordered pair, sorted by (FromID, ToID) so
// projections are stable for host layers and tests.
func (s *Store) Snapshot() []PairValue {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]PairValue, 0, len(s.values))
	for k, v := range s.values {
		out = append(out, PairValue{FromID: k.from, ToID: k.to, Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FromID != out[j].FromID {
			return out[i].FromID < out[j].FromID
		}
		return out[i].ToID < out[j].ToID
	})
	return out
}
