package relation

import "rapport-lite/species"

// SelfBiasModifier is applied to same-species pairs by GenerateTable only.
// The store never consults same-species bias: self pairs are never stored.
const SelfBiasModifier = 15

// BiasEntry is one directed per-species modifier.
type BiasEntry struct {
	From     species.Species `json:"from"`
	To       species.Species `json:"to"`
	Modifier int             `json:"modifier"`
}

type biasKey struct {
	from species.Species
	to   species.Species
}

// BiasTable is an immutable directed modifier lookup. The zero value and the
// nil pointer both behave as an empty table.
type BiasTable struct {
	entries map[biasKey]int
}

// NewBiasTable builds a table from entries. At most one modifier is kept per
// ordered pair; a later entry overwrites an earlier one.
func NewBiasTable(entries []BiasEntry) *BiasTable {
	t := &BiasTable{entries: make(map[biasKey]int, len(entries))}
	for _, e := range entries {
		t.entries[biasKey{from: e.From, to: e.To}] = e.Modifier
	}
	return t
}

// Lookup returns the modifier for the exact ordered pair, or 0 when no entry
// matches. Same-species pairs carry no special default here. Pure and total.
func (t *BiasTable) Lookup(from, to species.Species) int {
	if t == nil || t.entries == nil {
		return 0
	}
	return t.entries[biasKey{from: from, to: to}]
}

// Len returns the number of distinct ordered pairs with an entry.
func (t *BiasTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Entries returns a copy of the table contents in unspecified order.
func (t *BiasTable) Entries() []BiasEntry {
	if t == nil {
		return nil
	}
	out := make([]BiasEntry, 0, len(t.entries))
	for k, v := range t.entries {
		out = append(out, BiasEntry{From: k.from, To: k.to, Modifier: v})
	}
	return out
}

// GenerateTable is an authoring aid: it expands a hand-authored cross-species
// list into one entry per ordered pair over the closed species set. Self pairs
// get SelfBiasModifier, unauthored cross pairs get 0. The runtime BiasTable
// contract does not depend on how its entries were produced.
func GenerateTable(cross []BiasEntry) []BiasEntry {
	authored := NewBiasTable(cross)
	out := make([]BiasEntry, 0, species.SpeciesCount*species.SpeciesCount)
	for _, from := range species.AllSpecies {
		for _, to := range species.AllSpecies {
			mod := authored.Lookup(from, to)
			if from == to {
				mod = SelfBiasModifier
			}
			out = append(out, BiasEntry{From: from, To: to, Modifier: mod})
		}
	}
	return out
}
