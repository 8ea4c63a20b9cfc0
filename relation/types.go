package relation

import "rapport-lite/species"

// Identity is an opaque reference to a character: a numeric ref plus the
// species tag used for bias lookup. Two identities denote the same character
// iff their IDs are equal. A nil *Identity models an absent argument.
type Identity struct {
	ID      uint64
	Species species.Species
}

type pairKey struct {
	from uint64
	to   uint64
}

// PairValue is one directed entry of a store projection.
type PairValue struct {
	FromID uint64 `json:"from_id"`
	ToID   uint64 `json:"to_id"`
	Value  int    `json:"value"`
}

// DefaultBiasEntries is the hand-authored cross-species table. Ordered pairs
// not listed here resolve to 0. Directed: (A,B) and (B,A) are authored
// independently even when they happen to match.
var DefaultBiasEntries = []BiasEntry{
	{From: species.Human, To: species.Elf, Modifier: 5},
	{From: species.Elf, To: species.Human, Modifier: 5},
	{From: species.Human, To: species.Dwarf, Modifier: 5},
	{From: species.Dwarf, To: species.Human, Modifier: 10},
	{From: species.Human, To: species.Orc, Modifier: -10},
	{From: species.Orc, To: species.Human, Modifier: -15},
	{From: species.Human, To: species.Demon, Modifier: -25},
	{From: species.Demon, To: species.Human, Modifier: -25},
	{From: species.Elf, To: species.Dwarf, Modifier: -10},
	{From: species.Dwarf, To: species.Elf, Modifier: -10},
	{From: species.Elf, To: species.Orc, Modifier: -20},
	{From: species.Orc, To: species.Elf, Modifier: -20},
	{From: species.Elf, To: species.Demon, Modifier: -30},
	{From: species.Demon, To: species.Elf, Modifier: -20},
	{From: species.Dwarf, To: species.Orc, Modifier: -25},
	{From: species.Orc, To: species.Dwarf, Modifier: -25},
	{From: species.Dwarf, To: species.Demon, Modifier: -20},
	{From: species.Demon, To: species.Dwarf, Modifier: -15},
	{From: species.Orc, To: species.Demon, Modifier: -5},
	{From: species.Demon, To: species.Orc, Modifier: -5},
	{From: species.Beastkin, To: species.Human, Modifier: -5},
	{From: species.Human, To: species.Beastkin, Modifier: -5},
	{From: species.Beastkin, To: species.Elf, Modifier: 10},
	{From: species.Elf, To: species.Beastkin, Modifier: 10},
	{From: species.Beastkin, To: species.Demon, Modifier: -20},
	{From: species.Demon, To: species.Beastkin, Modifier: -10},
}

// DefaultTiers covers the full [1,100] domain in ascending floors.
var DefaultTiers = []Tier{
	{Floor: 1, Label: "Hated"},
	{Floor: 15, Label: "Hostile"},
	{Floor: 35, Label: "Wary"},
	{Floor: 45, Label: "Neutral"},
	{Floor: 60, Label: "Friendly"},
	{Floor: 80, Label: "Trusted"},
	{Floor: 95, Label: "Devoted"},
}
