package relation

import (
	"testing"

	"rapport-lite/species"
)

func exampleBias() *BiasTable {
	return NewBiasTable([]BiasEntry{
		{From: species.Human, To: species.Elf, Modifier: 5},
		{From: species.Elf, To: species.Human, Modifier: 5},
		{From: species.Human, To: species.Demon, Modifier: -25},
		{From: species.Demon, To: species.Human, Modifier: -25},
	})
}

func mustStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(DefaultConfig())
	if err != nil {
		t.Fatalf("NewStore err: %v", err)
	}
	return s
}

func TestInitialize_SeedsBiasedPairs(t *testing.T) {
	s := mustStore(t)
	a := &Identity{ID: 1, Species: species.Human}
	b := &Identity{ID: 2, Species: species.Elf}
	s.Initialize([]*Identity{a, b}, exampleBias())

	if got := s.Get(a, b); got != 55 {
		t.Fatalf("Get(human,elf) = %d, want 55", got)
	}
	if got := s.Get(b, a); got != 55 {
		t.Fatalf("Get(elf,human) = %d, want 55", got)
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 stored pairs, got %d", s.Len())
	}
}

func TestInitialize_NegativeBias(t *testing.T) {
	s := mustStore(t)
	a := &Identity{ID: 1, Species: species.Human}
	b := &Identity{ID: 2, Species: species.Demon}
	s.Initialize([]*Identity{a, b}, exampleBias())

	if got := s.Get(a, b); got != 25 {
		t.Fatalf("Get(human,demon) = %d, want 25", got)
	}
	if got := s.Get(b, a); got != 25 {
		t.Fatalf("Get(demon,human) = %d, want 25", got)
	}
}

func TestInitialize_WithoutBiasTable(t *testing.T) {
	s := mustStore(t)
	a := &Identity{ID: 1, Species: species.Human}
	b := &Identity{ID: 2, Species: species.Demon}
	s.Initialize([]*Identity{a, b}, nil)

	if got := s.Get(a, b); got != 50 {
		t.Fatalf("expected base value without bias, got %d", got)
	}
}

func TestInitialize_EmptyRosterLeavesStoreEmpty(t *testing.T) {
	s := mustStore(t)
	s.Initialize(nil, exampleBias())
	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d pairs", s.Len())
	}
}

func TestInitialize_SkipsNilAndDuplicateMembers(t *testing.T) {
	s := mustStore(t)
	a := &Identity{ID: 1, Species: species.Human}
	b := &Identity{ID: 2, Species: species.Elf}
	dupA := &Identity{ID: 1, Species: species.Demon}
	s.Initialize([]*Identity{a, nil, b, dupA}, exampleBias())

	// The duplicate ID is skipped; the first occurrence (Human) decides bias.
	if s.Len() != 2 {
		t.Fatalf("expected 2 stored pairs, got %d", s.Len())
	}
	if got := s.Get(a, b); got != 55 {
		t.Fatalf("Get(a,b) = %d, want 55", got)
	}
}

func TestInitialize_Idempotent(t *testing.T) {
	s := mustStore(t)
	roster := []*Identity{
		{ID: 1, Species: species.Human},
		{ID: 2, Species: species.Elf},
		{ID: 3, Species: species.Demon},
	}
	s.Initialize(roster, exampleBias())
	first := s.Snapshot()

	s.Initialize(roster, exampleBias())
	second := s.Snapshot()

	if len(first) != len(second) {
		t.Fatalf("snapshot lengths differ: %d != %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("pair %d differs: %+v != %+v", i, first[i], second[i])
		}
	}
}

func TestInitialize_DiscardsModifications(t *testing.T) {
	s := mustStore(t)
	a := &Identity{ID: 1, Species: species.Human}
	b := &Identity{ID: 2, Species: species.Elf}
	s.Initialize([]*Identity{a, b}, exampleBias())
	s.Modify(a, b, 20)
	s.Initialize([]*Identity{a, b}, exampleBias())

	if got := s.Get(a, b); got != 55 {
		t.Fatalf("expected reseeded value 55 after re-Initialize, got %d", got)
	}
}

func TestGet_DefaultsForAbsentAndSelf(t *testing.T) {
	s := mustStore(t)
	a := &Identity{ID: 1, Species: species.Human}
	b := &Identity{ID: 2, Species: species.Elf}

	if got := s.Get(a, a); got != 50 {
		t.Fatalf("Get(x,x) = %d, want 50", got)
	}
	if got := s.Get(nil, b); got != 50 {
		t.Fatalf("Get(nil,b) = %d, want 50", got)
	}
	if got := s.Get(a, nil); got != 50 {
		t.Fatalf("Get(a,nil) = %d, want 50", got)
	}
	// never-initialized pair
	if got := s.Get(a, b); got != 50 {
		t.Fatalf("Get on uninitialized pair = %d, want 50", got)
	}
}

func TestModify_SelfAndAbsentAreNoOps(t *testing.T) {
	s := mustStore(t)
	a := &Identity{ID: 1, Species: species.Human}
	s.Modify(a, a, 40)
	s.Modify(nil, a, 40)
	s.Modify(a, nil, 40)
	if s.Len() != 0 {
		t.Fatalf("expected store unchanged, got %d pairs", s.Len())
	}
	if got := s.Get(a, a); got != 50 {
		t.Fatalf("self affinity must stay at base, got %d", got)
	}
}

func TestModify_LazyBackfillMatchesInitialize(t *testing.T) {
	s := mustStore(t)
	a := &Identity{ID: 1, Species: species.Human}
	b := &Identity{ID: 2, Species: species.Demon}
	s.Initialize(nil, exampleBias())

	// No pair stored yet: Modify must materialize with base+bias first.
	s.Modify(a, b, 10)
	if got := s.Get(a, b); got != 35 {
		t.Fatalf("expected 50-25+10=35, got %d", got)
	}
}

func TestModify_ClampsAtLowerBound(t *testing.T) {
	s := mustStore(t)
	a := &Identity{ID: 1, Species: species.Human}
	b := &Identity{ID: 2, Species: species.Demon}
	s.Initialize([]*Identity{a, b}, exampleBias())

	s.Modify(a, b, -30) // 25 - 30 saturates at 1
	if got := s.Get(a, b); got != 1 {
		t.Fatalf("expected clamp to 1, got %d", got)
	}
	s.Modify(a, b, -1000)
	if got := s.Get(a, b); got != 1 {
		t.Fatalf("expected saturation at 1, got %d", got)
	}
}

func TestModify_ClampsAtUpperBound(t *testing.T) {
	s := mustStore(t)
	a := &Identity{ID: 1, Species: species.Human}
	b := &Identity{ID: 2, Species: species.Demon}
	s.Initialize([]*Identity{a, b}, exampleBias())
	s.Modify(a, b, -1000) // pin to 1

	s.Modify(a, b, 90)
	if got := s.Get(a, b); got != 91 {
		t.Fatalf("expected 1+90=91, got %d", got)
	}
	s.Modify(a, b, 90)
	if got := s.Get(a, b); got != 100 {
		t.Fatalf("expected clamp to 100, got %d", got)
	}
	s.Modify(a, b, 1)
	if got := s.Get(a, b); got != 100 {
		t.Fatalf("expected saturation at 100, got %d", got)
	}
}

func TestStore_ValuesStayInBounds(t *testing.T) {
	s := mustStore(t)
	roster := []*Identity{
		{ID: 1, Species: species.Human},
		{ID: 2, Species: species.Elf},
		{ID: 3, Species: species.Demon},
		{ID: 4, Species: species.Orc},
	}
	s.Initialize(roster, NewBiasTable(DefaultBiasEntries))

	deltas := []int{-200, 73, -5, 999, -1, 0, 44, -300}
	for i, from := range roster {
		for j, to := range roster {
			s.Modify(from, to, deltas[(i*len(roster)+j)%len(deltas)])
		}
	}

	for _, pv := range s.Snapshot() {
		if pv.Value < 1 || pv.Value > 100 {
			t.Fatalf("pair (%d,%d) out of bounds: %d", pv.FromID, pv.ToID, pv.Value)
		}
		if pv.FromID == pv.ToID {
			t.Fatalf("self pair stored: %d", pv.FromID)
		}
	}
}

func TestReinitialize_KeepsConfiguredBias(t *testing.T) {
	s := mustStore(t)
	a := &Identity{ID: 1, Species: species.Human}
	b := &Identity{ID: 2, Species: species.Elf}
	c := &Identity{ID: 3, Species: species.Demon}
	s.Initialize([]*Identity{a, b}, exampleBias())

	s.Reinitialize([]*Identity{a, c})
	if got := s.Get(a, c); got != 25 {
		t.Fatalf("Reinitialize must reuse the bias table: got %d, want 25", got)
	}
	if got := s.Get(a, b); got != 50 {
		t.Fatalf("pair outside the new roster must fall back to base, got %d", got)
	}
}

func TestNewStore_RejectsInvalidConfig(t *testing.T) {
	cases := []Config{
		{BaseValue: 50, MinValue: -1, MaxValue: 100},
		{BaseValue: 50, MinValue: 60, MaxValue: 40},
		{BaseValue: 200, MinValue: 1, MaxValue: 100},
	}
	for i, cfg := range cases {
		if _, err := NewStore(cfg); err == nil {
			t.Fatalf("case %d: expected config error", i)
		}
	}
}
