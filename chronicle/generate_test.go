package chronicle

import (
	"errors"
	"reflect"
	"testing"
)

func tavernSpec() SceneSpec {
	return SceneSpec{
		Title: "tavern brawl",
		Members: []MemberSpec{
			{ID: "mira", Species: "Human"},
			{ID: "thalen", Species: "Elf"},
			{ID: "vex", Species: "Demon"},
		},
		Bias: []BiasSpec{
			{From: "Human", To: "Elf", Modifier: 5},
			{From: "Elf", To: "Human", Modifier: 5},
			{From: "Human", To: "Demon", Modifier: -25},
			{From: "Demon", To: "Human", Modifier: -25},
		},
		Tiers: []TierSpec{
			{Floor: 0, Label: "Hostile"},
			{Floor: 40, Label: "Neutral"},
			{Floor: 70, Label: "Friendly"},
		},
		Steps: []AdjustmentSpec{
			{From: "mira", To: "thalen", Delta: 20},
			{From: "vex", To: "mira", Delta: -30},
			{From: "mira", To: "thalen", Delta: 10},
		},
	}
}

func TestGenerate_TavernScene(t *testing.T) {
	tape, err := Generate(tavernSpec())
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}
	if tape.TapeID == "" {
		t.Fatal("expected a tape id")
	}
	if len(tape.Events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(tape.Events))
	}

	init := tape.Events[0]
	if init.Type != EventTypeSceneInit || init.Seq != 1 || init.Init == nil {
		t.Fatalf("bad init event: %+v", init)
	}
	if len(init.Init.Members) != 3 {
		t.Fatalf("expected 3 member states, got %d", len(init.Init.Members))
	}
	if len(init.Init.Pairs) != 6 {
		t.Fatalf("expected 6 seeded pairs, got %d", len(init.Init.Pairs))
	}
	for _, p := range init.Init.Pairs {
		if p.From == "mira" && p.To == "thalen" && p.Value != 55 {
			t.Fatalf("mira->thalen seeded %d, want 55", p.Value)
		}
		if p.From == "vex" && p.To == "mira" {
			if p.Value != 25 {
				t.Fatalf("vex->mira seeded %d, want 25", p.Value)
			}
			if p.Tier != "Hostile" {
				t.Fatalf("vex->mira tier %q, want Hostile", p.Tier)
			}
		}
	}

	first := tape.Events[1].Adjust
	if first == nil || first.Before != 55 || first.After != 75 {
		t.Fatalf("step 1 outcome: %+v", first)
	}
	if !first.TierChanged || first.TierBefore != "Neutral" || first.TierAfter != "Friendly" {
		t.Fatalf("step 1 tiers: %+v", first)
	}

	second := tape.Events[2].Adjust
	if second == nil || second.Before != 25 || second.After != 1 {
		t.Fatalf("step 2 outcome: %+v", second)
	}
	if second.TierChanged {
		t.Fatalf("step 2 stayed Hostile, got %+v", second)
	}

	third := tape.Events[3].Adjust
	if third == nil || third.Before != 75 || third.After != 85 || third.TierChanged {
		t.Fatalf("step 3 outcome: %+v", third)
	}
}

func TestGenerate_DeterministicEvents(t *testing.T) {
	a, err := Generate(tavernSpec())
	if err != nil {
		t.Fatalf("first Generate err: %v", err)
	}
	b, err := Generate(tavernSpec())
	if err != nil {
		t.Fatalf("second Generate err: %v", err)
	}
	if a.TapeID == b.TapeID {
		t.Fatal("tape ids must be unique per run")
	}
	if !reflect.DeepEqual(a.Events, b.Events) {
		t.Fatal("events differ between identical runs")
	}
}

func TestGenerate_DefaultTiersWhenUnauthored(t *testing.T) {
	spec := tavernSpec()
	spec.Tiers = nil
	tape, err := Generate(spec)
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}
	for _, p := range tape.Events[0].Init.Pairs {
		if p.From == "mira" && p.To == "thalen" && p.Tier != "Neutral" {
			t.Fatalf("55 classified %q under default tiers, want Neutral", p.Tier)
		}
	}
}

func TestGenerate_RejectsBadSpecs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*SceneSpec)
		step   int32
		reason string
	}{
		{"too few members", func(s *SceneSpec) { s.Members = s.Members[:1] }, -1, "invalid_members"},
		{"duplicate member", func(s *SceneSpec) { s.Members = append(s.Members, MemberSpec{ID: "mira", Species: "Orc"}) }, -1, "duplicate_member"},
		{"unknown species", func(s *SceneSpec) { s.Members[0].Species = "gnome" }, -1, "invalid_species"},
		{"unknown step member", func(s *SceneSpec) { s.Steps[1].From = "nobody" }, 1, "unknown_member"},
		{"self adjustment", func(s *SceneSpec) { s.Steps[2].To = "mira" }, 2, "self_adjustment"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spec := tavernSpec()
			tc.mutate(&spec)
			_, err := Generate(spec)
			var cerr *ChronicleError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected ChronicleError, got %v", err)
			}
			if cerr.StepIndex != tc.step || cerr.Reason != tc.reason {
				t.Fatalf("got %+v, want step=%d reason=%s", cerr, tc.step, tc.reason)
			}
		})
	}
}

func TestWireTape_RoundTrip(t *testing.T) {
	tape, err := Generate(tavernSpec())
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}
	wire, err := ToWireTape(tape)
	if err != nil {
		t.Fatalf("ToWireTape err: %v", err)
	}
	if len(wire.Events) != len(tape.Events) {
		t.Fatalf("wire event count %d, want %d", len(wire.Events), len(tape.Events))
	}
	back, err := FromWireTape(wire)
	if err != nil {
		t.Fatalf("FromWireTape err: %v", err)
	}
	if !reflect.DeepEqual(back, tape) {
		t.Fatal("wire round trip changed the tape")
	}
}
