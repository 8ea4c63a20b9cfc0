package chronicle

import (
	"github.com/google/uuid"

	"rapport-lite/relation"
)

// TapeVersion is bumped whenever the event encoding changes shape.
const TapeVersion = 1

// Generate runs a scene spec against a fresh relation store and records the
// observable outcome of every step. The same spec always yields the same
// events; only the tape id differs between runs.
func Generate(spec SceneSpec) (*Tape, error) {
	norm, err := normalizeSpec(spec)
	if err != nil {
		return nil, err
	}

	store, err := relation.NewStore(relation.DefaultConfig())
	if err != nil {
		return nil, err
	}

	var bias *relation.BiasTable
	if len(norm.bias) > 0 {
		bias = relation.NewBiasTable(norm.bias)
	}

	tiers := norm.tiers
	if len(tiers) == 0 {
		tiers = relation.DefaultTiers
	}
	classifier := relation.NewClassifier(tiers)

	identities := make(map[uint64]*relation.Identity, len(norm.members))
	roster := make([]*relation.Identity, 0, len(norm.members))
	idByRef := make(map[uint64]string, len(norm.members))
	for _, m := range norm.members {
		id := &relation.Identity{ID: m.ref, Species: m.sp}
		identities[m.ref] = id
		roster = append(roster, id)
		idByRef[m.ref] = m.id
	}
	store.Initialize(roster, bias)

	tape := &Tape{
		TapeVersion: TapeVersion,
		TapeID:      uuid.NewString(),
		Title:       norm.title,
	}

	var seq uint64 = 1
	tape.Events = append(tape.Events, Event{
		Type: EventTypeSceneInit,
		Seq:  seq,
		Init: buildInitEvent(norm, store, classifier, idByRef),
	})

	for _, step := range norm.steps {
		from := identities[step.fromRef]
		to := identities[step.toRef]

		before := store.Get(from, to)
		store.Modify(from, to, step.delta)
		after := store.Get(from, to)

		tierBefore := classifier.Classify(before)
		tierAfter := classifier.Classify(after)

		seq++
		tape.Events = append(tape.Events, Event{
			Type: EventTypeAdjustment,
			Seq:  seq,
			Adjust: &AdjustEvent{
				From:        step.fromID,
				To:          step.toID,
				Delta:       step.delta,
				Before:      before,
				After:       after,
				TierBefore:  tierBefore,
				TierAfter:   tierAfter,
				TierChanged: tierBefore != tierAfter,
			},
		})
	}
	return tape, nil
}

func buildInitEvent(norm normalizedSpec, store *relation.Store, classifier *relation.Classifier, idByRef map[uint64]string) *InitEvent {
	init := &InitEvent{}
	for _, m := range norm.members {
		init.Members = append(init.Members, MemberState{
			ID:      m.id,
			Ref:     m.ref,
			Species: m.sp.String(),
		})
	}

	// Snapshot is already ordered by (from, to), which keeps the init
	// event stable across runs.
	for _, p := range store.Snapshot() {
		init.Pairs = append(init.Pairs, PairState{
			From:  idByRef[p.FromID],
			To:    idByRef[p.ToID],
			Value: p.Value,
			Tier:  classifier.Classify(p.Value),
		})
	}
	return init
}
