package scene

import (
	"encoding/json"
	"sync"
	"testing"

	"rapport-lite/apps/server/internal/codec"
	"rapport-lite/relation/cast"
)

type frameRecorder struct {
	mu     sync.Mutex
	frames map[uint64][]codec.ServerEnvelope
}

func newFrameRecorder() *frameRecorder {
	return &frameRecorder{frames: make(map[uint64][]codec.ServerEnvelope)}
}

func (r *frameRecorder) broadcast(userID uint64, data []byte) {
	var env codec.ServerEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}
	r.mu.Lock()
	r.frames[userID] = append(r.frames[userID], env)
	r.mu.Unlock()
}

func (r *frameRecorder) lastOfType(userID uint64, msgType string) *codec.ServerEnvelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	frames := r.frames[userID]
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i].Type == msgType {
			env := frames[i]
			return &env
		}
	}
	return nil
}

func testRegistry(t *testing.T) *cast.Registry {
	t.Helper()
	registry := cast.NewRegistry()
	err := registry.LoadFromJSON([]byte(`[
		{"id": "mira", "name": "Mira", "species": "Human", "role": 1},
		{"id": "thalen", "name": "Thalen", "species": "Elf", "role": 1},
		{"id": "vex", "name": "Vex", "species": "Demon", "role": 2}
	]`))
	if err != nil {
		t.Fatalf("LoadFromJSON err: %v", err)
	}
	return registry
}

func testScene(t *testing.T, rec *frameRecorder, initialCast ...string) *Scene {
	t.Helper()
	s, err := New("scene_test", SceneConfig{MaxMembers: 4}, testRegistry(t), rec.broadcast, nil, initialCast)
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	t.Cleanup(s.Stop)
	return s
}

func memberRefs(t *testing.T, env *codec.ServerEnvelope) map[string]uint64 {
	t.Helper()
	var snapshot codec.SceneSnapshot
	if err := json.Unmarshal(env.Payload, &snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	refs := make(map[string]uint64, len(snapshot.Members))
	for _, m := range snapshot.Members {
		refs[m.CharacterID] = m.Ref
	}
	return refs
}

func TestScene_SnapshotSeedsInitialCast(t *testing.T) {
	rec := newFrameRecorder()
	s := testScene(t, rec, "mira", "thalen")

	if err := s.SubmitEvent(Event{Type: EventEnterScene, UserID: 1, Name: "alice"}); err != nil {
		t.Fatalf("enter err: %v", err)
	}

	env := rec.lastOfType(1, codec.ServerSceneSnapshot)
	if env == nil {
		t.Fatal("expected a scene snapshot")
	}
	var snapshot codec.SceneSnapshot
	if err := json.Unmarshal(env.Payload, &snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snapshot.Members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(snapshot.Members))
	}
	if len(snapshot.Pairs) != 2 {
		t.Fatalf("expected 2 directed pairs, got %d", len(snapshot.Pairs))
	}
	// Human->Elf carries a +5 default modifier over the base of 50.
	for _, pair := range snapshot.Pairs {
		if pair.Value != 55 {
			t.Fatalf("expected seeded value 55, got %+v", pair)
		}
		if pair.Tier != "Neutral" {
			t.Fatalf("expected Neutral, got %q", pair.Tier)
		}
	}
}

func TestScene_AdjustBroadcastsPairUpdate(t *testing.T) {
	rec := newFrameRecorder()
	s := testScene(t, rec, "mira", "thalen")

	if err := s.SubmitEvent(Event{Type: EventEnterScene, UserID: 1, Name: "alice"}); err != nil {
		t.Fatalf("enter err: %v", err)
	}
	refs := memberRefs(t, rec.lastOfType(1, codec.ServerSceneSnapshot))

	err := s.SubmitEvent(Event{
		Type:    EventAdjust,
		UserID:  1,
		FromRef: refs["mira"],
		ToRef:   refs["thalen"],
		Delta:   10,
	})
	if err != nil {
		t.Fatalf("adjust err: %v", err)
	}

	env := rec.lastOfType(1, codec.ServerPairUpdate)
	if env == nil {
		t.Fatal("expected a pair update")
	}
	var update codec.PairUpdate
	if err := json.Unmarshal(env.Payload, &update); err != nil {
		t.Fatalf("decode update: %v", err)
	}
	if update.Before != 55 || update.After != 65 {
		t.Fatalf("expected 55 -> 65, got %+v", update)
	}
	if update.TierBefore != "Neutral" || update.TierAfter != "Friendly" || !update.TierChanged {
		t.Fatalf("expected Neutral -> Friendly tier change, got %+v", update)
	}
}

func TestScene_AdjustRejectsSelfAndUnknownRefs(t *testing.T) {
	rec := newFrameRecorder()
	s := testScene(t, rec, "mira", "thalen")

	if err := s.SubmitEvent(Event{Type: EventEnterScene, UserID: 1}); err != nil {
		t.Fatalf("enter err: %v", err)
	}
	refs := memberRefs(t, rec.lastOfType(1, codec.ServerSceneSnapshot))

	err := s.SubmitEvent(Event{Type: EventAdjust, FromRef: refs["mira"], ToRef: refs["mira"], Delta: 5})
	if err == nil {
		t.Fatal("expected self adjustment to fail")
	}
	err = s.SubmitEvent(Event{Type: EventAdjust, FromRef: refs["mira"], ToRef: 12345, Delta: 5})
	if err == nil {
		t.Fatal("expected unknown ref to fail")
	}
}

func TestScene_SpawnPreservesExistingValues(t *testing.T) {
	rec := newFrameRecorder()
	s := testScene(t, rec, "mira", "thalen")

	if err := s.SubmitEvent(Event{Type: EventEnterScene, UserID: 1}); err != nil {
		t.Fatalf("enter err: %v", err)
	}
	refs := memberRefs(t, rec.lastOfType(1, codec.ServerSceneSnapshot))

	if err := s.SubmitEvent(Event{Type: EventAdjust, FromRef: refs["mira"], ToRef: refs["thalen"], Delta: 20}); err != nil {
		t.Fatalf("adjust err: %v", err)
	}
	if err := s.SubmitEvent(Event{Type: EventSpawn, CharacterID: "vex"}); err != nil {
		t.Fatalf("spawn err: %v", err)
	}

	update := rec.lastOfType(1, codec.ServerMemberUpdate)
	if update == nil {
		t.Fatal("expected a member update")
	}
	var mu codec.MemberUpdate
	if err := json.Unmarshal(update.Payload, &mu); err != nil {
		t.Fatalf("decode member update: %v", err)
	}
	if mu.CharacterID != "vex" || !mu.Present {
		t.Fatalf("unexpected member update: %+v", mu)
	}

	// The adjusted pair must survive the spawn untouched.
	if err := s.SubmitEvent(Event{Type: EventGetPair, UserID: 1, FromRef: refs["mira"], ToRef: refs["thalen"]}); err != nil {
		t.Fatalf("getPair err: %v", err)
	}
	env := rec.lastOfType(1, codec.ServerPairValue)
	if env == nil {
		t.Fatal("expected a pair value")
	}
	var pv codec.PairValue
	if err := json.Unmarshal(env.Payload, &pv); err != nil {
		t.Fatalf("decode pair value: %v", err)
	}
	if pv.Value != 75 {
		t.Fatalf("expected 75 after spawn, got %+v", pv)
	}
}

func TestScene_ResetReseedsPairs(t *testing.T) {
	rec := newFrameRecorder()
	s := testScene(t, rec, "mira", "thalen")

	if err := s.SubmitEvent(Event{Type: EventEnterScene, UserID: 1}); err != nil {
		t.Fatalf("enter err: %v", err)
	}
	refs := memberRefs(t, rec.lastOfType(1, codec.ServerSceneSnapshot))

	if err := s.SubmitEvent(Event{Type: EventAdjust, FromRef: refs["mira"], ToRef: refs["thalen"], Delta: -40}); err != nil {
		t.Fatalf("adjust err: %v", err)
	}
	if err := s.SubmitEvent(Event{Type: EventReset}); err != nil {
		t.Fatalf("reset err: %v", err)
	}

	env := rec.lastOfType(1, codec.ServerSceneSnapshot)
	if env == nil {
		t.Fatal("expected a snapshot after reset")
	}
	var snapshot codec.SceneSnapshot
	if err := json.Unmarshal(env.Payload, &snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	for _, pair := range snapshot.Pairs {
		if pair.Value != 55 {
			t.Fatalf("expected reseeded value 55, got %+v", pair)
		}
	}
}

func TestScene_PairUpdateHookFires(t *testing.T) {
	rec := newFrameRecorder()
	s := testScene(t, rec, "mira", "thalen")

	hookCh := make(chan PairUpdateInfo, 1)
	s.AddPairUpdateHook(func(info PairUpdateInfo) {
		hookCh <- info
	})

	if err := s.SubmitEvent(Event{Type: EventEnterScene, UserID: 1}); err != nil {
		t.Fatalf("enter err: %v", err)
	}
	refs := memberRefs(t, rec.lastOfType(1, codec.ServerSceneSnapshot))
	if err := s.SubmitEvent(Event{Type: EventAdjust, FromRef: refs["mira"], ToRef: refs["thalen"], Delta: 10}); err != nil {
		t.Fatalf("adjust err: %v", err)
	}

	info := <-hookCh
	if info.FromCharacterID != "mira" || info.ToCharacterID != "thalen" {
		t.Fatalf("unexpected hook info: %+v", info)
	}
	if info.Update.After != 65 {
		t.Fatalf("expected value 65 in hook, got %+v", info.Update)
	}
}

func TestScene_SceneFullRejectsSpawn(t *testing.T) {
	rec := newFrameRecorder()
	s, err := New("scene_full", SceneConfig{MaxMembers: 2}, testRegistry(t), rec.broadcast, nil, []string{"mira", "thalen"})
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	t.Cleanup(s.Stop)

	if err := s.SubmitEvent(Event{Type: EventSpawn, CharacterID: "vex"}); err == nil {
		t.Fatal("expected spawn into a full scene to fail")
	}
}
