package campaign

import (
	"context"
	"errors"
	"testing"
)

func TestMemory_ProgressStartsAtEpisodeOne(t *testing.T) {
	s := NewMemoryService()
	p, err := s.GetProgress(context.Background(), 42, 5)
	if err != nil {
		t.Fatalf("GetProgress err: %v", err)
	}
	if p.HighestCompletedEpisode != 0 {
		t.Fatalf("expected no completed episodes, got %d", p.HighestCompletedEpisode)
	}
	if p.HighestUnlockedEpisode != 1 {
		t.Fatalf("expected episode 1 unlocked, got %d", p.HighestUnlockedEpisode)
	}
}

func TestMemory_CompleteUnlocksNext(t *testing.T) {
	s := NewMemoryService()
	ctx := context.Background()

	p, err := s.CompleteEpisode(ctx, 42, 1, []string{"vex"}, 5)
	if err != nil {
		t.Fatalf("CompleteEpisode err: %v", err)
	}
	if p.HighestCompletedEpisode != 1 || p.HighestUnlockedEpisode != 2 {
		t.Fatalf("unexpected progress: %+v", p)
	}
	if len(p.UnlockedCharacters) != 1 || p.UnlockedCharacters[0] != "vex" {
		t.Fatalf("unexpected unlocks: %v", p.UnlockedCharacters)
	}

	// Completing the same episode again must not regress anything.
	p, err = s.CompleteEpisode(ctx, 42, 1, nil, 5)
	if err != nil {
		t.Fatalf("CompleteEpisode repeat err: %v", err)
	}
	if len(p.CompletedEpisodes) != 1 || p.UnlockedCharacters[0] != "vex" {
		t.Fatalf("repeat completion mutated progress: %+v", p)
	}
}

func TestMemory_LockedEpisodeRejected(t *testing.T) {
	s := NewMemoryService()
	if _, err := s.CompleteEpisode(context.Background(), 42, 3, nil, 5); !errors.Is(err, ErrEpisodeLocked) {
		t.Fatalf("expected ErrEpisodeLocked, got %v", err)
	}
}

func TestMemory_UnlockedCapsAtEpisodeCount(t *testing.T) {
	s := NewMemoryService()
	ctx := context.Background()
	for id := 1; id <= 3; id++ {
		if _, err := s.CompleteEpisode(ctx, 42, id, nil, 3); err != nil {
			t.Fatalf("CompleteEpisode %d err: %v", id, err)
		}
	}
	p, err := s.GetProgress(ctx, 42, 3)
	if err != nil {
		t.Fatalf("GetProgress err: %v", err)
	}
	if p.HighestUnlockedEpisode != 3 {
		t.Fatalf("unlocked should cap at 3, got %d", p.HighestUnlockedEpisode)
	}
}

func TestSQLite_ProgressPersistsAcrossCalls(t *testing.T) {
	s, err := NewSQLiteService(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteService err: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	if _, err := s.CompleteEpisode(ctx, 7, 1, []string{"thalen"}, 4); err != nil {
		t.Fatalf("CompleteEpisode err: %v", err)
	}
	p, err := s.GetProgress(ctx, 7, 4)
	if err != nil {
		t.Fatalf("GetProgress err: %v", err)
	}
	if p.HighestCompletedEpisode != 1 || p.HighestUnlockedEpisode != 2 {
		t.Fatalf("unexpected progress: %+v", p)
	}
	if len(p.UnlockedCharacters) != 1 || p.UnlockedCharacters[0] != "thalen" {
		t.Fatalf("unexpected unlocks: %v", p.UnlockedCharacters)
	}

	if _, err := s.CompleteEpisode(ctx, 7, 4, nil, 4); !errors.Is(err, ErrEpisodeLocked) {
		t.Fatalf("expected ErrEpisodeLocked, got %v", err)
	}
}
