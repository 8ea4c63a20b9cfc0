package stage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"rapport-lite/apps/server/internal/campaign"
	"rapport-lite/apps/server/internal/codec"
	"rapport-lite/apps/server/internal/scene"
)

type episodeSession struct {
	mu sync.Mutex

	sceneID   string
	userID    uint64
	episodeID int
	episode   *campaign.Episode

	adjustments int
	completed   bool

	broadcastFn func(userID uint64, data []byte)
}

// StartEpisode creates a scene configured for a specific campaign episode.
// Returns the scene and episode definition.
func (s *Stage) StartEpisode(
	userID uint64,
	episodeID int,
	broadcastFn func(userID uint64, data []byte),
) (*scene.Scene, *campaign.Episode, error) {
	if s.episodeRegistry == nil {
		return nil, nil, fmt.Errorf("campaign mode not available (no episode registry)")
	}

	episode := s.episodeRegistry.Get(episodeID)
	if episode == nil {
		return nil, nil, fmt.Errorf("episode %d not found", episodeID)
	}
	episodeCount := s.episodeRegistry.Count()

	progress, err := s.GetCampaignProgress(userID)
	if err != nil {
		return nil, nil, fmt.Errorf("load campaign progress: %w", err)
	}
	if episodeID > progress.HighestUnlockedEpisode {
		return nil, nil, fmt.Errorf(
			"episode %d is locked (highest unlocked episode: %d)",
			episodeID,
			progress.HighestUnlockedEpisode,
		)
	}

	// Validate that all cast members exist
	for _, characterID := range episode.CastIDs {
		if s.registry.Get(characterID) == nil {
			return nil, nil, fmt.Errorf("character %q not found for episode %d", characterID, episodeID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	sceneID := fmt.Sprintf("episode_e%d_%d", episodeID, s.nextID)

	cfg := s.defaultConfig
	cfg.EpisodeID = episodeID
	if len(episode.CastIDs) > cfg.MaxMembers {
		cfg.MaxMembers = len(episode.CastIDs)
	}

	sc, err := scene.New(sceneID, cfg, s.registry, broadcastFn, s.archiveService, episode.CastIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("create episode scene: %w", err)
	}
	s.scenes[sceneID] = sc

	log.Printf("[Stage] Episode %d (%s) started: scene=%s, cast=%d",
		episodeID, episode.Title, sceneID, len(episode.CastIDs))

	session := &episodeSession{
		sceneID:     sceneID,
		userID:      userID,
		episodeID:   episodeID,
		episode:     episode,
		broadcastFn: broadcastFn,
	}
	s.episodeSessions[sceneID] = session
	sc.AddPairUpdateHook(func(info scene.PairUpdateInfo) {
		s.onEpisodePairUpdate(session, episodeCount, info)
	})

	return sc, episode, nil
}

// EpisodeRegistry returns the stage's episode registry (may be nil).
func (s *Stage) EpisodeRegistry() *campaign.Registry {
	return s.episodeRegistry
}

// GetCampaignProgress loads persisted campaign progression for a user.
func (s *Stage) GetCampaignProgress(userID uint64) (*campaign.Progress, error) {
	episodeCount := 1
	if s.episodeRegistry != nil && s.episodeRegistry.Count() > 0 {
		episodeCount = s.episodeRegistry.Count()
	}
	if s.campaignService == nil {
		return &campaign.Progress{
			UserID:                  userID,
			HighestCompletedEpisode: 0,
			HighestUnlockedEpisode:  1,
			CompletedEpisodes:       []int{},
			UnlockedCharacters:      []string{},
			UpdatedAt:               time.Now().UTC(),
		}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return s.campaignService.GetProgress(ctx, userID, episodeCount)
}

// PushCampaignProgress sends current campaign progress to a user through the
// caller-provided broadcaster.
func (s *Stage) PushCampaignProgress(
	userID uint64,
	sceneID string,
	broadcastFn func(userID uint64, data []byte),
) error {
	progress, err := s.GetCampaignProgress(userID)
	if err != nil {
		return err
	}
	sendCampaignProgress(sceneID, userID, progress, broadcastFn)
	return nil
}

func (s *Stage) onEpisodePairUpdate(
	session *episodeSession,
	episodeCount int,
	info scene.PairUpdateInfo,
) {
	if session == nil || session.episode == nil {
		return
	}
	if info.SceneID != session.sceneID {
		return
	}

	session.mu.Lock()
	if session.completed {
		session.mu.Unlock()
		return
	}
	session.adjustments++

	objective := session.episode.Objective
	reached := info.FromCharacterID == objective.FromID &&
		info.ToCharacterID == objective.ToID &&
		info.Update.TierAfter == objective.Tier
	if !reached {
		session.mu.Unlock()
		return
	}
	session.mu.Unlock()

	if s.campaignService == nil {
		session.mu.Lock()
		session.completed = true
		session.mu.Unlock()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	progress, err := s.campaignService.CompleteEpisode(
		ctx,
		session.userID,
		session.episodeID,
		session.episode.Unlocks,
		episodeCount,
	)
	if err != nil {
		if errors.Is(err, campaign.ErrEpisodeLocked) {
			log.Printf("[Stage] episode completion rejected as locked: user=%d episode=%d", session.userID, session.episodeID)
			return
		}
		log.Printf("[Stage] persist episode completion failed: user=%d episode=%d err=%v", session.userID, session.episodeID, err)
		return
	}

	session.mu.Lock()
	if session.completed {
		session.mu.Unlock()
		return
	}
	session.completed = true
	broadcastFn := session.broadcastFn
	session.mu.Unlock()

	log.Printf("[Stage] episode completed: user=%d episode=%d adjustments=%d unlocked=%d",
		session.userID, session.episodeID, session.adjustments, progress.HighestUnlockedEpisode)

	if broadcastFn != nil {
		sendCampaignProgress(session.sceneID, session.userID, progress, broadcastFn)
	}
}

func sendCampaignProgress(
	sceneID string,
	userID uint64,
	progress *campaign.Progress,
	broadcastFn func(userID uint64, data []byte),
) {
	if progress == nil || broadcastFn == nil {
		return
	}

	_, data, err := codec.Wrap(sceneID, 0, codec.ServerCampaignProgress, codec.CampaignProgress{
		HighestCompletedEpisode: progress.HighestCompletedEpisode,
		HighestUnlockedEpisode:  progress.HighestUnlockedEpisode,
		CompletedEpisodes:       append([]int(nil), progress.CompletedEpisodes...),
		UnlockedCharacters:      append([]string(nil), progress.UnlockedCharacters...),
	})
	if err != nil {
		log.Printf("[Stage] marshal campaign progress failed: user=%d err=%v", userID, err)
		return
	}
	broadcastFn(userID, data)
}
