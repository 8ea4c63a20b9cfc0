package stage

import (
	"fmt"
	"log"
	"sync"
	"time"

	"rapport-lite/apps/server/internal/archive"
	"rapport-lite/apps/server/internal/campaign"
	"rapport-lite/apps/server/internal/scene"
	"rapport-lite/relation/cast"
)

// Stage manages all scenes and viewer assignments.
type Stage struct {
	mu     sync.RWMutex
	scenes map[string]*scene.Scene
	nextID uint64

	registry        *cast.Registry
	episodeRegistry *campaign.Registry
	campaignService campaign.Service
	archiveService  archive.Service

	episodeSessions map[string]*episodeSession

	// Default scene config
	defaultConfig scene.SceneConfig
}

// New creates a new stage.
func New(
	registry *cast.Registry,
	episodeRegistry *campaign.Registry,
	campaignService campaign.Service,
	archiveService archive.Service,
) *Stage {
	return &Stage{
		scenes:          make(map[string]*scene.Scene),
		registry:        registry,
		episodeRegistry: episodeRegistry,
		campaignService: campaignService,
		archiveService:  archiveService,
		episodeSessions: make(map[string]*episodeSession),
		defaultConfig: scene.SceneConfig{
			MaxMembers: 8,
		},
	}
}

// QuickStart finds or creates a free-play scene for the viewer.
func (s *Stage) QuickStart(userID uint64, broadcastFn func(userID uint64, data []byte)) (*scene.Scene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Reuse an open free-play scene.
	for _, sc := range s.scenes {
		if sc.Config.EpisodeID == 0 && !sc.IsClosed() {
			log.Printf("[Stage] QuickStart: user %d joining existing scene %s", userID, sc.ID)
			return sc, nil
		}
	}

	// Create new scene
	s.nextID++
	sceneID := fmt.Sprintf("scene_%d", s.nextID)
	sc, err := scene.New(sceneID, s.defaultConfig, s.registry, broadcastFn, s.archiveService, nil)
	if err != nil {
		return nil, fmt.Errorf("create scene: %w", err)
	}
	s.scenes[sceneID] = sc

	log.Printf("[Stage] QuickStart: user %d created new scene %s", userID, sceneID)
	return sc, nil
}

// GetScene returns a scene by ID.
func (s *Stage) GetScene(sceneID string) *scene.Scene {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scenes[sceneID]
}

// ListScenes returns all scene IDs.
func (s *Stage) ListScenes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.scenes))
	for id := range s.scenes {
		ids = append(ids, id)
	}
	return ids
}

// ReapIdleScenes stops and drops scenes that have had no viewers for ttl.
func (s *Stage) ReapIdleScenes(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sc := range s.scenes {
		if !sc.IsIdleFor(ttl) {
			continue
		}
		sc.Stop()
		delete(s.scenes, id)
		delete(s.episodeSessions, id)
		log.Printf("[Stage] Reaped idle scene %s", id)
	}
}
