package main

import (
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"rapport-lite/apps/server/internal/archive"
	"rapport-lite/apps/server/internal/auth"
	"rapport-lite/apps/server/internal/campaign"
	"rapport-lite/apps/server/internal/gateway"
	"rapport-lite/apps/server/internal/stage"
	"rapport-lite/relation/cast"
)

const (
	idleSceneTTL   = 5 * time.Minute
	reapInterval   = time.Minute
	defaultBindTo  = ":8080"
	defaultCastDef = `[
	{"id": "mira", "name": "Mira Valen", "species": "Human", "tagline": "A caravan medic with a long memory", "role": 1},
	{"id": "thalen", "name": "Thalen", "species": "Elf", "tagline": "Archivist of the western reach", "role": 1},
	{"id": "borin", "name": "Borin Ashhand", "species": "Dwarf", "tagline": "Retired siege engineer", "role": 2},
	{"id": "ghask", "name": "Ghask", "species": "Orc", "tagline": "Warband outcast turned scout", "role": 2},
	{"id": "vex", "name": "Vex", "species": "Demon", "tagline": "Bound to a contract nobody remembers signing", "role": 2},
	{"id": "sable", "name": "Sable", "species": "Beastkin", "tagline": "Courier who knows every back road", "role": 3}
]`
	defaultEpisodeDef = `[
	{
		"id": 1,
		"title": "An Uneasy Truce",
		"cast": ["mira", "vex"],
		"objective": {"from": "mira", "to": "vex", "tier": "Friendly"},
		"unlocks": ["ghask"]
	},
	{
		"id": 2,
		"title": "Old Grudges",
		"cast": ["thalen", "borin"],
		"objective": {"from": "thalen", "to": "borin", "tier": "Friendly"},
		"unlocks": ["sable"]
	},
	{
		"id": 3,
		"title": "The Long Road",
		"cast": ["mira", "thalen", "ghask"],
		"objective": {"from": "ghask", "to": "mira", "tier": "Trusted"}
	}
]`
)

func main() {
	authService, authMode, err := auth.NewServiceFromEnv()
	if err != nil {
		log.Fatalf("[Server] Failed to init auth manager: %v", err)
	}
	defer authService.Close()
	archiveService, archiveMode, err := archive.NewServiceFromEnv(authMode)
	if err != nil {
		log.Fatalf("[Server] Failed to init archive service: %v", err)
	}
	defer archiveService.Close()
	campaignService, campaignMode, err := campaign.NewServiceFromEnv(authMode)
	if err != nil {
		log.Fatalf("[Server] Failed to init campaign service: %v", err)
	}
	defer campaignService.Close()

	castRegistry := loadCastRegistry()
	episodeRegistry := loadEpisodeRegistry()

	stg := stage.New(castRegistry, episodeRegistry, campaignService, archiveService)
	gw := gateway.New(stg, authService)
	authHTTP := auth.NewHTTPHandler(authService)
	archiveHTTP := archive.NewHTTPHandler(authService, archiveService)

	go func() {
		ticker := time.NewTicker(reapInterval)
		defer ticker.Stop()
		for range ticker.C {
			stg.ReapIdleScenes(idleSceneTTL)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gw.HandleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	authHTTP.RegisterRoutes(mux)
	archiveHTTP.RegisterRoutes(mux)

	addr := defaultBindTo
	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		addr = v
	}
	log.Printf("[Server] Auth mode: %s", authMode)
	log.Printf("[Server] Archive mode: %s", archiveMode)
	log.Printf("[Server] Campaign mode: %s", campaignMode)
	log.Printf("[Server] Starting WebSocket server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("[Server] Failed to start: %v", err)
	}
}

func loadCastRegistry() *cast.Registry {
	registry := cast.NewRegistry()
	if path := strings.TrimSpace(os.Getenv("CAST_FILE")); path != "" {
		if err := registry.LoadFromFile(path); err != nil {
			log.Fatalf("[Server] Failed to load cast file %s: %v", path, err)
		}
	} else {
		if err := registry.LoadFromJSON([]byte(defaultCastDef)); err != nil {
			log.Fatalf("[Server] Failed to load built-in cast: %v", err)
		}
	}
	log.Printf("[Server] Cast registry: %d characters", registry.Count())
	return registry
}

func loadEpisodeRegistry() *campaign.Registry {
	registry := campaign.NewRegistry()
	if path := strings.TrimSpace(os.Getenv("CAMPAIGN_FILE")); path != "" {
		if err := registry.LoadFromFile(path); err != nil {
			log.Fatalf("[Server] Failed to load campaign file %s: %v", path, err)
		}
	} else {
		if err := registry.LoadFromJSON([]byte(defaultEpisodeDef)); err != nil {
			log.Fatalf("[Server] Failed to load built-in episodes: %v", err)
		}
	}
	return registry
}
