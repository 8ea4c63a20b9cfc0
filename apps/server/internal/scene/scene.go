package scene

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"rapport-lite/apps/server/internal/archive"
	"rapport-lite/apps/server/internal/codec"
	"rapport-lite/relation"
	"rapport-lite/relation/cast"
)

// Scene hosts one live relationship session with an actor model. All state
// mutation happens on the actor goroutine; viewers talk to it through the
// event queue.
type Scene struct {
	ID     string
	Config SceneConfig

	mu       sync.RWMutex
	store    *relation.Store
	tiers    *relation.Classifier
	cast     *cast.Manager
	viewers  map[uint64]*ViewerConn // userID -> connection
	closed   bool
	stopOnce sync.Once

	// Event channel for actor pattern
	events chan Event
	done   chan struct{}

	// Server sequence for event ordering
	serverSeq uint64

	// Lifecycle metadata.
	emptySince time.Time

	// Callback to broadcast messages
	broadcast  func(userID uint64, data []byte)
	archive    archive.Service
	tapeID     string
	runSeq     uint32
	viewerTape map[uint64][]archive.EventItem

	// Optional callbacks invoked after each applied adjustment.
	pairHooks []PairUpdateHook
}

// SceneConfig contains scene settings.
type SceneConfig struct {
	MaxMembers int
	EpisodeID  int // 0 for free-play scenes
	Bias       []relation.BiasEntry
	Tiers      []relation.Tier
}

// ViewerConn represents a connected viewer of the scene.
type ViewerConn struct {
	UserID   uint64
	Name     string
	Online   bool
	LastSeen time.Time
}

// Event types for the actor message queue
type EventType int

const (
	EventEnterScene EventType = iota
	EventLeaveScene
	EventSpawn
	EventDespawn
	EventAdjust
	EventGetPair
	EventReset
	EventConnLost
	EventConnResume
	EventClose
)

// Event represents a message to the scene actor
type Event struct {
	Type        EventType
	UserID      uint64
	Name        string
	CharacterID string
	Ref         uint64
	FromRef     uint64
	ToRef       uint64
	Delta       int
	Timestamp   time.Time
	Response    chan error
}

// PairUpdateInfo is emitted after an adjustment is applied.
type PairUpdateInfo struct {
	SceneID         string
	EpisodeID       int
	FromCharacterID string
	ToCharacterID   string
	Update          codec.PairUpdate
}

// PairUpdateHook is a post-adjustment callback.
type PairUpdateHook func(info PairUpdateInfo)

var ErrSceneClosed = errors.New("scene closed")

const (
	defaultMaxMembers = 8
	offlineViewerTTL  = 30 * time.Second
)

// New creates a scene, spawns the initial cast, and starts the actor.
func New(
	id string,
	cfg SceneConfig,
	registry *cast.Registry,
	broadcastFn func(userID uint64, data []byte),
	archiveService archive.Service,
	initialCast []string,
) (*Scene, error) {
	if cfg.MaxMembers <= 0 {
		cfg.MaxMembers = defaultMaxMembers
	}
	if len(cfg.Tiers) == 0 {
		cfg.Tiers = relation.DefaultTiers
	}
	if cfg.Bias == nil {
		cfg.Bias = relation.DefaultBiasEntries
	}

	store, err := relation.NewStore(relation.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}

	s := &Scene{
		ID:         id,
		Config:     cfg,
		store:      store,
		tiers:      relation.NewClassifier(cfg.Tiers),
		cast:       cast.NewManager(registry),
		viewers:    make(map[uint64]*ViewerConn),
		events:     make(chan Event, 256),
		done:       make(chan struct{}),
		broadcast:  broadcastFn,
		archive:    archiveService,
		emptySince: time.Now(),
		viewerTape: make(map[uint64][]archive.EventItem),
	}
	s.rotateTapeLocked()

	if len(initialCast) > cfg.MaxMembers {
		return nil, fmt.Errorf("initial cast %d exceeds max members %d", len(initialCast), cfg.MaxMembers)
	}
	for _, characterID := range initialCast {
		if _, err := s.cast.Spawn(characterID); err != nil {
			return nil, fmt.Errorf("initial spawn: %w", err)
		}
	}
	s.store.Initialize(s.cast.Roster(), relation.NewBiasTable(cfg.Bias))

	// Start actor goroutine
	go s.run()

	log.Printf("[Scene %s] Created (max=%d, episode=%d, cast=%d)", id, cfg.MaxMembers, cfg.EpisodeID, len(initialCast))
	return s, nil
}

// run is the main actor loop
func (s *Scene) run() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case event := <-s.events:
			err := s.handleEvent(event)
			if event.Response != nil {
				event.Response <- err
			}
		case <-ticker.C:
			s.tick()
		case <-s.done:
			log.Printf("[Scene %s] Actor stopped", s.ID)
			return
		}
	}
}

// handleEvent processes a single event
func (s *Scene) handleEvent(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed && e.Type != EventClose {
		return ErrSceneClosed
	}

	switch e.Type {
	case EventEnterScene:
		return s.handleEnterScene(e.UserID, e.Name)
	case EventLeaveScene:
		return s.handleLeaveScene(e.UserID)
	case EventSpawn:
		return s.handleSpawn(e.CharacterID)
	case EventDespawn:
		return s.handleDespawn(e.Ref)
	case EventAdjust:
		return s.handleAdjust(e.FromRef, e.ToRef, e.Delta)
	case EventGetPair:
		return s.handleGetPair(e.UserID, e.FromRef, e.ToRef)
	case EventReset:
		return s.handleReset()
	case EventConnLost:
		return s.handleConnLost(e.UserID, e.Timestamp)
	case EventConnResume:
		return s.handleConnResume(e.UserID, e.Name, e.Timestamp)
	case EventClose:
		s.stopLocked()
		return nil
	default:
		return fmt.Errorf("unknown event type: %d", e.Type)
	}
}

func (s *Scene) handleEnterScene(userID uint64, name string) error {
	now := time.Now()
	resolvedName := normalizeName(name, userID)
	if viewer, exists := s.viewers[userID]; exists {
		viewer.Online = true
		viewer.LastSeen = now
		viewer.Name = resolvedName
		s.sendSnapshot(userID)
		return nil // Already joined
	}
	s.viewers[userID] = &ViewerConn{
		UserID:   userID,
		Name:     resolvedName,
		Online:   true,
		LastSeen: now,
	}
	s.emptySince = time.Time{}
	log.Printf("[Scene %s] Viewer %d entered", s.ID, userID)

	s.sendSnapshot(userID)
	return nil
}

func (s *Scene) handleLeaveScene(userID uint64) error {
	viewer := s.viewers[userID]
	if viewer == nil {
		return nil
	}
	s.persistViewerTapeLocked(userID, "left")
	delete(s.viewers, userID)
	delete(s.viewerTape, userID)
	s.updateEmptySinceLocked(time.Now())
	log.Printf("[Scene %s] Viewer %d left", s.ID, userID)
	return nil
}

func (s *Scene) handleSpawn(characterID string) error {
	if len(s.cast.Roster()) >= s.Config.MaxMembers {
		return fmt.Errorf("scene is full (max %d members)", s.Config.MaxMembers)
	}

	member, err := s.cast.Spawn(characterID)
	if err != nil {
		return err
	}
	// Pairs against the newcomer materialize lazily on first adjustment, so
	// existing values are untouched by a spawn.

	s.broadcastMemberUpdate(member, true)
	return nil
}

func (s *Scene) handleDespawn(ref uint64) error {
	member := s.cast.Get(ref)
	if member == nil {
		return fmt.Errorf("unknown member ref %d", ref)
	}
	s.cast.Despawn(ref)
	s.broadcastMemberUpdate(member, false)
	return nil
}

func (s *Scene) handleAdjust(fromRef, toRef uint64, delta int) error {
	if fromRef == toRef {
		return fmt.Errorf("cannot adjust a member against itself")
	}
	from := s.cast.Get(fromRef)
	if from == nil {
		return fmt.Errorf("unknown member ref %d", fromRef)
	}
	to := s.cast.Get(toRef)
	if to == nil {
		return fmt.Errorf("unknown member ref %d", toRef)
	}

	before := s.store.Get(from.Identity(), to.Identity())
	s.store.Modify(from.Identity(), to.Identity(), delta)
	after := s.store.Get(from.Identity(), to.Identity())
	tierBefore := s.tiers.Classify(before)
	tierAfter := s.tiers.Classify(after)

	update := codec.PairUpdate{
		FromRef:     fromRef,
		ToRef:       toRef,
		Delta:       delta,
		Before:      before,
		After:       after,
		TierBefore:  tierBefore,
		TierAfter:   tierAfter,
		TierChanged: tierBefore != tierAfter,
	}
	log.Printf("[Scene %s] Adjust %s->%s delta=%d: %d -> %d (%s)",
		s.ID, from.Character.ID, to.Character.ID, delta, before, after, tierAfter)

	s.broadcastToAll(codec.ServerPairUpdate, update)
	s.dispatchPairHooks(from.Character.ID, to.Character.ID, update)
	return nil
}

func (s *Scene) handleGetPair(userID uint64, fromRef, toRef uint64) error {
	from := s.cast.Get(fromRef)
	if from == nil {
		return fmt.Errorf("unknown member ref %d", fromRef)
	}
	to := s.cast.Get(toRef)
	if to == nil {
		return fmt.Errorf("unknown member ref %d", toRef)
	}

	value := s.store.Get(from.Identity(), to.Identity())
	s.sendToUserPayload(userID, codec.ServerPairValue, codec.PairValue{
		FromRef: fromRef,
		ToRef:   toRef,
		Value:   value,
		Tier:    s.tiers.Classify(value),
	})
	return nil
}

func (s *Scene) handleReset() error {
	s.persistAllViewerTapesLocked("reset")
	s.rotateTapeLocked()
	s.store.Reinitialize(s.cast.Roster())
	log.Printf("[Scene %s] Reset (%d members reseeded)", s.ID, len(s.cast.Roster()))

	snapshot := s.buildSceneSnapshot()
	s.broadcastToAll(codec.ServerSceneSnapshot, snapshot)
	return nil
}

func (s *Scene) handleConnLost(userID uint64, ts time.Time) error {
	viewer := s.viewers[userID]
	if viewer == nil {
		return nil
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	viewer.Online = false
	viewer.LastSeen = ts
	log.Printf("[Scene %s] Viewer %d connection lost", s.ID, userID)
	return nil
}

func (s *Scene) handleConnResume(userID uint64, name string, ts time.Time) error {
	viewer := s.viewers[userID]
	if viewer == nil {
		return nil
	}
	viewer.Name = normalizeName(name, userID)
	if ts.IsZero() {
		ts = time.Now()
	}
	viewer.Online = true
	viewer.LastSeen = ts
	s.sendSnapshot(userID)
	log.Printf("[Scene %s] Viewer %d connection resumed", s.ID, userID)
	return nil
}

func (s *Scene) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.releaseOfflineViewers(time.Now())
}

func (s *Scene) releaseOfflineViewers(now time.Time) {
	for userID, viewer := range s.viewers {
		if viewer == nil || viewer.Online {
			continue
		}
		if now.Sub(viewer.LastSeen) < offlineViewerTTL {
			continue
		}
		s.persistViewerTapeLocked(userID, "disconnected")
		delete(s.viewers, userID)
		delete(s.viewerTape, userID)
		log.Printf("[Scene %s] Released offline viewer %d after %s", s.ID, userID, offlineViewerTTL)
	}
	s.updateEmptySinceLocked(now)
}

// SubmitEvent sends an event to the actor
func (s *Scene) SubmitEvent(e Event) error {
	e.Timestamp = time.Now()
	if e.Response == nil {
		e.Response = make(chan error, 1)
	}

	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ErrSceneClosed
	}

	select {
	case s.events <- e:
	case <-s.done:
		return ErrSceneClosed
	}

	select {
	case err := <-e.Response:
		return err
	case <-s.done:
		return ErrSceneClosed
	}
}

// Stop shuts down the scene actor
func (s *Scene) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Scene) stopLocked() {
	s.persistAllViewerTapesLocked("closed")
	s.closed = true
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

func (s *Scene) updateEmptySinceLocked(now time.Time) {
	if len(s.viewers) == 0 {
		if s.emptySince.IsZero() {
			s.emptySince = now
		}
		return
	}
	s.emptySince = time.Time{}
}

func (s *Scene) IsIdleFor(ttl time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return true
	}
	if len(s.viewers) > 0 {
		return false
	}
	if s.emptySince.IsZero() {
		return false
	}
	return time.Since(s.emptySince) >= ttl
}

func (s *Scene) IsClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// AddPairUpdateHook registers a post-adjustment callback.
func (s *Scene) AddPairUpdateHook(hook PairUpdateHook) {
	if hook == nil {
		return
	}
	s.mu.Lock()
	s.pairHooks = append(s.pairHooks, hook)
	s.mu.Unlock()
}

func (s *Scene) dispatchPairHooks(fromCharacterID, toCharacterID string, update codec.PairUpdate) {
	if len(s.pairHooks) == 0 {
		return
	}
	info := PairUpdateInfo{
		SceneID:         s.ID,
		EpisodeID:       s.Config.EpisodeID,
		FromCharacterID: fromCharacterID,
		ToCharacterID:   toCharacterID,
		Update:          update,
	}
	hooks := append([]PairUpdateHook(nil), s.pairHooks...)
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		go func(cb PairUpdateHook) {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[Scene %s] pair update hook panic: %v", s.ID, r)
				}
			}()
			cb(info)
		}(hook)
	}
}

func normalizeName(raw string, userID uint64) string {
	if raw == "" {
		return fmt.Sprintf("user_%d", userID)
	}
	return raw
}

// --- Broadcast helpers with JSON encoding ---

func (s *Scene) nextSeq() uint64 {
	s.serverSeq++
	return s.serverSeq
}

func (s *Scene) rotateTapeLocked() {
	s.runSeq++
	s.tapeID = fmt.Sprintf("%s_run%d", s.ID, s.runSeq)
	s.viewerTape = make(map[uint64][]archive.EventItem, len(s.viewers))
}

func (s *Scene) appendLiveArchiveEvent(env *codec.ServerEnvelope, data []byte) {
	if s.archive == nil || s.tapeID == "" {
		return
	}
	// Keep a stable copy to avoid accidental reuse by callers.
	encoded := make([]byte, len(data))
	copy(encoded, data)
	go s.archive.AppendLiveEvent(s.tapeID, env, encoded)
}

func (s *Scene) appendViewerTape(userID uint64, env *codec.ServerEnvelope, data []byte) {
	if userID == 0 || env == nil || len(data) == 0 || s.tapeID == "" {
		return
	}
	item := archive.EventItem{
		Seq:        env.ServerSeq,
		EventType:  env.Type,
		PayloadB64: base64.StdEncoding.EncodeToString(data),
	}
	if env.ServerTsMs > 0 {
		v := env.ServerTsMs
		item.ServerTsMs = &v
	}
	s.viewerTape[userID] = append(s.viewerTape[userID], item)
}

func (s *Scene) persistAllViewerTapesLocked(reason string) {
	for userID := range s.viewers {
		s.persistViewerTapeLocked(userID, reason)
	}
}

func (s *Scene) persistViewerTapeLocked(userID uint64, reason string) {
	if s.archive == nil || userID == 0 || s.tapeID == "" {
		return
	}
	events := s.viewerTape[userID]
	if len(events) == 0 {
		return
	}
	summary := map[string]any{
		"scene_id":     s.ID,
		"episode_id":   s.Config.EpisodeID,
		"member_count": len(s.cast.Roster()),
		"pair_count":   s.store.Len(),
		"ended":        reason,
	}
	tape := append([]archive.EventItem(nil), events...)
	go s.archive.UpsertLiveTapeWithEvents(userID, s.tapeID, time.Now().UTC(), summary, tape)
}

func (s *Scene) sendToUser(userID uint64, env *codec.ServerEnvelope, data []byte) {
	s.appendViewerTape(userID, env, data)
	s.broadcast(userID, data)
}

func (s *Scene) sendToUserPayload(userID uint64, msgType string, payload any) {
	env, data, err := codec.Wrap(s.ID, s.nextSeq(), msgType, payload)
	if err != nil {
		log.Printf("[Scene %s] Failed to encode %s: %v", s.ID, msgType, err)
		return
	}
	s.sendToUser(userID, env, data)
}

func (s *Scene) broadcastToAll(msgType string, payload any) {
	env, data, err := codec.Wrap(s.ID, s.nextSeq(), msgType, payload)
	if err != nil {
		log.Printf("[Scene %s] Failed to encode %s: %v", s.ID, msgType, err)
		return
	}
	s.appendLiveArchiveEvent(env, data)
	for userID := range s.viewers {
		s.sendToUser(userID, env, data)
	}
}

func (s *Scene) sendSnapshot(userID uint64) {
	log.Printf("[Scene %s] Sending snapshot to %d", s.ID, userID)
	s.sendToUserPayload(userID, codec.ServerSceneSnapshot, s.buildSceneSnapshot())
}

func (s *Scene) broadcastMemberUpdate(member *cast.Member, present bool) {
	s.broadcastToAll(codec.ServerMemberUpdate, codec.MemberUpdate{
		Ref:         member.RefID,
		CharacterID: member.Character.ID,
		Name:        member.Character.Name,
		Species:     member.Species.String(),
		Present:     present,
	})
}

func (s *Scene) buildSceneSnapshot() codec.SceneSnapshot {
	members := s.cast.Members()
	snapshot := codec.SceneSnapshot{
		SceneID: s.ID,
		Members: make([]codec.MemberInfo, 0, len(members)),
		Pairs:   nil,
	}
	for _, member := range members {
		snapshot.Members = append(snapshot.Members, codec.MemberInfo{
			Ref:         member.RefID,
			CharacterID: member.Character.ID,
			Name:        member.Character.Name,
			Species:     member.Species.String(),
		})
	}
	for _, pv := range s.store.Snapshot() {
		snapshot.Pairs = append(snapshot.Pairs, codec.PairInfo{
			FromRef: pv.FromID,
			ToRef:   pv.ToID,
			Value:   pv.Value,
			Tier:    s.tiers.Classify(pv.Value),
		})
	}
	return snapshot
}
