package codec

import (
	"encoding/json"
	"fmt"
	"time"
)

// Client message types.
const (
	ClientEnterScene   = "enterScene"
	ClientLeaveScene   = "leaveScene"
	ClientStartEpisode = "startEpisode"
	ClientSpawn        = "spawn"
	ClientDespawn      = "despawn"
	ClientAdjust       = "adjust"
	ClientGetPair      = "getPair"
	ClientResetScene   = "resetScene"
)

// Server message types.
const (
	ServerSceneSnapshot    = "sceneSnapshot"
	ServerMemberUpdate     = "memberUpdate"
	ServerPairUpdate       = "pairUpdate"
	ServerPairValue        = "pairValue"
	ServerCampaignProgress = "campaignProgress"
	ServerError            = "error"
)

// ClientEnvelope is one JSON text frame from a client.
type ClientEnvelope struct {
	Type    string          `json:"type"`
	SceneID string          `json:"sceneId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ServerEnvelope is one JSON text frame to a client.
type ServerEnvelope struct {
	Type       string          `json:"type"`
	SceneID    string          `json:"sceneId,omitempty"`
	ServerSeq  uint64          `json:"serverSeq"`
	ServerTsMs int64           `json:"serverTsMs"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

type StartEpisodeRequest struct {
	EpisodeID int `json:"episodeId"`
}

type SpawnRequest struct {
	CharacterID string `json:"characterId"`
}

type DespawnRequest struct {
	Ref uint64 `json:"ref"`
}

type AdjustRequest struct {
	FromRef uint64 `json:"fromRef"`
	ToRef   uint64 `json:"toRef"`
	Delta   int    `json:"delta"`
}

type GetPairRequest struct {
	FromRef uint64 `json:"fromRef"`
	ToRef   uint64 `json:"toRef"`
}

// MemberInfo describes one spawned character inside a scene snapshot.
type MemberInfo struct {
	Ref         uint64 `json:"ref"`
	CharacterID string `json:"characterId"`
	Name        string `json:"name"`
	Species     string `json:"species"`
}

// PairInfo is one directed value inside a scene snapshot.
type PairInfo struct {
	FromRef uint64 `json:"fromRef"`
	ToRef   uint64 `json:"toRef"`
	Value   int    `json:"value"`
	Tier    string `json:"tier"`
}

type SceneSnapshot struct {
	SceneID string       `json:"sceneId"`
	Members []MemberInfo `json:"members"`
	Pairs   []PairInfo   `json:"pairs"`
}

// MemberUpdate announces a spawn (Present=true) or despawn (Present=false).
type MemberUpdate struct {
	Ref         uint64 `json:"ref"`
	CharacterID string `json:"characterId"`
	Name        string `json:"name"`
	Species     string `json:"species"`
	Present     bool   `json:"present"`
}

// PairUpdate carries the observable outcome of one applied adjustment.
type PairUpdate struct {
	FromRef     uint64 `json:"fromRef"`
	ToRef       uint64 `json:"toRef"`
	Delta       int    `json:"delta"`
	Before      int    `json:"before"`
	After       int    `json:"after"`
	TierBefore  string `json:"tierBefore"`
	TierAfter   string `json:"tierAfter"`
	TierChanged bool   `json:"tierChanged"`
}

// PairValue answers a point query without mutating anything.
type PairValue struct {
	FromRef uint64 `json:"fromRef"`
	ToRef   uint64 `json:"toRef"`
	Value   int    `json:"value"`
	Tier    string `json:"tier"`
}

type CampaignProgress struct {
	HighestCompletedEpisode int      `json:"highestCompletedEpisode"`
	HighestUnlockedEpisode  int      `json:"highestUnlockedEpisode"`
	CompletedEpisodes       []int    `json:"completedEpisodes"`
	UnlockedCharacters      []string `json:"unlockedCharacters"`
}

type ErrorMessage struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

// Wrap builds a server envelope around a typed payload and encodes the whole
// frame for the wire.
func Wrap(sceneID string, serverSeq uint64, msgType string, payload any) (*ServerEnvelope, []byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	env := &ServerEnvelope{
		Type:       msgType,
		SceneID:    sceneID,
		ServerSeq:  serverSeq,
		ServerTsMs: time.Now().UnixMilli(),
		Payload:    raw,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, nil, fmt.Errorf("encode %s envelope: %w", msgType, err)
	}
	return env, data, nil
}

// DecodeClient parses one client frame. The payload stays raw for the handler
// that knows its type.
func DecodeClient(data []byte) (*ClientEnvelope, error) {
	var env ClientEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.Type == "" {
		return nil, fmt.Errorf("missing message type")
	}
	return &env, nil
}

// DecodePayload parses a client payload into dst. A nil payload is an error;
// every payload-bearing message requires one.
func DecodePayload(env *ClientEnvelope, dst any) error {
	if env == nil || len(env.Payload) == 0 {
		return fmt.Errorf("missing payload")
	}
	return json.Unmarshal(env.Payload, dst)
}
