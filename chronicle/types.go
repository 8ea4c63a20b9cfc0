package chronicle

// SceneSpec declares a scene to generate a tape for: who is present, the
// authored bias and tier configuration, and the ordered adjustments applied
// during the scene.
type SceneSpec struct {
	Title   string           `json:"title"`
	Members []MemberSpec     `json:"members"`
	Bias    []BiasSpec       `json:"bias,omitempty"`
	Tiers   []TierSpec       `json:"tiers,omitempty"`
	Steps   []AdjustmentSpec `json:"steps"`
}

type MemberSpec struct {
	ID      string `json:"id"`
	Species string `json:"species"`
}

type BiasSpec struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Modifier int    `json:"modifier"`
}

type TierSpec struct {
	Floor int    `json:"floor"`
	Label string `json:"label"`
}

type AdjustmentSpec struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Delta int    `json:"delta"`
}

// Tape is the generated event record of one scene.
type Tape struct {
	TapeVersion int     `json:"tape_version"`
	TapeID      string  `json:"tape_id"`
	Title       string  `json:"title"`
	Events      []Event `json:"events"`
}

// Event types appearing on a tape.
const (
	EventTypeSceneInit  = "sceneInit"
	EventTypeAdjustment = "adjustment"
)

type Event struct {
	Type   string       `json:"type"`
	Seq    uint64       `json:"seq"`
	Init   *InitEvent   `json:"init,omitempty"`
	Adjust *AdjustEvent `json:"adjust,omitempty"`
}

// InitEvent captures the seeded state right after initialization.
type InitEvent struct {
	Members []MemberState `json:"members"`
	Pairs   []PairState   `json:"pairs"`
}

type MemberState struct {
	ID      string `json:"id"`
	Ref     uint64 `json:"ref"`
	Species string `json:"species"`
}

type PairState struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Value int    `json:"value"`
	Tier  string `json:"tier"`
}

// AdjustEvent captures one applied delta with its observable outcome.
type AdjustEvent struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Delta       int    `json:"delta"`
	Before      int    `json:"before"`
	After       int    `json:"after"`
	TierBefore  string `json:"tier_before"`
	TierAfter   string `json:"tier_after"`
	TierChanged bool   `json:"tier_changed"`
}
