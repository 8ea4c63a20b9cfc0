package chronicle

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// WireTape is the transport form of a tape. Event payloads are carried as
// base64-encoded JSON so hosts can store and forward them without decoding.
type WireTape struct {
	TapeVersion int         `json:"tapeVersion"`
	TapeID      string      `json:"tapeId"`
	Title       string      `json:"title"`
	Events      []WireEvent `json:"events"`
}

type WireEvent struct {
	Type       string `json:"type"`
	Seq        uint64 `json:"seq"`
	PayloadB64 string `json:"payloadB64"`
}

// ToWireTape encodes each event payload for transport.
func ToWireTape(tape *Tape) (*WireTape, error) {
	if tape == nil {
		return nil, nil
	}
	out := &WireTape{
		TapeVersion: tape.TapeVersion,
		TapeID:      tape.TapeID,
		Title:       tape.Title,
		Events:      make([]WireEvent, 0, len(tape.Events)),
	}
	for _, e := range tape.Events {
		var payload any
		switch e.Type {
		case EventTypeSceneInit:
			payload = e.Init
		case EventTypeAdjustment:
			payload = e.Adjust
		default:
			return nil, fmt.Errorf("unknown event type %q at seq %d", e.Type, e.Seq)
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode event seq %d: %w", e.Seq, err)
		}
		out.Events = append(out.Events, WireEvent{
			Type:       e.Type,
			Seq:        e.Seq,
			PayloadB64: base64.StdEncoding.EncodeToString(raw),
		})
	}
	return out, nil
}

// FromWireTape decodes a transport tape back into its event form.
func FromWireTape(wire *WireTape) (*Tape, error) {
	if wire == nil {
		return nil, nil
	}
	out := &Tape{
		TapeVersion: wire.TapeVersion,
		TapeID:      wire.TapeID,
		Title:       wire.Title,
		Events:      make([]Event, 0, len(wire.Events)),
	}
	for _, e := range wire.Events {
		raw, err := base64.StdEncoding.DecodeString(e.PayloadB64)
		if err != nil {
			return nil, fmt.Errorf("decode event seq %d: %w", e.Seq, err)
		}
		ev := Event{Type: e.Type, Seq: e.Seq}
		switch e.Type {
		case EventTypeSceneInit:
			ev.Init = &InitEvent{}
			if err := json.Unmarshal(raw, ev.Init); err != nil {
				return nil, fmt.Errorf("decode init event seq %d: %w", e.Seq, err)
			}
		case EventTypeAdjustment:
			ev.Adjust = &AdjustEvent{}
			if err := json.Unmarshal(raw, ev.Adjust); err != nil {
				return nil, fmt.Errorf("decode adjustment event seq %d: %w", e.Seq, err)
			}
		default:
			return nil, fmt.Errorf("unknown event type %q at seq %d", e.Type, e.Seq)
		}
		out.Events = append(out.Events, ev)
	}
	return out, nil
}
