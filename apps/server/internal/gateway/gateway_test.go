package gateway

import (
	"encoding/json"
	"testing"

	"rapport-lite/apps/server/internal/codec"
)

func drainEnvelope(t *testing.T, ch chan []byte) codec.ServerEnvelope {
	t.Helper()
	var env codec.ServerEnvelope
	select {
	case data := <-ch:
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("decode error frame: %v", err)
		}
	default:
		t.Fatal("expected an error frame in the send buffer")
	}
	return env
}

func TestSendError_UsesOwnSequence(t *testing.T) {
	g := New(nil, nil)
	c := &Connection{
		ID:      "conn_1",
		UserID:  7,
		Gateway: g,
		Send:    make(chan []byte, 4),
	}

	c.sendError(3, "not in a scene")
	c.sendError(5, "adjust rejected")

	first := drainEnvelope(t, c.Send)
	second := drainEnvelope(t, c.Send)
	if first.Type != codec.ServerError || second.Type != codec.ServerError {
		t.Fatalf("expected error frames, got %q and %q", first.Type, second.Type)
	}
	if first.ServerSeq != 1 || second.ServerSeq != 2 {
		t.Fatalf("error seqs = %d, %d; want 1, 2", first.ServerSeq, second.ServerSeq)
	}

	// Error numbering must not consume connection IDs.
	if g.nextConnID != 0 {
		t.Fatalf("nextConnID moved to %d", g.nextConnID)
	}

	var msg codec.ErrorMessage
	if err := json.Unmarshal(first.Payload, &msg); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if msg.Code != 3 || msg.Message != "not in a scene" {
		t.Fatalf("unexpected error payload: %+v", msg)
	}
}

func TestSendError_DropsWhenBufferFull(t *testing.T) {
	g := New(nil, nil)
	c := &Connection{
		ID:      "conn_1",
		Gateway: g,
		Send:    make(chan []byte, 1),
	}

	c.sendError(1, "first")
	c.sendError(1, "second") // buffer full, must not block

	env := drainEnvelope(t, c.Send)
	var msg codec.ErrorMessage
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if msg.Message != "first" {
		t.Fatalf("expected the first frame to survive, got %q", msg.Message)
	}
}
