//go:build js && wasm

package main

import (
	"encoding/json"
	"errors"
	"syscall/js"

	"rapport-lite/chronicle"
)

type generateRequest struct {
	Spec chronicle.SceneSpec `json:"spec"`
}

type generateResponse struct {
	OK    bool                      `json:"ok"`
	Tape  *chronicle.WireTape       `json:"tape,omitempty"`
	Error *chronicle.ChronicleError `json:"error,omitempty"`
}

func main() {
	js.Global().Set("__sceneGenerate", js.FuncOf(func(this js.Value, args []js.Value) any {
		if len(args) < 1 {
			return mustJSON(generateResponse{
				OK:    false,
				Error: &chronicle.ChronicleError{StepIndex: -1, Reason: "invalid_request", Message: "missing request payload"},
			})
		}
		raw := args[0].String()
		resp := handleGenerate(raw)
		return mustJSON(resp)
	}))

	select {}
}

func handleGenerate(raw string) generateResponse {
	var req generateRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return generateResponse{
			OK:    false,
			Error: &chronicle.ChronicleError{StepIndex: -1, Reason: "invalid_json", Message: err.Error()},
		}
	}

	tape, err := chronicle.Generate(req.Spec)
	if err != nil {
		var cerr *chronicle.ChronicleError
		if errors.As(err, &cerr) {
			return generateResponse{OK: false, Error: cerr}
		}
		return generateResponse{
			OK:    false,
			Error: &chronicle.ChronicleError{StepIndex: -1, Reason: "generation_failed", Message: err.Error()},
		}
	}

	wire, err := chronicle.ToWireTape(tape)
	if err != nil {
		return generateResponse{
			OK:    false,
			Error: &chronicle.ChronicleError{StepIndex: -1, Reason: "encode_failed", Message: err.Error()},
		}
	}
	return generateResponse{OK: true, Tape: wire}
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		fallback := generateResponse{
			OK:    false,
			Error: &chronicle.ChronicleError{StepIndex: -1, Reason: "marshal_failed", Message: err.Error()},
		}
		b2, _ := json.Marshal(fallback)
		return string(b2)
	}
	return string(b)
}
