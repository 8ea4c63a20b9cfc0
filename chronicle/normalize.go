package chronicle

import (
	"fmt"
	"strings"

	"rapport-lite/relation"
	"rapport-lite/species"
)

type normalizedMember struct {
	id  string
	ref uint64
	sp  species.Species
}

type normalizedStep struct {
	fromRef uint64
	toRef   uint64
	fromID  string
	toID    string
	delta   int
}

type normalizedSpec struct {
	title      string
	members    []normalizedMember
	memberByID map[string]normalizedMember
	bias       []relation.BiasEntry
	tiers      []relation.Tier
	steps      []normalizedStep
}

func normalizeSpec(spec SceneSpec) (normalizedSpec, error) {
	var out normalizedSpec
	out.title = strings.TrimSpace(spec.Title)
	if out.title == "" {
		out.title = "untitled scene"
	}

	if len(spec.Members) < 2 {
		return out, &ChronicleError{StepIndex: -1, Reason: "invalid_members", Message: "at least 2 members are required"}
	}

	out.memberByID = make(map[string]normalizedMember, len(spec.Members))
	for i, m := range spec.Members {
		id := strings.TrimSpace(m.ID)
		if id == "" {
			return out, &ChronicleError{StepIndex: -1, Reason: "invalid_member", Message: fmt.Sprintf("member %d has empty id", i)}
		}
		if _, exists := out.memberByID[id]; exists {
			return out, &ChronicleError{StepIndex: -1, Reason: "duplicate_member", Message: fmt.Sprintf("duplicate member id %q", id)}
		}
		sp, err := species.ParseSpecies(m.Species)
		if err != nil {
			return out, &ChronicleError{StepIndex: -1, Reason: "invalid_species", Message: fmt.Sprintf("member %q: %v", id, err)}
		}
		nm := normalizedMember{
			id:  id,
			ref: uint64(i) + 1,
			sp:  sp,
		}
		out.members = append(out.members, nm)
		out.memberByID[id] = nm
	}

	out.bias = make([]relation.BiasEntry, 0, len(spec.Bias))
	for i, b := range spec.Bias {
		from, err := species.ParseSpecies(b.From)
		if err != nil {
			return out, &ChronicleError{StepIndex: -1, Reason: "invalid_bias", Message: fmt.Sprintf("bias[%d].from: %v", i, err)}
		}
		to, err := species.ParseSpecies(b.To)
		if err != nil {
			return out, &ChronicleError{StepIndex: -1, Reason: "invalid_bias", Message: fmt.Sprintf("bias[%d].to: %v", i, err)}
		}
		out.bias = append(out.bias, relation.BiasEntry{From: from, To: to, Modifier: b.Modifier})
	}

	out.tiers = make([]relation.Tier, 0, len(spec.Tiers))
	for _, tier := range spec.Tiers {
		out.tiers = append(out.tiers, relation.Tier{Floor: tier.Floor, Label: tier.Label})
	}

	out.steps = make([]normalizedStep, 0, len(spec.Steps))
	for i, step := range spec.Steps {
		from, ok := out.memberByID[strings.TrimSpace(step.From)]
		if !ok {
			return out, &ChronicleError{StepIndex: int32(i), Reason: "unknown_member", Message: fmt.Sprintf("from member %q is not in the scene", step.From)}
		}
		to, ok := out.memberByID[strings.TrimSpace(step.To)]
		if !ok {
			return out, &ChronicleError{StepIndex: int32(i), Reason: "unknown_member", Message: fmt.Sprintf("to member %q is not in the scene", step.To)}
		}
		if from.ref == to.ref {
			return out, &ChronicleError{StepIndex: int32(i), Reason: "self_adjustment", Message: fmt.Sprintf("member %q cannot adjust itself", from.id)}
		}
		out.steps = append(out.steps, normalizedStep{
			fromRef: from.ref,
			toRef:   to.ref,
			fromID:  from.id,
			toID:    to.id,
			delta:   step.Delta,
		})
	}
	return out, nil
}
