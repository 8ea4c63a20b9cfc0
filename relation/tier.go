package relation

import "sort"

// UnknownTier is returned when no range qualifies or no classifier exists.
const UnknownTier = "Unknown"

// Tier labels the value range starting at Floor (inclusive) and running up to
// the next tier's floor.
type Tier struct {
	Floor int    `json:"floor"`
	Label string `json:"label"`
}

// Classifier maps a numeric value to a tier label. It normalizes authored
// tiers on construction so authoring order never matters. The nil classifier
// classifies everything as UnknownTier.
type Classifier struct {
	tiers []Tier
}

// NewClassifier copies and sorts tiers ascending by floor. Authored duplicates
// of the same floor keep their relative order; the later one wins on lookup.
func NewClassifier(tiers []Tier) *Classifier {
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Floor < sorted[j].Floor })
	return &Classifier{tiers: sorted}
}

// Classify returns the label of the range with the greatest floor <= v.
// Pure; never an error.
func (c *Classifier) Classify(v int) string {
	if c == nil {
		return UnknownTier
	}
	for i := len(c.tiers) - 1; i >= 0; i-- {
		if c.tiers[i].Floor <= v {
			return c.tiers[i].Label
		}
	}
	return UnknownTier
}

// Tiers returns the normalized tier list.
func (c *Classifier) Tiers() []Tier {
	if c == nil {
		return nil
	}
	out := make([]Tier, len(c.tiers))
	copy(out, c.tiers)
	return out
}
