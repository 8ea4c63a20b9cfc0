package relation

import "testing"

func specTiers() []Tier {
	return []Tier{
		{Floor: 0, Label: "Hostile"},
		{Floor: 40, Label: "Neutral"},
		{Floor: 70, Label: "Friendly"},
	}
}

func TestClassify_RangeBoundaries(t *testing.T) {
	c := NewClassifier(specTiers())

	cases := []struct {
		value int
		want  string
	}{
		{39, "Hostile"},
		{40, "Neutral"},
		{69, "Neutral"},
		{70, "Friendly"},
		{100, "Friendly"},
		{0, "Hostile"},
	}
	for _, tc := range cases {
		if got := c.Classify(tc.value); got != tc.want {
			t.Fatalf("Classify(%d) = %q, want %q", tc.value, got, tc.want)
		}
	}
}

func TestClassify_AuthoredOrderIsIrrelevant(t *testing.T) {
	shuffled := []Tier{
		{Floor: 70, Label: "Friendly"},
		{Floor: 0, Label: "Hostile"},
		{Floor: 40, Label: "Neutral"},
	}
	c := NewClassifier(shuffled)
	if got := c.Classify(55); got != "Neutral" {
		t.Fatalf("Classify(55) = %q, want Neutral", got)
	}
}

func TestClassify_AbsentConfig(t *testing.T) {
	var c *Classifier
	if got := c.Classify(50); got != UnknownTier {
		t.Fatalf("nil classifier = %q, want %q", got, UnknownTier)
	}
	empty := NewClassifier(nil)
	if got := empty.Classify(50); got != UnknownTier {
		t.Fatalf("empty classifier = %q, want %q", got, UnknownTier)
	}
}

func TestClassify_NoRangeQualifies(t *testing.T) {
	c := NewClassifier([]Tier{{Floor: 60, Label: "Friendly"}})
	if got := c.Classify(10); got != UnknownTier {
		t.Fatalf("below all floors = %q, want %q", got, UnknownTier)
	}
}

func TestDefaultTiers_CoverDomain(t *testing.T) {
	c := NewClassifier(DefaultTiers)
	for v := 1; v <= 100; v++ {
		if got := c.Classify(v); got == UnknownTier {
			t.Fatalf("value %d unclassified by default tiers", v)
		}
	}
	if got := c.Classify(50); got != "Neutral" {
		t.Fatalf("Classify(50) = %q, want Neutral", got)
	}
	if got := c.Classify(100); got != "Devoted" {
		t.Fatalf("Classify(100) = %q, want Devoted", got)
	}
}
