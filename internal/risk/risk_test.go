package risk

import "testing"

func TestClassifyTiers(t *testing.T) {
	cases := []struct {
		confidence float64
		want       Risk
	}{
		{0.0, Low},
		{0.54, Low},
		{0.549999, Low},
		{0.55, Med}, // boundary belongs to the higher tier
		{0.6, Med},
		{0.79, Med},
		{0.799999, Med},
		{0.80, High}, // boundary belongs to the higher tier
		{0.9, High},
		{1.0, High},
	}
	for _, c := range cases {
		if got := Classify(c.confidence); got != c.want {
			t.Errorf("Classify(%v) = %s, want %s", c.confidence, got, c.want)
		}
	}
}

func TestDefaultConfidenceIsMed(t *testing.T) {
	if Classify(DefaultConfidence) != Med {
		t.Fatalf("default confidence %v must classify as med", DefaultConfidence)
	}
}
