package assembler

import "testing"

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "the quick brown fox", "the quick brown fox", 1.0},
		{"case insensitive", "The Quick Brown Fox", "the quick brown fox", 1.0},
		{"whitespace insensitive", "the  quick\nbrown fox", "the quick brown fox", 1.0},
		{"both empty", "", "", 1.0},
		{"one empty", "some text", "", 0.0},
		{"disjoint", "alpha beta gamma", "one two three", 0.0},
		{"half common", "a b c d", "a b x y", 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Similarity(tt.a, tt.b)
			if got != tt.want {
				t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestSimilarity_Symmetric(t *testing.T) {
	a := "chapter one in which our hero departs"
	b := "chapter one in which our villain departs early"
	if Similarity(a, b) != Similarity(b, a) {
		t.Errorf("similarity is not symmetric: %v vs %v", Similarity(a, b), Similarity(b, a))
	}
}

func TestSimilarity_MinorOCRDrift(t *testing.T) {
	// A one-word difference in a long passage must stay above the
	// consensus threshold; a rewritten passage must fall below it.
	base := "it was the best of times it was the worst of times it was the age of wisdom it was the age of foolishness"
	drift := "it was the best of times it was the w0rst of times it was the age of wisdom it was the age of foolishness"
	rewrite := "call me ishmael some years ago never mind how long precisely having little or no money in my purse"

	if got := Similarity(base, drift); got < ConsensusThreshold {
		t.Errorf("one-word drift similarity = %v, want >= %v", got, ConsensusThreshold)
	}
	if got := Similarity(base, rewrite); got >= ConsensusThreshold {
		t.Errorf("rewrite similarity = %v, want < %v", got, ConsensusThreshold)
	}
}
