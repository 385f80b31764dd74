package extract

import (
	"testing"
)

func TestFingerprint_Deterministic(t *testing.T) {
	text := "Which of the following statements about goroutines is true?"
	if fingerprint(text) != fingerprint(text) {
		t.Error("identical texts produced different fingerprints")
	}
}

func TestFingerprint_SimilarTextsAreClose(t *testing.T) {
	fp1 := fingerprint("Which of the following statements about goroutines is true?")
	fp2 := fingerprint("Which of the following statements about goroutines is false?")

	if dist := hammingDistance(fp1, fp2); dist > 10 {
		t.Errorf("similar texts have too large distance: %d", dist)
	}
}

func TestFingerprint_DifferentTextsAreFar(t *testing.T) {
	fp1 := fingerprint("Which of the following statements about goroutines is true?")
	fp2 := fingerprint("completely unrelated content about quantum physics and mathematics")

	if dist := hammingDistance(fp1, fp2); dist < 5 {
		t.Errorf("very different texts have too small distance: %d", dist)
	}
}

func TestFingerprint_EmptyAndWhitespace(t *testing.T) {
	if fp := fingerprint(""); fp != 0 {
		t.Errorf("empty input should produce fingerprint 0, got: %064b", fp)
	}
	if fp := fingerprint("   \t\n  "); fp != 0 {
		t.Errorf("whitespace-only input should produce fingerprint 0, got: %064b", fp)
	}
}

func TestHammingDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b uint64
		want int
	}{
		{"identical", 0xFF, 0xFF, 0},
		{"all different", 0, ^uint64(0), 64},
		{"one bit", 0, 1, 1},
		{"two bits", 0, 3, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hammingDistance(tt.a, tt.b); got != tt.want {
				t.Errorf("hammingDistance(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestNearDuplicatePairs(t *testing.T) {
	texts := []string{
		"Which of the following statements about goroutines is true?",
		"Which of the following statements about goroutines is true?",
		"Name the keyword that declares a constant in Go and explain its scope rules.",
		"",
	}
	pairs := nearDuplicatePairs(texts)
	if len(pairs) != 1 {
		t.Fatalf("expected exactly one near-duplicate pair, got %v", pairs)
	}
	if pairs[0] != [2]int{0, 1} {
		t.Errorf("expected pair {0,1}, got %v", pairs[0])
	}

	// Empty texts never pair, even with each other.
	if got := nearDuplicatePairs([]string{"", ""}); len(got) != 0 {
		t.Errorf("empty texts should not pair, got %v", got)
	}
}
