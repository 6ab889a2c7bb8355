package textutil

import (
	"math"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"Vaccine microchips claim", []string{"vaccine", "microchips", "claim"}},
		{"5G + towers!!", []string{"towers"}},
		{"", nil},
		{"a an to", nil},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := Tokenize(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("Tokenize(%q) = %v, want %v", tt.input, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("Tokenize(%q)[%d] = %q, want %q", tt.input, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		min  float64
		max  float64
	}{
		{"identical", "vaccine microchip conspiracy", "vaccine microchip conspiracy", 0.999, 1.0},
		{"disjoint", "vaccine microchip conspiracy", "flat earth horizon", 0, 0},
		{"partial overlap", "vaccine microchip tracking claim", "vaccine tracking devices", 0.3, 0.9},
		{"empty side", "", "vaccine", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Similarity(tt.a, tt.b)
			if got < tt.min || got > tt.max {
				t.Fatalf("Similarity(%q, %q) = %f, want in [%f, %f]", tt.a, tt.b, got, tt.min, tt.max)
			}
		})
	}
}

func TestCosineNilSafety(t *testing.T) {
	fp := NewFingerprint("some meaningful text")
	if got := Cosine(nil, fp); got != 0 {
		t.Fatalf("Cosine(nil, fp) = %f, want 0", got)
	}
	if got := Cosine(fp, nil); got != 0 {
		t.Fatalf("Cosine(fp, nil) = %f, want 0", got)
	}
	if fp.TokenCount() != 3 {
		t.Fatalf("TokenCount() = %d, want 3", fp.TokenCount())
	}
	if got := Cosine(fp, fp); math.Abs(got-1) > 1e-9 {
		t.Fatalf("self similarity = %f, want 1", got)
	}
}
