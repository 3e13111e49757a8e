package minhash

import (
	"strconv"
	"testing"
)

// benchShingles builds n distinct word-trigram-like shingles.
func benchShingles(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "w" + strconv.Itoa(i) + " w" + strconv.Itoa(i+1) + " w" + strconv.Itoa(i+2)
	}

	return out
}

func BenchmarkHasherFingerprint(b *testing.B) {
	for _, tc := range []struct {
		name      string
		numHashes int
		shingles  int
	}{
		{"64x100", 64, 100},
		{"64x1000", 64, 1000},
		{"256x1000", 256, 1000},
	} {
		b.Run(tc.name, func(b *testing.B) {
			h, err := NewHasher(tc.numHashes, DefaultSeed)
			if err != nil {
				b.Fatal(err)
			}

			shingles := benchShingles(tc.shingles)

			b.ReportAllocs()

			for b.Loop() {
				_ = h.Fingerprint(shingles)
			}
		})
	}
}

func BenchmarkSimilarity_64(b *testing.B) {
	h, err := NewHasher(64, DefaultSeed)
	if err != nil {
		b.Fatal(err)
	}

	x := h.Fingerprint(benchShingles(200))
	y := h.Fingerprint(benchShingles(220)[20:])

	b.ReportAllocs()

	for b.Loop() {
		_, _ = Similarity(x, y)
	}
}
