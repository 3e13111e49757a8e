package minhash

import (
	"github.com/Sumatoshi-tech/narrowdown/pkg/alg/hashutil"
)

// DefaultSeed is the coefficient seed used when none is given.
const DefaultSeed uint64 = 42

// Hasher holds a fixed family of affine hash functions. Two Hashers built
// with the same size and seed produce identical fingerprints, so a seed
// stored alongside an index is enough to rebuild its Hasher.
//
// A Hasher is immutable and safe for concurrent use.
type Hasher struct {
	a    []uint32
	b    []uint32
	seed uint64
}

// NewHasher derives numHashes coefficient pairs from seed with splitmix64.
// Every a lies in [1, P) and every b in [0, P).
func NewHasher(numHashes int, seed uint64) (*Hasher, error) {
	if numHashes <= 0 {
		return nil, ErrInvalidArgument
	}

	stream := hashutil.GenerateSeeds(2*numHashes, seed, hashutil.Splitmix64)
	a := make([]uint32, numHashes)
	b := make([]uint32, numHashes)

	for i := range numHashes {
		a[i] = uint32(1 + stream[2*i]%(MersennePrime-1))
		b[i] = uint32(stream[2*i+1] % MersennePrime)
	}

	return &Hasher{a: a, b: b, seed: seed}, nil
}

// NewHasherWithCoefficients builds a Hasher from explicit coefficients.
func NewHasherWithCoefficients(a, b []uint32) (*Hasher, error) {
	if len(a) != len(b) || len(a) == 0 {
		return nil, ErrInvalidArgument
	}

	return &Hasher{a: append([]uint32(nil), a...), b: append([]uint32(nil), b...)}, nil
}

// Len returns the fingerprint width.
func (h *Hasher) Len() int {
	return len(h.a)
}

// Seed returns the seed the coefficients were derived from, or 0 for
// explicit coefficients.
func (h *Hasher) Seed() uint64 {
	return h.seed
}

// Coefficients returns copies of the a and b arrays.
func (h *Hasher) Coefficients() (a, b []uint32) {
	return append([]uint32(nil), h.a...), append([]uint32(nil), h.b...)
}

// Fingerprint computes the MinHash fingerprint of the given shingles.
func (h *Hasher) Fingerprint(shingles []string) Fingerprint {
	hashes := make([]uint64, len(shingles))
	for i, s := range shingles {
		hashes[i] = uint64(hashutil.Murmur3x86_32([]byte(s)))
	}

	return minOverHashes(hashes, h.a, h.b)
}
