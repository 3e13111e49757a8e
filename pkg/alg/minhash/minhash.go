// Package minhash provides MinHash signature generation for set similarity estimation.
//
// MinHash compresses a set of shingles into a compact fixed-size fingerprint.
// The Jaccard similarity between two sets can then be estimated by comparing
// fingerprints position by position in O(k) time, where k is the number of
// hash functions.
//
// Each shingle is hashed once with 32-bit MurmurHash3. The k hash functions
// are affine maps (a*x + b) mod P over that base hash, with P the Mersenne
// prime 2^32-1, which approximates k independent random permutations.
package minhash

import (
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/narrowdown/pkg/alg/hashutil"
)

// MersennePrime is the modulus of the affine hash family, 2^32-1. It is
// also the fingerprint value of every position for an empty shingle set.
const MersennePrime uint64 = 1<<32 - 1

// EmptyValue is the fingerprint value that marks "no content".
const EmptyValue = uint32(MersennePrime)

var (
	// ErrInvalidArgument is returned when coefficient arrays differ in length
	// or a hash count is not positive.
	ErrInvalidArgument = errors.New("minhash: invalid argument")

	// ErrSizeMismatch is returned when comparing fingerprints of different sizes.
	ErrSizeMismatch = errors.New("minhash: fingerprint sizes do not match")
)

// Fingerprint is a MinHash signature: one minimum per hash function.
type Fingerprint []uint32

// Minhash computes the MinHash fingerprint of shingles for the affine hash
// functions described by the coefficient pairs (a[i], b[i]).
//
// Every a[i] should be non-zero; this is not validated. The result has
// len(a) entries in coefficient order. An empty shingle sequence yields
// EmptyValue in every position.
func Minhash(shingles [][]byte, a, b []uint32) (Fingerprint, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("%w: coefficient lengths differ (a=%d, b=%d)", ErrInvalidArgument, len(a), len(b))
	}

	hashes := make([]uint64, len(shingles))
	for i, s := range shingles {
		hashes[i] = uint64(hashutil.Murmur3x86_32(s))
	}

	return minOverHashes(hashes, a, b), nil
}

// MinhashStrings is Minhash for string shingles.
func MinhashStrings(shingles []string, a, b []uint32) (Fingerprint, error) {
	raw := make([][]byte, len(shingles))
	for i, s := range shingles {
		raw[i] = []byte(s)
	}

	return Minhash(raw, a, b)
}

func minOverHashes(hashes []uint64, a, b []uint32) Fingerprint {
	out := make(Fingerprint, len(a))

	for i := range a {
		ai, bi := uint64(a[i]), uint64(b[i])
		m := MersennePrime

		for _, h := range hashes {
			// ai, h < 2^32 and bi < 2^32, so the sum stays below 2^64.
			v := (ai*h + bi) % MersennePrime
			if v < m {
				m = v
			}
		}

		out[i] = uint32(m)
	}

	return out
}

// Similarity returns the estimated Jaccard index between two fingerprints:
// the fraction of positions holding equal minimums. Two empty fingerprints
// are considered identical.
func Similarity(x, y Fingerprint) (float64, error) {
	if len(x) != len(y) {
		return 0, ErrSizeMismatch
	}

	if len(x) == 0 {
		return 1.0, nil
	}

	matches := 0

	for i := range x {
		if x[i] == y[i] {
			matches++
		}
	}

	return float64(matches) / float64(len(x)), nil
}

// IsEmpty reports whether fp was produced from an empty shingle set.
func (fp Fingerprint) IsEmpty() bool {
	for _, v := range fp {
		if v != EmptyValue {
			return false
		}
	}

	return true
}
