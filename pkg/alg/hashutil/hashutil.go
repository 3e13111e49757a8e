// Package hashutil provides the seeded, non-cryptographic hash primitives used
// for fingerprinting and band hashing, plus the splitmix64 generator used to
// derive deterministic MinHash coefficients.
//
// All hash functions use a fixed seed of 0 and are bit-exact with the
// reference MurmurHash3 (x86, 32-bit) and xxHash (32/64-bit) algorithms.
// They are pure and total: every byte slice, including nil, has a hash.
package hashutil

import (
	"fmt"

	xxh32 "github.com/OneOfOne/xxhash"
	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"
)

// Splitmix64 constants from the splitmix64 finalizer by Vigna (2014).
const (
	// BaseSeed is the starting seed for deterministic seed generation.
	BaseSeed = 0x517cc1b727220a95

	// MixShift1 is the first right-shift in the splitmix64 finalizer.
	MixShift1 = 30

	// MixMul1 is the first multiplier in the splitmix64 finalizer.
	MixMul1 = 0xbf58476d1ce4e5b9

	// MixShift2 is the second right-shift in the splitmix64 finalizer.
	MixShift2 = 27

	// MixMul2 is the second multiplier in the splitmix64 finalizer.
	MixMul2 = 0x94d049bb133111eb

	// MixShift3 is the third right-shift in the splitmix64 finalizer.
	MixShift3 = 31

	// splitmix64Increment is the golden-ratio-derived increment
	// used in the Splitmix64 state-advance function.
	splitmix64Increment = 0x9e3779b97f4a7c15
)

// Algorithm identifies one of the supported hash primitives.
type Algorithm uint8

// Supported hash algorithms. The numeric values are part of the persisted
// settings format and must not change.
const (
	Murmur3_32 Algorithm = 1
	XXHash32   Algorithm = 2
	XXHash64   Algorithm = 4
)

// String returns the canonical algorithm name.
func (a Algorithm) String() string {
	switch a {
	case Murmur3_32:
		return "murmur3_32bit"
	case XXHash32:
		return "xxhash_32bit"
	case XXHash64:
		return "xxhash_64bit"
	default:
		return fmt.Sprintf("Algorithm(%d)", uint8(a))
	}
}

// Sum hashes data with the algorithm, widening 32-bit results to uint64.
// Unknown algorithms hash to 0.
func (a Algorithm) Sum(data []byte) uint64 {
	switch a {
	case Murmur3_32:
		return uint64(Murmur3x86_32(data))
	case XXHash32:
		return uint64(XXHash32Sum(data))
	case XXHash64:
		return XXHash64Sum(data)
	default:
		return 0
	}
}

// ParseAlgorithm resolves a canonical algorithm name.
func ParseAlgorithm(name string) (Algorithm, error) {
	for _, a := range []Algorithm{Murmur3_32, XXHash32, XXHash64} {
		if a.String() == name {
			return a, nil
		}
	}

	return 0, fmt.Errorf("hashutil: unknown algorithm %q", name)
}

// Murmur3x86_32 computes the 32-bit MurmurHash3 (x86 variant) of data with seed 0.
func Murmur3x86_32(data []byte) uint32 {
	return murmur3.Sum32(data)
}

// XXHash32Sum computes the 32-bit xxHash of data with seed 0.
func XXHash32Sum(data []byte) uint32 {
	return xxh32.Checksum32(data)
}

// XXHash64Sum computes the 64-bit xxHash of data with seed 0.
func XXHash64Sum(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// Mix64 applies the splitmix64 finalizer for full-avalanche mixing.
// It does not advance any state.
func Mix64(v uint64) uint64 {
	v ^= v >> MixShift1
	v *= MixMul1
	v ^= v >> MixShift2
	v *= MixMul2
	v ^= v >> MixShift3

	return v
}

// Splitmix64 advances the state by the golden-ratio increment and applies
// the mix64 finalizer.
func Splitmix64(state uint64) uint64 {
	return Mix64(state + splitmix64Increment)
}

// GenerateSeeds creates n deterministic values by repeatedly advancing state
// from seed with the given function.
func GenerateSeeds(n int, seed uint64, advance func(uint64) uint64) []uint64 {
	seeds := make([]uint64, n)
	state := seed

	for i := range n {
		state = advance(state)
		seeds[i] = state
	}

	return seeds
}
