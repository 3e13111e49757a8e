// Package safeconv provides integer conversions that either panic on
// overflow or reinterpret bits explicitly, so call sites never rely on
// silent truncation.
package safeconv

import "math"

// MaxUint32 is the maximum value for uint32 type.
const MaxUint32 = uint32(math.MaxUint32)

// MustIntToUint32 converts int to uint32, panics on bounds violation.
// Use only when bounds violations are logically impossible.
func MustIntToUint32(v int) uint32 {
	if v < 0 || v > int(MaxUint32) {
		panic("safeconv: int to uint32 out of bounds")
	}

	return uint32(v)
}

// MustInt64ToUint64 converts int64 to uint64, panics if negative.
func MustInt64ToUint64(v int64) uint64 {
	if v < 0 {
		panic("safeconv: negative int64 to uint64 conversion")
	}

	return uint64(v)
}

// Uint64AsInt64 reinterprets the bits of v as a signed integer. Ids above
// math.MaxInt64 map to negative values and round-trip through Int64AsUint64.
func Uint64AsInt64(v uint64) int64 {
	return int64(v) //nolint:gosec // bit reinterpretation is the point.
}

// Int64AsUint64 is the inverse of Uint64AsInt64.
func Int64AsUint64(v int64) uint64 {
	return uint64(v) //nolint:gosec // bit reinterpretation is the point.
}
