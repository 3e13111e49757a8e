package lsh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/narrowdown/pkg/alg/minhash"
)

func TestBandHash_KnownValues(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint32(3278122630), BandHash([]uint32{1, 2}, ""))
	assert.Equal(t, uint32(2182385902), BandHash([]uint32{1, 2}, "x"))
	assert.Equal(t, uint32(0), BandHash(nil, ""))
	assert.Equal(t, uint32(2712482029), BandHash(nil, "x"))
}

func TestBandHash_ExactPartSeparates(t *testing.T) {
	t.Parallel()

	rows := []uint32{7, 8, 9}

	assert.NotEqual(t, BandHash(rows, "a"), BandHash(rows, "b"))
	assert.NotEqual(t, BandHash(rows, ""), BandHash(rows, "a"))
}

func TestBandHashes(t *testing.T) {
	t.Parallel()

	cfg := Config{NumHashes: 5, NumBands: 2, RowsPerBand: 2}
	fp := minhash.Fingerprint{1, 2, 1, 2, 99}

	hashes, err := BandHashes(cfg, fp, "")

	require.NoError(t, err)
	require.Len(t, hashes, 2)
	assert.Equal(t, hashes[0], hashes[1])
	assert.Equal(t, BandHash([]uint32{1, 2}, ""), hashes[0])
}

func TestBandHashes_TooShort(t *testing.T) {
	t.Parallel()

	cfg := Config{NumHashes: 6, NumBands: 3, RowsPerBand: 2}

	_, err := BandHashes(cfg, minhash.Fingerprint{1, 2, 3}, "")

	require.ErrorIs(t, err, ErrSizeMismatch)
}
