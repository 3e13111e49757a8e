package lsh

import (
	"encoding/binary"

	"github.com/Sumatoshi-tech/narrowdown/pkg/alg/hashutil"
	"github.com/Sumatoshi-tech/narrowdown/pkg/alg/minhash"
)

// bandSeparator joins the band rows and the exact-match key.
const bandSeparator = '-'

// BandHash merges one band of a fingerprint into a single bucket hash:
// murmur3 over the little-endian bytes of rows, followed by "-" and
// exactPart when exactPart is non-empty. Documents with different exact
// parts therefore never share a bucket.
func BandHash(rows []uint32, exactPart string) uint32 {
	buf := make([]byte, 0, len(rows)*4+1+len(exactPart))

	for _, v := range rows {
		buf = binary.LittleEndian.AppendUint32(buf, v)
	}

	if exactPart != "" {
		buf = append(buf, bandSeparator)
		buf = append(buf, exactPart...)
	}

	return hashutil.Murmur3x86_32(buf)
}

// BandHashes returns the bucket hash of every band of fp under cfg.
// Hashes beyond NumBands*RowsPerBand are ignored.
func BandHashes(cfg Config, fp minhash.Fingerprint, exactPart string) ([]uint32, error) {
	need := cfg.NumBands * cfg.RowsPerBand
	if len(fp) < need {
		return nil, sizeMismatch(len(fp), need)
	}

	hashes := make([]uint32, cfg.NumBands)

	for band := range cfg.NumBands {
		start := band * cfg.RowsPerBand
		hashes[band] = BandHash(fp[start:start+cfg.RowsPerBand], exactPart)
	}

	return hashes, nil
}
