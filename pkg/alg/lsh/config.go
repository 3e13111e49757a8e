package lsh

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// minHashes is the hash count the optimal-config search starts from.
	minHashes = 2

	// maxHashes caps the optimal-config search.
	maxHashes = 16384
)

var (
	// ErrInvalidArgument is returned for out-of-range thresholds,
	// probabilities, or band layouts.
	ErrInvalidArgument = errors.New("lsh: invalid argument")

	// ErrBoundsUnreachable is returned together with the best configuration
	// found when the requested error bounds cannot be met. It is a warning:
	// the configuration is still usable.
	ErrBoundsUnreachable = errors.New("lsh: error bounds unreachable")
)

// Config is the MinHash LSH layout: how many hash functions make up a
// fingerprint and how they are split into bands.
type Config struct {
	NumHashes   int `json:"n_hashes" yaml:"n_hashes"`
	NumBands    int `json:"n_bands" yaml:"n_bands"`
	RowsPerBand int `json:"rows_per_band" yaml:"rows_per_band"`
}

// Validate checks that the bands fit into the fingerprint.
func (c Config) Validate() error {
	if c.NumBands <= 0 || c.RowsPerBand <= 0 {
		return fmt.Errorf("%w: bands (%d) and rows per band (%d) must be positive",
			ErrInvalidArgument, c.NumBands, c.RowsPerBand)
	}

	if c.NumBands*c.RowsPerBand > c.NumHashes {
		return fmt.Errorf("%w: %d bands x %d rows exceed %d hashes",
			ErrInvalidArgument, c.NumBands, c.RowsPerBand, c.NumHashes)
	}

	return nil
}

// FalsePositiveProbability returns the false positive weight of c at threshold.
func (c Config) FalsePositiveProbability(threshold float64) float64 {
	return FalsePositiveProbability(threshold, c.NumBands, c.RowsPerBand)
}

// FalseNegativeProbability returns the false negative weight of c at threshold.
func (c Config) FalseNegativeProbability(threshold float64) float64 {
	return FalseNegativeProbability(threshold, c.NumBands, c.RowsPerBand)
}

// JSON encodes c for the settings table.
func (c Config) JSON() string {
	b, _ := json.Marshal(c) //nolint:errchkjson // plain ints always marshal.

	return string(b)
}

// ParseConfig decodes a configuration written by Config.JSON.
func ParseConfig(s string) (Config, error) {
	var c Config

	if err := json.Unmarshal([]byte(s), &c); err != nil {
		return Config{}, fmt.Errorf("%w: config: %w", ErrInvalidArgument, err)
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	return c, nil
}

// FindOptimalConfig searches for the smallest layout that keeps both error
// probabilities at threshold within the given bounds.
//
// The hash count doubles from 2 up to 16384. For each count the smallest
// band count whose false negative probability is within bound is taken,
// with rows = hashes / bands. The search stops at the first count whose
// false positive probability is also within bound.
//
// When no layout meets both bounds the last attempt is returned together
// with ErrBoundsUnreachable.
func FindOptimalConfig(threshold, maxFalseNegative, maxFalsePositive float64) (Config, error) {
	for name, v := range map[string]float64{
		"threshold":          threshold,
		"max false negative": maxFalseNegative,
		"max false positive": maxFalsePositive,
	} {
		if !(v >= 0 && v <= 1) {
			return Config{}, fmt.Errorf("%w: %s %v not in [0, 1]", ErrInvalidArgument, name, v)
		}
	}

	var (
		cfg  Config
		fnOK bool
		fpOK bool
	)

	for n := minHashes; n <= maxHashes; n *= 2 {
		cfg, fnOK = bandsForFalseNegative(threshold, n, maxFalseNegative)

		fpOK = cfg.FalsePositiveProbability(threshold) <= maxFalsePositive
		if fpOK {
			break
		}
	}

	if !fnOK || !fpOK {
		return cfg, fmt.Errorf("%w: threshold %v, false negative <= %v, false positive <= %v",
			ErrBoundsUnreachable, threshold, maxFalseNegative, maxFalsePositive)
	}

	return cfg, nil
}

// bandsForFalseNegative picks the smallest band count meeting the false
// negative bound for numHashes. Without one it maximizes the band count.
func bandsForFalseNegative(threshold float64, numHashes int, maxFalseNegative float64) (Config, bool) {
	for bands := 1; bands <= numHashes; bands++ {
		rows := numHashes / bands

		if FalseNegativeProbability(threshold, bands, rows) <= maxFalseNegative {
			return Config{NumHashes: numHashes, NumBands: bands, RowsPerBand: rows}, true
		}
	}

	return Config{NumHashes: numHashes, NumBands: numHashes, RowsPerBand: 1}, false
}
