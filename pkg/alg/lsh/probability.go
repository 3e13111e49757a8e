package lsh

import (
	"math"

	"github.com/Sumatoshi-tech/narrowdown/pkg/alg/quad"
)

// SCurve is the probability that two documents with Jaccard similarity s
// share at least one bucket under a bands x rows banding:
// 1 - (1 - s^rows)^bands.
func SCurve(s float64, bands, rows int) float64 {
	return 1 - math.Pow(1-math.Pow(s, float64(rows)), float64(bands))
}

// FalsePositiveProbability integrates SCurve over [0, threshold]: the
// weight of pairs below the threshold that still become candidates.
//
// Degenerate parameters are not rejected; bands or rows <= 0 yield
// whatever the IEEE arithmetic produces.
func FalsePositiveProbability(threshold float64, bands, rows int) float64 {
	return quad.Integrate(func(s float64) float64 {
		return SCurve(s, bands, rows)
	}, 0, threshold)
}

// FalseNegativeProbability integrates 1 - SCurve over [threshold, 1]: the
// weight of pairs above the threshold that never share a bucket.
func FalseNegativeProbability(threshold float64, bands, rows int) float64 {
	return quad.Integrate(func(s float64) float64 {
		return 1 - SCurve(s, bands, rows)
	}, threshold, 1)
}
