package quad

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testDelta = 1e-9

func TestIntegrate_Polynomial(t *testing.T) {
	t.Parallel()

	// Exact for polynomials up to degree 22 in a single K15 step.
	got := Integrate(func(x float64) float64 { return 3 * x * x }, 0, 2)

	assert.InDelta(t, 8.0, got, testDelta)
}

func TestIntegrate_Sine(t *testing.T) {
	t.Parallel()

	got := Integrate(math.Sin, 0, math.Pi)

	assert.InDelta(t, 2.0, got, testDelta)
}

func TestIntegrate_SharpPeakNeedsSubdivision(t *testing.T) {
	t.Parallel()

	f := func(x float64) float64 { return 1 / (1e-4 + x*x) }
	want := 2 / math.Sqrt(1e-4) * math.Atan(1/math.Sqrt(1e-4))

	res := IntegrateWithOptions(f, -1, 1, Options{})

	assert.InDelta(t, want, res.Value, 1e-6)
	assert.Greater(t, res.Intervals, 1)
}

func TestIntegrate_EqualBoundsIsZero(t *testing.T) {
	t.Parallel()

	called := false
	f := func(float64) float64 {
		called = true

		return math.NaN()
	}

	assert.Zero(t, Integrate(f, 0.3, 0.3))
	assert.False(t, called)
}

func TestIntegrate_ReversedBounds(t *testing.T) {
	t.Parallel()

	f := func(x float64) float64 { return x }

	assert.InDelta(t, -0.5, Integrate(f, 1, 0), testDelta)
}

func TestIntegrate_NaNPropagatesWithoutHanging(t *testing.T) {
	t.Parallel()

	res := IntegrateWithOptions(func(float64) float64 { return math.NaN() }, 0, 1, Options{MaxIntervals: 10})

	assert.True(t, math.IsNaN(res.Value))
	assert.LessOrEqual(t, res.Intervals, 10)
}

func TestIntegrate_Deterministic(t *testing.T) {
	t.Parallel()

	f := func(x float64) float64 { return math.Exp(-x * x) }

	assert.Equal(t, Integrate(f, -3, 3), Integrate(f, -3, 3))
}
