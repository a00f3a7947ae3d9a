package interpolation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplineInterpolatesKnots(t *testing.T) {
	x := []float64{0, 0.5, 2, 3, 4.5, 6}
	y := []float64{1, -1, 2, 0, 3, 1}

	s, err := FitSpline(x, y, 0)
	require.NoError(t, err)
	for i := range x {
		assert.InDelta(t, y[i], s.Eval(x[i], 0), 1e-9)
	}
	// natural boundary
	assert.InDelta(t, 0, s.Eval(x[0], 2), 1e-9)
	assert.InDelta(t, 0, s.Eval(x[len(x)-1], 2), 1e-9)
}

func TestSplineReproducesLines(t *testing.T) {
	x := []float64{0, 1, 2.5, 3, 7}
	y := make([]float64, len(x))
	for i := range x {
		y[i] = 2*x[i] - 1
	}

	for _, smoothing := range []float64{0, 0.3, 1} {
		s, err := FitSpline(x, y, smoothing)
		require.NoError(t, err)
		for _, q := range []float64{0.2, 1.7, 4, 6.9} {
			assert.InDelta(t, 2*q-1, s.Eval(q, 0), 1e-9)
			assert.InDelta(t, 2, s.Eval(q, 1), 1e-9)
			assert.InDelta(t, 0, s.Eval(q, 2), 1e-9)
			assert.InDelta(t, 0, s.Eval(q, 3), 1e-9)
		}
	}
}

func TestSplineFullSmoothingIsLeastSquaresLine(t *testing.T) {
	x := []float64{0, 1, 2, 3, 4, 5}
	y := []float64{0, 1, 0, 1, 0, 1}

	s, err := FitSpline(x, y, 1)
	require.NoError(t, err)

	coef, err := PolyFit(x, y, nil, 1)
	require.NoError(t, err)
	for _, q := range x {
		assert.InDelta(t, coef[0]+coef[1]*q, s.Eval(q, 0), 1e-9)
	}
}

func TestSplineDerivativesOfCubic(t *testing.T) {
	// the natural end conditions only matter near the boundary
	x := linspace(201, 0.05)
	y := make([]float64, len(x))
	for i, v := range x {
		y[i] = math.Sin(v)
	}

	s, err := FitSpline(x, y, 0)
	require.NoError(t, err)
	for _, q := range []float64{3, 5, 7} {
		assert.InDelta(t, math.Cos(q), s.Eval(q, 1), 1e-4)
		assert.InDelta(t, -math.Sin(q), s.Eval(q, 2), 1e-3)
		assert.InDelta(t, -math.Cos(q), s.Eval(q, 3), 5e-2)
	}
}

func TestFitSplineRejectsBadInput(t *testing.T) {
	_, err := FitSpline([]float64{0}, []float64{1}, 0)
	assert.Error(t, err)
	_, err = FitSpline([]float64{0, 1}, []float64{1}, 0)
	assert.Error(t, err)
	_, err = FitSpline([]float64{0, 1, 2}, []float64{1, 2, 3}, 1.5)
	assert.Error(t, err)
}

func TestPolyFitRecoversQuadratic(t *testing.T) {
	x := []float64{-2, -1, 0, 1, 2, 3}
	y := make([]float64, len(x))
	for i, v := range x {
		y[i] = 1 - 2*v + 0.5*v*v
	}

	coef, err := PolyFit(x, y, nil, 2)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, -2, 0.5}, coef, 1e-10)

	_, err = PolyFit([]float64{1, 1, 1}, []float64{1, 2, 3}, nil, 1)
	assert.Error(t, err, "rank deficient")
}

func TestNearestWindow(t *testing.T) {
	ts := []float64{0, 1, 2, 3, 4, 5, 6, 7}

	tests := []struct {
		name   string
		x      float64
		w      int
		lo, hi int
	}{
		{"centered", 3.5, 4, 2, 6},
		{"left edge", -1, 3, 0, 3},
		{"right edge", 10, 3, 5, 8},
		{"whole series", 2, 20, 0, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi := nearestWindow(ts, tt.x, tt.w)
			assert.Equal(t, tt.lo, lo)
			assert.Equal(t, tt.hi, hi)
		})
	}
}
