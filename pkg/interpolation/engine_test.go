package interpolation

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vjranagit/tscore/pkg/cache"
	"github.com/vjranagit/tscore/pkg/provenance"
	"github.com/vjranagit/tscore/pkg/types"
)

func linspace(n int, step float64) []float64 {
	t := make([]float64, n)
	for i := range t {
		t[i] = float64(i) * step
	}
	return t
}

func sample(t []float64, f func(float64) float64) []float64 {
	v := make([]float64, len(t))
	for i, x := range t {
		v[i] = f(x)
	}
	return v
}

func TestInterpolateLinearSingleGap(t *testing.T) {
	ts := linspace(1000, 1)
	values := sample(ts, func(x float64) float64 { return 3*x + 1 })
	values[500] = math.NaN()

	res, err := NewEngine().Interpolate(context.Background(), values, ts, Params{Method: provenance.MethodLinear})
	require.NoError(t, err)

	require.Len(t, res.Values, 1000)
	assert.Equal(t, (values[499]+values[501])/2, res.Values[500])
	for i, interp := range res.Info.Interpolated {
		if i == 500 {
			assert.True(t, interp)
			assert.Equal(t, provenance.MethodLinear, res.Info.Methods[i])
			continue
		}
		assert.False(t, interp, "index %d", i)
		assert.Equal(t, values[i], res.Values[i])
	}
	assert.Equal(t, 1, res.Quality.Interpolated)
	assert.Equal(t, 0, res.Quality.NaN)
	assert.Equal(t, OpInterpolate, res.Metadata.Operation)
	assert.Equal(t, "linear", res.Metadata.Method)
	assert.NoError(t, res.Info.Validate(len(res.Values)))
}

func TestInterpolatePassThroughAllMethods(t *testing.T) {
	ts := linspace(100, 1)
	truth := sample(ts, func(x float64) float64 { return math.Sin(x / 10) })
	gaps := []int{10, 11, 50, 77}

	values := append([]float64(nil), truth...)
	for _, i := range gaps {
		values[i] = math.NaN()
	}

	tests := []struct {
		method provenance.Method
		tol    float64
	}{
		{provenance.MethodLinear, 0.02},
		{provenance.MethodSplineCubic, 1e-3},
		{provenance.MethodSmoothingSpline, 0.2},
		{provenance.MethodMLS, 1e-2},
		{provenance.MethodGPR, 1e-2},
		{provenance.MethodLombScargle, 0.25},
	}

	engine := NewEngine()
	for _, tt := range tests {
		t.Run(string(tt.method), func(t *testing.T) {
			res, err := engine.Interpolate(context.Background(), values, ts, DefaultParams(tt.method))
			require.NoError(t, err)
			require.Len(t, res.Values, len(values))

			isGap := map[int]bool{}
			for _, i := range gaps {
				isGap[i] = true
				assert.True(t, res.Info.Interpolated[i])
				assert.Equal(t, tt.method, res.Info.Methods[i])
				assert.InDelta(t, truth[i], res.Values[i], tt.tol)
			}
			for i := range values {
				if isGap[i] {
					continue
				}
				assert.Equal(t, values[i], res.Values[i])
				assert.False(t, res.Info.Interpolated[i])
				assert.Equal(t, provenance.MethodOriginal, res.Info.Methods[i])
			}
		})
	}
}

func TestExtrapolationPolicies(t *testing.T) {
	ts := linspace(6, 1)
	values := []float64{math.NaN(), 1, 2, 3, 4, math.NaN()}

	tests := []struct {
		policy      Extrapolation
		first, last float64
		nan         int
	}{
		{ExtrapolateNone, math.NaN(), math.NaN(), 2},
		{ExtrapolateNearest, 1, 4, 0},
		{ExtrapolateLinear, 0, 5, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			res, err := NewEngine().Interpolate(context.Background(), values, ts, Params{
				Method:        provenance.MethodLinear,
				Extrapolation: tt.policy,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.nan, res.Quality.NaN)
			if math.IsNaN(tt.first) {
				assert.True(t, math.IsNaN(res.Values[0]))
				assert.True(t, math.IsNaN(res.Values[5]))
				assert.False(t, res.Info.Interpolated[0])
				assert.Equal(t, -1, res.SourceIndex[0])
				return
			}
			assert.InDelta(t, tt.first, res.Values[0], 1e-12)
			assert.InDelta(t, tt.last, res.Values[5], 1e-12)
			assert.True(t, res.Info.Interpolated[0])
		})
	}
}

func TestLinearNeverFails(t *testing.T) {
	ts := linspace(3, 1)
	res, err := NewEngine().Interpolate(context.Background(), []float64{math.NaN(), math.NaN(), math.NaN()}, ts, Params{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Quality.NaN)
}

func TestCubicNeedsFourPoints(t *testing.T) {
	ts := linspace(5, 1)
	values := []float64{0, 1, math.NaN(), math.NaN(), 4}

	_, err := NewEngine().Interpolate(context.Background(), values, ts, Params{Method: provenance.MethodSplineCubic})
	require.ErrorIs(t, err, types.ErrInsufficientData)

	var te *types.Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 4, te.Required)
	assert.Equal(t, 3, te.Actual)
	assert.Equal(t, "spline_cubic", te.Method)
}

func TestGPRRefusesAboveCeiling(t *testing.T) {
	ts := linspace(20, 1)
	values := sample(ts, math.Sin)
	values[5] = math.NaN()

	engine := NewEngine(WithMaxGPRPoints(10))
	_, err := engine.Interpolate(context.Background(), values, ts, Params{Method: provenance.MethodGPR})
	assert.ErrorIs(t, err, types.ErrResourceLimit)
}

func TestSharedCacheKeepsEngineCeilings(t *testing.T) {
	c, err := cache.New(cache.DefaultOptions())
	require.NoError(t, err)
	defer c.Close()

	ts := linspace(20, 1)
	values := sample(ts, math.Sin)
	values[5] = math.NaN()
	p := Params{Method: provenance.MethodGPR}

	roomy := NewEngine(WithCache(c), WithMaxGPRPoints(5000))
	tight := NewEngine(WithCache(c), WithMaxGPRPoints(10))

	_, err = roomy.Interpolate(context.Background(), values, ts, p)
	require.NoError(t, err)
	_, err = tight.Interpolate(context.Background(), values, ts, p)
	require.ErrorIs(t, err, types.ErrResourceLimit)

	_, err = roomy.Resample(context.Background(), values, ts, []float64{2.5, 7.5}, p)
	require.NoError(t, err)
	_, err = tight.Resample(context.Background(), values, ts, []float64{2.5, 7.5}, p)
	require.ErrorIs(t, err, types.ErrResourceLimit)

	// an identically configured engine still shares entries
	twin := NewEngine(WithCache(c), WithMaxGPRPoints(5000))
	before := c.Stats().Computations
	_, err = twin.Interpolate(context.Background(), values, ts, p)
	require.NoError(t, err)
	assert.Equal(t, before, c.Stats().Computations)
}

func TestMLSLocalConstant(t *testing.T) {
	ts := linspace(21, 1)
	values := sample(ts, func(x float64) float64 { return x * x })
	values[10] = math.NaN()
	engine := NewEngine()

	quad, err := engine.Interpolate(context.Background(), values, ts, Params{Method: provenance.MethodMLS})
	require.NoError(t, err)
	assert.InDelta(t, 100, quad.Values[10], 1e-6)
	assert.Equal(t, 2, quad.Metadata.Parameters["degree"])

	p := Params{Method: provenance.MethodMLS, MLS: MLSParams{Degree: LocalConstant}}
	mean, err := engine.Interpolate(context.Background(), values, ts, p)
	require.NoError(t, err)
	assert.Greater(t, mean.Values[10], 101.0, "a weighted mean of a convex neighbourhood lies above it")
	assert.Equal(t, 0, mean.Metadata.Parameters["degree"])

	at, err := engine.Resample(context.Background(), values, ts, []float64{10}, p)
	require.NoError(t, err)
	assert.InDelta(t, mean.Values[10], at.Values[0], 1e-12)

	_, err = engine.Interpolate(context.Background(), values, ts, Params{Method: provenance.MethodMLS, MLS: MLSParams{Degree: -2}})
	assert.ErrorIs(t, err, types.ErrPrecondition)
}

func TestGPRUncertainty(t *testing.T) {
	ts := linspace(40, 1)
	values := sample(ts, func(x float64) float64 { return math.Cos(x / 5) })
	values[20] = math.NaN()
	values[21] = math.NaN()

	res, err := NewEngine().Interpolate(context.Background(), values, ts, Params{Method: provenance.MethodGPR})
	require.NoError(t, err)
	require.Len(t, res.Uncertainty, 40)

	assert.Zero(t, res.Uncertainty[0])
	assert.Greater(t, res.Uncertainty[20], 0.0)
	assert.Greater(t, res.Uncertainty[21], 0.0)
}

func TestDisabledAndUnknownMethods(t *testing.T) {
	ts := linspace(10, 1)
	values := sample(ts, math.Sin)

	engine := NewEngine(WithDisabled(provenance.MethodGPR, "numerical backend not installed"))
	_, err := engine.Interpolate(context.Background(), values, ts, Params{Method: provenance.MethodGPR})
	require.ErrorIs(t, err, types.ErrMethodUnavailable)
	assert.Contains(t, err.Error(), "numerical backend not installed")
	assert.NotContains(t, engine.Methods(), provenance.MethodGPR)

	_, err = engine.Interpolate(context.Background(), values, ts, Params{Method: "akima"})
	assert.ErrorIs(t, err, types.ErrMethodUnavailable)
}

func TestInterpolatePreconditions(t *testing.T) {
	engine := NewEngine()

	_, err := engine.Interpolate(context.Background(), []float64{1, 2}, []float64{0}, Params{})
	assert.ErrorIs(t, err, types.ErrPrecondition)

	_, err = engine.Interpolate(context.Background(), []float64{1, 2}, []float64{1, 1}, Params{})
	assert.ErrorIs(t, err, types.ErrPrecondition)

	_, err = engine.Interpolate(context.Background(), []float64{1, 2, 3, 4}, linspace(4, 1), Params{
		Method: provenance.MethodSmoothingSpline,
		Spline: SplineParams{Smoothing: 2},
	})
	assert.ErrorIs(t, err, types.ErrPrecondition)
}

func TestLombScargleDominantFrequency(t *testing.T) {
	const freq = 0.05
	ts := linspace(200, 1)
	values := sample(ts, func(x float64) float64 { return 2 * math.Sin(2*math.Pi*freq*x) })
	values[100] = math.NaN()

	res, err := NewEngine().Interpolate(context.Background(), values, ts, Params{
		Method:   provenance.MethodLombScargle,
		Spectral: SpectralParams{Frequencies: 1, Oversampling: 4},
	})
	require.NoError(t, err)
	require.Len(t, res.DominantFrequencies, 1)
	assert.InDelta(t, freq, res.DominantFrequencies[0], 1.0/(199*4))
	assert.InDelta(t, 2*math.Sin(2*math.Pi*freq*100), res.Values[100], 0.1)
}

func TestResampleGridDecimates(t *testing.T) {
	ts := linspace(100, 1)
	values := append([]float64(nil), ts...)

	res, err := NewEngine().Interpolate(context.Background(), values, ts, Params{
		Method: provenance.MethodResampleGrid,
		Grid: GridParams{
			Step:   10,
			Window: &types.TimeWindow{Start: 0.5, End: 99.5},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Values, 10)
	require.Len(t, res.Timestamps, 10)

	assert.InDelta(t, 2.5, res.Values[0], 1e-12)
	for j := 1; j < 10; j++ {
		assert.InDelta(t, res.Timestamps[j], res.Values[j], 1e-12, "bin %d", j)
		assert.Equal(t, provenance.MethodResampleGrid, res.Info.Methods[j])
	}
	assert.Equal(t, "resample_grid", res.Metadata.Method)
}

func TestResampleGridRefines(t *testing.T) {
	ts := linspace(11, 1)
	values := sample(ts, func(x float64) float64 { return 2 * x })

	res, err := NewEngine().Interpolate(context.Background(), values, ts, Params{
		Method: provenance.MethodResampleGrid,
		Grid:   GridParams{Step: 0.5},
	})
	require.NoError(t, err)
	require.Len(t, res.Values, 21)

	for j, x := range res.Timestamps {
		assert.InDelta(t, 2*x, res.Values[j], 1e-12)
		if j%2 == 0 {
			assert.False(t, res.Info.Interpolated[j])
			assert.Equal(t, j/2, res.SourceIndex[j])
		} else {
			assert.Equal(t, provenance.MethodLinear, res.Info.Methods[j])
		}
	}
}

func TestResampleGridCeiling(t *testing.T) {
	ts := linspace(10, 1)
	_, err := NewEngine(WithMaxGridPoints(100)).Interpolate(context.Background(), ts, ts, Params{
		Method: provenance.MethodResampleGrid,
		Grid:   GridParams{Step: 0.01},
	})
	assert.ErrorIs(t, err, types.ErrResourceLimit)
}

func TestResampleGridTinyStep(t *testing.T) {
	c, err := cache.New(cache.DefaultOptions())
	require.NoError(t, err)
	defer c.Close()

	ts := linspace(10, 1)
	p := Params{Method: provenance.MethodResampleGrid, Grid: GridParams{Step: 1e-300}}
	for _, e := range []*Engine{
		NewEngine(WithMaxGridPoints(100)),
		NewEngine(WithMaxGridPoints(0)),
		NewEngine(WithCache(c)),
	} {
		_, err := e.Interpolate(context.Background(), ts, ts, p)
		require.ErrorIs(t, err, types.ErrResourceLimit)

		var te *types.Error
		require.True(t, errors.As(err, &te))
		assert.Equal(t, math.MaxInt, te.Actual)
		assert.NotEmpty(t, te.Hint)
	}
}

func TestResampleQuery(t *testing.T) {
	ts := []float64{0, 1, 3, 4}
	values := []float64{0, 10, 30, 40}

	res, err := NewEngine().Resample(context.Background(), values, ts, []float64{-1, 1, 2, 5}, Params{Method: provenance.MethodLinear})
	require.NoError(t, err)

	assert.True(t, math.IsNaN(res.Values[0]))
	assert.Equal(t, 10.0, res.Values[1])
	assert.False(t, res.Info.Interpolated[1])
	assert.InDelta(t, 20, res.Values[2], 1e-12)
	assert.True(t, res.Info.Interpolated[2])
	assert.True(t, math.IsNaN(res.Values[3]))
	assert.Equal(t, OpResample, res.Metadata.Operation)
}

func TestInterpolateUsesCache(t *testing.T) {
	c, err := cache.New(cache.DefaultOptions())
	require.NoError(t, err)
	defer c.Close()

	ts := linspace(50, 1)
	values := sample(ts, math.Sqrt)
	values[25] = math.NaN()

	engine := NewEngine(WithCache(c))
	first, err := engine.Interpolate(context.Background(), values, ts, Params{Method: provenance.MethodSplineCubic})
	require.NoError(t, err)
	second, err := engine.Interpolate(context.Background(), values, ts, Params{Method: provenance.MethodSplineCubic})
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int64(1), c.Stats().Computations)

	// a different method is a different key
	_, err = engine.Interpolate(context.Background(), values, ts, Params{Method: provenance.MethodLinear})
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.Stats().Computations)
}

func TestInterpolateSeriesKeepsEarlierProvenance(t *testing.T) {
	s, err := provenance.NewSeries("temp", "C", linspace(6, 1), []float64{0, 1, math.NaN(), 3, math.NaN(), 5})
	require.NoError(t, err)
	// pretend index 1 was filled by an earlier pass
	s.Info.Mark(1, provenance.MethodGPR)

	engine := NewEngine()
	derived, res, err := engine.InterpolateSeries(context.Background(), s, Params{Method: provenance.MethodLinear})
	require.NoError(t, err)

	require.True(t, derived.IsDerived())
	assert.Equal(t, []provenance.ID{s.ID}, derived.Lineage.Origins)
	assert.Equal(t, OpInterpolate, derived.Lineage.Operation)
	assert.Equal(t, "linear", derived.Lineage.Parameters["method"])

	assert.Equal(t, provenance.MethodGPR, derived.Info.Methods[1])
	assert.Equal(t, provenance.MethodLinear, derived.Info.Methods[2])
	assert.Equal(t, provenance.MethodLinear, derived.Info.Methods[4])
	assert.False(t, res.Info.Interpolated[1])
	assert.Equal(t, 0, derived.Gaps())
}

func TestDerivedLineageDoesNotAliasCache(t *testing.T) {
	c, err := cache.New(cache.DefaultOptions())
	require.NoError(t, err)
	defer c.Close()

	s, err := provenance.NewSeries("temp", "C", linspace(5, 1), []float64{0, 1, math.NaN(), 3, 4})
	require.NoError(t, err)
	engine := NewEngine(WithCache(c))
	p := Params{Method: provenance.MethodLinear}

	first, res, err := engine.InterpolateSeries(context.Background(), s, p)
	require.NoError(t, err)
	first.Lineage.Parameters["method"] = "tampered"
	delete(first.Lineage.Parameters, "extrapolation")

	assert.Equal(t, "linear", res.Metadata.Parameters["method"])
	assert.Contains(t, res.Metadata.Parameters, "extrapolation")

	second, _, err := engine.InterpolateSeries(context.Background(), s, p)
	require.NoError(t, err)
	assert.Equal(t, "linear", second.Lineage.Parameters["method"])
	assert.Equal(t, "none", second.Lineage.Parameters["extrapolation"])
}

func TestInterpolateSeriesTagsErrors(t *testing.T) {
	s, err := provenance.NewSeries("x", "", linspace(3, 1), []float64{0, math.NaN(), 2})
	require.NoError(t, err)

	_, _, err = NewEngine().InterpolateSeries(context.Background(), s, Params{Method: provenance.MethodSplineCubic})
	var te *types.Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, string(s.ID), te.Series)
}
