package synchronize

import (
	"context"
	"errors"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vjranagit/tscore/pkg/cache"
	"github.com/vjranagit/tscore/pkg/provenance"
	"github.com/vjranagit/tscore/pkg/types"
)

func series(start, step float64, n int, f func(float64) float64) ([]float64, []float64) {
	t := make([]float64, n)
	v := make([]float64, n)
	for i := range t {
		t[i] = start + float64(i)*step
		v[i] = f(t[i])
	}
	return t, v
}

func twoSeries() (values, times map[string][]float64) {
	ta, va := series(0, 1, 5, func(x float64) float64 { return 2 * x })
	tb, vb := series(0.5, 2, 3, func(x float64) float64 { return x + 0.5 })
	return map[string][]float64{"a": va, "b": vb}, map[string][]float64{"a": ta, "b": tb}
}

func TestCommonGridUsesSparsestDensity(t *testing.T) {
	values, times := twoSeries()

	res, err := NewEngine().Synchronize(context.Background(), values, times, DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 2, 4}, res.Timestamps)
	assert.Equal(t, []float64{0, 4, 8}, res.Values["a"])
	assert.Equal(t, []bool{false, false, false}, res.Info["a"].Interpolated)

	b := res.Values["b"]
	assert.True(t, math.IsNaN(b[0]), "before the first sample of b")
	assert.InDelta(t, 2.5, b[1], 1e-12)
	assert.InDelta(t, 4.5, b[2], 1e-12)
	assert.Equal(t, []bool{false, true, true}, res.Info["b"].Interpolated)
	assert.Equal(t, 1, res.Quality["b"].NaN)
	assert.Equal(t, 2, res.Quality["b"].Interpolated)

	assert.Equal(t, 0.0, res.AlignmentError)
	assert.Equal(t, 1.0, res.Confidence)
	assert.Equal(t, OpSynchronize, res.Metadata.Operation)
	assert.Equal(t, string(CommonGrid), res.Metadata.Method)
}

func TestCommonGridFrequencyAndWindow(t *testing.T) {
	values, times := twoSeries()

	p := DefaultParams()
	p.Frequency = 2
	res, err := NewEngine().Synchronize(context.Background(), values, times, p)
	require.NoError(t, err)
	assert.Len(t, res.Timestamps, 10)
	assert.Equal(t, 0.0, res.Timestamps[0])
	assert.Equal(t, 4.5, res.Timestamps[9])
	for name, v := range res.Values {
		assert.Len(t, v, 10, name)
	}

	p.Frequency = 1
	p.Window = &types.TimeWindow{Start: 1, End: 3}
	res, err = NewEngine().Synchronize(context.Background(), values, times, p)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, res.Timestamps)
	assert.Equal(t, []float64{2, 4, 6}, res.Values["a"])
}

func TestGridCeiling(t *testing.T) {
	values, times := twoSeries()

	p := DefaultParams()
	p.Frequency = 10
	_, err := NewEngine(WithMaxGridPoints(5)).Synchronize(context.Background(), values, times, p)
	require.ErrorIs(t, err, types.ErrResourceLimit)

	var te *types.Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 5, te.Required)
	assert.Equal(t, 46, te.Actual)
	assert.NotEmpty(t, te.Hint)
}

func TestGridCeilingHugeFrequency(t *testing.T) {
	values, times := twoSeries()

	p := DefaultParams()
	p.Frequency = 1e300

	c, err := cache.New(cache.DefaultOptions())
	require.NoError(t, err)
	defer c.Close()

	for _, e := range []*Engine{
		NewEngine(WithMaxGridPoints(5)),
		NewEngine(WithMaxGridPoints(0)),
		NewEngine(WithCache(c)),
	} {
		_, err := e.Synchronize(context.Background(), values, times, p)
		require.ErrorIs(t, err, types.ErrResourceLimit)

		var te *types.Error
		require.True(t, errors.As(err, &te))
		assert.Equal(t, math.MaxInt, te.Actual)
		assert.NotEmpty(t, te.Hint)
	}
}

func TestKalmanTracksLines(t *testing.T) {
	ta, va := series(0, 1, 11, func(x float64) float64 { return 1 + 2*x })
	tb, vb := series(0.5, 1, 10, func(x float64) float64 { return 3 - x })
	values := map[string][]float64{"a": va, "b": vb}
	times := map[string][]float64{"a": ta, "b": tb}

	res, err := NewEngine().Synchronize(context.Background(), values, times, Params{Method: KalmanAlign})
	require.NoError(t, err)

	// merged event timeline
	require.Len(t, res.Timestamps, 21)
	for i, x := range res.Timestamps {
		assert.InDelta(t, 1+2*x, res.Values["a"][i], 1e-6, "a at t=%v", x)
		assert.True(t, res.Info["a"].Interpolated[i])
		assert.Equal(t, provenance.MethodKalman, res.Info["a"].Methods[i])

		if x < 0.5 || x > 9.5 {
			assert.True(t, math.IsNaN(res.Values["b"][i]), "b outside its range at t=%v", x)
			assert.False(t, res.Info["b"].Interpolated[i])
			continue
		}
		assert.InDelta(t, 3-x, res.Values["b"][i], 1e-6, "b at t=%v", x)
	}

	assert.GreaterOrEqual(t, res.Confidence, 0.0)
	assert.LessOrEqual(t, res.Confidence, 1.0)
	assert.InDelta(t, 0, res.AlignmentError, 1e-6)
	assert.Equal(t, string(KalmanAlign), res.Metadata.Method)
}

func TestKalmanNoisyReportsUncertainty(t *testing.T) {
	ta, va := series(0, 0.1, 200, func(x float64) float64 { return math.Sin(x) })
	tb, vb := series(0.05, 0.13, 150, func(x float64) float64 { return math.Cos(x) })
	for i := range va {
		va[i] += 0.2 * math.Sin(float64(i)*37.1)
	}
	for i := range vb {
		vb[i] += 0.2 * math.Cos(float64(i)*11.3)
	}

	res, err := NewEngine().Synchronize(context.Background(),
		map[string][]float64{"a": va, "b": vb},
		map[string][]float64{"a": ta, "b": tb},
		Params{Method: KalmanAlign, Frequency: 5})
	require.NoError(t, err)

	assert.Greater(t, res.AlignmentError, 0.0)
	assert.Greater(t, res.Confidence, 0.0)
	assert.Less(t, res.Confidence, 1.0)
	want, err := types.GridCount(OpSynchronize, string(KalmanAlign), ta[len(ta)-1], 0.2, 0)
	require.NoError(t, err)
	assert.Equal(t, want, len(res.Timestamps))
}

func TestKalmanInsufficientData(t *testing.T) {
	values := map[string][]float64{"a": {1, 2, 3}, "lonely": {4, math.NaN()}}
	times := map[string][]float64{"a": {0, 1, 2}, "lonely": {0.5, 1.5}}

	_, err := NewEngine().Synchronize(context.Background(), values, times, Params{Method: KalmanAlign})
	require.ErrorIs(t, err, types.ErrInsufficientData)

	var te *types.Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "lonely", te.Series)
}

func TestPreconditions(t *testing.T) {
	engine := NewEngine()
	ctx := context.Background()

	_, err := engine.Synchronize(ctx, nil, nil, DefaultParams())
	assert.ErrorIs(t, err, types.ErrPrecondition)

	_, err = engine.Synchronize(ctx,
		map[string][]float64{"a": {1, 2}}, map[string][]float64{"a": {0, 1, 2}}, DefaultParams())
	require.ErrorIs(t, err, types.ErrPrecondition)
	var te *types.Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "a", te.Series)

	_, err = engine.Synchronize(ctx,
		map[string][]float64{"a": {1, 2}}, map[string][]float64{"b": {0, 1}}, DefaultParams())
	assert.ErrorIs(t, err, types.ErrPrecondition)

	values, times := twoSeries()
	p := DefaultParams()
	p.Window = &types.TimeWindow{Start: 100, End: 200}
	_, err = engine.Synchronize(ctx, values, times, p)
	assert.ErrorIs(t, err, types.ErrPrecondition)

	p = DefaultParams()
	p.Frequency = -1
	_, err = engine.Synchronize(ctx, values, times, p)
	assert.ErrorIs(t, err, types.ErrPrecondition)

	_, err = engine.Synchronize(ctx, values, times, Params{Method: "dtw"})
	assert.ErrorIs(t, err, types.ErrMethodUnavailable)
}

// holdLast carries the latest sample forward
type holdLast struct{}

const holdMethod provenance.Method = "hold_last"

func (holdLast) Name() Method { return "hold_last" }

func (holdLast) Align(_ context.Context, in *Input) (*Alignment, error) {
	out := &Alignment{
		Values:     make(map[string][]float64),
		Info:       make(map[string]provenance.InterpolationInfo),
		Confidence: 0.5,
	}
	for _, name := range in.Names {
		t, v := in.Times[name], in.Values[name]
		vals := make([]float64, len(in.Grid))
		info := provenance.NewInfo(len(in.Grid))
		for g, x := range in.Grid {
			i := sort.SearchFloat64s(t, x)
			switch {
			case i < len(t) && t[i] == x:
				vals[g] = v[i]
			case i == 0:
				vals[g] = math.NaN()
			default:
				vals[g] = v[i-1]
				info.Mark(g, holdMethod)
			}
		}
		out.Values[name] = vals
		out.Info[name] = info
	}
	return out, nil
}

func TestRegisterStrategy(t *testing.T) {
	engine := NewEngine()
	require.NoError(t, engine.RegisterStrategy(holdLast{}))
	assert.ErrorIs(t, engine.RegisterStrategy(holdLast{}), types.ErrPrecondition)
	assert.Contains(t, engine.Methods(), Method("hold_last"))

	values, times := twoSeries()
	res, err := engine.Synchronize(context.Background(), values, times, Params{Method: "hold_last", Frequency: 1})
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 1, 2, 3, 4}, res.Timestamps)
	assert.Equal(t, 0.5, res.Confidence)
	b := res.Values["b"]
	assert.True(t, math.IsNaN(b[0]))
	assert.Equal(t, []float64{1, 1, 3, 3}, b[1:])
	assert.Equal(t, holdMethod, res.Info["b"].Methods[1])
}

// brokenStrategy returns fewer points than the grid
type brokenStrategy struct{}

func (brokenStrategy) Name() Method { return "broken" }

func (brokenStrategy) Align(_ context.Context, in *Input) (*Alignment, error) {
	out := &Alignment{Values: map[string][]float64{}, Confidence: 1}
	for _, name := range in.Names {
		out.Values[name] = []float64{1}
	}
	return out, nil
}

func TestMalformedStrategyOutputRejected(t *testing.T) {
	engine := NewEngine()
	require.NoError(t, engine.RegisterStrategy(brokenStrategy{}))

	values, times := twoSeries()
	_, err := engine.Synchronize(context.Background(), values, times, Params{Method: "broken"})
	assert.ErrorIs(t, err, types.ErrNumericDegeneracy)
}

func TestSynchronizeSeries(t *testing.T) {
	ts := []float64{0, 1, 2, 3}
	s1, err := provenance.NewSeries("left", "V", ts, []float64{0, 1, 2, 3})
	require.NoError(t, err)
	s1.Info.Mark(2, provenance.MethodGPR)
	s2, err := provenance.NewSeries("right", "A", []float64{0.5, 1.5, 2.5}, []float64{5, 5, 5})
	require.NoError(t, err)

	p := DefaultParams()
	p.Frequency = 1
	out, res, err := NewEngine().SynchronizeSeries(context.Background(), []*provenance.Series{s1, s2}, p)
	require.NoError(t, err)
	require.Len(t, out, 2)

	left := out[0]
	assert.Equal(t, "left", left.Name)
	assert.Equal(t, "V", left.Unit)
	assert.Equal(t, []provenance.ID{s1.ID}, left.Lineage.Origins)
	assert.Equal(t, OpSynchronize, left.Lineage.Operation)
	assert.Equal(t, res.Timestamps, left.Timestamps)
	assert.True(t, left.Info.Interpolated[2])
	assert.Equal(t, provenance.MethodGPR, left.Info.Methods[2])

	right := out[1]
	assert.True(t, math.IsNaN(right.Values[0]))
	assert.Equal(t, 5.0, right.Values[1])
	assert.Equal(t, provenance.MethodLinear, right.Info.Methods[1])

	_, _, err = NewEngine().SynchronizeSeries(context.Background(), []*provenance.Series{s1, s1}, p)
	assert.ErrorIs(t, err, types.ErrPrecondition)
}

func TestSynchronizeUsesCache(t *testing.T) {
	c, err := cache.New(cache.DefaultOptions())
	require.NoError(t, err)
	defer c.Close()

	values, times := twoSeries()
	engine := NewEngine(WithCache(c))

	first, err := engine.Synchronize(context.Background(), values, times, Params{Method: KalmanAlign})
	require.NoError(t, err)
	second, err := engine.Synchronize(context.Background(), values, times, Params{Method: KalmanAlign})
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, int64(1), c.Stats().Computations)
}
