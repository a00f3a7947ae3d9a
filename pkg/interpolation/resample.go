package interpolation

import (
	"errors"
	"math"
	"time"

	"github.com/vjranagit/tscore/pkg/provenance"
	"github.com/vjranagit/tscore/pkg/types"
)

// resampleGrid moves the series onto a target grid. A grid coarser than
// the input is bin-averaged; a finer one is evaluated with the inner method.
func (e *Engine) resampleGrid(values, t []float64, p Params) (*InterpResult, error) {
	start := time.Now()

	grid, err := e.buildGrid(t, p.Grid)
	if err != nil {
		return nil, err
	}

	inner := p
	inner.Method = p.Grid.Method

	vt, _ := validPoints(t, values)
	gridStep := p.Grid.Step
	if len(p.Grid.Timestamps) > 0 {
		gridStep = types.MedianSpacing(grid)
	}
	inputStep := types.MedianSpacing(vt)

	var res *InterpResult
	if len(grid) > 1 && inputStep > 0 && gridStep > inputStep {
		res, err = e.decimate(values, t, grid, inner)
	} else {
		res, err = e.resampleAt(OpInterpolate, values, t, grid, inner)
	}
	if err != nil {
		return nil, err
	}

	res.Metadata = types.NewMetadata(OpInterpolate, string(provenance.MethodResampleGrid), p.Summary(), start)
	e.logDone(res)
	return res, nil
}

// buildGrid returns the explicit grid clipped to the window, or a regular
// grid with the configured step over the window or the input span.
func (e *Engine) buildGrid(t []float64, g GridParams) ([]float64, error) {
	const op = OpInterpolate

	if len(g.Timestamps) > 0 {
		grid := make([]float64, 0, len(g.Timestamps))
		for _, x := range g.Timestamps {
			if g.Window == nil || g.Window.Contains(x) {
				grid = append(grid, x)
			}
		}
		if len(grid) == 0 {
			return nil, types.Precondition(op, "no grid timestamps fall inside the window")
		}
		return grid, nil
	}

	lo, hi := t[0], t[len(t)-1]
	if g.Window != nil {
		lo, hi = g.Window.Start, g.Window.End
	}

	count, err := types.GridCount(op, string(provenance.MethodResampleGrid), hi-lo, g.Step, e.maxGridPoints)
	if err != nil {
		var te *types.Error
		if errors.As(err, &te) {
			te.Hint = "use a larger step or a narrower window"
		}
		return nil, err
	}

	grid := make([]float64, count)
	for i := range grid {
		grid[i] = lo + float64(i)*g.Step
	}
	return grid, nil
}

// decimate averages the valid samples falling in each grid point's bin.
// Bins are bounded by the midpoints between neighbouring grid points.
// Empty bins are estimated with the inner method.
func (e *Engine) decimate(values, t, grid []float64, inner Params) (*InterpResult, error) {
	n := len(grid)
	res := &InterpResult{
		Timestamps:  types.CloneFloats(grid),
		Info:        provenance.NewInfo(n),
		SourceIndex: make([]int, n),
	}
	out := make([]float64, n)

	var pending []int
	var pendingTimes []float64

	i := 0
	for j, x := range grid {
		lower := x - (grid[1]-grid[0])/2
		if j > 0 {
			lower = (grid[j-1] + x) / 2
		}
		upper := x + (grid[n-1]-grid[n-2])/2
		if j < n-1 {
			upper = (x + grid[j+1]) / 2
		}

		for i < len(t) && t[i] < lower {
			i++
		}

		sum, count, src := 0.0, 0, -1
		for k := i; k < len(t) && (t[k] < upper || (j == n-1 && t[k] == upper)); k++ {
			if math.IsNaN(values[k]) {
				continue
			}
			if t[k] == x {
				src = k
			}
			sum += values[k]
			count++
		}

		switch {
		case src >= 0:
			out[j] = values[src]
			res.SourceIndex[j] = src
		case count > 0:
			out[j] = sum / float64(count)
			res.SourceIndex[j] = -1
			res.Info.Mark(j, provenance.MethodResampleGrid)
		default:
			res.SourceIndex[j] = -1
			pending = append(pending, j)
			pendingTimes = append(pendingTimes, x)
		}
	}

	if inner.Method == provenance.MethodGPR {
		res.Uncertainty = make([]float64, n)
		for j := range res.Uncertainty {
			if res.SourceIndex[j] < 0 {
				res.Uncertainty[j] = math.NaN()
			}
		}
	}

	if len(pending) > 0 {
		vt, vy := validPoints(t, values)
		if err := e.checkCost(OpInterpolate, inner, len(vt)); err != nil {
			return nil, err
		}
		est, err := e.estimate(OpInterpolate, vt, vy, pendingTimes, inner)
		if err != nil {
			return nil, err
		}
		res.DominantFrequencies, res.FrequencyPowers = est.freqs, est.powers
		for k, j := range pending {
			out[j] = est.values[k]
			if math.IsNaN(out[j]) {
				continue
			}
			res.Info.Mark(j, inner.Method)
			if res.Uncertainty != nil && est.std != nil {
				res.Uncertainty[j] = est.std[k]
			}
		}
	}

	q := types.CountQuality(out, res.Info.Interpolated)
	res.Values = out
	res.Quality = &q
	return res, nil
}
