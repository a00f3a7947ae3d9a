package synchronize

import (
	"context"
	"math"
	"sort"

	"github.com/vjranagit/tscore/pkg/provenance"
	"github.com/vjranagit/tscore/pkg/types"
)

// Input is what a strategy aligns. Names are sorted; every map is keyed by
// them. Grid is the common time base the strategy must fill.
type Input struct {
	Names  []string
	Times  map[string][]float64
	Values map[string][]float64
	Grid   []float64
	Params Params
}

// Alignment is a strategy's output: one grid-aligned array per input,
// NaN where the series has no estimate.
type Alignment struct {
	Values         map[string][]float64
	Info           map[string]provenance.InterpolationInfo
	AlignmentError float64
	Confidence     float64
}

// Strategy aligns several series onto a common time base. Implementations
// must be safe for concurrent use.
type Strategy interface {
	Name() Method
	Align(ctx context.Context, in *Input) (*Alignment, error)
}

// GridBuilder is implemented by strategies that choose their own default
// time base. span bounds the grid.
type GridBuilder interface {
	DefaultGrid(in *Input, span types.TimeWindow) []float64
}

// span returns the union of the input ranges clipped to the window
func span(in *Input, window *types.TimeWindow) (types.TimeWindow, bool) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, name := range in.Names {
		t := in.Times[name]
		lo = math.Min(lo, t[0])
		hi = math.Max(hi, t[len(t)-1])
	}
	if window != nil {
		lo = math.Max(lo, window.Start)
		hi = math.Min(hi, window.End)
	}
	return types.TimeWindow{Start: lo, End: hi}, lo <= hi
}

// sparsestStep returns the largest median spacing across the inputs
func sparsestStep(in *Input) float64 {
	step := 0.0
	for _, name := range in.Names {
		step = math.Max(step, types.MedianSpacing(in.Times[name]))
	}
	return step
}

func regularGrid(w types.TimeWindow, count int, step float64) []float64 {
	grid := make([]float64, count)
	for i := range grid {
		grid[i] = w.Start + float64(i)*step
	}
	return grid
}

// mergedTimeline returns the sorted union of every input's valid sample
// times inside w
func mergedTimeline(in *Input, w types.TimeWindow) []float64 {
	var all []float64
	for _, name := range in.Names {
		values := in.Values[name]
		for i, x := range in.Times[name] {
			if !math.IsNaN(values[i]) && w.Contains(x) {
				all = append(all, x)
			}
		}
	}
	sort.Float64s(all)
	return dedupe(all)
}

// dedupe removes repeats from a sorted slice in place
func dedupe(sorted []float64) []float64 {
	if len(sorted) == 0 {
		return sorted
	}
	out := sorted[:1]
	for _, x := range sorted[1:] {
		if x != out[len(out)-1] {
			out = append(out, x)
		}
	}
	return out
}
