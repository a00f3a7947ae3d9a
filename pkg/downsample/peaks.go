package downsample

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// extremum is a strict local maximum or minimum and its prominence
type extremum struct {
	index      int
	prominence float64
}

// rangeMin answers minimum queries over a fixed slice in O(1) after an
// O(n log n) build.
type rangeMin struct {
	levels [][]float64
}

func newRangeMin(v []float64) *rangeMin {
	r := &rangeMin{levels: [][]float64{v}}
	for width := 2; width <= len(v); width *= 2 {
		prev := r.levels[len(r.levels)-1]
		half := width / 2
		cur := make([]float64, len(v)-width+1)
		for i := range cur {
			cur[i] = math.Min(prev[i], prev[i+half])
		}
		r.levels = append(r.levels, cur)
	}
	return r
}

// min returns the minimum of v[lo..hi], both inclusive
func (r *rangeMin) min(lo, hi int) float64 {
	k := 0
	for 1<<(k+1) <= hi-lo+1 {
		k++
	}
	level := r.levels[k]
	return math.Min(level[lo], level[hi-(1<<k)+1])
}

// maxima returns the strict local maxima of v with their topographic
// prominence: the height above the higher of the two lowest points
// separating the peak from higher ground on either side.
func maxima(v []float64) []extremum {
	n := len(v)
	if n < 3 {
		return nil
	}

	left := make([]int, n)
	right := make([]int, n)
	stack := make([]int, 0, n)
	for i := 0; i < n; i++ {
		for len(stack) > 0 && v[stack[len(stack)-1]] <= v[i] {
			stack = stack[:len(stack)-1]
		}
		left[i] = -1
		if len(stack) > 0 {
			left[i] = stack[len(stack)-1]
		}
		stack = append(stack, i)
	}
	stack = stack[:0]
	for i := n - 1; i >= 0; i-- {
		for len(stack) > 0 && v[stack[len(stack)-1]] <= v[i] {
			stack = stack[:len(stack)-1]
		}
		right[i] = n
		if len(stack) > 0 {
			right[i] = stack[len(stack)-1]
		}
		stack = append(stack, i)
	}

	rm := newRangeMin(v)
	var out []extremum
	for i := 1; i < n-1; i++ {
		if !(v[i] > v[i-1] && v[i] > v[i+1]) {
			continue
		}
		base := math.Max(rm.min(left[i]+1, i), rm.min(i, right[i]-1))
		out = append(out, extremum{index: i, prominence: v[i] - base})
	}
	return out
}

// minima returns strict local minima with their prominence as depth
func minima(v []float64) []extremum {
	neg := make([]float64, len(v))
	copy(neg, v)
	floats.Scale(-1, neg)
	return maxima(neg)
}

// peakAware keeps the most prominent extrema above the threshold and
// fills the remaining budget uniformly.
func peakAware(values []float64, n int, threshold float64) []int {
	size := len(values)
	if threshold == 0 {
		threshold = 0.05 * (floats.Max(values) - floats.Min(values))
	}

	candidates := append(maxima(values), minima(values)...)
	kept := candidates[:0]
	for _, e := range candidates {
		if e.prominence >= threshold && e.prominence > 0 {
			kept = append(kept, e)
		}
	}
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].prominence != kept[j].prominence {
			return kept[i].prominence > kept[j].prominence
		}
		return kept[i].index < kept[j].index
	})
	if len(kept) > n-2 {
		kept = kept[:n-2]
	}

	picked := []int{0, size - 1}
	for _, e := range kept {
		picked = append(picked, e.index)
	}
	return topUp(picked, size, n)
}
