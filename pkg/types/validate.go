package types

import (
	"math"
	"sort"
)

// CheckSeries validates a (values, timestamps) pair: equal non-zero length,
// finite and strictly increasing timestamps.
func CheckSeries(op string, values, t []float64) error {
	if len(values) != len(t) {
		return Precondition(op, "values and timestamps differ in length (%d != %d)", len(values), len(t))
	}
	if len(t) == 0 {
		return Precondition(op, "empty input")
	}
	return CheckTimestamps(op, t)
}

// CheckTimestamps validates that t is finite and strictly increasing
func CheckTimestamps(op string, t []float64) error {
	for i, v := range t {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Precondition(op, "timestamp %d is not finite", i)
		}
		if i > 0 && v <= t[i-1] {
			return Precondition(op, "timestamps not strictly increasing at index %d (%v <= %v)", i, v, t[i-1])
		}
	}
	return nil
}

// CheckNoGaps rejects values containing NaN
func CheckNoGaps(op string, values []float64) error {
	gaps, first := 0, -1
	for i, v := range values {
		if math.IsNaN(v) {
			if first < 0 {
				first = i
			}
			gaps++
		}
	}
	if gaps > 0 {
		e := Precondition(op, "values contain %d gaps, first at index %d", gaps, first)
		e.Hint = "fill gaps with the interpolation engine first"
		return e
	}
	return nil
}

// MedianSpacing returns the median of successive differences of t, or 0 when len(t) < 2
func MedianSpacing(t []float64) float64 {
	if len(t) < 2 {
		return 0
	}
	d := make([]float64, len(t)-1)
	for i := 1; i < len(t); i++ {
		d[i-1] = t[i] - t[i-1]
	}
	sort.Float64s(d)
	n := len(d)
	if n%2 == 0 {
		return (d[n/2-1] + d[n/2]) / 2
	}
	return d[n/2]
}

// CloneFloats returns an independent copy of s
func CloneFloats(s []float64) []float64 {
	if s == nil {
		return nil
	}
	out := make([]float64, len(s))
	copy(out, s)
	return out
}

// maxGridAllocation bounds regular grids when no ceiling is configured
const maxGridAllocation = 1 << 32

// GridCount returns the number of points of a regular grid with the given
// step over span. Grids above limit, or above maxGridAllocation when limit
// is not positive, are refused before any allocation.
func GridCount(op, method string, span, step float64, limit int) (int, error) {
	ceiling := limit
	if ceiling <= 0 {
		ceiling = maxGridAllocation
	}

	q := math.Max(math.Floor(span/step+1e-9), 0)
	if math.IsNaN(q) || q >= float64(ceiling) {
		requested := math.MaxInt
		if q < 1<<53 {
			requested = int(q) + 1
		}
		return 0, ResourceLimit(op, method, ceiling, requested)
	}
	return int(q) + 1, nil
}
