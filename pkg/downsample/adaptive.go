package downsample

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	// activityWindow is the half width of the local variance estimate
	activityWindow = 2
	// featureBoost multiplies the activity of a preserved feature point
	featureBoost = 4.0
)

// adaptive splits the interior into n-2 buckets of equal total activity,
// so busy regions get narrow buckets and flat regions wide ones. Each
// bucket keeps one point: a preserved feature when it holds one, else the
// point farthest from the bucket mean.
func adaptive(values []float64, n int, features []Feature) []int {
	size := len(values)
	if n == 2 {
		return []int{0, size - 1}
	}
	interior := size - 2
	k := n - 2

	flagged := featureMask(values, features)
	weight := activity(values)
	for p := range weight {
		if flagged[p+1] {
			weight[p] *= featureBoost
		}
	}

	cum := make([]float64, interior)
	floats.CumSum(cum, weight)
	total := cum[interior-1]

	bounds := make([]int, k+1)
	bounds[k] = interior
	for b := 1; b < k; b++ {
		at := sort.SearchFloat64s(cum, total*float64(b)/float64(k)) + 1
		if at < bounds[b-1]+1 {
			at = bounds[b-1] + 1
		}
		if limit := interior - (k - b); at > limit {
			at = limit
		}
		bounds[b] = at
	}

	out := make([]int, 0, n)
	out = append(out, 0)
	for b := 0; b < k; b++ {
		out = append(out, 1+representative(values[1:size-1], flagged[1:size-1], bounds[b], bounds[b+1]))
	}
	return append(out, size-1)
}

// representative picks one position in [lo, hi)
func representative(values []float64, flagged []bool, lo, hi int) int {
	mean := stat.Mean(values[lo:hi], nil)
	best, bestScore, bestFlag := lo, -1.0, false
	for p := lo; p < hi; p++ {
		score := math.Abs(values[p] - mean)
		switch {
		case flagged[p] && !bestFlag:
			best, bestScore, bestFlag = p, score, true
		case flagged[p] == bestFlag && score > bestScore:
			best, bestScore = p, score
		}
	}
	return best
}

// activity returns the local standard deviation of every interior point
// plus a floor of a tenth of its mean, so flat stretches still get buckets.
func activity(values []float64) []float64 {
	size := len(values)
	w := make([]float64, size-2)
	for i := 1; i < size-1; i++ {
		lo, hi := i-activityWindow, i+activityWindow+1
		if lo < 0 {
			lo = 0
		}
		if hi > size {
			hi = size
		}
		_, variance := stat.MeanVariance(values[lo:hi], nil)
		w[i-1] = math.Sqrt(variance)
	}

	mean := floats.Sum(w) / float64(len(w))
	if mean == 0 || math.IsNaN(mean) {
		for i := range w {
			w[i] = 1
		}
		return w
	}
	floats.AddConst(0.1*mean, w)
	return w
}

// featureMask flags the points matching any requested feature
func featureMask(values []float64, features []Feature) []bool {
	size := len(values)
	mask := make([]bool, size)
	for _, f := range features {
		switch f {
		case Peaks:
			for _, e := range maxima(values) {
				mask[e.index] = true
			}
		case Valleys:
			for _, e := range minima(values) {
				mask[e.index] = true
			}
		case Edges:
			markEdges(values, mask)
		}
	}
	return mask
}

// markEdges flags points whose central slope magnitude is more than two
// standard deviations above the mean slope magnitude
func markEdges(values []float64, mask []bool) {
	size := len(values)
	slope := make([]float64, size-2)
	for i := 1; i < size-1; i++ {
		slope[i-1] = math.Abs(values[i+1]-values[i-1]) / 2
	}
	mean, variance := stat.MeanVariance(slope, nil)
	limit := mean + 2*math.Sqrt(variance)
	for p, s := range slope {
		if s > limit {
			mask[p+1] = true
		}
	}
}
