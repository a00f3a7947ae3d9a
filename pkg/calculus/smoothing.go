package calculus

import (
	"math"
	"sort"

	"github.com/vjranagit/tscore/pkg/interpolation"
	"github.com/vjranagit/tscore/pkg/types"
)

// OpSmooth identifies standalone smoothing in errors
const OpSmooth = "calculus.smooth"

// Smooth applies a filter to gap-free values. The output has the input's
// length and the input is not modified.
func Smooth(values, t []float64, s Smoothing) ([]float64, error) {
	if err := types.CheckSeries(OpSmooth, values, t); err != nil {
		return nil, err
	}
	if err := types.CheckNoGaps(OpSmooth, values); err != nil {
		return nil, err
	}
	s = s.withDefaults()
	if err := s.validate(OpSmooth); err != nil {
		return nil, err
	}
	return smooth(OpSmooth, values, t, s)
}

func smooth(op string, values, t []float64, s Smoothing) ([]float64, error) {
	switch s.Method {
	case SmoothSavitzkyGolay:
		return savgol(op, values, t, s.Window, s.polyOrder(), 0)
	case SmoothGaussian:
		return gaussian(values, t, s.Sigma), nil
	case SmoothMedian:
		return median(values, s.Window), nil
	case SmoothLowpass:
		return lowpass(op, values, t, s.CutoffHz)
	}
	return nil, types.Unavailable(op, string(s.Method), "unknown smoothing method", "")
}

// savgol fits a polynomial of the given order to each window and returns
// its deriv-th derivative at the window's reference sample. Windows are
// shifted inward at the edges so every sample gets a full window.
func savgol(op string, values, t []float64, window, polyorder, deriv int) ([]float64, error) {
	n := len(values)
	if n < window {
		return nil, types.Insufficient(op, string(SavitzkyGolay), window, n)
	}

	h := types.MedianSpacing(t)
	half := window / 2
	out := make([]float64, n)
	x := make([]float64, window)

	factorial := 1.0
	for k := 2; k <= deriv; k++ {
		factorial *= float64(k)
	}

	for i := 0; i < n; i++ {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		if lo+window > n {
			lo = n - window
		}
		for k := 0; k < window; k++ {
			x[k] = (t[lo+k] - t[i]) / h
		}

		coef, err := interpolation.PolyFit(x, values[lo:lo+window], nil, polyorder)
		if err != nil {
			return nil, types.Degenerate(op, string(SavitzkyGolay), "window at index %d: %v", i, err)
		}
		out[i] = factorial * coef[deriv] / math.Pow(h, float64(deriv))
	}
	return out, nil
}

// gaussian is a kernel smoother with bandwidth sigma median spacings,
// truncated at 3 sigma and renormalized at the edges.
func gaussian(values, t []float64, sigma float64) []float64 {
	n := len(values)
	out := make([]float64, n)
	bw := sigma * types.MedianSpacing(t)
	if bw == 0 {
		copy(out, values)
		return out
	}

	for i := 0; i < n; i++ {
		var sum, wsum float64
		for j := i; j >= 0 && t[i]-t[j] <= 3*bw; j-- {
			d := (t[i] - t[j]) / bw
			w := math.Exp(-0.5 * d * d)
			sum += w * values[j]
			wsum += w
		}
		for j := i + 1; j < n && t[j]-t[i] <= 3*bw; j++ {
			d := (t[j] - t[i]) / bw
			w := math.Exp(-0.5 * d * d)
			sum += w * values[j]
			wsum += w
		}
		out[i] = sum / wsum
	}
	return out
}

// median is a running median; windows shrink at the edges
func median(values []float64, window int) []float64 {
	n := len(values)
	half := window / 2
	out := make([]float64, n)
	buf := make([]float64, 0, window)

	for i := 0; i < n; i++ {
		lo, hi := i-half, i+half+1
		if lo < 0 {
			lo = 0
		}
		if hi > n {
			hi = n
		}
		buf = append(buf[:0], values[lo:hi]...)
		sort.Float64s(buf)
		m := len(buf)
		if m%2 == 1 {
			out[i] = buf[m/2]
		} else {
			out[i] = (buf[m/2-1] + buf[m/2]) / 2
		}
	}
	return out
}

// lowpass runs a first-order RC filter forward and then backward, which
// cancels its phase lag. Irregular spacing uses the per-step interval.
func lowpass(op string, values, t []float64, cutoff float64) ([]float64, error) {
	n := len(values)
	out := make([]float64, n)
	copy(out, values)
	if n < 2 {
		return out, nil
	}

	dt := types.MedianSpacing(t)
	if cutoff == 0 {
		cutoff = 0.1 / dt
	}
	if nyquist := 0.5 / dt; cutoff >= nyquist {
		return nil, types.Precondition(op, "lowpass cutoff %v Hz is not below the Nyquist frequency %v Hz", cutoff, nyquist)
	}
	rc := 1 / (2 * math.Pi * cutoff)

	for i := 1; i < n; i++ {
		step := t[i] - t[i-1]
		a := step / (rc + step)
		out[i] = out[i-1] + a*(out[i]-out[i-1])
	}
	for i := n - 2; i >= 0; i-- {
		step := t[i+1] - t[i]
		a := step / (rc + step)
		out[i] = out[i+1] + a*(out[i]-out[i+1])
	}
	return out, nil
}
