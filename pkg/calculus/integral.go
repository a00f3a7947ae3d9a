package calculus

// trapezoid returns the definite integral by the trapezoidal rule
func trapezoid(y, t []float64) float64 {
	var sum float64
	for i := 1; i < len(y); i++ {
		sum += (t[i] - t[i-1]) * (y[i] + y[i-1]) / 2
	}
	return sum
}

// cumulativeTrapezoid returns the running integral with result[0] = 0
func cumulativeTrapezoid(y, t []float64) []float64 {
	out := make([]float64, len(y))
	for i := 1; i < len(y); i++ {
		out[i] = out[i-1] + (t[i]-t[i-1])*(y[i]+y[i-1])/2
	}
	return out
}

// simpson integrates with composite Simpson's rule for non-uniform spacing.
// With an odd number of intervals the last one is integrated by the
// quadratic through the final three points.
func simpson(y, t []float64) float64 {
	n := len(y)
	switch {
	case n < 2:
		return 0
	case n == 2:
		return trapezoid(y, t)
	}

	intervals := n - 1
	even := intervals - intervals%2

	var sum float64
	for i := 0; i+2 <= even; i += 2 {
		h0 := t[i+1] - t[i]
		h1 := t[i+2] - t[i+1]
		hs := h0 + h1
		sum += hs / 6 * ((2-h1/h0)*y[i] + hs*hs/(h0*h1)*y[i+1] + (2-h0/h1)*y[i+2])
	}

	if intervals%2 == 1 {
		hm := t[n-2] - t[n-3]
		h := t[n-1] - t[n-2]
		alpha := (2*h*h + 3*h*hm) / (6 * (hm + h))
		beta := (h*h + 3*h*hm) / (6 * hm)
		eta := h * h * h / (6 * hm * (hm + h))
		sum += alpha*y[n-1] + beta*y[n-2] - eta*y[n-3]
	}
	return sum
}
