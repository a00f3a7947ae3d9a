package main

import (
	"math"
	"math/rand/v2"
)

// synthSpec describes one generated sensor stream
type synthSpec struct {
	Name     string
	Unit     string
	Points   int
	Step     float64
	Jitter   float64 // fraction of Step, below 0.5 keeps timestamps increasing
	Level    float64
	Amp      float64
	Period   float64
	Noise    float64
	GapRatio float64
	MaxGap   int
}

// synthesize returns irregular timestamps and a noisy periodic signal with
// runs of NaN. The first and last samples are never gaps.
func synthesize(s synthSpec, rng *rand.Rand) (t, v []float64) {
	t = make([]float64, s.Points)
	v = make([]float64, s.Points)
	for i := range t {
		t[i] = float64(i)*s.Step + (rng.Float64()*2-1)*s.Jitter*s.Step
		v[i] = s.Level + s.Amp*math.Sin(2*math.Pi*t[i]/s.Period) + rng.NormFloat64()*s.Noise
	}

	if s.Points < 3 || s.GapRatio <= 0 {
		return t, v
	}
	maxGap := max(s.MaxGap, 1)
	want := int(s.GapRatio * float64(s.Points-2))
	for holes := 0; holes < want; {
		start := 1 + rng.IntN(s.Points-2)
		run := 1 + rng.IntN(maxGap)
		for i := start; i < start+run && i < s.Points-1 && holes < want; i++ {
			if !math.IsNaN(v[i]) {
				v[i] = math.NaN()
				holes++
			}
		}
	}
	return t, v
}
