package downsample

import (
	"fmt"
	"math"

	"github.com/vjranagit/tscore/pkg/types"
)

// Method selects the point selection algorithm
type Method string

const (
	LTTB      Method = "lttb"
	MinMax    Method = "minmax"
	Adaptive  Method = "adaptive"
	Uniform   Method = "uniform"
	PeakAware Method = "peak_aware"
)

// Feature is a shape the adaptive method biases its buckets toward
type Feature string

const (
	Peaks   Feature = "peaks"
	Valleys Feature = "valleys"
	Edges   Feature = "edges"
)

// Params configure Downsample
type Params struct {
	Method Method `json:"method"`
	// Points is the target output length
	Points int `json:"points"`
	// Features preserved by the adaptive method
	Features []Feature `json:"features,omitempty"`
	// Prominence is the absolute threshold of peak_aware; zero means 5%
	// of the value range.
	Prominence float64 `json:"prominence,omitempty"`
}

func (p Params) validate(op string) error {
	if p.Points < 1 {
		return types.Precondition(op, "target point count %d must be positive", p.Points)
	}
	switch p.Method {
	case LTTB, MinMax, Adaptive, Uniform, PeakAware:
	default:
		return types.Unavailable(op, string(p.Method), "unknown downsampling method",
			"use lttb, minmax, adaptive, uniform or peak_aware")
	}
	for _, f := range p.Features {
		switch f {
		case Peaks, Valleys, Edges:
		default:
			return types.Precondition(op, "unknown feature %q", f)
		}
	}
	if p.Prominence < 0 || math.IsNaN(p.Prominence) {
		return types.Precondition(op, "prominence %v must not be negative", p.Prominence)
	}
	return nil
}

// Summary returns the parameters relevant to the selected method
func (p Params) Summary() map[string]any {
	out := map[string]any{
		"method": string(p.Method),
		"points": p.Points,
	}
	switch p.Method {
	case Adaptive:
		fs := make([]string, len(p.Features))
		for i, f := range p.Features {
			fs[i] = string(f)
		}
		out["features"] = fs
	case PeakAware:
		out["prominence"] = p.Prominence
	}
	return out
}

func (p Params) String() string {
	return fmt.Sprintf("%s(%d)", p.Method, p.Points)
}
