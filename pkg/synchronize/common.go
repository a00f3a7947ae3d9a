package synchronize

import (
	"context"

	"github.com/vjranagit/tscore/pkg/interpolation"
	"github.com/vjranagit/tscore/pkg/provenance"
)

// commonGrid resamples every series onto the grid with the interpolation
// engine. It introduces no error beyond the per-series interpolation.
type commonGrid struct {
	interp *interpolation.Engine
}

func (commonGrid) Name() Method {
	return CommonGrid
}

func (s commonGrid) Align(ctx context.Context, in *Input) (*Alignment, error) {
	method := in.Params.Interpolation
	if method == "" {
		method = provenance.MethodLinear
	}
	p := interpolation.DefaultParams(method)

	out := &Alignment{
		Values:     make(map[string][]float64, len(in.Names)),
		Info:       make(map[string]provenance.InterpolationInfo, len(in.Names)),
		Confidence: 1,
	}
	for _, name := range in.Names {
		res, err := s.interp.Resample(ctx, in.Values[name], in.Times[name], in.Grid, p)
		if err != nil {
			return nil, tagSeries(err, name)
		}
		out.Values[name] = res.Values
		out.Info[name] = res.Info
	}
	return out, nil
}
