package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vjranagit/tscore/internal/config"
	"github.com/vjranagit/tscore/pkg/cache"
	"github.com/vjranagit/tscore/pkg/calculus"
	"github.com/vjranagit/tscore/pkg/provenance"
	"github.com/vjranagit/tscore/pkg/types"
)

// benchOptions control the synthetic workload
type benchOptions struct {
	Points   int
	GapRatio float64
	Seed     uint64
	Methods  []provenance.Method
}

// stage is one row of the report
type stage struct {
	Name     string
	Method   string
	In       int
	Out      int
	Filled   int
	NaN      int
	Duration time.Duration
	Note     string
	Err      error
}

type pipeline struct {
	cfg     *config.Config
	engines *config.Engines
	cache   *cache.Cache
	graph   *provenance.Graph
	edges   int
	log     logrus.FieldLogger
}

func newPipeline(cfg *config.Config, rc *cache.Cache, log logrus.FieldLogger) *pipeline {
	return &pipeline{
		cfg:     cfg,
		engines: cfg.NewEngines(rc, log),
		cache:   rc,
		graph:   provenance.NewGraph(),
		log:     log.WithField("component", "tsbench"),
	}
}

// run synthesizes two streams and pushes them through every engine.
// Stage failures are reported in their row; only setup errors abort.
func (p *pipeline) run(ctx context.Context, opts benchOptions) ([]stage, error) {
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	tt, tv := synthesize(synthSpec{
		Name: "temperature", Unit: "degC", Points: opts.Points, Step: 1, Jitter: 0.3,
		Level: 20, Amp: 5, Period: 60, Noise: 0.2, GapRatio: opts.GapRatio, MaxGap: 8,
	}, rng)
	pt, pv := synthesize(synthSpec{
		Name: "pressure", Unit: "hPa", Points: max(opts.Points*2/5, 2), Step: 2.5, Jitter: 0.2,
		Level: 1013, Amp: 3, Period: 90, Noise: 0.1, GapRatio: opts.GapRatio / 2, MaxGap: 4,
	}, rng)

	temp, err := provenance.NewSeries("temperature", "degC", tt, tv)
	if err != nil {
		return nil, fmt.Errorf("failed to create series: %w", err)
	}
	pres, err := provenance.NewSeries("pressure", "hPa", pt, pv)
	if err != nil {
		return nil, fmt.Errorf("failed to create series: %w", err)
	}
	for _, s := range []*provenance.Series{temp, pres} {
		if err := p.graph.Register(s); err != nil {
			return nil, fmt.Errorf("failed to register series: %w", err)
		}
	}

	var stages []stage
	record := func(st stage) {
		if st.Err != nil {
			p.log.WithError(st.Err).WithField("stage", st.Name).Warn("stage failed")
		}
		stages = append(stages, st)
	}

	// every interpolation method on the raw stream
	for _, m := range opts.Methods {
		start := time.Now()
		res, err := p.engines.Interpolation.Interpolate(ctx, temp.Values, temp.Timestamps, p.cfg.InterpolationParams(m))
		st := stage{Name: "interpolate", Method: string(m), In: temp.Len(), Duration: time.Since(start), Err: err}
		if err == nil {
			q := types.CountQuality(res.Values, res.Info.Interpolated)
			st.Out, st.Filled, st.NaN = len(res.Values), q.Interpolated, q.NaN
			if len(res.DominantFrequencies) > 0 {
				st.Note = fmt.Sprintf("f0=%.4f Hz", res.DominantFrequencies[0])
			}
		}
		record(st)
	}

	// the default method feeds the rest of the pipeline
	start := time.Now()
	filled, fres, err := p.engines.Interpolation.InterpolateSeries(ctx, temp, p.cfg.InterpolationParams(""))
	if err != nil {
		record(stage{Name: "fill", Method: p.cfg.Interpolation.DefaultMethod, In: temp.Len(), Duration: time.Since(start), Err: err})
		return stages, nil
	}
	p.register(filled)
	q := types.CountQuality(fres.Values, fres.Info.Interpolated)
	record(stage{Name: "fill", Method: fres.Metadata.Method, In: temp.Len(), Out: filled.Len(),
		Filled: q.Interpolated, NaN: q.NaN, Duration: time.Since(start), Note: filled.Name})

	start = time.Now()
	dp := p.cfg.DerivativeParams()
	deriv, _, err := p.engines.Calculus.DerivativeSeries(ctx, filled, dp)
	st := stage{Name: "derivative", Method: string(dp.Method), In: filled.Len(), Duration: time.Since(start), Err: err}
	if err == nil {
		p.register(deriv)
		st.Out, st.Note = deriv.Len(), fmt.Sprintf("%s [%s]", deriv.Name, deriv.Unit)
		st.Filled = deriv.Info.Count()
	}
	record(st)

	for _, m := range []calculus.IntegralMethod{calculus.Trapezoid, calculus.Simpson} {
		start = time.Now()
		ires, err := p.engines.Calculus.Integral(ctx, filled.Values, filled.Timestamps, m)
		st := stage{Name: "integral", Method: string(m), In: filled.Len(), Duration: time.Since(start), Err: err}
		if err == nil {
			st.Out, st.Note = 1, fmt.Sprintf("%.3f %s*s", ires.Scalar(), filled.Unit)
		}
		record(st)
	}

	start = time.Now()
	cum, _, err := p.engines.Calculus.CumulativeSeries(ctx, filled)
	st = stage{Name: "integral", Method: string(calculus.Cumulative), In: filled.Len(), Duration: time.Since(start), Err: err}
	if err == nil {
		p.register(cum)
		st.Out, st.Note = cum.Len(), cum.Name
	}
	record(st)

	start = time.Now()
	ds, dsres, err := p.engines.Downsample.DownsampleSeries(ctx, filled, p.cfg.DownsampleParams())
	st = stage{Name: "downsample", Method: p.cfg.Downsample.Method, In: filled.Len(), Duration: time.Since(start), Err: err}
	if err == nil {
		p.register(ds)
		st.Method = dsres.Metadata.Method
		st.Out, st.Filled = ds.Len(), ds.Info.Count()
	}
	record(st)

	start = time.Now()
	aligned, sres, err := p.engines.Synchronize.SynchronizeSeries(ctx, []*provenance.Series{filled, pres}, p.cfg.SynchronizeParams())
	st = stage{Name: "synchronize", Method: p.cfg.Synchronize.Method, In: filled.Len() + pres.Len(), Duration: time.Since(start), Err: err}
	if err == nil {
		for _, s := range aligned {
			p.register(s)
			qs := sres.Quality[string(s.Lineage.Origins[0])]
			st.Filled += qs.Interpolated
			st.NaN += qs.NaN
		}
		st.Method = sres.Metadata.Method
		st.Out = len(sres.Timestamps)
		st.Note = fmt.Sprintf("confidence=%.3f error=%.3f", sres.Confidence, sres.AlignmentError)
	}
	record(st)

	// identical request, served from the cache when one is configured
	start = time.Now()
	_, _, err = p.engines.Interpolation.InterpolateSeries(ctx, temp, p.cfg.InterpolationParams(""))
	st = stage{Name: "replay", Method: p.cfg.Interpolation.DefaultMethod, In: temp.Len(), Out: temp.Len(), Duration: time.Since(start), Err: err}
	if p.cache == nil {
		st.Note = "cache disabled"
	} else {
		stats := p.cache.Stats()
		st.Note = fmt.Sprintf("hits=%d computations=%d", stats.Hits, stats.Computations)
	}
	record(st)

	return stages, nil
}

func (p *pipeline) register(s *provenance.Series) {
	if err := p.graph.Register(s); err != nil {
		p.log.WithError(err).WithField("series", s.ID).Warn("lineage registration failed")
		return
	}
	if s.Lineage != nil {
		p.edges += len(s.Lineage.Origins)
	}
}
