package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vjranagit/tscore/internal/config"
	"github.com/vjranagit/tscore/pkg/provenance"
	"github.com/vjranagit/tscore/pkg/types"
)

func TestSynthesize(t *testing.T) {
	spec := synthSpec{Points: 500, Step: 1, Jitter: 0.3, Level: 10, Amp: 2, Period: 50, Noise: 0.1, GapRatio: 0.2, MaxGap: 6}

	tt, v := synthesize(spec, rand.New(rand.NewPCG(7, 7)))
	require.Len(t, tt, 500)
	require.Len(t, v, 500)
	require.NoError(t, types.CheckSeries("test", v, tt))

	gaps := 0
	for _, x := range v {
		if math.IsNaN(x) {
			gaps++
		}
	}
	assert.Equal(t, 99, gaps)
	assert.False(t, math.IsNaN(v[0]))
	assert.False(t, math.IsNaN(v[len(v)-1]))

	t2, v2 := synthesize(spec, rand.New(rand.NewPCG(7, 7)))
	assert.Equal(t, tt, t2)
	assert.Equal(t, len(v), len(v2))
}

func TestSynthesizeNoGaps(t *testing.T) {
	_, v := synthesize(synthSpec{Points: 50, Step: 1, Amp: 1, Period: 10}, rand.New(rand.NewPCG(1, 2)))
	for _, x := range v {
		assert.False(t, math.IsNaN(x))
	}
}

func newTestPipeline(t *testing.T, cfg *config.Config) *pipeline {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	rc, err := cfg.OpenCache(log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	return newPipeline(cfg, rc, log)
}

func TestPipelineRun(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Interpolation.MaxGPRPoints = 50
	p := newTestPipeline(t, cfg)

	stages, err := p.run(context.Background(), benchOptions{
		Points:   200,
		GapRatio: 0.1,
		Seed:     3,
		Methods:  []provenance.Method{provenance.MethodLinear, provenance.MethodSplineCubic, provenance.MethodGPR},
	})
	require.NoError(t, err)

	byName := map[string]stage{}
	for _, st := range stages {
		if st.Method == string(provenance.MethodGPR) {
			assert.True(t, errors.Is(st.Err, types.ErrResourceLimit), "gpr above the ceiling is refused")
			continue
		}
		require.NoError(t, st.Err, "%s/%s", st.Name, st.Method)
		byName[st.Name+"/"+st.Method] = st
	}

	fill := byName["fill/linear"]
	assert.Equal(t, 200, fill.Out)
	assert.Equal(t, 19, fill.Filled)
	assert.Zero(t, fill.NaN)

	assert.Equal(t, 200, byName["derivative/finite_diff"].Out)
	assert.Equal(t, 1, byName["integral/trapezoid"].Out)
	assert.Equal(t, 200, byName["integral/cumulative"].Out)
	assert.Equal(t, 200, byName["downsample/lttb"].Out, "the default budget covers the input")
	assert.NotZero(t, byName["synchronize/common_grid_interpolate"].Out)

	stats := p.cache.Stats()
	assert.GreaterOrEqual(t, stats.Hits, int64(2), "fill and replay repeat the linear request")
	assert.Contains(t, byName["replay/linear"].Note, "hits=")

	// two raw streams, fill, derivative, cumulative, downsample and two aligned outputs
	assert.Equal(t, 8, p.graph.Len())
	assert.Equal(t, 6, p.edges)
}

func TestPipelineWithoutCache(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Cache.Enabled = false
	cfg.Synchronize.Method = "kalman_align"
	cfg.Downsample.Points = 40
	p := newTestPipeline(t, cfg)
	require.Nil(t, p.cache)

	stages, err := p.run(context.Background(), benchOptions{Points: 120, GapRatio: 0.05, Seed: 9})
	require.NoError(t, err)

	for _, st := range stages {
		require.NoError(t, st.Err, "%s/%s", st.Name, st.Method)
		switch st.Name {
		case "downsample":
			assert.Equal(t, 40, st.Out)
		case "synchronize":
			assert.Equal(t, "kalman_align", st.Method)
		case "replay":
			assert.Equal(t, "cache disabled", st.Note)
		}
	}
}

func TestPrintStages(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	stages := []stage{
		{Name: "fill", Method: "linear", In: 10, Out: 10, Filled: 2, Duration: 1500 * time.Microsecond},
		{Name: "interpolate", Method: "gpr", In: 10, Err: types.ResourceLimit("interp.interpolate", "gpr", 5, 10)},
	}

	require.NoError(t, printStages(&buf, stages, 3*time.Millisecond))
	out := buf.String()
	assert.Contains(t, strings.ToUpper(out), "STAGE")
	assert.Contains(t, out, "1.500")
	assert.Contains(t, out, "resource limit")
	assert.Contains(t, out, "2 stages, 1 failed")
}
