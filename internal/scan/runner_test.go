package scan

import (
	"context"
	"errors"
	"testing"

	"github.com/banshee-data/telescope/internal/config"
	"github.com/banshee-data/telescope/internal/material"
	"github.com/banshee-data/telescope/internal/telescope"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeometry_DATURA(t *testing.T) {
	g := DATURAGeometry()
	require.NoError(t, g.Validate())

	var positions []float64
	for _, p := range g.Planes() {
		positions = append(positions, p.Position())
	}
	if diff := cmp.Diff([]float64{0, 20, 40, 55, 75, 95, 47.5}, positions); diff != "" {
		t.Errorf("positions mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 6, g.DUTIndex())

	dut := g.Planes()[g.DUTIndex()]
	assert.False(t, dut.HasMeasurement())
	assert.InEpsilon(t, 55e-3/material.X0Si+50e-3/material.X0Kapton, dut.Material(), 1e-12)
	for _, p := range g.TelescopePlanes() {
		assert.True(t, p.HasMeasurement())
		assert.Equal(t, 3.24e-3, p.Resolution())
	}
}

func TestGeometry_FromConfigMatchesDATURA(t *testing.T) {
	g, err := GeometryFromConfig(config.MustLoadDefaultConfig())
	require.NoError(t, err)
	want := DATURAGeometry()
	assert.Equal(t, want.UpstreamPlanes, g.UpstreamPlanes)
	assert.Equal(t, want.Spacing, g.Spacing)
	assert.InEpsilon(t, want.SensorMaterial, g.SensorMaterial, 1e-12)
	assert.InEpsilon(t, want.DUTMaterial, g.DUTMaterial, 1e-12)
	assert.Equal(t, want.DUTMeasurement, g.DUTMeasurement)
}

func TestGeometry_Validate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Geometry)
	}{
		{"one_plane", func(g *Geometry) { g.UpstreamPlanes, g.DownstreamPlanes = 1, 0 }},
		{"negative_count", func(g *Geometry) { g.UpstreamPlanes = -1 }},
		{"negative_spacing", func(g *Geometry) { g.Spacing = -1 }},
		{"zero_resolution", func(g *Geometry) { g.SensorResolution = 0 }},
		{"measuring_dut", func(g *Geometry) { g.DUTMeasurement, g.DUTResolution = true, 0 }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g := DATURAGeometry()
			tc.mutate(&g)
			assert.Error(t, g.Validate())
		})
	}
}

func TestGeometry_NoUpstreamArm(t *testing.T) {
	g := DATURAGeometry()
	g.UpstreamPlanes = 0
	assert.Equal(t, 0.0, g.DUTPosition())
	planes := g.TelescopePlanes()
	require.Len(t, planes, 3)
	assert.Equal(t, 7.5, planes[0].Position())
}

func TestRunner_DATURA(t *testing.T) {
	r := NewRunner(DATURAGeometry())
	results, err := r.Run(context.Background(), []float64{1, 2, 3, 5, 7})
	require.NoError(t, err)
	require.Len(t, results, 5)

	want := map[float64]float64{1: 2.3894e-3, 5: 1.6308e-3}
	prev := 1.0
	for _, res := range results {
		assert.Less(t, res.Resolution, prev, "energy %g", res.Energy)
		prev = res.Resolution
		// a non-measuring DUT has no measurement to remove
		assert.Equal(t, res.Resolution, res.Unbiased)
		assert.Equal(t, 2*6-4, res.Ndf)
		if w, ok := want[res.Energy]; ok {
			assert.InEpsilon(t, w, res.Resolution, 0.02, "energy %g", res.Energy)
		}
	}
	assert.Equal(t, []float64{1, 2, 3, 5, 7}, []float64{
		results[0].Energy, results[1].Energy, results[2].Energy, results[3].Energy, results[4].Energy,
	})
}

func TestRunner_WorkersAgree(t *testing.T) {
	energies := GenerateRange(1, 7, 0.2)
	serial := NewRunner(DATURAGeometry())
	serial.Workers = 1
	parallel := NewRunner(DATURAGeometry())
	parallel.Workers = 8

	a, err := serial.Run(context.Background(), energies)
	require.NoError(t, err)
	b, err := parallel.Run(context.Background(), energies)
	require.NoError(t, err)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("serial and parallel scans differ (-serial +parallel):\n%s", diff)
	}
}

func TestRunner_MeasuringDUT(t *testing.T) {
	g := DATURAGeometry()
	g.DUTMeasurement = true
	g.DUTResolution = 3.24e-3
	res, err := NewRunner(g).Evaluate(5)
	require.NoError(t, err)
	assert.Less(t, res.Resolution, res.Unbiased)
	assert.Less(t, res.Resolution, g.DUTResolution)
	assert.Equal(t, 2*7-4, res.Ndf)
}

func TestRunner_QueryPlane(t *testing.T) {
	r := NewRunner(DATURAGeometry())
	r.QueryPlane = 3
	res, err := r.Evaluate(5)
	require.NoError(t, err)
	assert.Greater(t, res.Unbiased, res.Resolution)

	r.QueryPlane = 7
	_, err = r.Run(context.Background(), []float64{5})
	assert.True(t, errors.Is(err, telescope.ErrPlaneIndexOutOfRange), "got %v", err)
}

func TestRunner_Errors(t *testing.T) {
	t.Run("invalid_energy", func(t *testing.T) {
		_, err := NewRunner(DATURAGeometry()).Run(context.Background(), []float64{1, -1})
		assert.True(t, errors.Is(err, telescope.ErrInvalidBeamEnergy), "got %v", err)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewRunner(DATURAGeometry()).Run(ctx, []float64{1, 2, 3})
		assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	})

	t.Run("invalid_geometry", func(t *testing.T) {
		g := DATURAGeometry()
		g.SensorResolution = 0
		_, err := NewRunner(g).Run(context.Background(), []float64{1})
		assert.Error(t, err)
	})
}

func TestNewRunnerFromConfig(t *testing.T) {
	vacuum := "vacuum"
	cfg := config.EmptyScanConfig()
	cfg.AmbientMaterial = &vacuum

	r, err := NewRunnerFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, DUTPlane, r.QueryPlane)

	inVacuum, err := r.Evaluate(5)
	require.NoError(t, err)
	inAir, err := NewRunner(DATURAGeometry()).Evaluate(5)
	require.NoError(t, err)
	assert.Less(t, inVacuum.Resolution, inAir.Resolution)

	bad := 12
	cfg.QueryPlane = &bad
	_, err = NewRunnerFromConfig(cfg)
	assert.True(t, errors.Is(err, telescope.ErrPlaneIndexOutOfRange), "got %v", err)
}
