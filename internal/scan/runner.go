// Package scan evaluates telescope track resolution over a range of beam
// energies.
package scan

import (
	"context"
	"fmt"
	"runtime"

	"github.com/banshee-data/telescope/internal/config"
	"github.com/banshee-data/telescope/internal/monitoring"
	"github.com/banshee-data/telescope/internal/telescope"
	"golang.org/x/sync/errgroup"
)

// DUTPlane selects the device under test as the query plane.
const DUTPlane = -1

// Result is the resolution at the query plane for one beam energy.
type Result struct {
	Energy     float64 // GeV
	Resolution float64 // mm
	// Unbiased is the resolution with the query plane's own measurement
	// left out. It equals Resolution for non-measuring planes.
	Unbiased float64 // mm
	Chi2     float64
	Ndf      int
}

// Runner builds one telescope per energy from a fixed geometry.
type Runner struct {
	Geometry Geometry
	// QueryPlane is an index into Geometry.Planes, or DUTPlane.
	QueryPlane int
	// Workers bounds concurrent evaluations; 0 means GOMAXPROCS.
	Workers int
	Options []telescope.Option
}

// NewRunner returns a runner for the DUT of the geometry.
func NewRunner(g Geometry, opts ...telescope.Option) *Runner {
	return &Runner{Geometry: g, QueryPlane: DUTPlane, Options: opts}
}

// NewRunnerFromConfig resolves geometry, medium, beam particle and workers
// from a scan config.
func NewRunnerFromConfig(cfg *config.ScanConfig) (*Runner, error) {
	g, err := GeometryFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	x0, err := cfg.GetAmbientRadiationLength()
	if err != nil {
		return nil, err
	}
	r := NewRunner(g,
		telescope.WithAmbientRadiationLength(x0),
		telescope.WithParticle(cfg.GetParticle()),
		telescope.WithLogTerm(cfg.GetLogTerm()),
	)
	r.QueryPlane = cfg.GetQueryPlane()
	r.Workers = cfg.GetWorkers()
	if err := r.checkQueryPlane(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Runner) queryIndex() int {
	if r.QueryPlane == DUTPlane {
		return r.Geometry.DUTIndex()
	}
	return r.QueryPlane
}

func (r *Runner) checkQueryPlane() error {
	n := r.Geometry.DUTIndex() + 1
	if q := r.queryIndex(); q < 0 || q >= n {
		return fmt.Errorf("%w: query plane %d (have %d planes)", telescope.ErrPlaneIndexOutOfRange, r.QueryPlane, n)
	}
	return nil
}

// Evaluate builds the telescope at one energy and queries the plane.
func (r *Runner) Evaluate(energy float64) (Result, error) {
	tel, err := telescope.New(r.Geometry.Planes(), energy, r.Options...)
	if err != nil {
		return Result{}, err
	}
	idx := r.queryIndex()

	res := Result{Energy: energy}
	if res.Resolution, err = tel.Resolution(idx); err != nil {
		return Result{}, fmt.Errorf("%g GeV: %w", energy, err)
	}
	if res.Unbiased, err = tel.UnbiasedResolution(idx); err != nil {
		return Result{}, fmt.Errorf("%g GeV unbiased: %w", energy, err)
	}
	summary, err := tel.FitSummary()
	if err != nil {
		return Result{}, fmt.Errorf("%g GeV: %w", energy, err)
	}
	res.Chi2, res.Ndf = summary.Chi2, summary.Ndf

	monitoring.Debugf("scan: %g GeV plane %d resolution %.4g um unbiased %.4g um",
		energy, idx, res.Resolution*1e3, res.Unbiased*1e3)
	return res, nil
}

// Run evaluates all energies. Results are returned in the order of
// energies. The first failing energy cancels the rest.
func (r *Runner) Run(ctx context.Context, energies []float64) ([]Result, error) {
	if err := r.Geometry.Validate(); err != nil {
		return nil, err
	}
	if err := r.checkQueryPlane(); err != nil {
		return nil, err
	}

	workers := r.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]Result, len(energies))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, e := range energies {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := r.Evaluate(e)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	monitoring.Infof("scan: evaluated %d energies with %d workers", len(energies), workers)
	return results, nil
}
