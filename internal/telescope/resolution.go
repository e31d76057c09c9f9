package telescope

import (
	"fmt"
	"math"

	"github.com/banshee-data/telescope/internal/gbl"
	"github.com/banshee-data/telescope/internal/monitoring"
	"github.com/banshee-data/telescope/internal/propagate"
	"gonum.org/v1/gonum/mat"
)

// fitOutcome is the cached result of one fit. A failed fit is cached too,
// so repeated queries return the same error without refitting.
type fitOutcome struct {
	engine  FitEngine
	labels  []int // engine label per point
	summary gbl.Summary
	err     error
}

// runFit submits all points to a fresh engine. skip is the label whose
// measurement is left out, 0 for none.
func (t *Telescope) runFit(skip int) *fitOutcome {
	out := &fitOutcome{engine: t.config.NewEngine()}
	out.labels = make([]int, len(t.points))
	for i, tp := range t.points {
		p := tp.Point
		if tp.Label == skip {
			p.Measurement = nil
		}
		label, err := out.engine.AddPoint(p)
		if err != nil {
			out.err = fmt.Errorf("%w: adding point %d: %w", ErrFitFailed, tp.Label, err)
			return out
		}
		out.labels[i] = label
	}
	summary, err := out.engine.Fit()
	if err != nil {
		out.err = fmt.Errorf("%w: %w", ErrFitFailed, err)
		return out
	}
	if math.IsNaN(summary.Chi2) || math.IsInf(summary.Chi2, 0) {
		out.err = fmt.Errorf("%w: chi2 is %g", ErrFitFailed, summary.Chi2)
		return out
	}
	out.summary = summary
	return out
}

func (t *Telescope) fitted() *fitOutcome {
	if t.fit == nil {
		t.fit = t.runFit(0)
		if t.fit.err != nil {
			monitoring.Errorf("telescope: fit at %g GeV: %v", t.beamEnergy, t.fit.err)
		} else {
			monitoring.Debugf("telescope: fit at %g GeV, chi2 %.4g / ndf %d",
				t.beamEnergy, t.fit.summary.Chi2, t.fit.summary.Ndf)
		}
	}
	return t.fit
}

// FitSummary runs the fit if needed and returns its summary.
func (t *Telescope) FitSummary() (gbl.Summary, error) {
	f := t.fitted()
	return f.summary, f.err
}

// covariance reads the 4x4 covariance of a plane from a fit outcome.
func (t *Telescope) covariance(f *fitOutcome, planeIndex int) (*mat.SymDense, error) {
	if f.err != nil {
		return nil, f.err
	}
	label, err := t.PlaneLabel(planeIndex)
	if err != nil {
		return nil, err
	}
	engineLabel := f.labels[label-1]
	if engineLabel != label {
		return nil, fmt.Errorf("%w: plane %d assembled as label %d, engine returned %d",
			ErrLabelMismatch, planeIndex, label, engineLabel)
	}
	res, err := f.engine.Result(engineLabel)
	if err != nil {
		return nil, fmt.Errorf("%w: no result for label %d: %w", ErrLabelMismatch, label, err)
	}
	if res.Label != 0 && res.Label != label {
		return nil, fmt.Errorf("%w: result for label %d reports label %d", ErrLabelMismatch, label, res.Label)
	}
	if res.Covariance == nil || res.Covariance.SymmetricDim() != propagate.StateDim {
		return nil, fmt.Errorf("%w: label %d has no %dx%d covariance", ErrFitFailed, label, propagate.StateDim, propagate.StateDim)
	}
	return res.Covariance, nil
}

// Covariance returns the fitted 4x4 covariance of [u, v, u', v'] at the
// caller's i-th plane.
func (t *Telescope) Covariance(planeIndex int) (*mat.SymDense, error) {
	if err := t.checkIndex(planeIndex); err != nil {
		return nil, err
	}
	cov, err := t.covariance(t.fitted(), planeIndex)
	if err != nil {
		return nil, err
	}
	out := mat.NewSymDense(propagate.StateDim, nil)
	out.CopySym(cov)
	return out, nil
}

// Resolution returns the fitted track position uncertainty in u at the
// caller's i-th plane, in mm.
func (t *Telescope) Resolution(planeIndex int) (float64, error) {
	u, _, err := t.ResolutionUV(planeIndex)
	return u, err
}

// ResolutionUV returns the position uncertainty in both projections.
func (t *Telescope) ResolutionUV(planeIndex int) (u, v float64, err error) {
	if err := t.checkIndex(planeIndex); err != nil {
		return 0, 0, err
	}
	cov, err := t.covariance(t.fitted(), planeIndex)
	if err != nil {
		return 0, 0, err
	}
	return sqrtVariance(cov, propagate.U, planeIndex)
}

// UnbiasedResolution returns the position uncertainty in u at the caller's
// i-th plane when that plane's own measurement is left out of the fit. For
// planes without measurement it equals Resolution.
func (t *Telescope) UnbiasedResolution(planeIndex int) (float64, error) {
	if err := t.checkIndex(planeIndex); err != nil {
		return 0, err
	}
	if !t.planes[planeIndex].measurement {
		return t.Resolution(planeIndex)
	}
	label, err := t.PlaneLabel(planeIndex)
	if err != nil {
		return 0, err
	}
	f, ok := t.unbiased[label]
	if !ok {
		f = t.runFit(label)
		t.unbiased[label] = f
		if f.err != nil {
			monitoring.Errorf("telescope: unbiased fit for plane %d at %g GeV: %v", planeIndex, t.beamEnergy, f.err)
		}
	}
	cov, err := t.covariance(f, planeIndex)
	if err != nil {
		return 0, err
	}
	u, _, err := sqrtVariance(cov, propagate.U, planeIndex)
	return u, err
}

func (t *Telescope) checkIndex(planeIndex int) error {
	if planeIndex < 0 || planeIndex >= len(t.planes) {
		return fmt.Errorf("%w: %d (have %d planes)", ErrPlaneIndexOutOfRange, planeIndex, len(t.planes))
	}
	return nil
}

func sqrtVariance(cov *mat.SymDense, u int, planeIndex int) (float64, float64, error) {
	vu, vv := cov.At(u, u), cov.At(u+1, u+1)
	for _, x := range []float64{vu, vv} {
		if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 {
			return 0, 0, fmt.Errorf("%w: plane %d has variance %g", ErrFitFailed, planeIndex, x)
		}
	}
	return math.Sqrt(vu), math.Sqrt(vv), nil
}
