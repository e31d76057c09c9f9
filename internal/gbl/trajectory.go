// Package gbl fits straight-line trajectories with multiple scattering
// as one global linear least-squares problem.
//
// The fit parameters are the track state at the first point and one pair
// of kink angles per interior scatterer. Each scatterer contributes its
// kink angles as pseudo-measurements with zero expectation and the given
// covariance, each measurement contributes its residual. The normal
// equations are solved once, giving fitted corrections and covariances at
// every point.
package gbl

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/telescope/internal/monitoring"
	"github.com/banshee-data/telescope/internal/propagate"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrEmpty         = errors.New("trajectory has no points")
	ErrInvalidPoint  = errors.New("invalid trajectory point")
	ErrAlreadyFitted = errors.New("trajectory already fitted")
	ErrSingular      = errors.New("singular trajectory fit")
	ErrNotFinite     = errors.New("fit produced non-finite values")
	ErrNotFitted     = errors.New("trajectory not fitted")
	ErrUnknownLabel  = errors.New("unknown point label")
)

// Summary describes a completed fit.
type Summary struct {
	Chi2       float64
	Ndf        int
	Points     int
	Parameters int
}

// Result holds the fitted corrections at a point.
type Result struct {
	Label int
	// Parameters are the fitted corrections to [u, v, u', v'] at the point,
	// with the slopes taken on the incoming side of any kink.
	Parameters *mat.VecDense
	// Covariance is the 4x4 covariance of Parameters.
	Covariance *mat.SymDense
}

// Trajectory collects points and fits them. Labels are assigned 1..N in
// the order points are added.
type Trajectory struct {
	points []prepared

	fitted   bool
	summary  Summary
	gains    []*mat.Dense // d(state at point)/d(parameters), 4 x n
	solution *mat.VecDense
	cov      *mat.SymDense
}

// NewTrajectory returns an empty trajectory.
func NewTrajectory() *Trajectory {
	return &Trajectory{}
}

// AddPoint appends a point and returns its label.
func (t *Trajectory) AddPoint(p Point) (int, error) {
	if t.fitted {
		return 0, ErrAlreadyFitted
	}
	pp, err := prepare(p)
	if err != nil {
		return 0, fmt.Errorf("point %d: %w", len(t.points)+1, err)
	}
	t.points = append(t.points, pp)
	return len(t.points), nil
}

// NumPoints returns the number of points added so far.
func (t *Trajectory) NumPoints() int { return len(t.points) }

// Fit solves the trajectory. Scatterers at the first and last point do not
// change any position on the trajectory and are ignored.
func (t *Trajectory) Fit() (Summary, error) {
	if t.fitted {
		return t.summary, ErrAlreadyFitted
	}
	numPoints := len(t.points)
	if numPoints == 0 {
		return Summary{}, ErrEmpty
	}

	// Assign parameter slots to interior kinks.
	kinkSlot := make([]int, numPoints)
	numKinks := 0
	for i, p := range t.points {
		kinkSlot[i] = -1
		if p.kinkPrec != nil && i > 0 && i < numPoints-1 {
			kinkSlot[i] = propagate.StateDim + MeasDim*numKinks
			numKinks++
		}
	}
	n := propagate.StateDim + MeasDim*numKinks

	numMeas := 0
	for _, p := range t.points {
		if p.weight != nil {
			numMeas += MeasDim
		}
	}
	if numMeas < propagate.StateDim {
		return Summary{}, fmt.Errorf("%w: %d measured coordinates for %d track parameters", ErrSingular, numMeas, propagate.StateDim)
	}

	normal := mat.NewDense(n, n, nil)
	rhs := mat.NewVecDense(n, nil)
	gains := make([]*mat.Dense, numPoints)

	after := mat.NewDense(propagate.StateDim, n, nil)
	for i := 0; i < propagate.StateDim; i++ {
		after.Set(i, i, 1)
	}

	for i, p := range t.points {
		gain := after
		if i > 0 {
			gain = mat.NewDense(propagate.StateDim, n, nil)
			gain.Mul(p.jacobian, after)
		}
		gains[i] = gain

		if p.weight != nil {
			proj := gain.Slice(propagate.U, propagate.U+MeasDim, 0, n)
			var atw mat.Dense
			atw.Mul(proj.T(), p.weight)
			var contrib mat.Dense
			contrib.Mul(&atw, proj)
			normal.Add(normal, &contrib)

			var b mat.VecDense
			b.MulVec(&atw, p.residual)
			rhs.AddVec(rhs, &b)
		}

		after = gain
		if slot := kinkSlot[i]; slot >= 0 {
			for r := 0; r < MeasDim; r++ {
				for c := 0; c < MeasDim; c++ {
					normal.Set(slot+r, slot+c, normal.At(slot+r, slot+c)+p.kinkPrec.At(r, c))
				}
			}
			after = mat.DenseCopyOf(gain)
			after.Set(propagate.DU, slot, after.At(propagate.DU, slot)+1)
			after.Set(propagate.DV, slot+1, after.At(propagate.DV, slot+1)+1)
		}
	}

	sym := mat.NewSymDense(n, nil)
	for r := 0; r < n; r++ {
		for c := r; c < n; c++ {
			sym.SetSym(r, c, 0.5*(normal.At(r, c)+normal.At(c, r)))
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return Summary{}, fmt.Errorf("%w: normal matrix is not positive definite", ErrSingular)
	}
	var cov mat.SymDense
	if err := conditionOK(chol.InverseTo(&cov)); err != nil {
		return Summary{}, err
	}
	var solution mat.VecDense
	if err := conditionOK(chol.SolveVecTo(&solution, rhs)); err != nil {
		return Summary{}, err
	}

	for r := 0; r < n; r++ {
		if d := cov.At(r, r); math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
			return Summary{}, fmt.Errorf("%w: covariance[%d][%d] = %g", ErrNotFinite, r, r, d)
		}
	}

	chi2 := 0.0
	for i, p := range t.points {
		if p.weight != nil {
			proj := gains[i].Slice(propagate.U, propagate.U+MeasDim, 0, n)
			var pred mat.VecDense
			pred.MulVec(proj, &solution)
			var res mat.VecDense
			res.SubVec(p.residual, &pred)
			chi2 += mat.Inner(&res, p.weight, &res)
		}
		if slot := kinkSlot[i]; slot >= 0 {
			kink := solution.SliceVec(slot, slot+MeasDim)
			chi2 += mat.Inner(kink, p.kinkPrec, kink)
		}
	}

	t.fitted = true
	t.gains = gains
	t.solution = &solution
	t.cov = &cov
	t.summary = Summary{
		Chi2:       chi2,
		Ndf:        numMeas - propagate.StateDim,
		Points:     numPoints,
		Parameters: n,
	}
	monitoring.Debugf("gbl: fitted %d points, %d parameters (%d kinks), chi2 %.4g / ndf %d",
		numPoints, n, numKinks, chi2, t.summary.Ndf)
	return t.summary, nil
}

// conditionOK accepts gonum's ill-conditioning warnings, for which the
// result is still computed, and maps every other failure to ErrSingular.
func conditionOK(err error) error {
	if err == nil {
		return nil
	}
	var cond mat.Condition
	if errors.As(err, &cond) && !math.IsInf(float64(cond), 0) {
		monitoring.Warnf("gbl: ill-conditioned normal matrix (condition %.3g)", float64(cond))
		return nil
	}
	return fmt.Errorf("%w: %v", ErrSingular, err)
}

// Result returns the fitted corrections and covariance at a label.
func (t *Trajectory) Result(label int) (Result, error) {
	if !t.fitted {
		return Result{}, ErrNotFitted
	}
	if label < 1 || label > len(t.gains) {
		return Result{}, fmt.Errorf("%w: %d (have 1..%d)", ErrUnknownLabel, label, len(t.gains))
	}
	gain := t.gains[label-1]

	var params mat.VecDense
	params.MulVec(gain, t.solution)

	var gc mat.Dense
	gc.Mul(gain, t.cov)
	var full mat.Dense
	full.Mul(&gc, gain.T())

	cov := mat.NewSymDense(propagate.StateDim, nil)
	for r := 0; r < propagate.StateDim; r++ {
		for c := r; c < propagate.StateDim; c++ {
			cov.SetSym(r, c, 0.5*(full.At(r, c)+full.At(c, r)))
		}
	}
	return Result{Label: label, Parameters: &params, Covariance: cov}, nil
}
