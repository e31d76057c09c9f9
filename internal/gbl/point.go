package gbl

import (
	"fmt"

	"github.com/banshee-data/telescope/internal/propagate"
	"gonum.org/v1/gonum/mat"
)

// MeasDim is the number of measured coordinates per point (u, v).
const MeasDim = 2

// Measurement is a position measurement at a point.
type Measurement struct {
	// Residual is measured minus reference position in u and v.
	Residual [MeasDim]float64
	// Covariance is the 2x2 measurement covariance.
	Covariance *mat.SymDense
}

// NewMeasurement returns an uncorrelated measurement with the same
// resolution in u and v and zero residual.
func NewMeasurement(resolution float64) *Measurement {
	variance := resolution * resolution
	return &Measurement{
		Covariance: mat.NewSymDense(MeasDim, []float64{variance, 0, 0, variance}),
	}
}

// NewKink returns a 2x2 kink covariance for independent scattering in
// both projections.
func NewKink(variance float64) *mat.SymDense {
	return mat.NewSymDense(MeasDim, []float64{variance, 0, 0, variance})
}

// Point is one point of a trajectory.
type Point struct {
	// Jacobian transports the track state from the previous point to this
	// one. It is ignored for the first point; nil means identity.
	Jacobian mat.Matrix
	// Measurement is nil for points without a measurement.
	Measurement *Measurement
	// Kink is the 2x2 covariance of the scattering angles (u', v') at this
	// point, or nil for no scatterer.
	Kink *mat.SymDense
}

// HasMeasurement reports whether the point carries a measurement.
func (p Point) HasMeasurement() bool { return p.Measurement != nil }

// HasKink reports whether the point carries a scatterer.
func (p Point) HasKink() bool { return p.Kink != nil }

// prepared is a validated point with its weights inverted.
type prepared struct {
	jacobian *mat.Dense
	residual *mat.VecDense
	weight   *mat.SymDense // measurement precision or nil
	kinkPrec *mat.SymDense // kink precision or nil
}

func prepare(p Point) (prepared, error) {
	var out prepared

	if p.Jacobian == nil {
		out.jacobian = propagate.Identity()
	} else {
		r, c := p.Jacobian.Dims()
		if r != propagate.StateDim || c != propagate.StateDim {
			return out, fmt.Errorf("%w: jacobian is %dx%d, want %dx%d", ErrInvalidPoint, r, c, propagate.StateDim, propagate.StateDim)
		}
		out.jacobian = mat.DenseCopyOf(p.Jacobian)
	}

	if p.Measurement != nil {
		w, err := invert2(p.Measurement.Covariance)
		if err != nil {
			return out, fmt.Errorf("%w: measurement covariance: %v", ErrInvalidPoint, err)
		}
		out.weight = w
		out.residual = mat.NewVecDense(MeasDim, []float64{p.Measurement.Residual[0], p.Measurement.Residual[1]})
	}

	if p.Kink != nil {
		w, err := invert2(p.Kink)
		if err != nil {
			return out, fmt.Errorf("%w: kink covariance: %v", ErrInvalidPoint, err)
		}
		out.kinkPrec = w
	}
	return out, nil
}

// invert2 inverts a positive definite 2x2 covariance.
func invert2(cov *mat.SymDense) (*mat.SymDense, error) {
	if cov == nil {
		return nil, fmt.Errorf("nil covariance")
	}
	if n := cov.SymmetricDim(); n != MeasDim {
		return nil, fmt.Errorf("covariance is %dx%d, want %dx%d", n, n, MeasDim, MeasDim)
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(cov); !ok {
		return nil, fmt.Errorf("covariance is not positive definite")
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return nil, err
	}
	return &inv, nil
}
