// Package propagate provides linear track transport between planes.
//
// Track states are [u, v, u', v']: the two transverse positions and their
// slopes with respect to the beam axis z.
package propagate

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// StateDim is the size of the track state.
const StateDim = 4

// Indices into the track state.
const (
	U = iota
	V
	DU
	DV
)

// Direction is the slope of the reference trajectory.
type Direction struct {
	TX float64
	TY float64
}

// PathFactor is the ratio of path length to longitudinal distance along
// the reference direction. Material budgets scale with it.
func PathFactor(dir Direction) float64 {
	return math.Sqrt(1 + dir.TX*dir.TX + dir.TY*dir.TY)
}

// StraightLine propagates tracks without a magnetic field.
type StraightLine struct{}

// Jacobian returns the 4x4 transport over a longitudinal gap.
//
//	F = [1  0  gap  0 ]
//	    [0  1  0   gap]
//	    [0  0  1    0 ]
//	    [0  0  0    1 ]
//
// Slopes are measured in z, so the reference direction does not enter
// the straight-line transport.
func (StraightLine) Jacobian(gap float64, _ Direction) *mat.Dense {
	j := Identity()
	j.Set(U, DU, gap)
	j.Set(V, DV, gap)
	return j
}

// Identity returns a fresh 4x4 identity transport.
func Identity() *mat.Dense {
	j := mat.NewDense(StateDim, StateDim, nil)
	for i := 0; i < StateDim; i++ {
		j.Set(i, i, 1)
	}
	return j
}

// Compose multiplies transports given in traversal order, so that
// Compose(a, b) transports with a first and then b.
func Compose(jacobians ...mat.Matrix) *mat.Dense {
	out := Identity()
	for _, j := range jacobians {
		var next mat.Dense
		next.Mul(j, out)
		out = &next
	}
	return out
}
