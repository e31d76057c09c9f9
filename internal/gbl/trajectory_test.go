package gbl

import (
	"errors"
	"math"
	"testing"

	"github.com/banshee-data/telescope/internal/propagate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const sigma = 3.24e-3

// buildLine adds measuring points at the given positions, with an optional
// kink variance at every point.
func buildLine(t *testing.T, positions []float64, residuals []float64, kinkVariance float64) *Trajectory {
	t.Helper()
	traj := NewTrajectory()
	prev := positions[0]
	for i, z := range positions {
		p := Point{
			Jacobian:    propagate.StraightLine{}.Jacobian(z-prev, propagate.Direction{}),
			Measurement: NewMeasurement(sigma),
		}
		if residuals != nil {
			p.Measurement.Residual[0] = residuals[i]
		}
		if kinkVariance > 0 {
			p.Kink = NewKink(kinkVariance)
		}
		label, err := traj.AddPoint(p)
		require.NoError(t, err)
		require.Equal(t, i+1, label)
		prev = z
	}
	return traj
}

func TestFit_TwoPoints(t *testing.T) {
	traj := buildLine(t, []float64{0, 20}, nil, 0)
	summary, err := traj.Fit()
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Ndf)
	assert.Equal(t, 2, summary.Points)
	assert.Equal(t, 4, summary.Parameters)

	for _, label := range []int{1, 2} {
		res, err := traj.Result(label)
		require.NoError(t, err)
		assert.InDelta(t, sigma*sigma, res.Covariance.At(propagate.U, propagate.U), 1e-15)
		assert.InDelta(t, sigma*sigma, res.Covariance.At(propagate.V, propagate.V), 1e-15)
		// slope from two points: sqrt(2)·σ/d
		assert.InDelta(t, 2*sigma*sigma/400, res.Covariance.At(propagate.DU, propagate.DU), 1e-15)
	}
}

func TestFit_EndKinksIgnored(t *testing.T) {
	traj := buildLine(t, []float64{0, 20}, nil, 1e-6)
	summary, err := traj.Fit()
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Parameters, "kinks at both ends must not add parameters")

	res, err := traj.Result(2)
	require.NoError(t, err)
	assert.InDelta(t, sigma*sigma, res.Covariance.At(propagate.U, propagate.U), 1e-15)
}

func TestFit_ThreePointsStraight(t *testing.T) {
	traj := buildLine(t, []float64{0, 10, 20}, nil, 0)
	_, err := traj.Fit()
	require.NoError(t, err)

	res, err := traj.Result(2)
	require.NoError(t, err)
	// centre of a symmetric three-point line fit
	assert.InDelta(t, sigma*sigma/3, res.Covariance.At(propagate.U, propagate.U), 1e-15)
}

func TestFit_Chi2(t *testing.T) {
	delta := 2 * sigma
	traj := buildLine(t, []float64{0, 10, 20}, []float64{0, delta, 0}, 0)
	summary, err := traj.Fit()
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Ndf)
	assert.InDelta(t, 2*delta*delta/(3*sigma*sigma), summary.Chi2, 1e-9)

	res, err := traj.Result(2)
	require.NoError(t, err)
	assert.InDelta(t, delta/3, res.Parameters.AtVec(propagate.U), 1e-12)
	assert.InDelta(t, 0, res.Parameters.AtVec(propagate.DU), 1e-12)
}

func TestFit_ColinearResiduals(t *testing.T) {
	// residuals on a line u = 0.01 + 0.001 z fit exactly
	z := []float64{0, 20, 40, 60}
	r := make([]float64, len(z))
	for i := range z {
		r[i] = 0.01 + 0.001*z[i]
	}
	traj := buildLine(t, z, r, 1e-8)
	summary, err := traj.Fit()
	require.NoError(t, err)
	assert.InDelta(t, 0, summary.Chi2, 1e-9)

	for i := range z {
		res, err := traj.Result(i + 1)
		require.NoError(t, err)
		assert.InDelta(t, r[i], res.Parameters.AtVec(propagate.U), 1e-9)
	}
}

func TestFit_KinkInflatesCentre(t *testing.T) {
	prev := sigma * sigma / 3
	for _, variance := range []float64{1e-12, 1e-9, 1e-7, 1e-5, 1e-2} {
		traj := NewTrajectory()
		sl := propagate.StraightLine{}
		_, err := traj.AddPoint(Point{Measurement: NewMeasurement(sigma)})
		require.NoError(t, err)
		_, err = traj.AddPoint(Point{Jacobian: sl.Jacobian(10, propagate.Direction{}), Measurement: NewMeasurement(sigma), Kink: NewKink(variance)})
		require.NoError(t, err)
		_, err = traj.AddPoint(Point{Jacobian: sl.Jacobian(10, propagate.Direction{}), Measurement: NewMeasurement(sigma)})
		require.NoError(t, err)

		_, err = traj.Fit()
		require.NoError(t, err)
		res, err := traj.Result(2)
		require.NoError(t, err)

		got := res.Covariance.At(propagate.U, propagate.U)
		assert.GreaterOrEqual(t, got, prev-1e-18, "kink variance %g", variance)
		assert.LessOrEqual(t, got, sigma*sigma+1e-18, "kink variance %g", variance)
		prev = got
	}
}

func TestFit_Errors(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		_, err := NewTrajectory().Fit()
		assert.True(t, errors.Is(err, ErrEmpty), "got %v", err)
	})

	t.Run("single_measurement", func(t *testing.T) {
		traj := buildLine(t, []float64{0}, nil, 0)
		_, err := traj.Fit()
		assert.True(t, errors.Is(err, ErrSingular), "got %v", err)
	})

	t.Run("coincident_measurements", func(t *testing.T) {
		traj := buildLine(t, []float64{5, 5}, nil, 0)
		_, err := traj.Fit()
		assert.True(t, errors.Is(err, ErrSingular), "got %v", err)
	})

	t.Run("not_fitted", func(t *testing.T) {
		traj := buildLine(t, []float64{0, 10}, nil, 0)
		_, err := traj.Result(1)
		assert.True(t, errors.Is(err, ErrNotFitted), "got %v", err)
	})

	t.Run("unknown_label", func(t *testing.T) {
		traj := buildLine(t, []float64{0, 10}, nil, 0)
		_, err := traj.Fit()
		require.NoError(t, err)
		for _, label := range []int{0, 3, -1} {
			_, err := traj.Result(label)
			assert.True(t, errors.Is(err, ErrUnknownLabel), "label %d: got %v", label, err)
		}
	})

	t.Run("refit", func(t *testing.T) {
		traj := buildLine(t, []float64{0, 10}, nil, 0)
		_, err := traj.Fit()
		require.NoError(t, err)
		_, err = traj.Fit()
		assert.True(t, errors.Is(err, ErrAlreadyFitted), "got %v", err)
		_, err = traj.AddPoint(Point{})
		assert.True(t, errors.Is(err, ErrAlreadyFitted), "got %v", err)
	})
}

func TestAddPoint_Invalid(t *testing.T) {
	testCases := []struct {
		name  string
		point Point
	}{
		{"jacobian_dims", Point{Jacobian: mat.NewDense(2, 2, nil)}},
		{"zero_resolution", Point{Measurement: NewMeasurement(0)}},
		{"nil_covariance", Point{Measurement: &Measurement{}}},
		{"kink_dims", Point{Kink: mat.NewSymDense(3, nil)}},
		{"negative_kink", Point{Kink: NewKink(-1)}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewTrajectory().AddPoint(tc.point)
			assert.True(t, errors.Is(err, ErrInvalidPoint), "got %v", err)
		})
	}
}

func TestResult_CovarianceSymmetric(t *testing.T) {
	traj := buildLine(t, []float64{0, 20, 40, 137.5, 157.5, 177.5}, nil, 1e-9)
	_, err := traj.Fit()
	require.NoError(t, err)

	for label := 1; label <= traj.NumPoints(); label++ {
		res, err := traj.Result(label)
		require.NoError(t, err)
		for i := 0; i < 4; i++ {
			d := res.Covariance.At(i, i)
			assert.False(t, math.IsNaN(d))
			assert.Greater(t, d, 0.0)
			for j := 0; j < 4; j++ {
				assert.Equal(t, res.Covariance.At(i, j), res.Covariance.At(j, i))
			}
		}
	}
}
