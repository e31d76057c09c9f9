package telescope

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/banshee-data/telescope/internal/gbl"
	"github.com/banshee-data/telescope/internal/material"
	"github.com/banshee-data/telescope/internal/monitoring"
	"github.com/banshee-data/telescope/internal/propagate"
	"github.com/banshee-data/telescope/internal/scattering"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrNoPlanes             = errors.New("telescope has no planes")
	ErrInvalidPlane         = errors.New("invalid plane")
	ErrInvalidBeamEnergy    = errors.New("invalid beam energy")
	ErrInvalidAmbient       = errors.New("invalid ambient radiation length")
	ErrPlaneIndexOutOfRange = errors.New("plane index out of range")
	ErrFitFailed            = errors.New("trajectory fit failed")
	ErrLabelMismatch        = errors.New("trajectory label mismatch")
)

// FitEngine is the global trajectory fit. Points are added in trajectory
// order; each call returns the label under which results are addressed.
type FitEngine interface {
	AddPoint(p gbl.Point) (int, error)
	Fit() (gbl.Summary, error)
	Result(label int) (gbl.Result, error)
}

// EngineFactory creates a fresh fit engine per fit.
type EngineFactory func() FitEngine

// DefaultEngine returns the gbl least-squares fit.
func DefaultEngine() FitEngine { return gbl.NewTrajectory() }

// Propagator provides the transport between consecutive points.
type Propagator interface {
	Jacobian(gap float64, dir propagate.Direction) *mat.Dense
}

// Config holds the beam and medium parameters of a telescope.
type Config struct {
	// AmbientRadiationLength is X0 of the medium between planes in mm.
	// Zero or +Inf means vacuum.
	AmbientRadiationLength float64
	Particle               scattering.Particle
	LogTerm                scattering.LogTerm
	// Direction is the slope of the beam relative to the plane normal.
	Direction  propagate.Direction
	Propagator Propagator
	NewEngine  EngineFactory
}

// DefaultConfig returns an electron beam at normal incidence in dry air.
func DefaultConfig() Config {
	return Config{
		AmbientRadiationLength: material.X0Air,
		Particle:               scattering.Electron,
		LogTerm:                scattering.LogLocal,
		Propagator:             propagate.StraightLine{},
		NewEngine:              DefaultEngine,
	}
}

// PointKind tells plane points from ambient kink points.
type PointKind int

const (
	PlanePoint PointKind = iota
	AmbientPoint
)

func (k PointKind) String() string {
	if k == AmbientPoint {
		return "ambient"
	}
	return "plane"
}

// TrajectoryPoint is one assembled fit point.
type TrajectoryPoint struct {
	Label    int
	Position float64
	Kind     PointKind
	// PlaneIndex is the caller's index of the plane, -1 for ambient points.
	PlaneIndex int
	// Budget is the material crossed at this point in radiation lengths.
	Budget float64
	Point  gbl.Point
}

// thickScattererOffsets place two thin scatterers that reproduce the mean
// and variance of a homogeneous gap, as fractions of the gap length.
var thickScattererOffsets = [2]float64{0.5 - 1/math.Sqrt(12), 0.5 + 1/math.Sqrt(12)}

// Telescope is one trajectory model: a fixed plane list, beam and medium.
// The trajectory is assembled on construction and fitted on the first
// resolution query. A Telescope is not safe for concurrent use.
type Telescope struct {
	planes     []Plane
	beamEnergy float64
	config     Config
	model      scattering.Model
	budget     float64

	points      []TrajectoryPoint
	planeLabels []int

	fit      *fitOutcome
	unbiased map[int]*fitOutcome
}

// Option adjusts the Config of a telescope under construction.
type Option func(*Config)

// WithAmbientRadiationLength sets X0 of the medium between planes in mm.
func WithAmbientRadiationLength(x0 float64) Option {
	return func(c *Config) { c.AmbientRadiationLength = x0 }
}

// WithVacuum removes the ambient medium.
func WithVacuum() Option { return WithAmbientRadiationLength(0) }

func WithParticle(p scattering.Particle) Option {
	return func(c *Config) { c.Particle = p }
}

func WithLogTerm(lt scattering.LogTerm) Option {
	return func(c *Config) { c.LogTerm = lt }
}

// WithBeamDirection sets the beam slope relative to the plane normal.
func WithBeamDirection(dir propagate.Direction) Option {
	return func(c *Config) { c.Direction = dir }
}

func WithPropagator(p Propagator) Option {
	return func(c *Config) { c.Propagator = p }
}

// WithEngine replaces the fit engine. The factory is called once per fit.
func WithEngine(f EngineFactory) Option {
	return func(c *Config) { c.NewEngine = f }
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(c *Config) { *c = cfg }
}

// New copies the planes, validates the input and assembles the trajectory.
// The configuration starts from DefaultConfig.
func New(planes []Plane, beamEnergy float64, opts ...Option) (*Telescope, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(planes) == 0 {
		return nil, ErrNoPlanes
	}
	for i, p := range planes {
		if !finite(p.position) || !finite(p.material) || !finite(p.resolution) {
			return nil, fmt.Errorf("%w: index %d: %v", ErrInvalidPlane, i, p)
		}
	}
	if !finite(beamEnergy) || beamEnergy <= 0 {
		return nil, fmt.Errorf("%w: %g GeV", ErrInvalidBeamEnergy, beamEnergy)
	}
	if math.IsNaN(cfg.AmbientRadiationLength) || cfg.AmbientRadiationLength < 0 {
		return nil, fmt.Errorf("%w: %g", ErrInvalidAmbient, cfg.AmbientRadiationLength)
	}
	if cfg.Propagator == nil {
		cfg.Propagator = propagate.StraightLine{}
	}
	if cfg.NewEngine == nil {
		cfg.NewEngine = DefaultEngine
	}
	if cfg.Particle.Name == "" {
		cfg.Particle = scattering.Electron
	}

	t := &Telescope{
		planes:     append([]Plane(nil), planes...),
		beamEnergy: beamEnergy,
		config:     cfg,
		unbiased:   make(map[int]*fitOutcome),
	}
	t.budget = t.totalMaterialBudget()

	model, err := scattering.NewModel(beamEnergy, cfg.Particle, cfg.LogTerm, t.budget)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBeamEnergy, err)
	}
	t.model = model

	t.assemble()
	monitoring.Debugf("telescope: %d planes, %d points, %.4g X0 total at %g GeV",
		len(t.planes), len(t.points), t.budget, beamEnergy)
	return t, nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func (t *Telescope) hasAmbient() bool {
	x0 := t.config.AmbientRadiationLength
	return x0 > 0 && !math.IsInf(x0, 1)
}

// totalMaterialBudget sums plane material and the medium between the
// outermost planes, along the beam direction.
func (t *Telescope) totalMaterialBudget() float64 {
	pf := propagate.PathFactor(t.config.Direction)
	total := 0.0
	first, last := t.planes[0].position, t.planes[0].position
	for _, p := range t.planes {
		total += p.material * pf
		first = math.Min(first, p.position)
		last = math.Max(last, p.position)
	}
	if t.hasAmbient() {
		total += (last - first) / t.config.AmbientRadiationLength * pf
	}
	return total
}

// assemble builds the point sequence in position order. Each plane gets one
// point; each gap in a non-vacuum medium gets two ambient kink points.
func (t *Telescope) assemble() {
	pf := propagate.PathFactor(t.config.Direction)
	order := sortedOrder(t.planes)

	t.points = make([]TrajectoryPoint, 0, 3*len(order))
	t.planeLabels = make([]int, len(t.planes))

	lastZ := t.planes[order[0]].position
	add := func(tp TrajectoryPoint) int {
		tp.Point.Jacobian = t.config.Propagator.Jacobian(tp.Position-lastZ, t.config.Direction)
		tp.Label = len(t.points) + 1
		t.points = append(t.points, tp)
		lastZ = tp.Position
		return tp.Label
	}

	for k, idx := range order {
		pl := t.planes[idx]

		if k > 0 && t.hasAmbient() {
			upstream := t.planes[order[k-1]].position
			gap := pl.position - upstream
			if gap > 0 {
				half := 0.5 * gap / t.config.AmbientRadiationLength * pf
				for _, f := range thickScattererOffsets {
					tp := TrajectoryPoint{
						Position:   upstream + f*gap,
						Kind:       AmbientPoint,
						PlaneIndex: -1,
						Budget:     half,
					}
					if v := t.model.Variance(half); v > 0 {
						tp.Point.Kink = gbl.NewKink(v)
					}
					add(tp)
				}
			}
		}

		tp := TrajectoryPoint{
			Position:   pl.position,
			Kind:       PlanePoint,
			PlaneIndex: idx,
			Budget:     pl.material * pf,
		}
		if pl.measurement {
			tp.Point.Measurement = gbl.NewMeasurement(pl.resolution)
		}
		if pl.material > 0 {
			if v := t.model.Variance(tp.Budget); v > 0 {
				tp.Point.Kink = gbl.NewKink(v)
			}
		}
		t.planeLabels[idx] = add(tp)
	}
}

// Planes returns a copy of the planes in the caller's order.
func (t *Telescope) Planes() []Plane { return append([]Plane(nil), t.planes...) }

// BeamEnergy returns the beam energy in GeV.
func (t *Telescope) BeamEnergy() float64 { return t.beamEnergy }

// TotalMaterialBudget returns the material crossed from the first to the
// last plane in radiation lengths.
func (t *Telescope) TotalMaterialBudget() float64 { return t.budget }

// Trajectory returns a copy of the assembled points in position order.
func (t *Telescope) Trajectory() []TrajectoryPoint {
	return append([]TrajectoryPoint(nil), t.points...)
}

// Labels returns the point labels in position order.
func (t *Telescope) Labels() []int {
	labels := make([]int, len(t.points))
	for i, p := range t.points {
		labels[i] = p.Label
	}
	return labels
}

// PlaneLabel returns the label of the point of the caller's i-th plane.
func (t *Telescope) PlaneLabel(planeIndex int) (int, error) {
	if planeIndex < 0 || planeIndex >= len(t.planes) {
		return 0, fmt.Errorf("%w: %d (have %d planes)", ErrPlaneIndexOutOfRange, planeIndex, len(t.planes))
	}
	label := t.planeLabels[planeIndex]
	if label < 1 || label > len(t.points) || t.points[label-1].PlaneIndex != planeIndex {
		return 0, fmt.Errorf("%w: plane %d has label %d", ErrLabelMismatch, planeIndex, label)
	}
	return label, nil
}

// DescribeLabels writes one line per trajectory point.
func (t *Telescope) DescribeLabels(w io.Writer) error {
	for _, p := range t.points {
		var err error
		if p.Kind == AmbientPoint {
			_, err = fmt.Fprintf(w, "label %3d  z=%9.3f  ambient  x/X0=%.4g\n", p.Label, p.Position, p.Budget)
		} else {
			_, err = fmt.Fprintf(w, "label %3d  z=%9.3f  plane %-3d x/X0=%.4g meas=%t\n",
				p.Label, p.Position, p.PlaneIndex, p.Budget, p.Point.HasMeasurement())
		}
		if err != nil {
			return err
		}
	}
	return nil
}
