// Package scattering implements the Highland approximation of the
// multiple Coulomb scattering angle.
package scattering

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Energies, momenta and masses are in GeV.

// HighlandScale is the 13.6 MeV constant of the Highland formula.
const HighlandScale = 0.0136

// ErrInvalidEnergy is returned when the beam energy cannot describe a real particle.
var ErrInvalidEnergy = errors.New("invalid beam energy")

// Particle is a beam particle species.
type Particle struct {
	Name   string
	Mass   float64
	Charge float64
}

var (
	Electron = Particle{Name: "electron", Mass: 0.51099895e-3, Charge: -1}
	Positron = Particle{Name: "positron", Mass: 0.51099895e-3, Charge: 1}
	Muon     = Particle{Name: "muon", Mass: 0.1056583755, Charge: -1}
	Pion     = Particle{Name: "pion", Mass: 0.13957039, Charge: 1}
	Proton   = Particle{Name: "proton", Mass: 0.93827208816, Charge: 1}
)

var particles = []Particle{Electron, Positron, Muon, Pion, Proton}

// ParticleByName looks up a particle species by name (case-insensitive).
func ParticleByName(name string) (Particle, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, p := range particles {
		if p.Name == n {
			return p, nil
		}
	}
	return Particle{}, fmt.Errorf("unknown particle %q", name)
}

// Kinematics returns momentum and velocity of a particle with the given
// total energy.
func Kinematics(energy float64, p Particle) (momentum, beta float64, err error) {
	if math.IsNaN(energy) || math.IsInf(energy, 0) || energy <= 0 {
		return 0, 0, fmt.Errorf("%w: %g GeV", ErrInvalidEnergy, energy)
	}
	if energy <= p.Mass {
		return 0, 0, fmt.Errorf("%w: %g GeV does not exceed %s mass %g GeV", ErrInvalidEnergy, energy, p.Name, p.Mass)
	}
	momentum = math.Sqrt(energy*energy - p.Mass*p.Mass)
	return momentum, momentum / energy, nil
}

// LogTerm selects which material budget enters the logarithmic correction.
type LogTerm int

const (
	// LogLocal evaluates the correction at the budget of each contribution.
	LogLocal LogTerm = iota
	// LogTotal evaluates the correction at the total budget of the whole
	// trajectory, so that contributions add in quadrature consistently.
	LogTotal
)

func (l LogTerm) String() string {
	switch l {
	case LogLocal:
		return "local"
	case LogTotal:
		return "total"
	}
	return fmt.Sprintf("LogTerm(%d)", int(l))
}

// ParseLogTerm converts "local" or "total" to a LogTerm.
func ParseLogTerm(s string) (LogTerm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "local":
		return LogLocal, nil
	case "total":
		return LogTotal, nil
	}
	return LogLocal, fmt.Errorf("unknown log term %q: expected local or total", s)
}

// Model computes scattering angles for a fixed beam.
type Model struct {
	Momentum float64
	Beta     float64
	Charge   float64
	LogTerm  LogTerm
	// TotalBudget is used by LogTotal.
	TotalBudget float64
}

// NewModel builds a scattering model for the beam energy and particle.
func NewModel(energy float64, p Particle, logTerm LogTerm, totalBudget float64) (Model, error) {
	momentum, beta, err := Kinematics(energy, p)
	if err != nil {
		return Model{}, err
	}
	charge := math.Abs(p.Charge)
	if charge == 0 {
		charge = 1
	}
	return Model{
		Momentum:    momentum,
		Beta:        beta,
		Charge:      charge,
		LogTerm:     logTerm,
		TotalBudget: totalBudget,
	}, nil
}

// Theta returns the width of the projected scattering angle distribution
// for a contribution of x radiation lengths.
func (m Model) Theta(x float64) float64 {
	if x <= 0 {
		return 0
	}
	logBudget := x
	if m.LogTerm == LogTotal && m.TotalBudget > 0 {
		logBudget = m.TotalBudget
	}
	return HighlandScale / (m.Beta * m.Momentum) * m.Charge * math.Sqrt(x) * (1 + 0.038*math.Log(logBudget))
}

// Variance returns Theta(x)².
func (m Model) Variance(x float64) float64 {
	theta := m.Theta(x)
	return theta * theta
}
