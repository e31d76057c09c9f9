// Package material provides radiation lengths of common detector materials
// and material budget helpers. All lengths are in millimetres.
package material

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ID identifies a material.
type ID string

// Material identifiers
const (
	Si      ID = "Si"
	Kapton  ID = "Kapton"
	Air     ID = "Air"
	Al      ID = "Al"
	Cu      ID = "Cu"
	Be      ID = "Be"
	Fe      ID = "Fe"
	Pb      ID = "Pb"
	W       ID = "W"
	Mylar   ID = "Mylar"
	Water   ID = "Water"
	Diamond ID = "Diamond"
)

// Radiation lengths in mm (PDG).
const (
	X0Si      = 93.70
	X0Kapton  = 285.6
	X0Air     = 303900.0 // dry air at 1 atm
	X0Al      = 88.97
	X0Cu      = 14.36
	X0Be      = 352.8
	X0Fe      = 17.57
	X0Pb      = 5.612
	X0W       = 3.504
	X0Mylar   = 285.4
	X0Water   = 360.8
	X0Diamond = 122.1
)

// DefaultAmbient is the medium between planes unless configured otherwise.
const DefaultAmbient = Air

// ErrUnknownMaterial is returned for identifiers without a radiation length.
var ErrUnknownMaterial = errors.New("unknown material")

var radiationLengths = map[ID]float64{
	Si:      X0Si,
	Kapton:  X0Kapton,
	Air:     X0Air,
	Al:      X0Al,
	Cu:      X0Cu,
	Be:      X0Be,
	Fe:      X0Fe,
	Pb:      X0Pb,
	W:       X0W,
	Mylar:   X0Mylar,
	Water:   X0Water,
	Diamond: X0Diamond,
}

// RadiationLength returns X0 of the material in mm.
func RadiationLength(id ID) (float64, error) {
	x0, ok := radiationLengths[id]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownMaterial, string(id))
	}
	return x0, nil
}

// IsValid checks if the given material has a known radiation length.
func IsValid(id ID) bool {
	_, ok := radiationLengths[id]
	return ok
}

// ValidMaterialsString returns a comma-separated list of known materials for error messages.
func ValidMaterialsString() string {
	names := make([]string, 0, len(radiationLengths))
	for id := range radiationLengths {
		names = append(names, string(id))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// Layer is a slab of material crossed at normal incidence.
type Layer struct {
	Material  ID      `json:"material"`
	Thickness float64 `json:"thickness_mm"`
}

// Budget returns the summed material budget x/X0 of the layers.
func Budget(layers ...Layer) (float64, error) {
	var total float64
	for _, l := range layers {
		x0, err := RadiationLength(l.Material)
		if err != nil {
			return 0, err
		}
		if l.Thickness < 0 {
			return 0, fmt.Errorf("layer %s: negative thickness %g", l.Material, l.Thickness)
		}
		total += l.Thickness / x0
	}
	return total, nil
}

// MIMOSA26 is a MIMOSA26 telescope sensor: 50 µm silicon with a 5 µm
// passivation layer plus two 25 µm Kapton protection foils.
var MIMOSA26 = []Layer{
	{Material: Si, Thickness: 55e-3},
	{Material: Kapton, Thickness: 50e-3},
}
