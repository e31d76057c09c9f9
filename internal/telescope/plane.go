package telescope

import (
	"fmt"
	"sort"
)

// Plane is one station along the beam axis. It may measure the track
// position, scatter it, both, or neither. Planes are values; once built
// they are never modified.
type Plane struct {
	position    float64 // mm
	material    float64 // x/X0
	measurement bool
	resolution  float64 // mm, zero unless measuring
}

// NewPlane builds a plane. The resolution is dropped for planes that do
// not measure. Material and resolution are not validated; negative values
// are a caller error.
func NewPlane(position, material float64, measurement bool, resolution float64) Plane {
	if !measurement {
		resolution = 0
	}
	return Plane{
		position:    position,
		material:    material,
		measurement: measurement,
		resolution:  resolution,
	}
}

// NewScatterer builds a non-measuring plane that only adds material.
func NewScatterer(position, material float64) Plane {
	return NewPlane(position, material, false, 0)
}

// NewReference builds a measuring plane without material.
func NewReference(position, resolution float64) Plane {
	return NewPlane(position, 0, true, resolution)
}

// Position returns the longitudinal position in mm.
func (p Plane) Position() float64 { return p.position }

// Material returns the material budget in radiation lengths.
func (p Plane) Material() float64 { return p.material }

// HasMeasurement reports whether the plane measures the track position.
func (p Plane) HasMeasurement() bool { return p.measurement }

// Resolution returns the intrinsic resolution in mm, zero for planes
// without measurement.
func (p Plane) Resolution() float64 { return p.resolution }

// Less orders planes by position only.
func (p Plane) Less(o Plane) bool { return p.position < o.position }

func (p Plane) String() string {
	if p.measurement {
		return fmt.Sprintf("plane z=%gmm x/X0=%.4g res=%gmm", p.position, p.material, p.resolution)
	}
	return fmt.Sprintf("plane z=%gmm x/X0=%.4g (no measurement)", p.position, p.material)
}

// sortedOrder returns plane indices ordered by position. Ties keep their
// input order.
func sortedOrder(planes []Plane) []int {
	order := make([]int, len(planes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return planes[order[a]].Less(planes[order[b]])
	})
	return order
}
