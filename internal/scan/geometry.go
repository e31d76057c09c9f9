package scan

import (
	"fmt"

	"github.com/banshee-data/telescope/internal/config"
	"github.com/banshee-data/telescope/internal/material"
	"github.com/banshee-data/telescope/internal/telescope"
)

// Geometry is a two-arm telescope with a device under test (DUT) between
// the arms.
//
//	 M26  M26  M26      DUT      M26  M26  M26
//	  |    |    |        |        |    |    |
//	  |<-->|    |<------>|<------>|    |    |
//	 Spacing    DUTDistance
type Geometry struct {
	UpstreamPlanes   int
	DownstreamPlanes int
	Spacing          float64 // mm
	DUTDistance      float64 // mm

	SensorMaterial   float64 // x/X0
	SensorResolution float64 // mm

	DUTMaterial    float64 // x/X0
	DUTMeasurement bool
	DUTResolution  float64 // mm
}

// DATURAGeometry returns the DATURA telescope at the DESY test beam: six
// MIMOSA26 planes with 20 mm spacing and a MIMOSA26 scatterer as DUT.
func DATURAGeometry() Geometry {
	m26 := 55e-3/material.X0Si + 50e-3/material.X0Kapton
	return Geometry{
		UpstreamPlanes:   3,
		DownstreamPlanes: 3,
		Spacing:          20,
		DUTDistance:      7.5,
		SensorMaterial:   m26,
		SensorResolution: 3.24e-3,
		DUTMaterial:      m26,
		DUTResolution:    3.24e-3,
	}
}

// GeometryFromConfig resolves the geometry section of a scan config.
func GeometryFromConfig(cfg *config.ScanConfig) (Geometry, error) {
	sensor, err := cfg.GetSensorMaterial()
	if err != nil {
		return Geometry{}, fmt.Errorf("sensor material: %w", err)
	}
	dut, err := cfg.GetDUTMaterial()
	if err != nil {
		return Geometry{}, fmt.Errorf("dut material: %w", err)
	}
	g := Geometry{
		UpstreamPlanes:   cfg.GetUpstreamPlanes(),
		DownstreamPlanes: cfg.GetDownstreamPlanes(),
		Spacing:          cfg.GetPlaneSpacing(),
		DUTDistance:      cfg.GetDUTDistance(),
		SensorMaterial:   sensor,
		SensorResolution: cfg.GetSensorResolution(),
		DUTMaterial:      dut,
		DUTMeasurement:   cfg.GetDUTMeasurement(),
		DUTResolution:    cfg.GetDUTResolution(),
	}
	return g, g.Validate()
}

// Validate checks the geometry describes at least two measuring planes
// with non-negative distances.
func (g Geometry) Validate() error {
	if g.UpstreamPlanes < 0 || g.DownstreamPlanes < 0 {
		return fmt.Errorf("plane counts must be non-negative, got %d upstream and %d downstream", g.UpstreamPlanes, g.DownstreamPlanes)
	}
	if g.UpstreamPlanes+g.DownstreamPlanes < 2 {
		return fmt.Errorf("telescope needs at least 2 planes, got %d", g.UpstreamPlanes+g.DownstreamPlanes)
	}
	if g.Spacing < 0 || g.DUTDistance < 0 {
		return fmt.Errorf("distances must be non-negative, got spacing %g and dut distance %g", g.Spacing, g.DUTDistance)
	}
	if g.SensorResolution <= 0 {
		return fmt.Errorf("sensor resolution must be positive, got %g", g.SensorResolution)
	}
	if g.DUTMeasurement && g.DUTResolution <= 0 {
		return fmt.Errorf("dut resolution must be positive, got %g", g.DUTResolution)
	}
	return nil
}

// DUTPosition returns the longitudinal DUT position in mm.
func (g Geometry) DUTPosition() float64 {
	if g.UpstreamPlanes == 0 {
		return 0
	}
	return float64(g.UpstreamPlanes-1)*g.Spacing + g.DUTDistance
}

// TelescopePlanes returns the arm planes in position order, upstream first.
func (g Geometry) TelescopePlanes() []telescope.Plane {
	planes := make([]telescope.Plane, 0, g.UpstreamPlanes+g.DownstreamPlanes)
	for i := 0; i < g.UpstreamPlanes; i++ {
		planes = append(planes, telescope.NewPlane(float64(i)*g.Spacing, g.SensorMaterial, true, g.SensorResolution))
	}
	offset := g.DUTPosition() + g.DUTDistance
	for i := 0; i < g.DownstreamPlanes; i++ {
		planes = append(planes, telescope.NewPlane(offset+float64(i)*g.Spacing, g.SensorMaterial, true, g.SensorResolution))
	}
	return planes
}

// DUT returns the device under test plane.
func (g Geometry) DUT() telescope.Plane {
	return telescope.NewPlane(g.DUTPosition(), g.DUTMaterial, g.DUTMeasurement, g.DUTResolution)
}

// Planes returns the arm planes with the DUT appended last.
func (g Geometry) Planes() []telescope.Plane {
	return append(g.TelescopePlanes(), g.DUT())
}

// DUTIndex is the index of the DUT in Planes.
func (g Geometry) DUTIndex() int { return g.UpstreamPlanes + g.DownstreamPlanes }
