package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/telescope/internal/material"
	"github.com/banshee-data/telescope/internal/monitoring"
	"github.com/banshee-data/telescope/internal/scattering"
)

// DefaultConfigPath is the path to the canonical scan defaults file.
// This is the single source of truth for the DATURA reference geometry.
const DefaultConfigPath = "config/scan.defaults.json"

// Vacuum selects an empty ambient medium in AmbientMaterial.
const Vacuum = "vacuum"

// ScanConfig describes a telescope geometry, beam and energy scan.
// Fields omitted from the JSON keep the defaults returned by the Get*
// methods.
type ScanConfig struct {
	// Telescope arms
	UpstreamPlanes    *int             `json:"upstream_planes,omitempty"`
	DownstreamPlanes  *int             `json:"downstream_planes,omitempty"`
	PlaneSpacing      *float64         `json:"plane_spacing_mm,omitempty"`
	DUTDistance       *float64         `json:"dut_distance_mm,omitempty"`
	SensorLayers      []material.Layer `json:"sensor_layers,omitempty"`
	SensorResolution  *float64         `json:"sensor_resolution_mm,omitempty"`
	SensorMaterialX0  *float64         `json:"sensor_material_x0,omitempty"` // overrides sensor_layers

	// Device under test
	DUTLayers      []material.Layer `json:"dut_layers,omitempty"`
	DUTMeasurement *bool            `json:"dut_measurement,omitempty"`
	DUTResolution  *float64         `json:"dut_resolution_mm,omitempty"`

	// Beam and medium
	AmbientMaterial *string `json:"ambient_material,omitempty"` // material ID or "vacuum"
	Particle        *string `json:"particle,omitempty"`
	LogTerm         *string `json:"log_term,omitempty"`

	// Scan
	Energies    *string  `json:"energies,omitempty"` // "min:max:step" or comma list, GeV
	QueryPlane  *int     `json:"query_plane,omitempty"`
	Workers     *int     `json:"workers,omitempty"`
	ProfileBins *int     `json:"profile_bins,omitempty"`
	ProfileMin  *float64 `json:"profile_min_gev,omitempty"`
	ProfileMax  *float64 `json:"profile_max_gev,omitempty"`

	Verbosity *string `json:"verbosity,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyScanConfig returns a ScanConfig with all fields set to nil.
func EmptyScanConfig() *ScanConfig {
	return &ScanConfig{}
}

// LoadScanConfig loads a ScanConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadScanConfig(path string) (*ScanConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyScanConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical scan defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *ScanConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,       // from cmd/
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadScanConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *ScanConfig) Validate() error {
	for name, v := range map[string]*int{
		"upstream_planes":   c.UpstreamPlanes,
		"downstream_planes": c.DownstreamPlanes,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %d", name, *v)
		}
	}
	if c.GetUpstreamPlanes()+c.GetDownstreamPlanes() < 2 {
		return fmt.Errorf("telescope needs at least 2 planes, got %d", c.GetUpstreamPlanes()+c.GetDownstreamPlanes())
	}

	for name, v := range map[string]*float64{
		"plane_spacing_mm":   c.PlaneSpacing,
		"dut_distance_mm":    c.DUTDistance,
		"sensor_material_x0": c.SensorMaterialX0,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %g", name, *v)
		}
	}
	if c.SensorResolution != nil && *c.SensorResolution <= 0 {
		return fmt.Errorf("sensor_resolution_mm must be positive, got %g", *c.SensorResolution)
	}
	if c.GetDUTMeasurement() && c.GetDUTResolution() <= 0 {
		return fmt.Errorf("dut_resolution_mm must be positive for a measuring DUT, got %g", c.GetDUTResolution())
	}

	if _, err := material.Budget(c.SensorLayers...); err != nil {
		return fmt.Errorf("sensor_layers: %w (valid: %s)", err, material.ValidMaterialsString())
	}
	if _, err := material.Budget(c.DUTLayers...); err != nil {
		return fmt.Errorf("dut_layers: %w (valid: %s)", err, material.ValidMaterialsString())
	}

	if c.AmbientMaterial != nil {
		if _, err := c.GetAmbientRadiationLength(); err != nil {
			return err
		}
	}
	if c.Particle != nil {
		if _, err := scattering.ParticleByName(*c.Particle); err != nil {
			return err
		}
	}
	if c.LogTerm != nil {
		if _, err := scattering.ParseLogTerm(*c.LogTerm); err != nil {
			return err
		}
	}
	if c.Verbosity != nil {
		if _, err := monitoring.ParseLevel(*c.Verbosity); err != nil {
			return err
		}
	}

	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	if c.ProfileBins != nil && *c.ProfileBins <= 0 {
		return fmt.Errorf("profile_bins must be positive, got %d", *c.ProfileBins)
	}
	if c.GetProfileMax() <= c.GetProfileMin() {
		return fmt.Errorf("profile_max_gev (%g) must exceed profile_min_gev (%g)", c.GetProfileMax(), c.GetProfileMin())
	}
	return nil
}

// GetUpstreamPlanes returns the upstream_planes value or the default.
func (c *ScanConfig) GetUpstreamPlanes() int {
	if c.UpstreamPlanes == nil {
		return 3
	}
	return *c.UpstreamPlanes
}

// GetDownstreamPlanes returns the downstream_planes value or the default.
func (c *ScanConfig) GetDownstreamPlanes() int {
	if c.DownstreamPlanes == nil {
		return 3
	}
	return *c.DownstreamPlanes
}

// GetPlaneSpacing returns the plane_spacing_mm value or the default.
func (c *ScanConfig) GetPlaneSpacing() float64 {
	if c.PlaneSpacing == nil {
		return 20
	}
	return *c.PlaneSpacing
}

// GetDUTDistance returns the dut_distance_mm value or the default.
func (c *ScanConfig) GetDUTDistance() float64 {
	if c.DUTDistance == nil {
		return 7.5
	}
	return *c.DUTDistance
}

// GetSensorResolution returns the sensor_resolution_mm value or the default.
func (c *ScanConfig) GetSensorResolution() float64 {
	if c.SensorResolution == nil {
		return 3.24e-3
	}
	return *c.SensorResolution
}

// GetSensorMaterial returns the sensor budget in radiation lengths, taken
// from sensor_material_x0 if set and from sensor_layers otherwise.
// MIMOSA26 is the default.
func (c *ScanConfig) GetSensorMaterial() (float64, error) {
	if c.SensorMaterialX0 != nil {
		return *c.SensorMaterialX0, nil
	}
	if len(c.SensorLayers) == 0 {
		return material.Budget(material.MIMOSA26...)
	}
	return material.Budget(c.SensorLayers...)
}

// GetDUTMaterial returns the DUT budget in radiation lengths. An empty
// dut_layers list means a MIMOSA26 sensor.
func (c *ScanConfig) GetDUTMaterial() (float64, error) {
	if len(c.DUTLayers) == 0 {
		return material.Budget(material.MIMOSA26...)
	}
	return material.Budget(c.DUTLayers...)
}

// GetDUTMeasurement returns the dut_measurement value or the default.
func (c *ScanConfig) GetDUTMeasurement() bool {
	if c.DUTMeasurement == nil {
		return false // default: DUT only scatters
	}
	return *c.DUTMeasurement
}

// GetDUTResolution returns the dut_resolution_mm value, falling back to
// the sensor resolution.
func (c *ScanConfig) GetDUTResolution() float64 {
	if c.DUTResolution == nil {
		return c.GetSensorResolution()
	}
	return *c.DUTResolution
}

// GetAmbientMaterial returns the ambient_material value or the default.
func (c *ScanConfig) GetAmbientMaterial() string {
	if c.AmbientMaterial == nil || *c.AmbientMaterial == "" {
		return string(material.DefaultAmbient)
	}
	return *c.AmbientMaterial
}

// GetAmbientRadiationLength resolves the ambient medium to X0 in mm. The
// vacuum is returned as 0.
func (c *ScanConfig) GetAmbientRadiationLength() (float64, error) {
	name := c.GetAmbientMaterial()
	if strings.EqualFold(name, Vacuum) {
		return 0, nil
	}
	x0, err := material.RadiationLength(material.ID(name))
	if err != nil {
		return 0, fmt.Errorf("ambient_material: %w (valid: %s, %s)", err, Vacuum, material.ValidMaterialsString())
	}
	return x0, nil
}

// GetParticle returns the beam particle, electron by default.
func (c *ScanConfig) GetParticle() scattering.Particle {
	if c.Particle == nil {
		return scattering.Electron
	}
	p, err := scattering.ParticleByName(*c.Particle)
	if err != nil {
		return scattering.Electron // default on parse error
	}
	return p
}

// GetLogTerm returns the Highland log convention, local by default.
func (c *ScanConfig) GetLogTerm() scattering.LogTerm {
	if c.LogTerm == nil {
		return scattering.LogLocal
	}
	lt, err := scattering.ParseLogTerm(*c.LogTerm)
	if err != nil {
		return scattering.LogLocal
	}
	return lt
}

// GetEnergies returns the energies value or the default range.
func (c *ScanConfig) GetEnergies() string {
	if c.Energies == nil || *c.Energies == "" {
		return "1:7:0.2"
	}
	return *c.Energies
}

// GetQueryPlane returns the plane index to query, -1 for the DUT.
func (c *ScanConfig) GetQueryPlane() int {
	if c.QueryPlane == nil {
		return -1
	}
	return *c.QueryPlane
}

// GetWorkers returns the workers value, 0 meaning one per CPU.
func (c *ScanConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetProfileBins returns the profile_bins value or the default.
func (c *ScanConfig) GetProfileBins() int {
	if c.ProfileBins == nil {
		return 40
	}
	return *c.ProfileBins
}

// GetProfileMin returns the profile_min_gev value or the default.
func (c *ScanConfig) GetProfileMin() float64 {
	if c.ProfileMin == nil {
		return 0
	}
	return *c.ProfileMin
}

// GetProfileMax returns the profile_max_gev value or the default.
func (c *ScanConfig) GetProfileMax() float64 {
	if c.ProfileMax == nil {
		return 8
	}
	return *c.ProfileMax
}

// GetVerbosity returns the verbosity level or INFO.
func (c *ScanConfig) GetVerbosity() monitoring.Level {
	if c.Verbosity == nil {
		return monitoring.LevelInfo
	}
	lvl, err := monitoring.ParseLevel(*c.Verbosity)
	if err != nil {
		return monitoring.LevelInfo
	}
	return lvl
}
