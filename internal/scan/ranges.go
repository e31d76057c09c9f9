package scan

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// RangeSpec is an inclusive floating-point range for a scan.
type RangeSpec struct {
	Min  float64
	Max  float64
	Step float64
}

// maxValues bounds the number of generated scan points.
const maxValues = 10000

// ParseRangeSpec parses a "min:max:step" string into a RangeSpec.
func ParseRangeSpec(s string) (RangeSpec, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return RangeSpec{}, fmt.Errorf("invalid range format %q: expected min:max:step", s)
	}

	min, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return RangeSpec{}, fmt.Errorf("invalid min value %q: %w", parts[0], err)
	}

	max, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return RangeSpec{}, fmt.Errorf("invalid max value %q: %w", parts[1], err)
	}

	step, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err != nil {
		return RangeSpec{}, fmt.Errorf("invalid step value %q: %w", parts[2], err)
	}

	if step <= 0 {
		return RangeSpec{}, fmt.Errorf("step must be positive, got %f", step)
	}

	return RangeSpec{Min: min, Max: max, Step: step}, nil
}

// Values returns the points of the range.
func (r RangeSpec) Values() []float64 { return GenerateRange(r.Min, r.Max, r.Step) }

// GenerateRange returns min, min+step, ... up to max inclusive. Values are
// computed from the index rather than accumulated and rounded to 1e-9, so
// 1:7:0.2 ends exactly at 7. Returns nil if min > max or the range would
// exceed maxValues points.
func GenerateRange(min, max, step float64) []float64 {
	if step <= 0 || min > max {
		return nil
	}

	expectedCount := math.Floor((max-min)/step+1e-9) + 1
	if expectedCount > maxValues {
		return nil
	}

	n := int(expectedCount)
	result := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		v := math.Round((min+float64(i)*step)*1e9) / 1e9
		if v > max {
			break
		}
		result = append(result, v)
	}
	return result
}

// ParseCSVFloat64s parses a comma-separated list of float64 values.
// Returns nil, nil for empty input strings.
func ParseCSVFloat64s(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float '%s': %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// ParseParamList parses a comma-separated list of floats or a range
// specification. Strings containing a colon are treated as "min:max:step".
func ParseParamList(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	if strings.Contains(s, ":") {
		spec, err := ParseRangeSpec(s)
		if err != nil {
			return nil, err
		}
		return spec.Values(), nil
	}
	return ParseCSVFloat64s(s)
}

// ParseEnergies parses a list or range of beam energies in GeV. Several
// ranges and values may be joined with ';'. The result is sorted with
// duplicates removed, and every energy must be positive.
func ParseEnergies(s string) ([]float64, error) {
	var all []float64
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := ParseParamList(part)
		if err != nil {
			return nil, err
		}
		if len(v) == 0 {
			return nil, fmt.Errorf("energy spec %q is empty", part)
		}
		all = append(all, v...)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("no beam energies in %q", s)
	}
	if len(all) > maxValues {
		return nil, fmt.Errorf("too many beam energies: %d (max %d)", len(all), maxValues)
	}

	sort.Float64s(all)
	out := make([]float64, 0, len(all))
	for _, e := range all {
		if math.IsNaN(e) || math.IsInf(e, 0) || e <= 0 {
			return nil, fmt.Errorf("beam energy must be positive and finite, got %g", e)
		}
		if len(out) > 0 && e == out[len(out)-1] {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
