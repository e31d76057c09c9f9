package scan

import (
	"reflect"
	"testing"
)

func TestParseRangeSpec(t *testing.T) {
	testCases := []struct {
		name      string
		input     string
		expected  RangeSpec
		expectErr bool
	}{
		{"valid_range", "1.0:7.0:0.2", RangeSpec{Min: 1.0, Max: 7.0, Step: 0.2}, false},
		{"integer_range", "1:10:1", RangeSpec{Min: 1, Max: 10, Step: 1}, false},
		{"with_spaces", " 1.0 : 5.0 : 0.5 ", RangeSpec{Min: 1.0, Max: 5.0, Step: 0.5}, false},
		{"missing_parts", "1.0:5.0", RangeSpec{}, true},
		{"too_many_parts", "1.0:5.0:0.5:2.0", RangeSpec{}, true},
		{"invalid_min", "abc:5.0:0.5", RangeSpec{}, true},
		{"invalid_max", "1.0:abc:0.5", RangeSpec{}, true},
		{"invalid_step", "1.0:5.0:abc", RangeSpec{}, true},
		{"zero_step", "1.0:5.0:0", RangeSpec{}, true},
		{"negative_step", "1.0:5.0:-0.5", RangeSpec{}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := ParseRangeSpec(tc.input)
			if tc.expectErr {
				if err == nil {
					t.Errorf("Expected error for input %q, got nil", tc.input)
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}
			if result != tc.expected {
				t.Errorf("Expected %+v, got %+v", tc.expected, result)
			}
		})
	}
}

func TestGenerateRange(t *testing.T) {
	testCases := []struct {
		name          string
		min, max, st  float64
		expected      []float64
		expectedCount int
	}{
		{"simple", 1, 3, 1, []float64{1, 2, 3}, 3},
		{"half_steps", 0, 1, 0.5, []float64{0, 0.5, 1}, 3},
		{"single", 5, 5, 1, []float64{5}, 1},
		{"max_not_on_step", 1, 2, 0.3, []float64{1, 1.3, 1.6, 1.9}, 4},
		{"min_above_max", 3, 1, 1, nil, 0},
		{"zero_step", 1, 3, 0, nil, 0},
		{"too_many", 0, 1, 1e-6, nil, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := GenerateRange(tc.min, tc.max, tc.st)
			if len(result) != tc.expectedCount {
				t.Fatalf("Expected %d values, got %d: %v", tc.expectedCount, len(result), result)
			}
			if tc.expected != nil && !reflect.DeepEqual(result, tc.expected) {
				t.Errorf("Expected %v, got %v", tc.expected, result)
			}
		})
	}
}

func TestGenerateRange_BeamScan(t *testing.T) {
	result := GenerateRange(1, 7, 0.2)
	if len(result) != 31 {
		t.Fatalf("Expected 31 energies, got %d", len(result))
	}
	if result[0] != 1 || result[30] != 7 {
		t.Errorf("Expected range 1..7, got %g..%g", result[0], result[30])
	}
	if result[11] != 3.2 {
		t.Errorf("Expected 3.2 without accumulation error, got %.17g", result[11])
	}
}

func TestParseCSVFloat64s(t *testing.T) {
	testCases := []struct {
		name      string
		input     string
		expected  []float64
		expectErr bool
	}{
		{"empty", "", nil, false},
		{"single", "5", []float64{5}, false},
		{"list", "1, 2.5,4", []float64{1, 2.5, 4}, false},
		{"trailing_comma", "1,2,", []float64{1, 2}, false},
		{"invalid", "1,x", nil, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := ParseCSVFloat64s(tc.input)
			if (err != nil) != tc.expectErr {
				t.Fatalf("error = %v, expectErr %v", err, tc.expectErr)
			}
			if !reflect.DeepEqual(result, tc.expected) {
				t.Errorf("Expected %v, got %v", tc.expected, result)
			}
		})
	}
}

func TestParseParamList(t *testing.T) {
	result, err := ParseParamList("1:2:0.5")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !reflect.DeepEqual(result, []float64{1, 1.5, 2}) {
		t.Errorf("range: got %v", result)
	}

	result, err = ParseParamList("3,1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !reflect.DeepEqual(result, []float64{3, 1}) {
		t.Errorf("list: got %v", result)
	}

	if _, err := ParseParamList("1:2"); err == nil {
		t.Error("Expected error for malformed range")
	}
}

func TestParseEnergies(t *testing.T) {
	testCases := []struct {
		name      string
		input     string
		expected  []float64
		expectErr bool
	}{
		{"range", "1:3:1", []float64{1, 2, 3}, false},
		{"list_sorted", "5, 1, 3", []float64{1, 3, 5}, false},
		{"combined_dedup", "1:3:1; 2.5, 3", []float64{1, 2, 2.5, 3}, false},
		{"empty", "", nil, true},
		{"only_separators", " ; ", nil, true},
		{"zero", "0,1", nil, true},
		{"negative", "-1:1:1", nil, true},
		{"empty_range", "3:1:1", nil, true},
		{"invalid", "one", nil, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := ParseEnergies(tc.input)
			if tc.expectErr {
				if err == nil {
					t.Errorf("Expected error for %q, got %v", tc.input, result)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !reflect.DeepEqual(result, tc.expected) {
				t.Errorf("Expected %v, got %v", tc.expected, result)
			}
		})
	}
}
