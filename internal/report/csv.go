// Package report writes energy scan results as CSV, PNG plots and HTML
// charts.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/banshee-data/telescope/internal/scan"
)

// CSVWriter wraps csv.Writer with methods for scan output.
type CSVWriter struct {
	w *csv.Writer
}

// NewCSVWriter creates a CSVWriter on w.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w)}
}

// ResultHeaders are the columns written by WriteResults.
var ResultHeaders = []string{"energy_gev", "resolution_um", "unbiased_um", "chi2", "ndf"}

// ProfileHeaders are the columns written by WriteProfile.
var ProfileHeaders = []string{"bin_low_gev", "bin_high_gev", "entries", "mean_um", "stddev_um"}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', 6, 64) }

// WriteResults writes a header and one row per result. Resolutions are
// converted to µm.
func (c *CSVWriter) WriteResults(results []scan.Result) error {
	if err := c.w.Write(ResultHeaders); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range results {
		row := []string{
			formatFloat(r.Energy),
			formatFloat(r.Resolution * 1e3),
			formatFloat(r.Unbiased * 1e3),
			formatFloat(r.Chi2),
			strconv.Itoa(r.Ndf),
		}
		if err := c.w.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	return c.Flush()
}

// WriteProfile writes a header and one row per filled profile bin.
func (c *CSVWriter) WriteProfile(bins []scan.ProfileBin) error {
	if err := c.w.Write(ProfileHeaders); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, b := range bins {
		row := []string{
			formatFloat(b.Low),
			formatFloat(b.High),
			strconv.Itoa(b.Entries),
			formatFloat(b.Mean),
			formatFloat(b.StdDev),
		}
		if err := c.w.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	return c.Flush()
}

// Flush flushes buffered rows and reports any write error.
func (c *CSVWriter) Flush() error {
	c.w.Flush()
	return c.w.Error()
}
