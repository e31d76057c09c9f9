package scan

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Profile accumulates y values in fixed-width bins of x and reports the
// mean and spread per bin.
type Profile struct {
	bins      int
	min, max  float64
	values    [][]float64
	underflow int
	overflow  int
}

// ProfileBin is the summary of one profile bin.
type ProfileBin struct {
	Low, High float64
	Entries   int
	Mean      float64
	StdDev    float64
}

// Center returns the bin centre.
func (b ProfileBin) Center() float64 { return 0.5 * (b.Low + b.High) }

// NewProfile returns an empty profile with bins equal bins over [min, max).
func NewProfile(bins int, min, max float64) (*Profile, error) {
	if bins <= 0 {
		return nil, fmt.Errorf("profile needs at least one bin, got %d", bins)
	}
	if !(max > min) || math.IsInf(min, 0) || math.IsInf(max, 0) {
		return nil, fmt.Errorf("invalid profile range [%g, %g)", min, max)
	}
	return &Profile{bins: bins, min: min, max: max, values: make([][]float64, bins)}, nil
}

// Fill adds y at x. Values outside the range count as under- or overflow.
func (p *Profile) Fill(x, y float64) {
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		return
	case x < p.min:
		p.underflow++
	case x >= p.max:
		p.overflow++
	default:
		i := int((x - p.min) / (p.max - p.min) * float64(p.bins))
		if i >= p.bins {
			i = p.bins - 1
		}
		p.values[i] = append(p.values[i], y)
	}
}

// FillResults adds the resolution of each result in µm at its energy.
func (p *Profile) FillResults(results []Result) {
	for _, r := range results {
		p.Fill(r.Energy, r.Resolution*1e3)
	}
}

// Bins returns the number of bins.
func (p *Profile) Bins() int { return p.bins }

// Bin returns the summary of bin i.
func (p *Profile) Bin(i int) ProfileBin {
	width := (p.max - p.min) / float64(p.bins)
	b := ProfileBin{
		Low:     p.min + float64(i)*width,
		High:    p.min + float64(i+1)*width,
		Entries: len(p.values[i]),
	}
	switch b.Entries {
	case 0:
	case 1:
		b.Mean = p.values[i][0]
	default:
		b.Mean, b.StdDev = stat.MeanStdDev(p.values[i], nil)
	}
	return b
}

// Filled returns the summaries of all non-empty bins in order.
func (p *Profile) Filled() []ProfileBin {
	var out []ProfileBin
	for i := 0; i < p.bins; i++ {
		if len(p.values[i]) > 0 {
			out = append(out, p.Bin(i))
		}
	}
	return out
}

// Underflow and Overflow count the values filled outside the range.
func (p *Profile) Underflow() int { return p.underflow }
func (p *Profile) Overflow() int  { return p.overflow }
