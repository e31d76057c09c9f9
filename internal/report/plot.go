package report

import (
	"fmt"
	"image/color"

	"github.com/banshee-data/telescope/internal/scan"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var (
	biasedColor   = color.RGBA{R: 204, G: 0, B: 0, A: 255}
	unbiasedColor = color.RGBA{R: 0, G: 90, B: 180, A: 255}
)

// NewResolutionPlot builds a plot of the resolution in µm against beam
// energy. The unbiased curve is drawn only where it differs.
func NewResolutionPlot(results []scan.Result, title string) (*plot.Plot, error) {
	if len(results) == 0 {
		return nil, fmt.Errorf("no results to plot")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Beam energy (GeV)"
	p.Y.Label.Text = "Resolution (µm)"
	p.Y.Min = 0

	biased := make(plotter.XYs, 0, len(results))
	unbiased := make(plotter.XYs, 0, len(results))
	differs := false
	for _, r := range results {
		biased = append(biased, plotter.XY{X: r.Energy, Y: r.Resolution * 1e3})
		unbiased = append(unbiased, plotter.XY{X: r.Energy, Y: r.Unbiased * 1e3})
		if r.Unbiased != r.Resolution {
			differs = true
		}
	}

	line, points, err := plotter.NewLinePoints(biased)
	if err != nil {
		return nil, err
	}
	line.Color = biasedColor
	line.Width = vg.Points(2)
	points.Color = biasedColor
	points.Radius = vg.Points(2)
	p.Add(line, points)
	p.Legend.Add("track resolution", line, points)

	if differs {
		uLine, err := plotter.NewLine(unbiased)
		if err != nil {
			return nil, err
		}
		uLine.Color = unbiasedColor
		uLine.Width = vg.Points(1)
		uLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(uLine)
		p.Legend.Add("unbiased", uLine)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	p.Add(plotter.NewGrid())
	return p, nil
}

// WritePNG renders the resolution plot to a PNG file.
func WritePNG(path string, results []scan.Result, title string) error {
	p, err := NewResolutionPlot(results, title)
	if err != nil {
		return err
	}
	if err := p.Save(7*vg.Inch, 7*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot %s: %w", path, err)
	}
	return nil
}
