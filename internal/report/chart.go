package report

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/banshee-data/telescope/internal/scan"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// newResolutionChart builds the go-echarts line chart of a scan.
func newResolutionChart(results []scan.Result, title string) *charts.Line {
	xs := make([]string, 0, len(results))
	biased := make([]opts.LineData, 0, len(results))
	unbiased := make([]opts.LineData, 0, len(results))
	for _, r := range results {
		xs = append(xs, formatFloat(r.Energy))
		biased = append(biased, opts.LineData{Value: r.Resolution * 1e3})
		unbiased = append(unbiased, opts.LineData{Value: r.Unbiased * 1e3})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "900px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("%d energies", len(results))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Beam energy (GeV)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Resolution (µm)", NameLocation: "middle", NameGap: 40}),
	)
	line.SetXAxis(xs).
		AddSeries("track resolution", biased).
		AddSeries("unbiased", unbiased).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
	return line
}

// RenderHTML writes a standalone HTML page with the scan chart.
func RenderHTML(w io.Writer, results []scan.Result, title string) error {
	if len(results) == 0 {
		return fmt.Errorf("no results to chart")
	}
	page := components.NewPage()
	page.PageTitle = title
	page.AddCharts(newResolutionChart(results, title))
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}

// ChartHandler serves the scan chart as HTML.
func ChartHandler(results []scan.Result, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := RenderHTML(&buf, results, title); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	}
}
