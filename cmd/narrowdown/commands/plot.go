package commands

import (
	"fmt"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/Sumatoshi-tech/narrowdown/pkg/alg/lsh"
)

const (
	// curveSteps is the number of intervals the similarity axis is split into.
	curveSteps  = 200
	chartWidth  = "100%"
	chartHeight = "520px"
	curveColor  = "#5470c6"
)

// buildSCurveChart plots the probability that two documents become LSH
// candidates as a function of their Jaccard similarity, with the threshold
// marked on the similarity axis.
func buildSCurveChart(report tuneReport) *charts.Line {
	cfg := report.Config

	data := make([]opts.LineData, curveSteps+1)

	for i := range data {
		s := float64(i) / curveSteps
		data[i] = opts.LineData{Value: []float64{s, lsh.SCurve(s, cfg.NumBands, cfg.RowsPerBand)}}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{
			Title: fmt.Sprintf("LSH S-curve: %d bands x %d rows", cfg.NumBands, cfg.RowsPerBand),
			Subtitle: fmt.Sprintf("threshold %g, false negative %.4f, false positive %.4f",
				report.Threshold, report.FalseNegative, report.FalsePositive),
			Left: "center",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Jaccard similarity", Type: "value", Min: 0, Max: 1}),
		charts.WithYAxisOpts(opts.YAxis{Name: "P(candidate)", Type: "value", Min: 0, Max: 1}),
	)

	line.AddSeries("P(candidate)", data,
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true), ShowSymbol: opts.Bool(false)}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: curveColor}),
		charts.WithMarkLineNameXAxisItemOpts(opts.MarkLineNameXAxisItem{
			Name:  "threshold",
			XAxis: report.Threshold,
		}),
	)

	return line
}

// writeSCurvePlot renders the S-curve of report as a standalone HTML page.
func writeSCurvePlot(path string, report tuneReport) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create plot %s: %w", path, err)
	}

	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close plot %s: %w", path, cerr)
		}
	}()

	if err = buildSCurveChart(report).Render(f); err != nil {
		return fmt.Errorf("render plot %s: %w", path, err)
	}

	return nil
}
