package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// RenderROC plots the sweep's operating points as an ROC curve, false
// positive rate against true positive rate, ordered by FPR. The output is
// a self-contained HTML page.
func RenderROC(w io.Writer, title string, rows []Row) error {
	points := make([]Row, len(rows))
	copy(points, rows)
	sort.Slice(points, func(i, j int) bool {
		a, b := points[i].Record, points[j].Record
		if a.FalsePositiveRate != b.FalsePositiveRate {
			return a.FalsePositiveRate < b.FalsePositiveRate
		}
		return a.TruePositiveRate < b.TruePositiveRate
	})

	xAxis := make([]string, len(points))
	series := make([]opts.LineData, len(points))
	for i, p := range points {
		xAxis[i] = fmt.Sprintf("%.4f", p.Record.FalsePositiveRate)
		series[i] = opts.LineData{
			Value: p.Record.TruePositiveRate,
			Name:  fmt.Sprintf("param %g", p.Parameter),
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithXAxisOpts(opts.XAxis{Name: "FPR"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "TPR", Max: 1}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	line.SetXAxis(xAxis).AddSeries("ROC", series,
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(false)}))

	if err := line.Render(w); err != nil {
		return fmt.Errorf("report: rendering roc: %w", err)
	}
	return nil
}
