package report

import (
	"fmt"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// plotSurvival draws the Kaplan-Meier step curves of the risk groups.
func (r *Report) plotSurvival(path string) error {

	plt := plot.New()
	plt.Title.Text = "Survival by risk group"
	plt.X.Label.Text = "Days"
	plt.Y.Label.Text = "Progression-free proportion"
	plt.Y.Min = 0
	plt.Y.Max = 1

	for k, g := range r.Groups {

		// Step curve: hold the previous probability until each event
		// time, then drop.
		pts := make(plotter.XYs, 0, 2*len(g.Times)+1)
		pts = append(pts, plotter.XY{X: 0, Y: 1})
		for i := range g.Times {
			pts = append(pts, plotter.XY{X: g.Times[i], Y: pts[len(pts)-1].Y})
			pts = append(pts, plotter.XY{X: g.Times[i], Y: g.Probs[i]})
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("report: survival plot: %w", err)
		}
		line.Color = plotutil.Color(k)

		plt.Add(line)
		plt.Legend.Add(g.Group, line)
	}

	plt.Legend.Top = false
	plt.Legend.Left = true

	if err := plt.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("report: survival plot: %w", err)
	}

	return nil
}

// plotImportance draws each feature's mean importance across the run's
// iterations next to the mean shadow-max threshold.
func (r *Report) plotImportance(path string) error {

	hist := r.Filter.History

	means := make(plotter.Values, 0, len(hist.Features))
	var labels []string

	for j, feat := range hist.Features {
		var s, n float64
		for _, rec := range hist.Records {
			if !math.IsNaN(rec.Importance[j]) {
				s += rec.Importance[j]
				n++
			}
		}
		if n == 0 {
			continue
		}
		means = append(means, s/n)
		labels = append(labels, feat)
	}

	var shadow float64
	for _, rec := range hist.Records {
		shadow += rec.ShadowMax
	}
	shadow /= float64(len(hist.Records))

	plt := plot.New()
	plt.Title.Text = "Mean importance vs shadow threshold"
	plt.Y.Label.Text = "Importance"

	bars, err := plotter.NewBarChart(means, vg.Points(20))
	if err != nil {
		return fmt.Errorf("report: importance plot: %w", err)
	}
	bars.Color = plotutil.Color(0)

	plt.Add(bars)
	plt.NominalX(labels...)

	thr := plotter.XYs{
		{X: -0.5, Y: shadow},
		{X: float64(len(labels)) - 0.5, Y: shadow},
	}
	line, err := plotter.NewLine(thr)
	if err != nil {
		return fmt.Errorf("report: importance plot: %w", err)
	}
	line.Color = plotutil.Color(1)
	line.Dashes = plotutil.Dashes(1)

	plt.Add(line)
	plt.Legend.Add("shadow max (mean)", line)

	if err := plt.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("report: importance plot: %w", err)
	}

	return nil
}
