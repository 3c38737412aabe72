package render

import (
	"io"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Series is one named row of values.
type Series struct {
	Name   string
	Values []float64
}

// BarGroups is a grouped bar chart: one group per category, one bar per
// series within each group.
type BarGroups struct {
	Categories []string
	Series     []Series
}

// Bars renders g to out.
func Bars(out io.Writer, g BarGroups, style RefidStyle) error {
	for _, s := range g.Series {
		if len(s.Values) != len(g.Categories) {
			return errors.Errorf("render: series %s has %d values for %d categories", s.Name, len(s.Values), len(g.Categories))
		}
	}
	p := plot.New()
	p.Title.Text = style.Title
	p.Y.Label.Text = style.YLabel
	if style.Log {
		p.Y.Label.Text = "log10(1+" + style.YLabel + ")"
	}
	p.Legend.Top = true

	barWidth := vg.Points(40)
	if n := len(g.Series); n > 0 {
		barWidth = vg.Points(40 / float64(n))
	}
	for i, s := range g.Series {
		vals := make(plotter.Values, len(s.Values))
		for j, v := range s.Values {
			if style.Log {
				v = math.Log10(1 + v)
			}
			vals[j] = v
		}
		bc, err := plotter.NewBarChart(vals, barWidth)
		if err != nil {
			return errors.Wrapf(err, "render: series %s", s.Name)
		}
		bc.Color = withAlpha(seriesColor(style.Colors, i), style.Alpha)
		bc.LineStyle.Width = 0
		bc.Offset = vg.Length(float64(i)-float64(len(g.Series)-1)/2) * barWidth
		p.Add(bc)
		p.Legend.Add(s.Name, bc)
	}
	p.NominalX(g.Categories...)
	return save(p, out, style.Width, style.Height, style.Format)
}

func save(p *plot.Plot, out io.Writer, w, h vg.Length, format string) error {
	wt, err := p.WriterTo(w, h, format)
	if err != nil {
		return errors.Wrap(err, "render")
	}
	_, err = wt.WriteTo(out)
	return errors.Wrap(err, "render: writing figure")
}
