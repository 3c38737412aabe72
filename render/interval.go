package render

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"github.com/grailbio/genomeview/coverage"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	// Register the image formats accepted by IntervalStyle.Format.
	_ "gonum.org/v1/plot/vg/vgimg"
	_ "gonum.org/v1/plot/vg/vgsvg"
)

// Item is one feature placed on a track row.
type Item struct {
	Start, End int
	Row        int
	// Strand is '+', '-' or '.'.
	Strand byte
	Label  string
}

// FeatureTrack is the laid-out features of one (source, type) pair.
type FeatureTrack struct {
	Source, Type string
	Items        []Item
	// Rows is the number of rows used by Items.
	Rows int
	// Dropped counts features that did not fit in the track.
	Dropped int
}

// Tracks is the content of an interval figure.
type Tracks struct {
	RefID      string
	Start, End int
	Coverage   []*coverage.Profile
	Features   []FeatureTrack
}

// Interval renders t as a column of tracks: one coverage track per profile,
// then one feature track per entry of t.Features.  A feature track without
// items is drawn as an empty "No feature found" panel.
func Interval(out io.Writer, t Tracks, style IntervalStyle) error {
	var plots [][]*plot.Plot
	for _, prof := range t.Coverage {
		p, err := coveragePlot(t, prof, style)
		if err != nil {
			return err
		}
		plots = append(plots, []*plot.Plot{p})
	}
	for i := range t.Features {
		p, err := featurePlot(t, &t.Features[i], style)
		if err != nil {
			return err
		}
		plots = append(plots, []*plot.Plot{p})
	}
	if len(plots) == 0 {
		return errors.New("render: no tracks to draw")
	}
	h := style.TrackHeight * vg.Length(len(plots))
	c, err := draw.NewFormattedCanvas(style.Width, h, style.Format)
	if err != nil {
		return errors.Wrap(err, "render")
	}
	tiles := draw.Tiles{
		Rows:      len(plots),
		Cols:      1,
		PadTop:    vg.Points(4),
		PadBottom: vg.Points(4),
		PadLeft:   vg.Points(4),
		PadRight:  vg.Points(8),
		PadY:      vg.Points(4),
	}
	canvases := plot.Align(plots, tiles, draw.New(c))
	for i := range plots {
		plots[i][0].Draw(canvases[i][0])
	}
	_, err = c.WriteTo(out)
	return errors.Wrap(err, "render: writing figure")
}

func setWindow(p *plot.Plot, t Tracks) {
	p.X.Min = float64(t.Start)
	p.X.Max = float64(t.End)
	p.X.Label.Text = t.RefID
}

// coveragePlot draws the plus strand depth with the minus strand depth
// stacked on top of it.
func coveragePlot(t Tracks, prof *coverage.Profile, style IntervalStyle) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = prof.Source
	setWindow(p, t)
	p.Y.Label.Text = "depth"
	plus, minus := make([]float64, prof.NumBins()), make([]float64, prof.NumBins())
	if style.NormLen {
		p.Y.Label.Text = "depth/bp"
		plus, minus = prof.Normalized()
	} else {
		for i := range plus {
			plus[i], minus[i] = float64(prof.Plus[i]), float64(prof.Minus[i])
		}
	}
	total := make([]float64, len(plus))
	for i := range plus {
		total[i] = plus[i] + minus[i]
	}
	if style.Log {
		p.Y.Label.Text = "log10(1+" + p.Y.Label.Text + ")"
		for i := range plus {
			plus[i] = math.Log10(1 + plus[i])
			total[i] = math.Log10(1 + total[i])
		}
	}
	p.Y.Min = 0
	for _, s := range []struct {
		name string
		vals []float64
		c    color.Color
	}{
		// The total is drawn first so the plus area covers its lower part.
		{"-", total, style.MinusColor},
		{"+", plus, style.PlusColor},
	} {
		line, err := plotter.NewLine(steps(prof, s.vals))
		if err != nil {
			return nil, errors.Wrapf(err, "render: coverage of %s", prof.Source)
		}
		line.FillColor = withAlpha(s.c, style.Alpha)
		line.LineStyle.Width = 0
		p.Add(line)
		p.Legend.Add(s.name, line)
	}
	p.Legend.Top = true
	return p, nil
}

// steps converts per-bin values into the corners of a step function.
func steps(prof *coverage.Profile, vals []float64) plotter.XYs {
	xys := make(plotter.XYs, 0, 2*len(vals))
	for i, v := range vals {
		xys = append(xys,
			plotter.XY{X: float64(prof.Start) + float64(i)*prof.BinWidth, Y: v},
			plotter.XY{X: float64(prof.Start) + float64(i+1)*prof.BinWidth, Y: v})
	}
	return xys
}

func featurePlot(t Tracks, ft *FeatureTrack, style IntervalStyle) (*plot.Plot, error) {
	p := plot.New()
	setWindow(p, t)
	p.HideY()
	p.Title.Text = fmt.Sprintf("%s: %s", ft.Source, ft.Type)
	if len(ft.Items) == 0 {
		p.Title.Text = ft.Source + ": No feature found"
		p.Y.Min, p.Y.Max = 0, 1
		return p, nil
	}
	if ft.Dropped > 0 {
		p.Title.Text += fmt.Sprintf(" (%d not shown)", ft.Dropped)
	}
	p.Add(&featureBoxes{track: ft, start: t.Start, end: t.End, color: style.FeatureColor})
	if style.Labels {
		var labels plotter.XYLabels
		for _, it := range ft.Items {
			if it.Label == "" {
				continue
			}
			x := math.Max(float64(it.Start), float64(t.Start))
			labels.XYs = append(labels.XYs, plotter.XY{X: x, Y: float64(it.Row) + boxHeight})
			labels.Labels = append(labels.Labels, it.Label)
		}
		if len(labels.Labels) > 0 {
			l, err := plotter.NewLabels(labels)
			if err != nil {
				return nil, errors.Wrapf(err, "render: labels of %s", ft.Source)
			}
			p.Add(l)
		}
	}
	return p, nil
}

// boxHeight is the height of a feature box in row units.
const boxHeight = 0.6

// featureBoxes is a plot.Plotter that draws each feature as a box on its
// row, with an arrowhead on the 3' end of stranded features.
type featureBoxes struct {
	track      *FeatureTrack
	start, end int
	color      color.Color
}

// Plot implements plot.Plotter.
func (f *featureBoxes) Plot(c draw.Canvas, p *plot.Plot) {
	trX, trY := p.Transforms(&c)
	clip := func(x int) float64 {
		if x < f.start {
			x = f.start
		}
		if x > f.end {
			x = f.end
		}
		return float64(x)
	}
	for _, it := range f.track.Items {
		x0, x1 := trX(clip(it.Start)), trX(clip(it.End))
		y0, y1 := trY(float64(it.Row)), trY(float64(it.Row)+boxHeight)
		if x1-x0 < 1 {
			x1 = x0 + 1
		}
		head := (y1 - y0) / 2
		if head > x1-x0 {
			head = x1 - x0
		}
		mid := (y0 + y1) / 2
		var pts []vg.Point
		switch it.Strand {
		case '+':
			pts = []vg.Point{{X: x0, Y: y0}, {X: x1 - head, Y: y0}, {X: x1, Y: mid}, {X: x1 - head, Y: y1}, {X: x0, Y: y1}}
		case '-':
			pts = []vg.Point{{X: x0 + head, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0 + head, Y: y1}, {X: x0, Y: mid}}
		default:
			pts = []vg.Point{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}
		}
		c.FillPolygon(f.color, c.ClipPolygonXY(pts))
	}
}

// DataRange implements plot.DataRanger.
func (f *featureBoxes) DataRange() (xmin, xmax, ymin, ymax float64) {
	rows := f.track.Rows
	if rows < 1 {
		rows = 1
	}
	return float64(f.start), float64(f.end), -0.2, float64(rows)
}
