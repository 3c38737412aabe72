// Package render draws genomeview figures with gonum/plot: a grouped bar
// chart of per-reference coverage, and a stack of coverage and annotation
// tracks over one genomic interval.
package render

import (
	"image/color"

	"golang.org/x/image/colornames"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// RefidStyle controls Bars.
type RefidStyle struct {
	// Colors are the series colors, cycled.  When empty, plotutil's default
	// palette is used.
	Colors []color.Color
	// Alpha is the fill opacity in [0, 1].
	Alpha float64
	// Log plots log10(1+value).
	Log bool
	// Title is drawn above the chart.
	Title string
	// YLabel labels the value axis.
	YLabel string
	// Width and Height are the figure size.
	Width, Height vg.Length
	// Format is an image format understood by gonum/plot: "png", "svg",
	// "pdf", "eps", "jpg" or "tif".
	Format string
}

// DefaultRefidStyle is the default style for refid coverage bar charts.
var DefaultRefidStyle = RefidStyle{
	Colors: []color.Color{colornames.Dodgerblue, colornames.Darkorange},
	Alpha:  0.5,
	Log:    false,
	Width:  10 * vg.Inch,
	Height: 5 * vg.Inch,
	Format: "png",
}

// IntervalStyle controls Interval.
type IntervalStyle struct {
	// PlusColor and MinusColor fill the forward and reverse strand
	// coverage.
	PlusColor, MinusColor color.Color
	// FeatureColor fills annotation features.
	FeatureColor color.Color
	// Alpha is the fill opacity of coverage areas in [0, 1].
	Alpha float64
	// Log plots log10(1+depth).
	Log bool
	// NormLen divides depths by the bin width.
	NormLen bool
	// Labels draws feature IDs next to features.
	Labels bool
	// Width is the figure width and TrackHeight the height of each track.
	Width, TrackHeight vg.Length
	// Format is as for RefidStyle.
	Format string
}

// DefaultIntervalStyle is the default style for interval plots.
var DefaultIntervalStyle = IntervalStyle{
	PlusColor:    colornames.Dodgerblue,
	MinusColor:   colornames.Darkorange,
	FeatureColor: colornames.Grey,
	Alpha:        0.5,
	Log:          true,
	Width:        10 * vg.Inch,
	TrackHeight:  1.5 * vg.Inch,
	Format:       "png",
}

// withAlpha returns c with its opacity replaced by alpha.
func withAlpha(c color.Color, alpha float64) color.Color {
	if alpha < 0 {
		alpha = 0
	} else if alpha > 1 {
		alpha = 1
	}
	r, g, b, _ := c.RGBA()
	return color.NRGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(alpha * 255)}
}

func seriesColor(colors []color.Color, i int) color.Color {
	if len(colors) == 0 {
		return plotutil.Color(i)
	}
	return colors[i%len(colors)]
}
