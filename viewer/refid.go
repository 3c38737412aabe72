package viewer

import (
	"fmt"
	"io"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/genomeview/render"
)

// RefidPlotOpts controls RefidCoveragePlot.
type RefidPlotOpts struct {
	// NormDepth scales each source to 1000 aligned bases in total.
	NormDepth bool
	// NormLen divides each row by the refid length, in megabases.
	NormLen bool
	// RefList, if nonempty, selects and orders the refids shown.  By default
	// every refid with aligned bases is shown in name order.
	RefList []string
}

// DefaultRefidPlotOpts are the default options for RefidCoveragePlot.
var DefaultRefidPlotOpts = RefidPlotOpts{
	NormDepth: true,
	NormLen:   true,
}

// RefidCoverage is the aligned-base table behind the per-refid bar chart.
type RefidCoverage struct {
	RefIDs  []string
	Sources []string
	// Values[i][j] is the (normalized) base count of source j on RefIDs[i].
	Values [][]float64
	Opts   RefidPlotOpts
}

// RefidCoveragePlot tabulates the aligned bases of every alignment source
// per refid.
func (v *Viewer) RefidCoveragePlot(opts RefidPlotOpts) (*RefidCoverage, error) {
	sources := v.alignmentSources()
	if len(sources) == 0 {
		return nil, errors.E(errors.Precondition, "viewer: no alignment source loaded")
	}
	refids := opts.RefList
	if len(refids) == 0 {
		seen := map[string]bool{}
		for _, s := range sources {
			for _, r := range s.RefIDs() {
				if !seen[r] {
					seen[r] = true
					refids = append(refids, r)
				}
			}
		}
		sort.Strings(refids)
	} else {
		for _, r := range refids {
			if !v.ref.Contains(r) {
				return nil, errors.E(errors.Invalid, "viewer: unknown refid", r)
			}
		}
	}
	rc := &RefidCoverage{
		RefIDs: append([]string(nil), refids...),
		Values: make([][]float64, len(refids)),
		Opts:   opts,
	}
	for _, s := range sources {
		rc.Sources = append(rc.Sources, s.Name())
	}
	for i, r := range refids {
		rc.Values[i] = make([]float64, len(sources))
		for j, s := range sources {
			rc.Values[i][j] = float64(s.Totals(r).Bases)
		}
	}
	if opts.NormDepth {
		for j := range sources {
			var sum float64
			for i := range refids {
				sum += rc.Values[i][j]
			}
			if sum == 0 {
				continue
			}
			for i := range refids {
				rc.Values[i][j] = rc.Values[i][j] / sum * 1000
			}
		}
	}
	if opts.NormLen {
		for i, r := range refids {
			n, _ := v.ref.Len(r)
			if n == 0 {
				continue
			}
			for j := range sources {
				rc.Values[i][j] = rc.Values[i][j] / float64(n) * 1e6
			}
		}
	}
	return rc, nil
}

// WriteTSV writes the table with one row per refid and one column per
// source.
func (rc *RefidCoverage) WriteTSV(out io.Writer) error {
	w := tsv.NewWriter(out)
	w.WriteString("refid")
	for _, s := range rc.Sources {
		w.WriteString(s)
	}
	if err := w.EndLine(); err != nil {
		return err
	}
	for i, r := range rc.RefIDs {
		w.WriteString(r)
		for _, val := range rc.Values[i] {
			w.WriteString(fmt.Sprintf("%g", val))
		}
		if err := w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Render draws the table as a grouped bar chart, one bar per source.
func (rc *RefidCoverage) Render(out io.Writer, style render.RefidStyle) error {
	g := render.BarGroups{Categories: rc.RefIDs}
	for j, s := range rc.Sources {
		vals := make([]float64, len(rc.RefIDs))
		for i := range rc.RefIDs {
			vals[i] = rc.Values[i][j]
		}
		g.Series = append(g.Series, render.Series{Name: s, Values: vals})
	}
	if style.YLabel == "" {
		style.YLabel = "aligned bases"
		switch {
		case rc.Opts.NormDepth && rc.Opts.NormLen:
			style.YLabel = "bases per kb aligned per Mb"
		case rc.Opts.NormDepth:
			style.YLabel = "bases per kb aligned"
		case rc.Opts.NormLen:
			style.YLabel = "bases per Mb"
		}
	}
	return render.Bars(out, g, style)
}
