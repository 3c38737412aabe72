package viewer

import (
	"context"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/genomeview/annotation"
	"github.com/grailbio/genomeview/coverage"
	"github.com/grailbio/genomeview/interval"
	"github.com/grailbio/genomeview/render"
)

// IntervalPlotOpts controls IntervalPlot.
type IntervalPlotOpts struct {
	// Start and End bound the window.  nil means 0 and the refid length.
	Start, End *int
	// FeatureTypes, if nonempty, restricts the annotation tracks to these
	// types.
	FeatureTypes []string
	// Bins is the number of coverage bins, capped by the window width.
	Bins int
	// MaxFeaturesPerType caps the features per (source, type) track.  0
	// disables the cap.
	MaxFeaturesPerType int
	// AnnotationOffset is the minimum gap between features sharing a row.
	// nil means 1/400 of the window.
	AnnotationOffset *int
	// MaxDepth is the maximum number of rows of a feature track.
	MaxDepth int
	// Seed seeds feature subsampling.
	Seed int64
}

// DefaultIntervalPlotOpts are the default options for IntervalPlot.
var DefaultIntervalPlotOpts = IntervalPlotOpts{
	Bins:               coverage.DefaultBins,
	MaxFeaturesPerType: annotation.DefaultMaxPerType,
	MaxDepth:           interval.DefaultMaxDepth,
}

// FeatureTrack is the features of one (source, type) pair, placed on rows.
type FeatureTrack struct {
	Source, Type string
	Features     []annotation.Feature
	// Rows[i] is the row of Features[i].
	Rows    []int
	NumRows int
	// Dropped counts features that did not fit in MaxDepth rows.  They are
	// not in Features.
	Dropped int
}

// IntervalPlot is the data of an interval figure.
type IntervalPlot struct {
	RefID string
	// Start and End are the resolved window.
	Start, End int
	// Offset is the resolved annotation offset.
	Offset int
	// Coverage has one profile per alignment source, in the order the
	// sources were added.
	Coverage []*coverage.Profile
	// Tracks has one entry per (annotation source, type) pair with features
	// in the window, or a single empty entry for a source with none.
	Tracks []FeatureTrack
}

// IntervalPlot gathers coverage and features over a window of refid.
func (v *Viewer) IntervalPlot(ctx context.Context, refid string, opts IntervalPlotOpts) (*IntervalPlot, error) {
	if len(v.alnOrder) == 0 && len(v.annOrder) == 0 {
		return nil, errors.E(errors.Precondition, "viewer: no annotation or alignment source loaded")
	}
	length, ok := v.ref.Len(refid)
	if !ok {
		return nil, errors.E(errors.Invalid, "viewer: unknown refid", refid)
	}
	ip := &IntervalPlot{RefID: refid, Start: 0, End: length}
	if opts.Start != nil {
		ip.Start = *opts.Start
	} else if v.opts.Verbose {
		log.Printf("Autodefine start position: %d", ip.Start)
	}
	if opts.End != nil {
		ip.End = *opts.End
	} else if v.opts.Verbose {
		log.Printf("Autodefine end position: %d", ip.End)
	}
	if err := v.ref.CheckInterval(refid, ip.Start, ip.End); err != nil {
		return nil, err
	}
	ip.Offset = (ip.End - ip.Start) / 400
	if opts.AnnotationOffset != nil {
		ip.Offset = *opts.AnnotationOffset
	} else if v.opts.Verbose {
		log.Printf("Estimated overlap offset: %d", ip.Offset)
	}
	bins := opts.Bins
	if bins <= 0 {
		bins = coverage.DefaultBins
	}
	for _, name := range v.alnOrder {
		p, err := v.alignments[name].Coverage(ctx, refid, ip.Start, ip.End, bins)
		if err != nil {
			return nil, err
		}
		ip.Coverage = append(ip.Coverage, p)
	}
	qopts := annotation.QueryOpts{
		Types:      opts.FeatureTypes,
		MaxPerType: opts.MaxFeaturesPerType,
		Seed:       opts.Seed,
	}
	for _, name := range v.annOrder {
		ip.Tracks = append(ip.Tracks, layoutTracks(name, v.annotations[name].Query(refid, ip.Start, ip.End, qopts), ip.Offset, opts.MaxDepth)...)
	}
	return ip, nil
}

// layoutTracks splits feats by type, in order of first appearance, and
// places each type on its own set of rows.
func layoutTracks(source string, feats []annotation.Feature, offset, maxDepth int) []FeatureTrack {
	if len(feats) == 0 {
		return []FeatureTrack{{Source: source}}
	}
	if maxDepth <= 0 {
		maxDepth = interval.DefaultMaxDepth
	}
	var tracks []FeatureTrack
	byType := map[string]int{}
	layouts := map[string]*interval.Layout{}
	for _, f := range feats {
		i, ok := byType[f.Type]
		if !ok {
			i = len(tracks)
			byType[f.Type] = i
			tracks = append(tracks, FeatureTrack{Source: source, Type: f.Type})
			layouts[f.Type] = interval.NewLayout(offset, maxDepth)
		}
		t := &tracks[i]
		row, ok := layouts[f.Type].Place(f.Start, f.End)
		if !ok {
			t.Dropped++
			continue
		}
		t.Features = append(t.Features, f)
		t.Rows = append(t.Rows, row)
	}
	for i := range tracks {
		tracks[i].NumRows = layouts[tracks[i].Type].NumRows()
		if d := tracks[i].Dropped; d > 0 {
			log.Printf("%s: %d %s features beyond depth %d not shown", source, d, tracks[i].Type, maxDepth)
		}
	}
	return tracks
}

// Render draws the figure.
func (ip *IntervalPlot) Render(out io.Writer, style render.IntervalStyle) error {
	t := render.Tracks{
		RefID:    ip.RefID,
		Start:    ip.Start,
		End:      ip.End,
		Coverage: ip.Coverage,
	}
	for _, ft := range ip.Tracks {
		rt := render.FeatureTrack{
			Source:  ft.Source,
			Type:    ft.Type,
			Rows:    ft.NumRows,
			Dropped: ft.Dropped,
		}
		for i, f := range ft.Features {
			rt.Items = append(rt.Items, render.Item{
				Start:  f.Start,
				End:    f.End,
				Row:    ft.Rows[i],
				Strand: f.Strand,
				Label:  f.ID,
			})
		}
		t.Features = append(t.Features, rt)
	}
	return render.Interval(out, t, style)
}

// WriteCoverageTSV writes the coverage profiles of the plot.
func (ip *IntervalPlot) WriteCoverageTSV(out io.Writer) error {
	return coverage.WriteTSV(out, ip.Coverage)
}

// String returns a one-line description of the plot contents.
func (ip *IntervalPlot) String() string {
	var n int
	for _, t := range ip.Tracks {
		n += len(t.Features)
	}
	return fmt.Sprintf("%s:%d-%d: %d coverage tracks, %d features in %d tracks", ip.RefID, ip.Start, ip.End, len(ip.Coverage), n, len(ip.Tracks))
}
