package viewer_test

import (
	"bytes"
	"context"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/biogo/hts/sam"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/genomeview/alignment"
	"github.com/grailbio/genomeview/alignment/alignmenttest"
	"github.com/grailbio/genomeview/annotation"
	"github.com/grailbio/genomeview/render"
	"github.com/grailbio/genomeview/viewer"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	refIndex = "I\t1000\nII\t2000\n"
	genes    = "##gff-version 3\n" +
		"I\t.\tgene\t101\t200\t.\t+\t.\tID=g1\n" +
		"I\t.\texon\t101\t120\t.\t+\t.\tID=e1;Parent=g1\n" +
		"I\t.\tgene\t151\t400\t.\t-\t.\tID=g2\n"
	reads = "@HD\tVN:1.4\tSO:coordinate\n" +
		"@SQ\tSN:I\tLN:1000\n" +
		"@SQ\tSN:II\tLN:2000\n" +
		"r1\t0\tI\t1\t60\t50M\t*\t0\t0\t*\t*\n" +
		"r2\t16\tI\t41\t60\t50M\t*\t0\t0\t*\t*\n"
	depth = "II\t0\t100\t.\t3\t+\n" +
		"I\t0\t50\t.\t2\t-\n"
)

type fixture struct {
	dir string
	v   *viewer.Viewer
}

func newFixture(t *testing.T) (*fixture, func()) {
	dir, cleanup := testutil.TempDir(t, "", "")
	f := &fixture{dir: dir}
	v, err := viewer.New(context.Background(), f.write(t, "ref.tsv", refIndex), viewer.DefaultOpts)
	require.NoError(t, err)
	f.v = v
	return f, func() {
		expect.NoError(t, v.Close())
		cleanup()
	}
}

func (f *fixture) write(t *testing.T, name, data string) string {
	path := filepath.Join(f.dir, name)
	require.NoError(t, ioutil.WriteFile(path, []byte(data), 0644))
	return path
}

func intp(i int) *int { return &i }

func TestSingleFeature(t *testing.T) {
	f, cleanup := newFixture(t)
	defer cleanup()
	ctx := context.Background()
	path := f.write(t, "one.gff3", "I\t.\tgene\t101\t200\t.\t+\t.\tID=g1\n")
	require.NoError(t, f.v.AddAnnotation(ctx, path, "", viewer.DefaultAddOpts))
	expect.EQ(t, f.v.Annotations(), []string{"one"})

	feats, err := f.v.Features("one", "I", 0, 1000, annotation.QueryOpts{})
	require.NoError(t, err)
	require.Len(t, feats, 1)
	expect.EQ(t, feats[0].Start, 100)
	expect.EQ(t, feats[0].End, 200)
	expect.EQ(t, feats[0].Type, "gene")

	feats, err = f.v.Features("one", "II", 0, 2000, annotation.QueryOpts{})
	require.NoError(t, err)
	expect.EQ(t, len(feats), 0)
	src, ok := f.v.Annotation("one")
	require.True(t, ok)
	expect.EQ(t, src.EmptyRefIDs(), []string{"II"})

	_, err = f.v.Features("one", "III", 0, 10, annotation.QueryOpts{})
	expect.True(t, viewer.IsInvalidReference(err))
	_, err = f.v.Features("nope", "I", 0, 10, annotation.QueryOpts{})
	expect.NotNil(t, err)
}

func TestDuplicateNames(t *testing.T) {
	f, cleanup := newFixture(t)
	defer cleanup()
	ctx := context.Background()
	first := f.write(t, "genes.gff3", genes)
	second := f.write(t, "other.bed", "II\t0\t10\tp1\n")

	require.NoError(t, f.v.AddAnnotation(ctx, first, "genes", viewer.DefaultAddOpts))
	err := f.v.AddAnnotation(ctx, second, "genes", viewer.DefaultAddOpts)
	expect.True(t, viewer.IsDuplicateSourceName(err), "%v", err)

	opts := viewer.DefaultAddOpts
	opts.Replace = true
	require.NoError(t, f.v.AddAnnotation(ctx, second, "genes", opts))
	expect.EQ(t, f.v.Annotations(), []string{"genes"})
	src, _ := f.v.Annotation("genes")
	expect.EQ(t, src.NumFeatures(), 1)
	expect.EQ(t, src.Path(), second)

	samPath := f.write(t, "reads.sam", reads)
	require.NoError(t, f.v.AddAlignment(ctx, samPath, "", viewer.DefaultAddOpts))
	err = f.v.AddAlignment(ctx, samPath, "reads", viewer.DefaultAddOpts)
	expect.True(t, viewer.IsDuplicateSourceName(err), "%v", err)
	require.NoError(t, f.v.AddAlignment(ctx, f.write(t, "depth.bed", depth), "reads", opts))
	expect.EQ(t, f.v.Alignments(), []string{"reads"})
	aln, _ := f.v.Alignment("reads")
	expect.EQ(t, aln.Format(), alignment.BED)
}

func TestErrors(t *testing.T) {
	f, cleanup := newFixture(t)
	defer cleanup()
	ctx := context.Background()

	_, err := f.v.IntervalPlot(ctx, "I", viewer.DefaultIntervalPlotOpts)
	expect.True(t, errors.Is(errors.Precondition, err), "%v", err)
	_, err = f.v.RefidCoveragePlot(viewer.DefaultRefidPlotOpts)
	expect.True(t, errors.Is(errors.Precondition, err), "%v", err)

	err = f.v.AddAnnotation(ctx, f.write(t, "bad.gtf", "I\tsrc\tgene\tabc\t10\t.\t+\t.\tgene_id \"x\";\n"), "", viewer.DefaultAddOpts)
	expect.True(t, viewer.IsParseError(err), "%v", err)
	err = f.v.AddAnnotation(ctx, f.write(t, "long.bed", "I\t900\t1001\n"), "", viewer.DefaultAddOpts)
	expect.True(t, viewer.IsInvalidReference(err), "%v", err)

	// A missing input file is not a missing index.
	err = f.v.AddAnnotation(ctx, filepath.Join(f.dir, "nonexistent.gtf"), "", viewer.DefaultAddOpts)
	expect.NotNil(t, err)
	expect.False(t, viewer.IsMissingIndex(err), "%v", err)
	err = f.v.AddAlignment(ctx, filepath.Join(f.dir, "nonexistent.sam"), "", viewer.DefaultAddOpts)
	expect.NotNil(t, err)
	expect.False(t, viewer.IsMissingIndex(err), "%v", err)

	header := alignmenttest.NewHeader(t, "I", 1000)
	bamPath := filepath.Join(f.dir, "sample.bam")
	alignmenttest.WriteBAM(t, bamPath, header, []*sam.Record{
		alignmenttest.NewRecord("r1", alignmenttest.Ref(header, "I"), 10, 0, 60, "20M"),
	})
	err = f.v.AddAlignment(ctx, bamPath, "", viewer.DefaultAddOpts)
	expect.True(t, viewer.IsMissingIndex(err), "%v", err)

	opts := viewer.DefaultAddOpts
	opts.AllowUnindexed = true
	require.NoError(t, f.v.AddAlignment(ctx, bamPath, "", opts))
	_, err = f.v.IntervalPlot(ctx, "I", viewer.DefaultIntervalPlotOpts)
	expect.True(t, viewer.IsMissingIndex(err), "%v", err)

	// Once indexed, the same file can replace the unindexed source.
	require.NoError(t, alignment.IndexBAM(ctx, bamPath, ""))
	opts = viewer.DefaultAddOpts
	opts.Replace = true
	require.NoError(t, f.v.AddAlignment(ctx, bamPath, "", opts))
	p, err := f.v.Coverage(ctx, "sample", "I", 0, 40, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1}, p.Depths())
}

func TestCoverage(t *testing.T) {
	f, cleanup := newFixture(t)
	defer cleanup()
	ctx := context.Background()
	require.NoError(t, f.v.AddAlignment(ctx, f.write(t, "reads.sam", reads), "", viewer.DefaultAddOpts))

	p, err := f.v.Coverage(ctx, "reads", "I", 0, 100, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1}, p.Depths())
	assert.Equal(t, 50.0, p.BinWidth)

	for _, tt := range []struct {
		refid      string
		start, end int
		bins       int
	}{
		{"III", 0, 10, 2},
		{"I", 10, 10, 2},
		{"I", -1, 10, 2},
		{"I", 0, 1001, 2},
		{"I", 0, 100, 0},
	} {
		_, err := f.v.Coverage(ctx, "reads", tt.refid, tt.start, tt.end, tt.bins)
		expect.True(t, viewer.IsInvalidReference(err), "%+v: %v", tt, err)
	}
}

func TestSummaries(t *testing.T) {
	f, cleanup := newFixture(t)
	defer cleanup()
	ctx := context.Background()
	require.NoError(t, f.v.AddAnnotation(ctx, f.write(t, "genes.gff3", genes), "", viewer.DefaultAddOpts))
	require.NoError(t, f.v.AddAnnotation(ctx, f.write(t, "peaks.bed", "II\t0\t10\nII\t5\t20\n"), "", viewer.DefaultAddOpts))
	require.NoError(t, f.v.AddAlignment(ctx, f.write(t, "reads.sam", reads), "", viewer.DefaultAddOpts))
	require.NoError(t, f.v.AddAlignment(ctx, f.write(t, "depth.bed", depth), "", viewer.DefaultAddOpts))

	as := f.v.AnnotationSummary()
	for _, sc := range as.Sources {
		var total int64
		for _, kc := range as.ByType {
			if kc.Source == sc.Source {
				total += kc.Count
			}
		}
		expect.EQ(t, total, sc.Features, sc.Source)
	}
	expect.EQ(t, as.Sources[0], annotation.SourceCount{Source: "genes", Features: 3, RefIDs: 1, Types: 2})

	ls := f.v.AlignmentSummary()
	assert.Equal(t, []alignment.SourceBases{
		{Source: "reads", RefIDs: 1, Bases: 100},
		{Source: "depth", RefIDs: 2, Bases: 400},
	}, ls.Sources)
	assert.Equal(t, []alignment.RefIDBases{
		{RefID: "I", Source: "reads", Reads: 2, Bases: 100},
		{RefID: "I", Source: "depth", Reads: 1, Bases: 100},
		{RefID: "II", Source: "depth", Reads: 1, Bases: 300},
	}, ls.ByRefID)
}

func TestRefidCoveragePlot(t *testing.T) {
	f, cleanup := newFixture(t)
	defer cleanup()
	ctx := context.Background()
	require.NoError(t, f.v.AddAlignment(ctx, f.write(t, "reads.sam", reads), "", viewer.DefaultAddOpts))
	require.NoError(t, f.v.AddAlignment(ctx, f.write(t, "depth.bed", depth), "", viewer.DefaultAddOpts))

	rc, err := f.v.RefidCoveragePlot(viewer.RefidPlotOpts{})
	require.NoError(t, err)
	expect.EQ(t, rc.RefIDs, []string{"I", "II"})
	expect.EQ(t, rc.Sources, []string{"reads", "depth"})
	expect.EQ(t, rc.Values, [][]float64{{100, 100}, {0, 300}})

	rc, err = f.v.RefidCoveragePlot(viewer.DefaultRefidPlotOpts)
	require.NoError(t, err)
	want := [][]float64{{1e6, 250000}, {0, 375000}}
	for i := range want {
		for j := range want[i] {
			assert.InDelta(t, want[i][j], rc.Values[i][j], 1e-6)
		}
	}

	opts := viewer.DefaultRefidPlotOpts
	opts.RefList = []string{"II"}
	rc, err = f.v.RefidCoveragePlot(opts)
	require.NoError(t, err)
	expect.EQ(t, rc.RefIDs, []string{"II"})
	assert.InDelta(t, 0, rc.Values[0][0], 1e-6)
	assert.InDelta(t, 500000, rc.Values[0][1], 1e-6)

	var buf bytes.Buffer
	require.NoError(t, rc.WriteTSV(&buf))
	expect.EQ(t, buf.String(), "refid\treads\tdepth\nII\t0\t500000\n")
	buf.Reset()
	require.NoError(t, rc.Render(&buf, render.DefaultRefidStyle))
	expect.True(t, buf.Len() > 0)

	opts.RefList = []string{"chrZ"}
	_, err = f.v.RefidCoveragePlot(opts)
	expect.True(t, viewer.IsInvalidReference(err), "%v", err)
}

func TestIntervalPlot(t *testing.T) {
	f, cleanup := newFixture(t)
	defer cleanup()
	ctx := context.Background()
	require.NoError(t, f.v.AddAnnotation(ctx, f.write(t, "genes.gff3", genes), "", viewer.DefaultAddOpts))
	require.NoError(t, f.v.AddAnnotation(ctx, f.write(t, "peaks.bed", "II\t0\t10\n"), "", viewer.DefaultAddOpts))
	require.NoError(t, f.v.AddAlignment(ctx, f.write(t, "reads.sam", reads), "", viewer.DefaultAddOpts))

	ip, err := f.v.IntervalPlot(ctx, "I", viewer.DefaultIntervalPlotOpts)
	require.NoError(t, err)
	expect.EQ(t, ip.Start, 0)
	expect.EQ(t, ip.End, 1000)
	expect.EQ(t, ip.Offset, 2)
	require.Len(t, ip.Coverage, 1)
	expect.EQ(t, ip.Coverage[0].NumBins(), 500)
	expect.EQ(t, ip.Coverage[0].Total(), 50)

	require.Len(t, ip.Tracks, 3)
	expect.EQ(t, ip.Tracks[0].Type, "exon")
	expect.EQ(t, ip.Tracks[0].Rows, []int{0})
	expect.EQ(t, ip.Tracks[1].Type, "gene")
	expect.EQ(t, ip.Tracks[1].Rows, []int{0, 1})
	expect.EQ(t, ip.Tracks[1].NumRows, 2)
	expect.EQ(t, ip.Tracks[2].Source, "peaks")
	expect.EQ(t, len(ip.Tracks[2].Features), 0)

	var buf bytes.Buffer
	require.NoError(t, ip.Render(&buf, render.DefaultIntervalStyle))
	expect.True(t, buf.Len() > 0)
	buf.Reset()
	require.NoError(t, ip.WriteCoverageTSV(&buf))
	expect.True(t, strings.HasPrefix(buf.String(), "source\trefid\tstart\tend\tplus\tminus\nreads\tI\t0\t2\t1\t0\n"), buf.String())

	// A narrow window caps the bins; a large offset stacks both genes.
	opts := viewer.DefaultIntervalPlotOpts
	opts.Start, opts.End = intp(100), intp(150)
	opts.FeatureTypes = []string{"gene"}
	ip, err = f.v.IntervalPlot(ctx, "I", opts)
	require.NoError(t, err)
	expect.EQ(t, ip.Offset, 0)
	expect.EQ(t, ip.Coverage[0].NumBins(), 50)
	require.Len(t, ip.Tracks, 2)
	expect.EQ(t, len(ip.Tracks[0].Features), 1)

	opts.Start, opts.End = intp(0), intp(1000)
	opts.MaxDepth = 1
	ip, err = f.v.IntervalPlot(ctx, "I", opts)
	require.NoError(t, err)
	expect.EQ(t, ip.Tracks[0].Dropped, 1)
	expect.EQ(t, len(ip.Tracks[0].Features), 1)

	for _, tt := range []struct {
		refid      string
		start, end *int
	}{
		{"III", nil, nil},
		{"I", intp(500), intp(500)},
		{"I", intp(600), intp(500)},
		{"I", nil, intp(1001)},
		{"I", intp(-5), nil},
	} {
		opts := viewer.DefaultIntervalPlotOpts
		opts.Start, opts.End = tt.start, tt.end
		_, err := f.v.IntervalPlot(ctx, tt.refid, opts)
		expect.True(t, viewer.IsInvalidReference(err), "%+v: %v", tt, err)
	}
}

func TestFASTAReference(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()
	fa := filepath.Join(dir, "ref.fa")
	require.NoError(t, ioutil.WriteFile(fa, []byte(">chrA desc\n"+strings.Repeat("ACGT", 25)+"\n>chrB\nAC\nGT\n"), 0644))
	idx := filepath.Join(dir, "ref.tsv")

	v, err := viewer.New(ctx, fa, viewer.Opts{RefList: []string{"chrB"}, OutputIndex: idx})
	require.NoError(t, err)
	expect.EQ(t, v.Reference().Names(), []string{"chrB"})
	expect.NoError(t, v.Close())

	v, err = viewer.New(ctx, idx, viewer.DefaultOpts)
	require.NoError(t, err)
	n, ok := v.Reference().Len("chrB")
	expect.True(t, ok)
	expect.EQ(t, n, 4)

	_, err = viewer.New(ctx, fa, viewer.Opts{RefList: []string{"chrC"}})
	expect.True(t, viewer.IsInvalidReference(err), "%v", err)
}
