package annotation_test

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/genomeview/annotation"
	"github.com/grailbio/genomeview/encoding/fasta"
	"github.com/grailbio/genomeview/genome"
	"github.com/grailbio/testutil"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRef(t *testing.T) *genome.Index {
	ref, err := genome.New([]fasta.Seq{{Name: "I", Length: 1000}, {Name: "II", Length: 2000}}, nil)
	require.NoError(t, err)
	return ref
}

func TestSingleFeatureScenario(t *testing.T) {
	ref := newRef(t)
	s, err := annotation.Read(strings.NewReader("I\t100\t200\tg1\n"), "a", annotation.BED, annotation.LoadOpts{Ref: ref})
	require.NoError(t, err)

	got := s.Query("I", 0, 1000, annotation.QueryOpts{})
	require.Len(t, got, 1)
	assert.Equal(t, annotation.Feature{
		RefID: "I", Start: 100, End: 200, Strand: '.', Type: annotation.UnknownType, ID: "g1",
	}, got[0])

	assert.Len(t, s.Query("II", 0, 2000, annotation.QueryOpts{}), 0)
	assert.Equal(t, []string{"II"}, s.EmptyRefIDs())
}

const gtf = `I	src	gene	101	200	.	+	.	gene_id "g1";
I	src	exon	101	120	.	+	.	gene_id "g1"; exon_number "1";
I	src	exon	181	200	.	+	.	gene_id "g1"; exon_number "2";
I	src	gene	151	400	.	-	.	gene_id "g2";
I	src	gene	50	100	.	-	.	gene_id "g0";
II	src	gene	1	2000	.	.	.	gene_id "g3";
chrM	src	gene	1	10	.	+	.	gene_id "mito";
`

func TestQuery(t *testing.T) {
	s, err := annotation.Read(strings.NewReader(gtf), "genes", annotation.GTF, annotation.LoadOpts{Ref: newRef(t)})
	require.NoError(t, err)
	assert.Equal(t, 6, s.NumFeatures())
	assert.Equal(t, 1, s.NumDropped())
	assert.Equal(t, []string{"I", "II"}, s.RefIDs())
	assert.Equal(t, []string{"exon", "gene"}, s.Types())
	assert.Len(t, s.EmptyRefIDs(), 0)

	ids := func(feats []annotation.Feature) []string {
		var out []string
		for _, f := range feats {
			out = append(out, fmt.Sprintf("%s/%s/%d", f.ID, f.Type, f.Start))
		}
		return out
	}
	tests := []struct {
		start, end int
		opts       annotation.QueryOpts
		want       []string
	}{
		{0, 1000, annotation.QueryOpts{}, []string{"g0/gene/49", "g1/exon/100", "g1/gene/100", "g2/gene/150", "g1/exon/180"}},
		// Half-open: [49,100) does not overlap [100,...).
		{0, 100, annotation.QueryOpts{}, []string{"g0/gene/49"}},
		{100, 101, annotation.QueryOpts{}, []string{"g1/exon/100", "g1/gene/100"}},
		{120, 150, annotation.QueryOpts{}, []string{"g1/gene/100"}},
		{0, 1000, annotation.QueryOpts{Types: []string{"exon"}}, []string{"g1/exon/100", "g1/exon/180"}},
		{400, 1000, annotation.QueryOpts{}, nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ids(s.Query("I", tt.start, tt.end, tt.opts)), "%+v", tt)
	}
	assert.Len(t, s.Query("chrM", 0, 10, annotation.QueryOpts{}), 0)
	assert.Len(t, s.Query("I", 10, 10, annotation.QueryOpts{}), 0)

	g1 := s.Query("I", 180, 181, annotation.QueryOpts{Types: []string{"exon"}})
	require.Len(t, g1, 1)
	assert.Equal(t, "2", g1[0].Attrs["exon_number"])
	assert.Equal(t, byte('+'), g1[0].Strand)
}

func TestQueryMaxPerType(t *testing.T) {
	var buf bytes.Buffer
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&buf, "I\t%d\t%d\tf%d\n", i*10, i*10+5, i)
	}
	s, err := annotation.Read(&buf, "many", annotation.BED, annotation.LoadOpts{})
	require.NoError(t, err)

	opts := annotation.QueryOpts{MaxPerType: 7, Seed: 42}
	a := s.Query("I", 0, 1000, opts)
	b := s.Query("I", 0, 1000, opts)
	require.Len(t, a, 7)
	assert.Equal(t, a, b)
	for i := 1; i < len(a); i++ {
		assert.True(t, a[i-1].Start < a[i].Start)
	}
	assert.Len(t, s.Query("I", 0, 1000, annotation.QueryOpts{MaxPerType: 100}), 50)
}

func TestReadValidation(t *testing.T) {
	_, err := annotation.Read(strings.NewReader("I\t900\t1001\n"), "x", annotation.BED, annotation.LoadOpts{Ref: newRef(t)})
	assert.True(t, errors.Is(errors.Invalid, err), "%v", err)

	_, err = annotation.Read(strings.NewReader("I\tx\t10\n"), "x", annotation.BED, annotation.LoadOpts{})
	assert.True(t, errors.Is(errors.Integrity, err), "%v", err)
}

func TestSummary(t *testing.T) {
	ref := newRef(t)
	genes, err := annotation.Read(strings.NewReader(gtf), "genes", annotation.GTF, annotation.LoadOpts{Ref: ref})
	require.NoError(t, err)
	peaks, err := annotation.Read(strings.NewReader("II\t0\t10\nII\t20\t30\n"), "peaks", annotation.BED, annotation.LoadOpts{Ref: ref})
	require.NoError(t, err)

	sum := annotation.Summarize([]*annotation.Source{genes, peaks}, ref)
	assert.Equal(t, []annotation.SourceCount{
		{Source: "genes", Features: 6, RefIDs: 2, Types: 2},
		{Source: "peaks", Features: 2, RefIDs: 1, Types: 1},
	}, sum.Sources)
	assert.Equal(t, []annotation.KeyCount{
		{Key: "I", Source: "genes", Count: 5},
		{Key: "II", Source: "genes", Count: 1},
		{Key: "II", Source: "peaks", Count: 2},
	}, sum.ByRefID)
	assert.Equal(t, []annotation.KeyCount{
		{Key: "exon", Source: "genes", Count: 2},
		{Key: "gene", Source: "genes", Count: 4},
		{Key: annotation.UnknownType, Source: "peaks", Count: 2},
	}, sum.ByType)

	for _, sc := range sum.Sources {
		var total int64
		for _, kc := range sum.ByType {
			if kc.Source == sc.Source {
				total += kc.Count
			}
		}
		assert.Equal(t, sc.Features, total, sc.Source)
	}

	var buf bytes.Buffer
	require.NoError(t, sum.WriteTSV(&buf))
	assert.Equal(t, "source\tfeatures\trefids\ttypes\n"+
		"genes\t6\t2\t2\n"+
		"peaks\t2\t1\t1\n"+
		"\n"+
		"key\tsource\tcount\n"+
		"I\tgenes\t5\n"+
		"II\tgenes\t1\n"+
		"II\tpeaks\t2\n"+
		"\n"+
		"key\tsource\tcount\n"+
		"exon\tgenes\t2\n"+
		"gene\tgenes\t4\n"+
		"unknown\tpeaks\t2\n", buf.String())
}

func TestLoad(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()

	path := filepath.Join(tmpdir, "yeast.gff3.gz")
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte("##gff-version 3\nI\tsgd\tgene\t11\t20\t.\t+\t.\tID=YAL001C;Name=TFC3\n##FASTA\n>I\nACGT\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, ioutil.WriteFile(path, buf.Bytes(), 0644))

	s, err := annotation.Load(ctx, path, "", annotation.LoadOpts{Ref: newRef(t)})
	require.NoError(t, err)
	assert.Equal(t, "yeast", s.Name())
	assert.Equal(t, annotation.GFF3, s.Format())
	feats := s.Features("I")
	require.Len(t, feats, 1)
	assert.Equal(t, "YAL001C", feats[0].ID)
	assert.Equal(t, "TFC3", feats[0].Attrs["Name"])
	assert.Equal(t, 10, feats[0].Start)

	_, err = annotation.Load(ctx, filepath.Join(tmpdir, "x.vcf"), "", annotation.LoadOpts{})
	assert.True(t, errors.Is(errors.NotSupported, err), "%v", err)
}
