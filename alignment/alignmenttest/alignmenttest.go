// Package alignmenttest creates small alignment files for tests.
package alignmenttest

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
	"github.com/grailbio/base/file"
	"github.com/stretchr/testify/require"
)

// NewHeader returns a header with one reference per (name, length) pair.
func NewHeader(t testing.TB, refs ...interface{}) *sam.Header {
	require.True(t, len(refs)%2 == 0, "refs must be name, length pairs")
	var sr []*sam.Reference
	for i := 0; i < len(refs); i += 2 {
		ref, err := sam.NewReference(refs[i].(string), "", "", refs[i+1].(int), nil, nil)
		require.NoError(t, err)
		sr = append(sr, ref)
	}
	header, err := sam.NewHeader(nil, sr)
	require.NoError(t, err)
	header.SortOrder = sam.Coordinate
	return header
}

// NewRecord creates a record without sequence or qualities.  An empty cigar
// is allowed for unmapped records.
func NewRecord(name string, ref *sam.Reference, pos int, flags sam.Flags, mapq byte, cigar string) *sam.Record {
	r := &sam.Record{
		Name:    name,
		Ref:     ref,
		Pos:     pos,
		MatePos: -1,
		Flags:   flags,
		MapQ:    mapq,
	}
	if cigar != "" {
		c, err := sam.ParseCigar([]byte(cigar))
		if err != nil {
			panic(fmt.Sprintf("bad cigar %q: %v", cigar, err))
		}
		r.Cigar = c
	}
	return r
}

// Ref returns the named reference of header.
func Ref(header *sam.Header, name string) *sam.Reference {
	for _, ref := range header.Refs() {
		if ref.Name() == name {
			return ref
		}
	}
	panic(fmt.Sprintf("no reference %s", name))
}

// WriteBAM writes recs, coordinate sorted, to a BAM file at path.
func WriteBAM(t testing.TB, path string, header *sam.Header, recs []*sam.Record) {
	ctx := context.Background()
	sorted := append([]*sam.Record(nil), recs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := refID(sorted[i]), refID(sorted[j])
		if ri != rj {
			return ri < rj
		}
		return sorted[i].Pos < sorted[j].Pos
	})
	out, err := file.Create(ctx, path)
	require.NoError(t, err)
	w, err := bam.NewWriter(out.Writer(ctx), header, 1)
	require.NoError(t, err)
	for _, r := range sorted {
		require.NoError(t, w.Write(r), "writing %s", r.Name)
	}
	require.NoError(t, w.Close())
	require.NoError(t, out.Close(ctx))
}

// refID orders unmapped reads last.
func refID(r *sam.Record) int {
	if r.Ref == nil || r.Ref.ID() < 0 {
		return int(^uint(0) >> 1)
	}
	return r.Ref.ID()
}
