package alignment

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/biogo/hts/sam"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/genomeview/coverage"
	"github.com/grailbio/genomeview/encoding/bed"
	"github.com/grailbio/genomeview/util"
)

// span is one read or BED interval held in memory.
type span struct {
	coverage.Span
	weight int
}

type memRef struct {
	spans  []span // sorted by start
	maxLen int
}

// memSource holds a SAM or BED file in memory.
type memSource struct {
	sourceInfo
	refs map[string]*memRef
}

func openMem(ctx context.Context, info sourceInfo) (*memSource, error) {
	m := &memSource{sourceInfo: info, refs: map[string]*memRef{}}
	in, err := util.Open(ctx, m.path)
	if err != nil {
		return nil, err
	}
	var names []string
	if m.format == SAM {
		names, err = m.readSAM(in)
	} else {
		names, err = m.readBED(in)
	}
	if cerr := in.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, errors.E(err, m.path)
	}
	for _, r := range m.refs {
		sort.SliceStable(r.spans, func(i, j int) bool {
			return r.spans[i].Start < r.spans[j].Start
		})
	}
	m.finish(refOrder(m.opts.Ref, names))
	return m, nil
}

func (m *memSource) add(refid string, s span) {
	r := m.refs[refid]
	if r == nil {
		r = &memRef{}
		m.refs[refid] = r
	}
	r.spans = append(r.spans, s)
	if n := s.End - s.Start; n > r.maxLen {
		r.maxLen = n
	}
}

func (m *memSource) readSAM(in io.Reader) ([]string, error) {
	sr, err := sam.NewReader(in)
	if err != nil {
		return nil, errors.E(errors.Integrity, err)
	}
	var names []string
	for _, ref := range sr.Header().Refs() {
		names = append(names, ref.Name())
		checkRefLength(m.name, m.opts.Ref, ref.Name(), ref.Len())
	}
	for {
		rec, err := sr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.E(errors.Integrity, err)
		}
		if !m.wantRecord(rec) {
			continue
		}
		refid := rec.Ref.Name()
		if !m.wantRef(refid) {
			continue
		}
		m.count(refid, 1, int64(AlignedBases(rec.Cigar)))
		m.add(refid, span{
			Span:   coverage.Span{Start: rec.Pos, End: rec.End(), Reverse: rec.Flags&sam.Reverse != 0},
			weight: 1,
		})
	}
	return names, nil
}

// readBED reads a coverage BED file.  The score column is the depth of the
// interval (1 if absent) and a zero-length interval covers one base.
func (m *memSource) readBED(in io.Reader) ([]string, error) {
	br := bed.NewReader(in)
	var (
		names []string
		seen  = map[string]bool{}
	)
	for {
		rec, err := br.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		weight, err := rec.IntScore(1)
		if err != nil || weight < 0 {
			return nil, errors.E(errors.Integrity, fmt.Sprintf("alignment: bad depth %q for %s:%d-%d", rec.Score, rec.RefID, rec.Start, rec.End))
		}
		if !seen[rec.RefID] {
			seen[rec.RefID] = true
			names = append(names, rec.RefID)
		}
		if !m.wantRef(rec.RefID) {
			continue
		}
		if rec.End == rec.Start {
			rec.End++
		}
		m.count(rec.RefID, 1, int64(weight)*int64(rec.End-rec.Start))
		m.add(rec.RefID, span{
			Span:   coverage.Span{Start: rec.Start, End: rec.End, Reverse: rec.Strand == '-'},
			weight: weight,
		})
	}
	var order []string
	for _, h := range br.Header() {
		checkRefLength(m.name, m.opts.Ref, h.RefID, h.Length)
		order = append(order, h.RefID)
	}
	return append(order, names...), nil
}

func (m *memSource) Indexed() bool { return true }

// Coverage implements Source.
func (m *memSource) Coverage(ctx context.Context, refid string, start, end, nBins int) (*coverage.Profile, error) {
	binner, err := m.newBinner(refid, start, end, nBins)
	if err != nil {
		return nil, err
	}
	r := m.refs[refid]
	if r == nil {
		return binner.Profile(), nil
	}
	// No span starting before start-maxLen can reach the window.
	i := sort.Search(len(r.spans), func(i int) bool { return r.spans[i].Start > start-r.maxLen })
	for ; i < len(r.spans) && r.spans[i].Start < end; i++ {
		binner.AddWeighted(r.spans[i].Span, r.spans[i].weight)
	}
	return binner.Profile(), nil
}

// Close implements Source.
func (m *memSource) Close() error { return nil }
