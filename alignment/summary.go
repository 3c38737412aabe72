package alignment

import (
	"io"
	"sort"

	"github.com/grailbio/base/tsv"
	"github.com/grailbio/genomeview/genome"
)

// SourceBases summarizes one source.
type SourceBases struct {
	Source string `tsv:"source"`
	RefIDs int64  `tsv:"refids"`
	Bases  int64  `tsv:"bases"`
}

// RefIDBases is the number of aligned bases of one source on one refid.
type RefIDBases struct {
	RefID  string `tsv:"refid"`
	Source string `tsv:"source"`
	Reads  int64  `tsv:"reads"`
	Bases  int64  `tsv:"bases"`
}

// Summary tabulates the eager totals across sources.
type Summary struct {
	// Sources has one row per source, in the order given to Summarize.
	Sources []SourceBases
	// ByRefID has one row per (refid, source) pair with at least one read,
	// in reference order (refid order without a reference), then source
	// order.
	ByRefID []RefIDBases
}

// Summarize computes a Summary.  ref may be nil.
func Summarize(sources []Source, ref *genome.Index) Summary {
	var sum Summary
	seen := map[string]bool{}
	var refids []string
	for _, s := range sources {
		ids := s.RefIDs()
		sum.Sources = append(sum.Sources, SourceBases{
			Source: s.Name(),
			RefIDs: int64(len(ids)),
			Bases:  s.TotalBases(),
		})
		for _, r := range ids {
			if !seen[r] {
				seen[r] = true
				refids = append(refids, r)
			}
		}
	}
	sort.Strings(refids)
	if ref != nil {
		sort.SliceStable(refids, func(i, j int) bool {
			return ref.Order(refids[i]) < ref.Order(refids[j])
		})
	}
	for _, r := range refids {
		for _, s := range sources {
			if t := s.Totals(r); t.Reads > 0 {
				sum.ByRefID = append(sum.ByRefID, RefIDBases{RefID: r, Source: s.Name(), Reads: t.Reads, Bases: t.Bases})
			}
		}
	}
	return sum
}

// WriteTSV writes the per-source table, an empty line, then the per-refid
// table.
func (s Summary) WriteTSV(out io.Writer) error {
	w := tsv.NewRowWriter(out)
	for i := range s.Sources {
		if err := w.Write(&s.Sources[i]); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if _, err := io.WriteString(out, "\n"); err != nil {
		return err
	}
	w = tsv.NewRowWriter(out)
	for i := range s.ByRefID {
		if err := w.Write(&s.ByRefID[i]); err != nil {
			return err
		}
	}
	return w.Flush()
}
