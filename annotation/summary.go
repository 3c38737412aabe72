package annotation

import (
	"io"
	"sort"

	"github.com/grailbio/base/tsv"
	"github.com/grailbio/genomeview/genome"
)

// SourceCount summarizes one source.
type SourceCount struct {
	Source   string `tsv:"source"`
	Features int64  `tsv:"features"`
	RefIDs   int64  `tsv:"refids"`
	Types    int64  `tsv:"types"`
}

// KeyCount is the number of features of one source that share a key (a
// refid or a feature type).
type KeyCount struct {
	Key    string `tsv:"key"`
	Source string `tsv:"source"`
	Count  int64  `tsv:"count"`
}

// Summary tabulates feature counts across sources.
type Summary struct {
	// Sources has one row per source, in the order given to Summarize.
	Sources []SourceCount
	// ByRefID has one row per (refid, source) pair with a nonzero count.
	// Rows follow reference order when a reference is given, refid order
	// otherwise, then source order.
	ByRefID []KeyCount
	// ByType has one row per (type, source) pair with a nonzero count,
	// sorted by type, then source order.
	ByType []KeyCount
}

// Summarize computes a Summary.  ref may be nil.
func Summarize(sources []*Source, ref *genome.Index) Summary {
	var sum Summary
	refids := map[string]bool{}
	types := map[string]bool{}
	for _, s := range sources {
		sum.Sources = append(sum.Sources, SourceCount{
			Source:   s.name,
			Features: int64(s.n),
			RefIDs:   int64(len(s.refids)),
			Types:    int64(len(s.types)),
		})
		for _, r := range s.refids {
			refids[r] = true
		}
		for t := range s.types {
			types[t] = true
		}
	}
	refOrder := sortedKeys(refids)
	if ref != nil {
		sort.SliceStable(refOrder, func(i, j int) bool {
			return ref.Order(refOrder[i]) < ref.Order(refOrder[j])
		})
	}
	for _, r := range refOrder {
		for _, s := range sources {
			if n := s.RefIDCount(r); n > 0 {
				sum.ByRefID = append(sum.ByRefID, KeyCount{Key: r, Source: s.name, Count: int64(n)})
			}
		}
	}
	for _, t := range sortedKeys(types) {
		for _, s := range sources {
			if n := s.types[t]; n > 0 {
				sum.ByType = append(sum.ByType, KeyCount{Key: t, Source: s.name, Count: int64(n)})
			}
		}
	}
	return sum
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WriteTSV writes the three tables of the summary, each with its own header
// row, separated by empty lines.
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
	for _, table := range [][]KeyCount{s.ByRefID, s.ByType} {
		if _, err := io.WriteString(out, "\n"); err != nil {
			return err
		}
		w := tsv.NewRowWriter(out)
		for i := range table {
			if err := w.Write(&table[i]); err != nil {
				return err
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return nil
}
