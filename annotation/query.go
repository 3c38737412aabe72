package annotation

import (
	"math/rand"
	"sort"
)

// DefaultMaxPerType is the per-type feature cap used for display.
const DefaultMaxPerType = 500

// QueryOpts controls Source.Query.
type QueryOpts struct {
	// Types, if nonempty, restricts the result to these feature types.
	Types []string
	// MaxPerType, if positive, caps the number of features returned for
	// each type.  When a type has more hits, a random subset is kept.
	MaxPerType int
	// Seed seeds the subsampling so results are reproducible.
	Seed int64
}

// Query returns the features on refid that overlap [start, end), ordered by
// (start, end, input order).  A feature [s, e) overlaps when s < end and
// e > start.  An unknown refid yields an empty result.
func (s *Source) Query(refid string, start, end int, opts QueryOpts) []Feature {
	rf := s.refs[refid]
	if rf == nil || start >= end {
		return nil
	}
	hits := rf.tree.Get(windowQuery{start: start, end: end})
	idx := make([]int, 0, len(hits))
	var keep map[string]bool
	if len(opts.Types) > 0 {
		keep = make(map[string]bool, len(opts.Types))
		for _, t := range opts.Types {
			keep[t] = true
		}
	}
	for _, h := range hits {
		i := int(h.ID())
		if keep != nil && !keep[rf.feats[i].Type] {
			continue
		}
		idx = append(idx, i)
	}
	sort.Ints(idx)
	if opts.MaxPerType > 0 {
		idx = sampleByType(rf.feats, idx, opts.MaxPerType, opts.Seed)
	}
	if len(idx) == 0 {
		return nil
	}
	out := make([]Feature, len(idx))
	for j, i := range idx {
		out[j] = rf.feats[i]
	}
	return out
}

// sampleByType keeps at most max indices per feature type.  idx must be
// sorted; the result is sorted too.
func sampleByType(feats []Feature, idx []int, max int, seed int64) []int {
	byType := map[string][]int{}
	var types []string
	for _, i := range idx {
		t := feats[i].Type
		if _, ok := byType[t]; !ok {
			types = append(types, t)
		}
		byType[t] = append(byType[t], i)
	}
	sort.Strings(types)
	r := rand.New(rand.NewSource(seed))
	out := idx[:0:0]
	for _, t := range types {
		group := byType[t]
		if len(group) > max {
			r.Shuffle(len(group), func(a, b int) { group[a], group[b] = group[b], group[a] })
			group = group[:max]
		}
		out = append(out, group...)
	}
	sort.Ints(out)
	return out
}

// Features returns every feature on refid in (start, end) order.
func (s *Source) Features(refid string) []Feature {
	rf := s.refs[refid]
	if rf == nil {
		return nil
	}
	return append([]Feature(nil), rf.feats...)
}
