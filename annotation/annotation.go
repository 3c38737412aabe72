// Package annotation loads genomic feature annotations (GTF, GFF3 and BED)
// and answers interval queries over them.
package annotation

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/biogo/store/interval"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/genomeview/encoding/bed"
	"github.com/grailbio/genomeview/encoding/gff"
	"github.com/grailbio/genomeview/genome"
	"github.com/grailbio/genomeview/util"
)

// Format is an annotation file format.
type Format int

const (
	// GTF is GTF/GFF2.5.
	GTF Format = iota
	// GFF3 is GFF version 3.
	GFF3
	// BED is BED3 through BED12.
	BED
)

var formatNames = []string{"gtf", "gff3", "bed"}

// String implements fmt.Stringer.
func (f Format) String() string { return formatNames[f] }

// FormatOf determines the format from the extension of path.  A trailing
// ".gz" is ignored.
func FormatOf(path string) (Format, error) {
	switch util.Extension(path) {
	case "gtf":
		return GTF, nil
	case "gff", "gff3":
		return GFF3, nil
	case "bed":
		return BED, nil
	}
	return 0, errors.E(errors.NotSupported, "annotation: not a .gtf, .gff3 or .bed file:", path)
}

// UnknownType is the type given to BED features.
const UnknownType = "unknown"

// Feature is one annotated interval.
type Feature struct {
	RefID string
	// Start and End are 0-based, half-open.
	Start, End int
	// Strand is '+', '-' or '.' (unknown).
	Strand byte
	Type   string
	ID     string
	Attrs  map[string]string
}

// Len returns the feature length.
func (f Feature) Len() int { return f.End - f.Start }

// String implements fmt.Stringer.
func (f Feature) String() string {
	return fmt.Sprintf("%s:%d-%d(%c) %s %s", f.RefID, f.Start, f.End, f.Strand, f.Type, f.ID)
}

// LoadOpts controls Load and Read.
type LoadOpts struct {
	// Ref, if set, is the reference the features are validated against.
	// Features on other sequences are dropped.  Features extending past the
	// end of their sequence are an error of kind errors.Invalid.
	Ref *genome.Index
	// Verbose enables progress logging.
	Verbose bool
}

// Source is an immutable set of features loaded from one file.
type Source struct {
	name   string
	path   string
	format Format
	// refs is keyed by refid; refids holds the keys in first-seen order.
	refs    map[string]*refFeatures
	refids  []string
	types   map[string]int
	n       int
	dropped int
	empty   []string
}

// refFeatures holds the features of one sequence, sorted by (start, end,
// input order), and an interval tree over them.  Tree element IDs are
// indices into feats.
type refFeatures struct {
	feats []Feature
	tree  interval.IntTree
}

// treeFeature adapts a feature to biogo's interval tree.
type treeFeature struct {
	uid        uintptr
	start, end int
}

func (f treeFeature) Overlap(b interval.IntRange) bool {
	return f.start < b.End && b.Start < f.end
}
func (f treeFeature) ID() uintptr { return f.uid }
func (f treeFeature) Range() interval.IntRange {
	return interval.IntRange{Start: f.start, End: f.end}
}

// windowQuery is a half-open query window.  Zero-length features are
// matched when they lie strictly inside it.
type windowQuery struct{ start, end int }

func (q windowQuery) Overlap(b interval.IntRange) bool {
	return b.Start < q.end && q.start < b.End
}

// Load reads the annotation file at path.  If name is empty, the file's
// basename is used.
func Load(ctx context.Context, path, name string, opts LoadOpts) (*Source, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = util.Basename(path)
	}
	in, err := util.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		log.Printf("Using %v parser for annotations in %s", format, path)
	}
	s, err := Read(in, name, format, opts)
	if cerr := in.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, errors.E(err, path)
	}
	s.path = path
	return s, nil
}

// Read parses annotations in the given format from in.
func Read(in io.Reader, name string, format Format, opts LoadOpts) (*Source, error) {
	s := &Source{
		name:   name,
		format: format,
		refs:   map[string]*refFeatures{},
		types:  map[string]int{},
	}
	add := func(f Feature) error {
		if opts.Ref != nil {
			length, ok := opts.Ref.Len(f.RefID)
			if !ok {
				s.dropped++
				return nil
			}
			if f.End > length {
				return errors.E(errors.Invalid, fmt.Sprintf("feature %v extends past the end of %s (length %d)", f, f.RefID, length))
			}
		}
		rf := s.refs[f.RefID]
		if rf == nil {
			rf = &refFeatures{}
			s.refs[f.RefID] = rf
			s.refids = append(s.refids, f.RefID)
		}
		rf.feats = append(rf.feats, f)
		s.types[f.Type]++
		s.n++
		return nil
	}
	switch format {
	case GTF, GFF3:
		gffFormat := gff.GTF
		if format == GFF3 {
			gffFormat = gff.GFF3
		}
		r := gff.NewReader(in, gffFormat)
		for {
			rec, err := r.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, err
			}
			if err := add(Feature{
				RefID:  rec.RefID,
				Start:  rec.Start,
				End:    rec.End,
				Strand: rec.Strand,
				Type:   rec.Type,
				ID:     rec.ID,
				Attrs:  rec.Attrs,
			}); err != nil {
				return nil, err
			}
		}
	case BED:
		r := bed.NewReader(in)
		for {
			rec, err := r.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, err
			}
			f := Feature{
				RefID:  rec.RefID,
				Start:  rec.Start,
				End:    rec.End,
				Strand: rec.Strand,
				Type:   UnknownType,
				ID:     rec.Name,
			}
			if rec.Score != "" {
				f.Attrs = map[string]string{"score": rec.Score}
			}
			if err := add(f); err != nil {
				return nil, err
			}
		}
	default:
		return nil, errors.E(errors.NotSupported, fmt.Sprintf("annotation: unknown format %d", format))
	}
	if err := s.index(); err != nil {
		return nil, err
	}
	if s.dropped > 0 {
		log.Printf("%s: dropped %d features on sequences absent from the reference", name, s.dropped)
	}
	if opts.Ref != nil {
		for _, refid := range opts.Ref.Names() {
			if _, ok := s.refs[refid]; !ok {
				s.empty = append(s.empty, refid)
				log.Printf("%s: no feature found for refid %s", name, refid)
			}
		}
	}
	if opts.Verbose {
		log.Printf("%s: found %d features in %d reference sequences", name, s.n, len(s.refids))
	}
	return s, nil
}

// index sorts each sequence's features and builds its interval tree.
func (s *Source) index() error {
	for _, rf := range s.refs {
		sort.SliceStable(rf.feats, func(i, j int) bool {
			a, b := rf.feats[i], rf.feats[j]
			if a.Start != b.Start {
				return a.Start < b.Start
			}
			return a.End < b.End
		})
		for i, f := range rf.feats {
			if err := rf.tree.Insert(treeFeature{uid: uintptr(i), start: f.Start, end: f.End}, true); err != nil {
				return errors.E(errors.Integrity, err, fmt.Sprintf("indexing %v", f))
			}
		}
		rf.tree.AdjustRanges()
	}
	return nil
}

// Name returns the source name.
func (s *Source) Name() string { return s.name }

// Path returns the file the source was loaded from, if any.
func (s *Source) Path() string { return s.path }

// Format returns the input format.
func (s *Source) Format() Format { return s.format }

// NumFeatures returns the number of features kept.
func (s *Source) NumFeatures() int { return s.n }

// NumDropped returns the number of features dropped because their sequence
// is absent from the reference.
func (s *Source) NumDropped() int { return s.dropped }

// RefIDs returns the sequences that have at least one feature, in
// first-seen order.
func (s *Source) RefIDs() []string { return append([]string(nil), s.refids...) }

// EmptyRefIDs returns the reference sequences with no feature in this
// source, in reference order.  It is empty unless the source was validated
// against a reference.
func (s *Source) EmptyRefIDs() []string { return append([]string(nil), s.empty...) }

// Types returns the distinct feature types, sorted.
func (s *Source) Types() []string {
	types := make([]string, 0, len(s.types))
	for t := range s.types {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// TypeCount returns the number of features of type typ.
func (s *Source) TypeCount(typ string) int { return s.types[typ] }

// RefIDCount returns the number of features on refid.
func (s *Source) RefIDCount(refid string) int {
	if rf := s.refs[refid]; rf != nil {
		return len(rf.feats)
	}
	return 0
}
