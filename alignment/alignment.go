// Package alignment provides read-depth access to aligned sequencing data.
//
// A Source wraps one BAM, SAM or coverage-BED file.  Per-reference totals
// (reads and aligned bases) are computed once when the source is opened.
// Windowed coverage is computed on demand through the coverage package.
//
// BAM sources require a BAI index for windowed queries so that a query
// never degenerates into a scan of the whole file.  SAM and BED sources are
// loaded into a sorted in-memory index when opened.
package alignment

import (
	"context"
	"fmt"
	"sort"

	"github.com/biogo/hts/sam"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/genomeview/coverage"
	"github.com/grailbio/genomeview/genome"
	"github.com/grailbio/genomeview/util"
)

// Format is an alignment file format.
type Format int

const (
	// BAM is an indexed binary alignment file.
	BAM Format = iota
	// SAM is a text alignment file.
	SAM
	// BED is a six-column coverage file whose score column holds the depth
	// of each interval.
	BED
)

var formatNames = []string{"bam", "sam", "bed"}

// String implements fmt.Stringer.
func (f Format) String() string { return formatNames[f] }

// FormatOf determines the format from the extension of path.
func FormatOf(path string) (Format, error) {
	switch util.Extension(path) {
	case "bam":
		return BAM, nil
	case "sam":
		return SAM, nil
	case "bed":
		return BED, nil
	}
	return 0, errors.E(errors.NotSupported, "alignment: not a .bam, .sam or .bed file:", path)
}

// OpenOpts controls Open.
type OpenOpts struct {
	// Index is the BAM index path.  If "", Path + ".bai" is used.
	Index string
	// AllowUnindexed registers a BAM without an index.  Totals are still
	// computed, but Coverage fails with an error wrapping ErrMissingIndex.
	AllowUnindexed bool
	// FlagExclude drops reads with any of these flags set.
	FlagExclude sam.Flags
	// MinMapQ drops reads with a lower mapping quality.  It does not apply
	// to BED input.
	MinMapQ int
	// Ref, if set, is the reference reads are validated against.  Reads on
	// other sequences are ignored, and Coverage checks windows against it.
	Ref *genome.Index
	// Verbose enables progress logging.
	Verbose bool
}

// DefaultOpenOpts are the default options for Open.
var DefaultOpenOpts = OpenOpts{
	FlagExclude: sam.Unmapped,
}

// Totals are the eager per-reference aggregates of a source.
type Totals struct {
	// Reads is the number of reads (or BED lines) counted.
	Reads int64
	// Bases is the number of aligned bases: the summed length of M, = and X
	// CIGAR operations, or depth times length for BED input.
	Bases int64
}

// Source is an opened alignment file.
type Source interface {
	// Name returns the source name.
	Name() string
	// Path returns the file the source was opened from.
	Path() string
	// Format returns the input format.
	Format() Format
	// Indexed reports whether Coverage is supported.
	Indexed() bool
	// RefIDs returns the sequences with at least one counted read, in
	// reference order.
	RefIDs() []string
	// EmptyRefIDs returns the reference sequences without any counted read.
	EmptyRefIDs() []string
	// Totals returns the aggregates for refid.
	Totals(refid string) Totals
	// TotalBases returns the number of aligned bases over all sequences.
	TotalBases() int64
	// Coverage bins the reads overlapping [start, end) of refid.
	Coverage(ctx context.Context, refid string, start, end, nBins int) (*coverage.Profile, error)
	// Close releases the file handles held by the source.
	Close() error
}

// Open opens the alignment file at path.  If name is empty, the file's
// basename is used.
func Open(ctx context.Context, path, name string, opts OpenOpts) (Source, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = util.Basename(path)
	}
	info := sourceInfo{name: name, path: path, format: format, opts: opts, totals: map[string]*Totals{}}
	var src Source
	switch format {
	case BAM:
		src, err = openBAM(ctx, info)
	default:
		src, err = openMem(ctx, info)
	}
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		log.Printf("%s: %d aligned bases in %d reference sequences", name, src.TotalBases(), len(src.RefIDs()))
	}
	return src, nil
}

// sourceInfo holds the state shared by all Source implementations.
type sourceInfo struct {
	name   string
	path   string
	format Format
	opts   OpenOpts
	totals map[string]*Totals
	refids []string
	empty  []string
}

func (s *sourceInfo) Name() string   { return s.name }
func (s *sourceInfo) Path() string   { return s.path }
func (s *sourceInfo) Format() Format { return s.format }

func (s *sourceInfo) RefIDs() []string      { return append([]string(nil), s.refids...) }
func (s *sourceInfo) EmptyRefIDs() []string { return append([]string(nil), s.empty...) }

func (s *sourceInfo) Totals(refid string) Totals {
	if t := s.totals[refid]; t != nil {
		return *t
	}
	return Totals{}
}

func (s *sourceInfo) TotalBases() int64 {
	var n int64
	for _, t := range s.totals {
		n += t.Bases
	}
	return n
}

// wantRef reports whether reads on refid should be counted.
func (s *sourceInfo) wantRef(refid string) bool {
	return s.opts.Ref == nil || s.opts.Ref.Contains(refid)
}

// wantRecord applies the flag and mapping-quality filters.
func (s *sourceInfo) wantRecord(r *sam.Record) bool {
	if r.Ref == nil || r.Pos < 0 || r.Flags&sam.Unmapped != 0 {
		return false
	}
	return r.Flags&s.opts.FlagExclude == 0 && int(r.MapQ) >= s.opts.MinMapQ
}

func (s *sourceInfo) count(refid string, reads, bases int64) {
	t := s.totals[refid]
	if t == nil {
		t = &Totals{}
		s.totals[refid] = t
	}
	t.Reads += reads
	t.Bases += bases
}

// finish orders the counted refids and logs the reference sequences that
// received no reads.
func (s *sourceInfo) finish(order func(string) int) {
	s.refids = s.refids[:0]
	for refid := range s.totals {
		s.refids = append(s.refids, refid)
	}
	sort.Slice(s.refids, func(i, j int) bool {
		oi, oj := order(s.refids[i]), order(s.refids[j])
		if oi != oj {
			return oi < oj
		}
		return s.refids[i] < s.refids[j]
	})
	if s.opts.Ref == nil {
		return
	}
	for _, refid := range s.opts.Ref.Names() {
		if s.totals[refid] == nil {
			s.empty = append(s.empty, refid)
			log.Printf("%s: no coverage found for refid %s", s.name, refid)
		}
	}
}

// newBinner validates the window and creates a binner for it.
func (s *sourceInfo) newBinner(refid string, start, end, nBins int) (*coverage.Binner, error) {
	if s.opts.Ref != nil {
		if err := s.opts.Ref.CheckInterval(refid, start, end); err != nil {
			return nil, err
		}
	}
	b, err := coverage.NewBinner(refid, start, end, nBins)
	if err != nil {
		return nil, err
	}
	b.Profile().Source = s.name
	return b, nil
}

// AlignedBases returns the number of reference bases aligned by M, = and X
// operations of cigar.
func AlignedBases(cigar sam.Cigar) int {
	var n int
	for _, op := range cigar {
		switch op.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			n += op.Len()
		}
	}
	return n
}

// refOrder returns an ordering function over refids: reference order when a
// reference is set, else the order given by names.
func refOrder(ref *genome.Index, names []string) func(string) int {
	if ref != nil {
		return ref.Order
	}
	pos := make(map[string]int, len(names))
	for i, n := range names {
		pos[n] = i
	}
	return func(refid string) int {
		if i, ok := pos[refid]; ok {
			return i
		}
		return len(pos)
	}
}

func checkRefLength(name string, ref *genome.Index, refid string, length int) {
	if ref == nil {
		return
	}
	if want, ok := ref.Len(refid); ok && want != length {
		log.Printf("%s: length of %s is %d in the alignment header but %d in the reference", name, refid, length, want)
	}
}

// ErrMissingIndex is wrapped by errors reporting a BAM file without a
// readable index.
var ErrMissingIndex = errors.New("alignment: missing BAM index")

// IsMissingIndex reports whether err wraps ErrMissingIndex.
func IsMissingIndex(err error) bool {
	var found bool
	errors.Visit(err, func(e error) {
		if e == ErrMissingIndex {
			found = true
		}
	})
	return found
}

// errMissingIndex is returned by Coverage for unindexed BAM sources.
func errMissingIndex(s *sourceInfo, index string) error {
	return errors.E(errors.NotExist, ErrMissingIndex, fmt.Sprintf("%s has no index %s; windowed coverage requires an indexed BAM", s.path, index))
}
