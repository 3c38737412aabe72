// Package genome holds the reference sequence names and lengths that every
// annotation and alignment source is validated against.
package genome

import (
	"context"
	"fmt"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/genomeview/encoding/fasta"
	"github.com/grailbio/genomeview/util"
)

// BuildOpts controls Build.
type BuildOpts struct {
	// RefList restricts the index to the named sequences.  Every name must be
	// present in the input.  Empty means all sequences.
	RefList []string
	// OutputIndex, if nonempty, is the path of a two-column
	// "<refid>\t<length>" file written after the index is built.
	OutputIndex string
	// Verbose enables progress logging.
	Verbose bool
}

// Index is an immutable, ordered set of reference sequences.
type Index struct {
	seqs   []fasta.Seq
	byName map[string]int
}

// IsFASTA reports whether path names a FASTA file, as opposed to a
// tab-separated index.
func IsFASTA(path string) bool {
	switch util.Extension(path) {
	case "fa", "fasta", "fna", "fas":
		return true
	}
	return false
}

// Build reads the reference at path.  FASTA files (optionally gzipped) are
// scanned for sequence lengths.  Any other file is read as a tab-separated
// index whose first two columns are refid and length.
func Build(ctx context.Context, path string, opts BuildOpts) (*Index, error) {
	in, err := util.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	var seqs []fasta.Seq
	if IsFASTA(path) {
		if opts.Verbose {
			log.Printf("Parsing FASTA file %s", path)
		}
		seqs, err = fasta.ScanLengths(in)
	} else {
		if opts.Verbose {
			log.Printf("Assuming %s is a reference index", path)
		}
		seqs, err = fasta.ReadIndex(in)
	}
	if cerr := in.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, errors.E(err, path)
	}
	x, err := New(seqs, opts.RefList)
	if err != nil {
		return nil, errors.E(err, path)
	}
	if opts.Verbose {
		log.Printf("Found %d reference sequences in %s", len(x.seqs), path)
	}
	if opts.OutputIndex != "" {
		if err := x.WriteIndex(ctx, opts.OutputIndex); err != nil {
			return nil, err
		}
		if opts.Verbose {
			log.Printf("Wrote reference index %s", opts.OutputIndex)
		}
	}
	return x, nil
}

// New creates an Index from seqs, keeping only those named in refList when
// refList is nonempty.  Sequence order is preserved.
func New(seqs []fasta.Seq, refList []string) (*Index, error) {
	x := &Index{byName: make(map[string]int, len(seqs))}
	var keep map[string]bool
	if len(refList) > 0 {
		keep = make(map[string]bool, len(refList))
		for _, name := range refList {
			keep[name] = true
		}
	}
	for _, s := range seqs {
		if _, ok := x.byName[s.Name]; ok {
			return nil, errors.E(errors.Integrity, "duplicate reference sequence", s.Name)
		}
		if s.Length < 0 {
			return nil, errors.E(errors.Integrity, fmt.Sprintf("negative length for reference sequence %s", s.Name))
		}
		if keep != nil && !keep[s.Name] {
			continue
		}
		x.byName[s.Name] = len(x.seqs)
		x.seqs = append(x.seqs, s)
	}
	var missing []string
	for _, name := range refList {
		if _, ok := x.byName[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, errors.E(errors.Invalid, "reference sequences not found:", strings.Join(missing, ","))
	}
	return x, nil
}

// WriteIndex writes the index in the two-column format accepted by Build.
func (x *Index) WriteIndex(ctx context.Context, path string) (err error) {
	out, err := util.Create(ctx, path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fasta.WriteIndex(out, x.seqs)
}

// Names returns the refids in index order.
func (x *Index) Names() []string {
	names := make([]string, len(x.seqs))
	for i, s := range x.seqs {
		names[i] = s.Name
	}
	return names
}

// Seqs returns a copy of the sequences in index order.
func (x *Index) Seqs() []fasta.Seq {
	return append([]fasta.Seq(nil), x.seqs...)
}

// NumRefs returns the number of sequences.
func (x *Index) NumRefs() int { return len(x.seqs) }

// Contains reports whether refid is in the index.
func (x *Index) Contains(refid string) bool {
	_, ok := x.byName[refid]
	return ok
}

// Len returns the length of refid.  The second result is false if refid is
// not in the index.
func (x *Index) Len(refid string) (int, bool) {
	i, ok := x.byName[refid]
	if !ok {
		return 0, false
	}
	return x.seqs[i].Length, true
}

// Order returns the position of refid in the index, or -1.
func (x *Index) Order(refid string) int {
	if i, ok := x.byName[refid]; ok {
		return i
	}
	return -1
}

// CheckInterval verifies that refid exists and that 0 <= start < end <=
// length(refid).  Violations are errors of kind errors.Invalid.
func (x *Index) CheckInterval(refid string, start, end int) error {
	length, ok := x.Len(refid)
	if !ok {
		return errors.E(errors.Invalid, "unknown reference sequence", refid)
	}
	if start < 0 || start >= end || end > length {
		return errors.E(errors.Invalid, fmt.Sprintf("invalid interval %s:%d-%d (reference length %d)", refid, start, end, length))
	}
	return nil
}
