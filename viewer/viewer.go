// Package viewer is the entry point of genomeview.  A Viewer owns a
// reference index and named annotation and alignment sources, and produces
// summaries, coverage profiles and figures from them.
//
// Typical use:
//
//	v, err := viewer.New(ctx, "genome.fa", viewer.DefaultOpts)
//	...
//	defer v.Close()
//	err = v.AddAnnotation(ctx, "genes.gtf", "", viewer.DefaultAddOpts)
//	err = v.AddAlignment(ctx, "sample.bam", "", viewer.DefaultAddOpts)
//	plot, err := v.IntervalPlot(ctx, "chr1", viewer.DefaultIntervalPlotOpts)
//	err = plot.Render(out, render.DefaultIntervalStyle)
//
// A Viewer is not safe for concurrent use.
package viewer

import (
	"context"
	"fmt"

	"github.com/biogo/hts/sam"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/genomeview/alignment"
	"github.com/grailbio/genomeview/annotation"
	"github.com/grailbio/genomeview/coverage"
	"github.com/grailbio/genomeview/genome"
	"github.com/grailbio/genomeview/util"
)

// Opts controls New.
type Opts struct {
	// Verbose enables progress logging.
	Verbose bool
	// RefList, if nonempty, restricts the reference to these sequences.
	RefList []string
	// OutputIndex, if nonempty, is a path where the two-column reference
	// index is written.
	OutputIndex string
}

// DefaultOpts are the default options for New.
var DefaultOpts = Opts{}

// AddOpts controls AddAnnotation and AddAlignment.  Index, AllowUnindexed,
// FlagExclude and MinMapQ apply to alignments only.
type AddOpts struct {
	// Replace overwrites a source of the same name instead of failing.
	Replace bool
	// Index is the BAM index path; "" means the BAM path + ".bai".
	Index string
	// AllowUnindexed registers a BAM without an index.  Its totals are
	// available but coverage queries fail.
	AllowUnindexed bool
	// FlagExclude drops reads with any of these flags set.
	FlagExclude sam.Flags
	// MinMapQ drops reads with a lower mapping quality.
	MinMapQ int
}

// DefaultAddOpts are the default options for AddAnnotation and
// AddAlignment.
var DefaultAddOpts = AddOpts{
	FlagExclude: sam.Unmapped,
}

// Viewer holds a reference and the sources registered against it.
type Viewer struct {
	opts Opts
	ref  *genome.Index

	annotations map[string]*annotation.Source
	annOrder    []string
	alignments  map[string]alignment.Source
	alnOrder    []string
}

// New builds the reference index from the FASTA or index file at refPath
// and returns an empty Viewer over it.
func New(ctx context.Context, refPath string, opts Opts) (*Viewer, error) {
	ref, err := genome.Build(ctx, refPath, genome.BuildOpts{
		RefList:     opts.RefList,
		OutputIndex: opts.OutputIndex,
		Verbose:     opts.Verbose,
	})
	if err != nil {
		return nil, err
	}
	return NewFromIndex(ref, opts), nil
}

// NewFromIndex returns an empty Viewer over an already built reference.
// opts.RefList and opts.OutputIndex are ignored.
func NewFromIndex(ref *genome.Index, opts Opts) *Viewer {
	return &Viewer{
		opts:        opts,
		ref:         ref,
		annotations: map[string]*annotation.Source{},
		alignments:  map[string]alignment.Source{},
	}
}

// Reference returns the reference index.
func (v *Viewer) Reference() *genome.Index { return v.ref }

// AddAnnotation loads the GTF, GFF3 or BED file at path as a source called
// name (the file's basename when name is "").
func (v *Viewer) AddAnnotation(ctx context.Context, path, name string, opts AddOpts) error {
	if name == "" {
		name = util.Basename(path)
	}
	_, exists := v.annotations[name]
	if exists && !opts.Replace {
		return errDuplicate("annotation", name)
	}
	s, err := annotation.Load(ctx, path, name, annotation.LoadOpts{Ref: v.ref, Verbose: v.opts.Verbose})
	if err != nil {
		return err
	}
	if exists {
		log.Printf("Replacing annotation source %s with %s", name, path)
	} else {
		v.annOrder = append(v.annOrder, name)
	}
	v.annotations[name] = s
	return nil
}

// AddAlignment opens the BAM, SAM or BED file at path as a source called
// name (the file's basename when name is "").  A BAM file must be indexed
// unless opts.AllowUnindexed is set.
func (v *Viewer) AddAlignment(ctx context.Context, path, name string, opts AddOpts) error {
	if name == "" {
		name = util.Basename(path)
	}
	old, exists := v.alignments[name]
	if exists && !opts.Replace {
		return errDuplicate("alignment", name)
	}
	s, err := alignment.Open(ctx, path, name, alignment.OpenOpts{
		Index:          opts.Index,
		AllowUnindexed: opts.AllowUnindexed,
		FlagExclude:    opts.FlagExclude,
		MinMapQ:        opts.MinMapQ,
		Ref:            v.ref,
		Verbose:        v.opts.Verbose,
	})
	if err != nil {
		return err
	}
	if exists {
		log.Printf("Replacing alignment source %s with %s", name, path)
		if err := old.Close(); err != nil {
			log.Printf("closing %s: %v", old.Path(), err)
		}
	} else {
		v.alnOrder = append(v.alnOrder, name)
	}
	v.alignments[name] = s
	return nil
}

func errDuplicate(kind, name string) error {
	return errors.E(errors.Exists, fmt.Sprintf("viewer: %s source %s already exists", kind, name))
}

// Annotations returns the annotation source names in the order they were
// added.
func (v *Viewer) Annotations() []string { return append([]string(nil), v.annOrder...) }

// Alignments returns the alignment source names in the order they were
// added.
func (v *Viewer) Alignments() []string { return append([]string(nil), v.alnOrder...) }

// Annotation returns the named annotation source.
func (v *Viewer) Annotation(name string) (*annotation.Source, bool) {
	s, ok := v.annotations[name]
	return s, ok
}

// Alignment returns the named alignment source.
func (v *Viewer) Alignment(name string) (alignment.Source, bool) {
	s, ok := v.alignments[name]
	return s, ok
}

func (v *Viewer) annotationSources() []*annotation.Source {
	out := make([]*annotation.Source, len(v.annOrder))
	for i, name := range v.annOrder {
		out[i] = v.annotations[name]
	}
	return out
}

func (v *Viewer) alignmentSources() []alignment.Source {
	out := make([]alignment.Source, len(v.alnOrder))
	for i, name := range v.alnOrder {
		out[i] = v.alignments[name]
	}
	return out
}

// AnnotationSummary tabulates feature counts of every annotation source.
func (v *Viewer) AnnotationSummary() annotation.Summary {
	return annotation.Summarize(v.annotationSources(), v.ref)
}

// AlignmentSummary tabulates aligned bases of every alignment source.
func (v *Viewer) AlignmentSummary() alignment.Summary {
	return alignment.Summarize(v.alignmentSources(), v.ref)
}

// Coverage bins the reads of the named alignment source over [start, end)
// of refid.
func (v *Viewer) Coverage(ctx context.Context, source, refid string, start, end, nBins int) (*coverage.Profile, error) {
	s, ok := v.alignments[source]
	if !ok {
		return nil, errors.E(errors.Invalid, "viewer: no alignment source named", source)
	}
	return s.Coverage(ctx, refid, start, end, nBins)
}

// Features returns the features of the named annotation source that
// overlap [start, end) of refid.
func (v *Viewer) Features(source, refid string, start, end int, opts annotation.QueryOpts) ([]annotation.Feature, error) {
	s, ok := v.annotations[source]
	if !ok {
		return nil, errors.E(errors.Invalid, "viewer: no annotation source named", source)
	}
	if err := v.ref.CheckInterval(refid, start, end); err != nil {
		return nil, err
	}
	return s.Query(refid, start, end, opts), nil
}

// Close closes every alignment source and returns the first error.
func (v *Viewer) Close() error {
	var e errors.Once
	for _, name := range v.alnOrder {
		e.Set(v.alignments[name].Close())
	}
	return e.Err()
}

// IsInvalidReference reports whether err was caused by an unknown refid,
// out-of-range coordinates or an otherwise invalid window.
func IsInvalidReference(err error) bool { return errors.Is(errors.Invalid, err) }

// IsDuplicateSourceName reports whether err was caused by adding a source
// under a name already in use.
func IsDuplicateSourceName(err error) bool { return errors.Is(errors.Exists, err) }

// IsMissingIndex reports whether err was caused by a BAM file without an
// index.
func IsMissingIndex(err error) bool { return alignment.IsMissingIndex(err) }

// IsParseError reports whether err was caused by malformed input.
func IsParseError(err error) bool { return errors.Is(errors.Integrity, err) }
