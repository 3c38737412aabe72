package alignment

import (
	"context"
	"io"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/bgzf/index"
	"github.com/biogo/hts/sam"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/genomeview/coverage"
	"v.io/x/lib/vlog"
)

// bamSource reads an indexed BAM file.
type bamSource struct {
	sourceInfo
	ctx    context.Context
	in     file.File
	reader *bam.Reader
	index  *bam.Index
	// refs maps refid to the BAM header reference.
	refs map[string]*sam.Reference
}

func indexPath(path string, opts OpenOpts) string {
	if opts.Index != "" {
		return opts.Index
	}
	return path + ".bai"
}

func openBAM(ctx context.Context, info sourceInfo) (src *bamSource, err error) {
	b := &bamSource{sourceInfo: info, ctx: ctx, refs: map[string]*sam.Reference{}}
	defer func() {
		if err != nil {
			b.Close() // nolint: errcheck
		}
	}()
	idxPath := indexPath(b.path, b.opts)
	if b.index, err = readIndex(ctx, idxPath); err != nil {
		if !IsMissingIndex(err) || !b.opts.AllowUnindexed {
			return nil, err
		}
		vlog.VI(1).Infof("%s: using %s without index", b.name, b.path)
	}
	if err = b.countTotals(); err != nil {
		return nil, errors.E(err, b.path)
	}
	if b.in, err = file.Open(ctx, b.path); err != nil {
		return nil, err
	}
	if b.reader, err = bam.NewReader(b.in.Reader(ctx), 1); err != nil {
		return nil, errors.E(errors.Integrity, err, b.path)
	}
	return b, nil
}

// readIndex loads a BAI index.  An index that cannot be opened yields an
// error wrapping ErrMissingIndex.
func readIndex(ctx context.Context, path string) (idx *bam.Index, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(errors.NotExist, ErrMissingIndex, path, err.Error())
	}
	defer file.CloseAndReport(ctx, in, &err)
	if idx, err = bam.ReadIndex(in.Reader(ctx)); err != nil {
		return nil, errors.E(errors.Integrity, err, "alignment: reading BAM index", path)
	}
	return idx, nil
}

// countTotals scans the whole file once to compute per-reference totals.
func (b *bamSource) countTotals() (err error) {
	in, err := file.Open(b.ctx, b.path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(b.ctx, in, &err)
	br, err := bam.NewReader(in.Reader(b.ctx), 1)
	if err != nil {
		return errors.E(errors.Integrity, err)
	}
	defer func() {
		if cerr := br.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	var names []string
	for _, ref := range br.Header().Refs() {
		b.refs[ref.Name()] = ref
		names = append(names, ref.Name())
		checkRefLength(b.name, b.opts.Ref, ref.Name(), ref.Len())
	}
	for {
		rec, err := br.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.E(errors.Integrity, err)
		}
		if !b.wantRecord(rec) || !b.wantRef(rec.Ref.Name()) {
			continue
		}
		b.count(rec.Ref.Name(), 1, int64(AlignedBases(rec.Cigar)))
	}
	b.finish(refOrder(b.opts.Ref, names))
	return nil
}

func (b *bamSource) Indexed() bool { return b.index != nil }

// Coverage implements Source.  It seeks to the first index chunk covering
// the window and reads until records start past its end.
func (b *bamSource) Coverage(ctx context.Context, refid string, start, end, nBins int) (*coverage.Profile, error) {
	if b.index == nil {
		return nil, errMissingIndex(&b.sourceInfo, indexPath(b.path, b.opts))
	}
	binner, err := b.newBinner(refid, start, end, nBins)
	if err != nil {
		return nil, err
	}
	ref := b.refs[refid]
	if ref == nil || !b.wantRef(refid) {
		return binner.Profile(), nil
	}
	if end > ref.Len() {
		end = ref.Len()
	}
	if start >= end {
		return binner.Profile(), nil
	}
	chunks, err := b.index.Chunks(ref, start, end)
	if err == index.ErrInvalid || len(chunks) == 0 {
		// No reads for this interval.
		return binner.Profile(), nil
	}
	if err != nil {
		return nil, errors.E(errors.Integrity, err, b.path)
	}
	if err := b.reader.Seek(chunks[0].Begin); err != nil {
		return nil, errors.E(err, b.path)
	}
	var nRead, nUsed int
	for {
		rec, err := b.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.E(errors.Integrity, err, b.path)
		}
		nRead++
		if rec.Ref == nil || rec.Ref.ID() != ref.ID() || rec.Pos >= end {
			// Records are coordinate sorted, and unmapped reads sort last.
			if rec.Ref == nil || rec.Ref.ID() > ref.ID() || rec.Ref.ID() < 0 || rec.Pos >= end {
				break
			}
			continue
		}
		if !b.wantRecord(rec) {
			continue
		}
		if binner.Add(coverage.Span{Start: rec.Pos, End: rec.End(), Reverse: rec.Flags&sam.Reverse != 0}) > 0 {
			nUsed++
		}
	}
	vlog.VI(1).Infof("%s: %s:%d-%d read %d records, %d in window", b.name, refid, start, end, nRead, nUsed)
	return binner.Profile(), nil
}

// Close implements Source.
func (b *bamSource) Close() error {
	var e errors.Once
	if b.reader != nil {
		e.Set(b.reader.Close())
		b.reader = nil
	}
	if b.in != nil {
		e.Set(b.in.Close(b.ctx))
		b.in = nil
	}
	return e.Err()
}

// IndexBAM builds a BAI index for the coordinate-sorted BAM file at bamPath
// and writes it to indexPath ("" means bamPath + ".bai").
func IndexBAM(ctx context.Context, bamPath, indexPath string) (err error) {
	if indexPath == "" {
		indexPath = bamPath + ".bai"
	}
	in, err := file.Open(ctx, bamPath)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, in, &err)
	br, err := bam.NewReader(in.Reader(ctx), 1)
	if err != nil {
		return errors.E(errors.Integrity, err, bamPath)
	}
	defer func() {
		if cerr := br.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	idx := newBAIBuilder(len(br.Header().Refs()))
	for {
		rec, err := br.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.E(errors.Integrity, err, bamPath)
		}
		if err := idx.add(rec, br.LastChunk()); err != nil {
			return errors.E(err, bamPath)
		}
	}
	out, err := file.Create(ctx, indexPath)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	return idx.write(out.Writer(ctx))
}
