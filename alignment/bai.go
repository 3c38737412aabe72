package alignment

import (
	"bufio"
	"encoding/binary"
	"io"
	"sort"

	"github.com/biogo/hts/bgzf"
	"github.com/biogo/hts/sam"
	"github.com/grailbio/base/errors"
)

const (
	// baiTileWidth is the width of a linear index tile.
	baiTileWidth = 1 << 14
	// baiStatsBin is the pseudo-bin holding per-reference statistics.
	baiStatsBin = 37450
)

var baiMagic = [4]byte{'B', 'A', 'I', 0x1}

type baiBin struct {
	bin    uint32
	chunks []bgzf.Chunk
}

type baiRef struct {
	bins      map[uint32]*baiBin
	intervals []bgzf.Offset
	first     bgzf.Offset
	last      bgzf.Offset
	mapped    uint64
	unmapped  uint64
}

// baiBuilder accumulates a BAI index from coordinate-sorted records.
type baiBuilder struct {
	refs     []baiRef
	noCoor   uint64
	lastRef  int
	lastPos  int
	sawNoRef bool
}

func newBAIBuilder(nRefs int) *baiBuilder {
	return &baiBuilder{refs: make([]baiRef, nRefs), lastRef: -1}
}

func toVOffset(o bgzf.Offset) uint64 { return uint64(o.File)<<16 | uint64(o.Block) }

// add records that rec occupies chunk c of the BAM file.
func (b *baiBuilder) add(rec *sam.Record, c bgzf.Chunk) error {
	if rec.Ref == nil || rec.Ref.ID() < 0 || rec.Pos < 0 {
		b.noCoor++
		b.sawNoRef = true
		return nil
	}
	rid := rec.Ref.ID()
	switch {
	case b.sawNoRef:
		return errors.E(errors.Invalid, "alignment: placed record", rec.Name, "after unplaced records")
	case rid >= len(b.refs):
		return errors.E(errors.Invalid, "alignment: record", rec.Name, "has a reference missing from the header")
	case rid < b.lastRef, rid == b.lastRef && rec.Pos < b.lastPos:
		return errors.E(errors.Invalid, "alignment: BAM is not coordinate sorted at", rec.Name)
	}
	b.lastRef, b.lastPos = rid, rec.Pos

	ref := &b.refs[rid]
	if ref.bins == nil {
		ref.bins = map[uint32]*baiBin{}
		ref.first = c.Begin
	}
	ref.last = c.End
	if rec.Flags&sam.Unmapped == 0 {
		ref.mapped++
	} else {
		ref.unmapped++
	}

	bin := uint32(rec.Bin())
	bb := ref.bins[bin]
	if bb == nil {
		bb = &baiBin{bin: bin}
		ref.bins[bin] = bb
	}
	if n := len(bb.chunks); n > 0 && toVOffset(bb.chunks[n-1].End) >= toVOffset(c.Begin) {
		bb.chunks[n-1].End = c.End
	} else {
		bb.chunks = append(bb.chunks, c)
	}

	// Every tile up to the one holding the last base gets the offset of the
	// first record that reaches it.
	end := rec.End()
	if end <= rec.Pos {
		end = rec.Pos + 1
	}
	for last := (end - 1) / baiTileWidth; len(ref.intervals) <= last; {
		ref.intervals = append(ref.intervals, c.Begin)
	}
	return nil
}

// write emits the index in BAI format.
func (b *baiBuilder) write(out io.Writer) error {
	w := bufio.NewWriter(out)
	put := func(v interface{}) {
		// Errors surface on Flush.
		_ = binary.Write(w, binary.LittleEndian, v)
	}
	put(baiMagic)
	put(int32(len(b.refs)))
	for i := range b.refs {
		ref := &b.refs[i]
		if ref.bins == nil {
			put(int32(0))
			put(int32(0))
			continue
		}
		bins := make([]*baiBin, 0, len(ref.bins))
		for _, bb := range ref.bins {
			bins = append(bins, bb)
		}
		sort.Slice(bins, func(i, j int) bool { return bins[i].bin < bins[j].bin })
		put(int32(len(bins) + 1))
		for _, bb := range bins {
			put(bb.bin)
			put(int32(len(bb.chunks)))
			for _, c := range bb.chunks {
				put(toVOffset(c.Begin))
				put(toVOffset(c.End))
			}
		}
		put(uint32(baiStatsBin))
		put(int32(2))
		put(toVOffset(ref.first))
		put(toVOffset(ref.last))
		put(ref.mapped)
		put(ref.unmapped)
		put(int32(len(ref.intervals)))
		for _, o := range ref.intervals {
			put(toVOffset(o))
		}
	}
	put(b.noCoor)
	if err := w.Flush(); err != nil {
		return errors.E(err, "alignment: writing BAM index")
	}
	return nil
}
