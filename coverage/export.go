package coverage

import (
	"io"
	"strconv"

	"github.com/grailbio/base/tsv"
	"github.com/grailbio/genomeview/encoding/bed"
)

// TSVRow is one bin of a profile as written by WriteTSV.
type TSVRow struct {
	Source string `tsv:"source"`
	RefID  string `tsv:"refid"`
	Start  int64  `tsv:"start"`
	End    int64  `tsv:"end"`
	Plus   int64  `tsv:"plus"`
	Minus  int64  `tsv:"minus"`
}

// WriteTSV writes one row per bin of every profile, preceded by a header
// row.  Bin boundaries are rounded down to whole bases.
func WriteTSV(out io.Writer, profiles []*Profile) error {
	w := tsv.NewRowWriter(out)
	for _, p := range profiles {
		for i := range p.Plus {
			row := TSVRow{
				Source: p.Source,
				RefID:  p.RefID,
				Start:  int64(p.BinStart(i)),
				End:    int64(p.BinStart(i + 1)),
				Plus:   int64(p.Plus[i]),
				Minus:  int64(p.Minus[i]),
			}
			if err := w.Write(&row); err != nil {
				return err
			}
		}
	}
	return w.Flush()
}

// WriteBED writes the nonzero bins of every profile as six-column BED, one
// line per bin and strand, with the depth in the score column.  The header
// declares the reference sequences so the output can be loaded back as an
// alignment source.
func WriteBED(out io.Writer, header []bed.HeaderSeq, profiles []*Profile) error {
	w := bed.NewWriter(out)
	if err := w.WriteHeader(header); err != nil {
		return err
	}
	for _, p := range profiles {
		for _, strand := range []struct {
			c    byte
			bins []int
		}{{'+', p.Plus}, {'-', p.Minus}} {
			for i, d := range strand.bins {
				if d == 0 {
					continue
				}
				rec := bed.Record{
					RefID:  p.RefID,
					Start:  p.BinStart(i),
					End:    p.BinStart(i + 1),
					Score:  strconv.Itoa(d),
					Strand: strand.c,
				}
				if err := w.Write(rec); err != nil {
					return err
				}
			}
		}
	}
	return w.Flush()
}
