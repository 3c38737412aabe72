// Package gff reads GTF (GFF2.5) and GFF3 annotation files.  Both formats
// have nine tab-separated columns:
//
//   seqid source type start end score strand phase attributes
//
// with 1-based closed coordinates.  Records are returned with 0-based
// half-open coordinates.
package gff

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
)

// Format identifies the attribute syntax of a file.
type Format int

const (
	// GTF attributes look like `gene_id "g1"; transcript_id "t1";`.
	GTF Format = iota
	// GFF3 attributes look like `ID=g1;Name=abc`.
	GFF3
)

// String implements fmt.Stringer.
func (f Format) String() string {
	if f == GFF3 {
		return "gff3"
	}
	return "gtf"
}

// Record is one annotation line.
type Record struct {
	RefID  string
	Source string
	Type   string
	// Start and End are 0-based, half-open.
	Start, End int
	Score      string
	// Strand is '+', '-' or '.'.
	Strand byte
	Phase  string
	// ID is the GFF3 "ID" attribute, or the value of the first GTF
	// attribute.  It may be empty.
	ID    string
	Attrs map[string]string
}

// gffRow is the column layout shared by GTF and GFF3.
type gffRow struct {
	SeqID  string
	Source string
	Type   string
	Start  int
	End    int
	Score  string
	Strand string
	Phase  string
	Attrs  string
}

// Reader reads Records from GTF or GFF3 input.
type Reader struct {
	format Format
	r      *tsv.Reader
	nRec   int
}

// NewReader creates a Reader.  Lines starting with '#' are skipped.  For
// GFF3, input ends at a "##FASTA" directive.
func NewReader(in io.Reader, format Format) *Reader {
	if format == GFF3 {
		in = &directiveStopper{r: bufio.NewReaderSize(in, 64<<10)}
	}
	r := tsv.NewReader(in)
	r.Comment = '#'
	r.LazyQuotes = true
	return &Reader{format: format, r: r}
}

// Read returns the next record, or io.EOF at the end of the input.  A
// malformed line is an error of kind errors.Integrity.
func (r *Reader) Read() (Record, error) {
	var row gffRow
	if err := r.r.Read(&row); err != nil {
		if err == io.EOF {
			return Record{}, err
		}
		return Record{}, errors.E(errors.Integrity, err, fmt.Sprintf("%v record %d", r.format, r.nRec+1))
	}
	r.nRec++
	if row.Start < 1 || row.End < row.Start-1 {
		return Record{}, errors.E(errors.Integrity, fmt.Sprintf("%v record %d: invalid coordinates %d-%d", r.format, r.nRec, row.Start, row.End))
	}
	rec := Record{
		RefID:  row.SeqID,
		Source: row.Source,
		Type:   row.Type,
		Start:  row.Start - 1,
		End:    row.End,
		Score:  row.Score,
		Strand: '.',
		Phase:  row.Phase,
	}
	if len(row.Strand) == 1 && (row.Strand[0] == '+' || row.Strand[0] == '-') {
		rec.Strand = row.Strand[0]
	}
	var err error
	if r.format == GFF3 {
		rec.Attrs, err = parseGFF3Attrs(row.Attrs)
		rec.ID = rec.Attrs["ID"]
	} else {
		rec.Attrs, rec.ID = parseGTFAttrs(row.Attrs)
	}
	if err != nil {
		return Record{}, errors.E(errors.Integrity, err, fmt.Sprintf("%v record %d", r.format, r.nRec))
	}
	return rec, nil
}

// ReadAll reads records until EOF.
func (r *Reader) ReadAll() ([]Record, error) {
	var recs []Record
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return recs, nil
		}
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
}

// parseGTFAttrs parses `key "value"; key2 value2;`.  The returned id is
// the first attribute's value.
func parseGTFAttrs(info string) (attrs map[string]string, id string) {
	attrs = map[string]string{}
	first := true
	for _, field := range strings.Split(strings.TrimSpace(info), ";") {
		field = strings.TrimSpace(field)
		if field == "" || field == "." {
			continue
		}
		key, value := field, ""
		if i := strings.IndexAny(field, " \t"); i >= 0 {
			key, value = field[:i], strings.TrimSpace(field[i+1:])
		}
		value = strings.Trim(value, "\"")
		if _, ok := attrs[key]; !ok {
			attrs[key] = value
		}
		if first {
			id = value
			first = false
		}
	}
	return
}

// parseGFF3Attrs parses `key=value;key2=v1,v2`.  Values are URL-unescaped.
func parseGFF3Attrs(info string) (map[string]string, error) {
	attrs := map[string]string{}
	for _, field := range strings.Split(strings.TrimSpace(info), ";") {
		field = strings.TrimSpace(field)
		if field == "" || field == "." {
			continue
		}
		eq := strings.IndexByte(field, '=')
		if eq <= 0 {
			return nil, fmt.Errorf("malformed attribute %q", field)
		}
		value, err := url.PathUnescape(field[eq+1:])
		if err != nil {
			return nil, err
		}
		attrs[field[:eq]] = value
	}
	return attrs, nil
}

// directiveStopper passes lines through until a "##FASTA" directive, after
// which it reports io.EOF.
type directiveStopper struct {
	r    *bufio.Reader
	pend []byte
	done bool
}

var fastaDirective = []byte("##FASTA")

func (d *directiveStopper) Read(p []byte) (int, error) {
	for len(d.pend) == 0 {
		if d.done {
			return 0, io.EOF
		}
		line, err := d.r.ReadBytes('\n')
		if bytes.HasPrefix(line, fastaDirective) {
			d.done = true
			return 0, io.EOF
		}
		if err == io.EOF {
			d.done = true
		} else if err != nil {
			return 0, err
		}
		d.pend = line
	}
	n := copy(p, d.pend)
	d.pend = d.pend[n:]
	return n, nil
}
