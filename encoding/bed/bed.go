// Package bed reads and writes BED interval files
// (https://genome.ucsc.edu/FAQ/FAQformat.html#format1).  Three to twelve
// columns are accepted; only the first six are interpreted.  Lines containing
// a tab are split on tabs, other lines on runs of whitespace.
//
// Header lines of the form "#<refid>\t<length>" declare reference sequences.
// They are written by coverage exports and collected by Reader.Header.
package bed

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
	gunsafe "github.com/grailbio/base/unsafe"
)

// Record is one BED line.  Start and End are 0-based, half-open.
type Record struct {
	RefID      string
	Start, End int
	// Name is column 4, or "" if absent.
	Name string
	// Score is column 5, or "" if absent.
	Score string
	// Strand is '+', '-' or '.'.
	Strand byte
	// NumFields is the number of columns present on the line.
	NumFields int
}

// IntScore parses Score as an integer, returning def when the column is
// absent or ".".
func (r Record) IntScore(def int) (int, error) {
	if r.Score == "" || r.Score == "." {
		return def, nil
	}
	return strconv.Atoi(r.Score)
}

// HeaderSeq is a "#<refid>\t<length>" header line.
type HeaderSeq struct {
	RefID  string
	Length int
}

// getTokens identifies up to the first len(tokens) tokens from curLine,
// returning the number of tokens saved.  Any (group of) characters <= ' ' is
// treated as a delimiter.
func getTokens(tokens [][]byte, curLine []byte) int {
	posEnd := 0
	lineLen := len(curLine)
	for tokenIdx := range tokens {
		pos := posEnd
		for ; pos != lineLen; pos++ {
			if curLine[pos] > ' ' {
				break
			}
		}
		if pos == lineLen {
			return tokenIdx
		}
		posEnd = pos
		for ; posEnd != lineLen; posEnd++ {
			if curLine[posEnd] <= ' ' {
				break
			}
		}
		tokens[tokenIdx] = curLine[pos:posEnd]
	}
	return len(tokens)
}

// getTabTokens is getTokens for tab-delimited lines, where fields such as
// the name may contain spaces.
func getTabTokens(tokens [][]byte, curLine []byte) int {
	curLine = bytes.TrimRight(curLine, "\r")
	if len(bytes.TrimSpace(curLine)) == 0 {
		return 0
	}
	for tokenIdx := range tokens {
		i := bytes.IndexByte(curLine, '\t')
		if i < 0 {
			tokens[tokenIdx] = curLine
			return tokenIdx + 1
		}
		tokens[tokenIdx] = curLine[:i]
		curLine = curLine[i+1:]
	}
	return len(tokens)
}

// Reader reads Records.
type Reader struct {
	scanner *bufio.Scanner
	tokens  [12][]byte
	lineNum int
	header  []HeaderSeq
}

// NewReader creates a Reader.  "track" and "browser" lines, empty lines and
// '#' comments are skipped.
func NewReader(in io.Reader) *Reader {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(nil, 1<<20)
	return &Reader{scanner: scanner}
}

// Header returns the "#<refid>\t<length>" lines seen so far, in order.
func (r *Reader) Header() []HeaderSeq { return r.header }

var (
	trackPrefix   = []byte("track")
	browserPrefix = []byte("browser")
)

// Read returns the next record, or io.EOF.  Malformed lines are errors of
// kind errors.Integrity.
func (r *Reader) Read() (Record, error) {
	for r.scanner.Scan() {
		r.lineNum++
		curLine := r.scanner.Bytes()
		if len(curLine) > 0 && curLine[0] == '#' {
			r.parseHeader(curLine[1:])
			continue
		}
		if bytes.HasPrefix(curLine, trackPrefix) || bytes.HasPrefix(curLine, browserPrefix) {
			continue
		}
		var nToken int
		if bytes.IndexByte(curLine, '\t') >= 0 {
			nToken = getTabTokens(r.tokens[:], curLine)
		} else {
			nToken = getTokens(r.tokens[:], curLine)
		}
		if nToken == 0 {
			continue
		}
		if nToken < 3 {
			return Record{}, errors.E(errors.Integrity, fmt.Sprintf("bed: line %d has fewer tokens than expected", r.lineNum))
		}
		start, err := strconv.Atoi(gunsafe.BytesToString(r.tokens[1]))
		if err != nil {
			return Record{}, errors.E(errors.Integrity, err, fmt.Sprintf("bed: line %d", r.lineNum))
		}
		end, err := strconv.Atoi(gunsafe.BytesToString(r.tokens[2]))
		if err != nil {
			return Record{}, errors.E(errors.Integrity, err, fmt.Sprintf("bed: line %d", r.lineNum))
		}
		if start < 0 || end < start {
			return Record{}, errors.E(errors.Integrity, fmt.Sprintf("bed: invalid coordinate pair on line %d", r.lineNum))
		}
		rec := Record{
			RefID:     string(r.tokens[0]),
			Start:     start,
			End:       end,
			Strand:    '.',
			NumFields: nToken,
		}
		if nToken > 3 {
			rec.Name = string(r.tokens[3])
		}
		if nToken > 4 {
			rec.Score = string(r.tokens[4])
		}
		if nToken > 5 && len(r.tokens[5]) == 1 {
			switch c := r.tokens[5][0]; c {
			case '+', '-':
				rec.Strand = c
			}
		}
		return rec, nil
	}
	if err := r.scanner.Err(); err != nil {
		return Record{}, err
	}
	return Record{}, io.EOF
}

func (r *Reader) parseHeader(line []byte) {
	var tokens [3][]byte
	if getTokens(tokens[:], line) != 2 {
		return
	}
	length, err := strconv.Atoi(gunsafe.BytesToString(tokens[1]))
	if err != nil || length < 0 {
		return
	}
	r.header = append(r.header, HeaderSeq{RefID: string(tokens[0]), Length: length})
}

// Writer writes six-column BED.
type Writer struct {
	w *tsv.Writer
}

// NewWriter creates a Writer.
func NewWriter(out io.Writer) *Writer {
	return &Writer{w: tsv.NewWriter(out)}
}

// WriteHeader writes "#<refid>\t<length>" lines.
func (w *Writer) WriteHeader(seqs []HeaderSeq) error {
	for _, s := range seqs {
		w.w.WriteString("#" + s.RefID)
		w.w.WriteInt64(int64(s.Length))
		if err := w.w.EndLine(); err != nil {
			return err
		}
	}
	return nil
}

// Write writes one record as six columns.  Missing name and score are
// written as ".".
func (w *Writer) Write(rec Record) error {
	w.w.WriteString(rec.RefID)
	w.w.WriteInt64(int64(rec.Start))
	w.w.WriteInt64(int64(rec.End))
	w.w.WriteString(dotIfEmpty(rec.Name))
	w.w.WriteString(dotIfEmpty(rec.Score))
	strand := rec.Strand
	if strand == 0 {
		strand = '.'
	}
	w.w.WriteByte(strand)
	return w.w.EndLine()
}

// Flush flushes buffered output.
func (w *Writer) Flush() error { return w.w.Flush() }

func dotIfEmpty(s string) string {
	if s == "" {
		return "."
	}
	return s
}
