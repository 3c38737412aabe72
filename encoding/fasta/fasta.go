// Package fasta extracts sequence names and lengths from FASTA data.  FASTA
// files consist of a number of named sequences that may be interrupted by
// newlines.  For example:
//
// >chr7
// ACGTAC
// GAGGAC
// GCG
// >chr8
// ACGT
//
// Note: Sequence names are defined to be the stretch of characters excluding
// whitespace immediately after '>'.  Any text after a space is ignored.  For
// example, '>chr1 A viral sequence' becomes 'chr1'.
//
// Only lengths are retained; the bases themselves are discarded as they are
// read.
package fasta

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
)

// Seq is a named reference sequence.
type Seq struct {
	// Name is the sequence name (refid).
	Name string
	// Length is the number of bases in the sequence.
	Length int
}

// ScanLengths reads FASTA data from in and returns one Seq per record, in
// order of appearance.  A sequence name that appears twice is an error of
// kind errors.Integrity.
func ScanLengths(in io.Reader) (seqs []Seq, err error) {
	var (
		r       = bufio.NewReaderSize(in, 1<<20)
		seen    = map[string]bool{}
		lineNum int
		cumByte int64
		eof     bool
	)
	for !eof {
		fullLine, e := r.ReadBytes('\n')
		if e == io.EOF { // Process fullLine, then exit the loop
			eof = true
		} else if e != nil {
			return nil, errors.E(e, "reading FASTA data")
		}
		lineNum++
		cumByte += int64(len(fullLine))
		line := bytes.TrimRight(fullLine, "\r\n")
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' { // Start a new sequence.
			name := line[1:]
			if i := bytes.IndexAny(name, " \t"); i >= 0 {
				name = name[:i]
			}
			if len(name) == 0 {
				return nil, errors.E(errors.Integrity, fmt.Sprintf("malformed FASTA file: empty sequence name at line %d", lineNum))
			}
			if seen[string(name)] {
				return nil, errors.E(errors.Integrity, "malformed FASTA file: duplicate sequence name", string(name))
			}
			seen[string(name)] = true
			seqs = append(seqs, Seq{Name: string(name)})
			continue
		}
		if len(seqs) == 0 {
			return nil, errors.E(errors.Integrity, "malformed FASTA file: sequence data before the first header")
		}
		seqs[len(seqs)-1].Length += len(line)
	}
	if cumByte == 0 {
		return nil, errors.E(errors.Integrity, "empty FASTA file")
	}
	return seqs, nil
}
