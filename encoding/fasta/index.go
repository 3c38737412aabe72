package fasta

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
)

// Index files consist of one tab-separated line per sequence.  Only the first
// two columns, "<sequence name>\t<length>", are interpreted, so both the
// two-column form written by WriteIndex and the five-column form produced by
// "samtools faidx" (http://www.htslib.org/doc/faidx.html) are accepted.
var indexRegExp = regexp.MustCompile(`^(\S+)\t(\d+)(\t.*)?$`)

// ReadIndex parses a tab-separated index.  Empty lines and lines starting
// with '#' are skipped.  Sequences are returned in file order.
func ReadIndex(in io.Reader) ([]Seq, error) {
	var (
		seqs    []Seq
		seen    = map[string]bool{}
		lineNum int
	)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		matches := indexRegExp.FindStringSubmatch(line)
		if matches == nil {
			return nil, errors.E(errors.Integrity, fmt.Sprintf("invalid index line %d: %q", lineNum, line))
		}
		length, err := strconv.Atoi(matches[2])
		if err != nil {
			return nil, errors.E(errors.Integrity, err, fmt.Sprintf("invalid length at index line %d", lineNum))
		}
		if seen[matches[1]] {
			return nil, errors.E(errors.Integrity, "duplicate sequence name in index", matches[1])
		}
		seen[matches[1]] = true
		seqs = append(seqs, Seq{Name: matches[1], Length: length})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.E(err, "reading index")
	}
	return seqs, nil
}

// WriteIndex writes seqs as a two-column "<name>\t<length>" index that
// ReadIndex can load back.
func WriteIndex(out io.Writer, seqs []Seq) error {
	w := tsv.NewWriter(out)
	for _, s := range seqs {
		w.WriteString(s.Name)
		w.WriteInt64(int64(s.Length))
		if err := w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}
