package util

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/klauspost/compress/gzip"
)

// Reader is a possibly-decompressing reader over a file opened through
// grailbio/base/file.  It must be closed by the caller.
type Reader struct {
	io.Reader
	ctx context.Context
	in  file.File
	gz  *gzip.Reader
}

// Open opens path for reading.  Paths ending in ".gz" are transparently
// decompressed.
func Open(ctx context.Context, path string) (*Reader, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	r := &Reader{Reader: in.Reader(ctx), ctx: ctx, in: in}
	switch fileio.DetermineType(path) {
	case fileio.Gzip:
		if r.gz, err = gzip.NewReader(r.Reader); err != nil {
			in.Close(ctx) // nolint: errcheck
			return nil, err
		}
		r.Reader = r.gz
	}
	return r, nil
}

// Name returns the path the reader was opened with.
func (r *Reader) Name() string { return r.in.Name() }

// Close closes the decompressor, if any, and the underlying file.
func (r *Reader) Close() error {
	var e errors.Once
	if r.gz != nil {
		e.Set(r.gz.Close())
	}
	e.Set(r.in.Close(r.ctx))
	return e.Err()
}

// Writer is the output counterpart of Reader.
type Writer struct {
	io.Writer
	ctx context.Context
	out file.File
	gz  *gzip.Writer
}

// Create creates path for writing, gzip-compressing the output when the path
// ends in ".gz".
func Create(ctx context.Context, path string) (*Writer, error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return nil, err
	}
	w := &Writer{Writer: out.Writer(ctx), ctx: ctx, out: out}
	if fileio.DetermineType(path) == fileio.Gzip {
		w.gz = gzip.NewWriter(w.Writer)
		w.Writer = w.gz
	}
	return w, nil
}

// Close flushes the compressor, if any, and closes the file.
func (w *Writer) Close() error {
	var e errors.Once
	if w.gz != nil {
		e.Set(w.gz.Close())
	}
	e.Set(w.out.Close(w.ctx))
	return e.Err()
}

// Extension returns the lowercased extension of path without the leading
// dot, looking through a trailing ".gz".  "x.gtf.gz" yields "gtf".
func Extension(path string) string {
	base := strings.ToLower(filepath.Base(path))
	base = strings.TrimSuffix(base, ".gz")
	ext := filepath.Ext(base)
	return strings.TrimPrefix(ext, ".")
}

// Basename returns the file name of path with its extension (and any ".gz")
// removed.  It is used as the default source name.
func Basename(path string) string {
	base := filepath.Base(path)
	if strings.HasSuffix(strings.ToLower(base), ".gz") {
		base = base[:len(base)-3]
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}
