package seqwriter

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"

	"github.com/golang/snappy"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/hts/bgzf"
	"github.com/grailbio/seqio/encoding/format"
	"github.com/klauspost/compress/gzip"
)

// SinkOpts configures OpenSink.
type SinkOpts struct {
	// Compressor is an external command that compresses its stdin onto its
	// stdout, e.g. {"pigz", "-c", "-p", "4"}. It replaces the in-process gzip
	// writer for .gz outputs, and requires desc.AllowSubprocess.
	Compressor []string
	// GzipLevel is the compression level of .gz outputs.
	GzipLevel int
	// Parallelism is the number of compression goroutines of .bgz outputs.
	Parallelism int
	// BufferSize is the size of the write buffer.
	BufferSize int
}

// DefaultSinkOpts uses in-process compression.
var DefaultSinkOpts = SinkOpts{
	GzipLevel:   gzip.DefaultCompression,
	Parallelism: 1,
	BufferSize:  1 << 20,
}

type flusher interface {
	Flush() error
}

// sink is a buffered writer over a stack of layers (compressor, file). The
// layers are closed innermost first.
type sink struct {
	w       *bufio.Writer
	closers []func() error
}

func (s *sink) Write(p []byte) (int, error) { return s.w.Write(p) }

func (s *sink) Flush() error { return s.w.Flush() }

func (s *sink) Close() error {
	var once errors.Once
	// s.w is nil if OpenSink failed before the buffer was created.
	if s.w != nil {
		once.Set(s.w.Flush())
	}
	for _, c := range s.closers {
		once.Set(c())
	}
	return once.Err()
}

// push adds a layer on top of the stack.
func (s *sink) push(close func() error) {
	s.closers = append([]func() error{close}, s.closers...)
}

// OpenSink opens the destination of desc for writing. The standard output is
// used if desc.Std() is true; desc.Append appends to a local file. Paths
// ending in .gz, .sz and .bgz are compressed with gzip, snappy and BGZF
// respectively, except for BAM, which is compressed by its writer. The
// returned sink also implements Flush.
func OpenSink(ctx context.Context, desc format.Descriptor, opts SinkOpts) (io.WriteCloser, error) {
	s := &sink{}
	var out io.Writer
	switch {
	case desc.Std():
		out = os.Stdout
	case desc.Append:
		f, err := os.OpenFile(desc.Path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
		if err != nil {
			return nil, errors.E(err, "open", desc.Path, "for append")
		}
		out = f
		s.push(f.Close)
	default:
		f, err := file.Create(ctx, desc.Path)
		if err != nil {
			return nil, errors.E(err, "create", desc.Path)
		}
		out = f.Writer(ctx)
		s.push(func() error { return f.Close(ctx) })
	}
	_, ext := format.TrimCompression(desc.Path)
	if desc.Kinds.Has(format.BAM) {
		ext = ""
	}
	switch ext {
	case ".gz":
		if len(opts.Compressor) > 0 {
			stdin, err := startCompressor(ctx, desc, opts.Compressor, out, s)
			if err != nil {
				s.Close() // nolint: errcheck
				return nil, err
			}
			out = stdin
			break
		}
		gz, err := gzip.NewWriterLevel(out, opts.GzipLevel)
		if err != nil {
			s.Close() // nolint: errcheck
			return nil, errors.E(errors.Invalid, err, desc.Path)
		}
		out = gz
		s.push(gz.Close)
	case ".sz":
		sz := snappy.NewBufferedWriter(out)
		out = sz
		s.push(sz.Close)
	case ".bgz":
		parallelism := opts.Parallelism
		if parallelism < 1 {
			parallelism = 1
		}
		bw := bgzf.NewWriter(out, parallelism)
		out = bw
		s.push(bw.Close)
	}
	size := opts.BufferSize
	if size <= 0 {
		size = DefaultSinkOpts.BufferSize
	}
	s.w = bufio.NewWriterSize(out, size)
	return s, nil
}

func startCompressor(ctx context.Context, desc format.Descriptor, argv []string, out io.Writer, s *sink) (io.Writer, error) {
	if !desc.AllowSubprocess {
		return nil, errors.E(errors.Invalid, desc.Path+": subprocess compression is not allowed")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = out
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.E(err, desc.Path+": compressor pipe")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.E(err, desc.Path+": start", argv[0])
	}
	s.push(func() error {
		err := stdin.Close()
		if werr := cmd.Wait(); werr != nil {
			return errors.E(werr, argv[0])
		}
		return err
	})
	return stdin, nil
}
