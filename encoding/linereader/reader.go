// Package linereader reads line records from FASTQ, FASTA and SAM text
// sources.
//
// A Reader hides the I/O strategy used to produce lines. The strategy, a
// Backend, is chosen once by Open (see Select) and never changes for the
// life of the reader. Readers are single-consumer: none of the methods may be
// called concurrently.
//
// Example:
//
//   r, err := linereader.Open(ctx, format.New(ctx, "reads.fq.gz", format.Read), linereader.DefaultOpts)
//   for {
//     b, err := r.NextBatch(0, 0)
//     if err == io.EOF {
//       break
//     }
//     ...
//   }
//   err = r.Close()
package linereader

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/golang/snappy"
	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/seqio/encoding/format"
	"github.com/grailbio/seqio/encoding/seq"
	"v.io/x/lib/vlog"
)

const (
	// DefaultBatchLines is the default record limit of NextBatch.
	DefaultBatchLines = 800
	// DefaultBatchBytes is the default byte limit of NextBatch.
	DefaultBatchBytes = 262144
)

// Reader delivers lines from one source.
type Reader struct {
	ctx     context.Context
	desc    format.Descriptor
	opts    Opts
	backend Backend

	src source

	pushed    []byte
	hasPushed bool
	nextID    int64
	nLines    int64
	err       errors.Once
}

// Open creates a reader for desc. It fails if desc names neither an existing
// source, nor the standard input, nor a caller supplied stream.
func Open(ctx context.Context, desc format.Descriptor, opts Opts) (*Reader, error) {
	r := &Reader{ctx: ctx, desc: desc, opts: opts}
	r.backend = r.applicable(Select(opts))
	if err := r.open(); err != nil {
		return nil, err
	}
	vlog.VI(1).Infof("%s: reading with %v backend", r.name(), r.backend)
	return r, nil
}

func (r *Reader) name() string {
	if r.desc.Stream != nil {
		return "stream"
	}
	if r.desc.Std() {
		return "stdin"
	}
	return r.desc.Path
}

func (r *Reader) rewindable() bool {
	return r.desc.Stream == nil && !r.desc.Std()
}

// applicable degrades b until it can serve the source. Only Mmap has
// preconditions: a local, uncompressed, non-empty regular file.
func (r *Reader) applicable(b Backend) Backend {
	if b != Mmap {
		return b
	}
	ok := mmapSupported && r.rewindable() && !strings.Contains(r.desc.Path, "://")
	if _, sfx := format.TrimCompression(r.desc.Path); sfx != "" {
		ok = false
	}
	if ok {
		info, err := os.Stat(r.desc.Path)
		ok = err == nil && info.Mode().IsRegular() && info.Size() > 0
	}
	if ok {
		return Mmap
	}
	next := Simple
	if r.opts.Capabilities.Enabled(Prefetch) {
		next = Prefetch
	}
	log.Debug.Printf("%s: mmap not applicable, using %v", r.name(), next)
	return next
}

func (r *Reader) open() error {
	if r.backend == Mmap {
		src, err := newMmapSource(r.desc.Path)
		if err != nil {
			return errors.E(errors.NotExist, err, "open", r.desc.Path)
		}
		r.src = src
		return nil
	}
	var (
		in     io.Reader
		closer io.Closer
	)
	switch {
	case r.desc.Stream != nil:
		in = r.desc.Stream
	case r.desc.Std():
		in = os.Stdin
	default:
		f, err := file.Open(r.ctx, r.desc.Path)
		if err != nil {
			return errors.E(errors.NotExist, err, "open", r.desc.Path)
		}
		in = f.Reader(r.ctx)
		closer = fileCloser{r.ctx, f}
	}
	if r.desc.Stream == nil {
		if strings.HasSuffix(r.desc.Path, ".sz") {
			in = snappy.NewReader(in)
		} else if u := compress.NewReaderPath(in, r.desc.Path); u != nil {
			in = u
			closer = multiCloser{u, closer}
		}
	}
	if r.backend == Prefetch {
		r.src = newPrefetchSource(in, closer, r.opts.bufferSize())
	} else {
		r.src = newSimpleSource(in, closer, r.opts.bufferSize())
	}
	return nil
}

// Backend returns the backend chosen at construction.
func (r *Reader) Backend() Backend { return r.backend }

// NextLine returns the next line, without its terminating newline. It returns
// io.EOF at the end of the stream. Errors other than io.EOF are also recorded
// and reported by Close.
func (r *Reader) NextLine() ([]byte, error) {
	if r.hasPushed {
		line := r.pushed
		r.pushed, r.hasPushed = nil, false
		return line, nil
	}
	line, err := r.src.next()
	if err != nil {
		if err != io.EOF {
			err = errors.E(err, "read", r.name())
			r.err.Set(err)
		}
		return nil, err
	}
	r.nLines++
	return line, nil
}

// PushBack stores line so that the next call to NextLine returns it. Only one
// line may be pushed back between reads.
func (r *Reader) PushBack(line []byte) {
	if r.hasPushed {
		log.Panicf("%s: PushBack called twice without an intervening read", r.name())
	}
	r.pushed, r.hasPushed = line, true
}

// NextBatch reads consecutive lines until targetCount lines or targetBytes
// bytes have been read, whichever comes first. Non-positive limits take the
// defaults. Batches are numbered from 0. The batch that reaches the end of
// the stream has Last set; if the stream ends exactly at a batch boundary,
// the next call returns io.EOF instead.
func (r *Reader) NextBatch(targetCount, targetBytes int) (*seq.Batch, error) {
	if targetCount <= 0 {
		targetCount = DefaultBatchLines
	}
	if targetBytes <= 0 {
		targetBytes = DefaultBatchBytes
	}
	b := &seq.Batch{ID: r.nextID, Records: make([]seq.Record, 0, targetCount)}
	nBytes := 0
	for len(b.Records) < targetCount && nBytes < targetBytes {
		line, err := r.NextLine()
		if err == io.EOF {
			b.Last = true
			break
		}
		if err != nil {
			return nil, err
		}
		b.Records = append(b.Records, seq.LineRecord(line))
		nBytes += len(line)
	}
	if len(b.Records) == 0 {
		return nil, io.EOF
	}
	r.nextID++
	return b, nil
}

// Reset rewinds the stream to its start and restarts batch numbering at 0.
// The standard input and caller supplied streams cannot be reset.
func (r *Reader) Reset() error {
	if !r.rewindable() {
		return errors.E(errors.NotSupported, "reset", r.name())
	}
	if err := r.src.close(); err != nil {
		r.err.Set(err)
	}
	r.pushed, r.hasPushed = nil, false
	r.nextID = 0
	r.nLines = 0
	return r.open()
}

// Close releases the source. It returns the first error encountered during
// the life of the reader.
func (r *Reader) Close() error {
	r.err.Set(r.src.close())
	log.Debug.Printf("%s: read %d lines using %v backend", r.name(), r.nLines, r.backend)
	return r.err.Err()
}

type fileCloser struct {
	ctx context.Context
	f   file.File
}

func (c fileCloser) Close() error { return c.f.Close(c.ctx) }

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var err errors.Once
	for _, c := range m {
		if c != nil {
			err.Set(c.Close())
		}
	}
	return err.Err()
}
