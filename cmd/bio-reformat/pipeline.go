package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/syncqueue"
	"github.com/grailbio/seqio/encoding/fasta"
	"github.com/grailbio/seqio/encoding/fastq"
	"github.com/grailbio/seqio/encoding/format"
	"github.com/grailbio/seqio/encoding/linereader"
	"github.com/grailbio/seqio/encoding/samtext"
	"github.com/grailbio/seqio/encoding/seq"
	"github.com/grailbio/seqio/encoding/seqwriter"
	"golang.org/x/sync/errgroup"
	"v.io/x/lib/vlog"
)

// pipelineOpts holds the resolved command line.
type pipelineOpts struct {
	in, in2   string
	out, out2 string
	// inFormat and outFormat override the kinds guessed from the paths.
	inFormat, outFormat string

	sampleRate float64
	seed       uint64
	threads    int
	// batchLines and batchBytes bound the batches handed to the workers.
	// FASTQ and FASTA batches hold batchLines/4 reads.
	batchLines, batchBytes int
	qinOffset              int

	refIndex        string
	append          bool
	allowSubprocess bool

	reader linereader.Opts
	writer seqwriter.Opts
	sink   seqwriter.SinkOpts
}

var defaultPipelineOpts = pipelineOpts{
	sampleRate: 1.0,
	batchLines: linereader.DefaultBatchLines,
	batchBytes: linereader.DefaultBatchBytes,
	qinOffset:  33,
	reader:     linereader.DefaultOpts,
	writer:     seqwriter.DefaultOpts,
	sink:       seqwriter.DefaultSinkOpts,
}

// batchSource produces the input batches, numbered from 0. It returns io.EOF
// after the last batch.
type batchSource interface {
	next() (*seq.Batch, error)
}

// readSource groups decoded reads into batches.
type readSource struct {
	scan   func(r *seq.Read) bool
	err    func() error
	size   int
	nextID int64
}

func (s *readSource) next() (*seq.Batch, error) {
	b := &seq.Batch{ID: s.nextID, Records: make([]seq.Record, 0, s.size)}
	for len(b.Records) < s.size {
		r := &seq.Read{}
		if !s.scan(r) {
			break
		}
		b.Records = append(b.Records, seq.ReadRecord(r))
	}
	if err := s.err(); err != nil {
		return nil, err
	}
	if len(b.Records) == 0 {
		return nil, io.EOF
	}
	s.nextID++
	return b, nil
}

// lineSource passes SAM lines through unchanged.
type lineSource struct {
	r                  *linereader.Reader
	maxLines, maxBytes int
}

func (s *lineSource) next() (*seq.Batch, error) {
	b, err := s.r.NextBatch(s.maxLines, s.maxBytes)
	if err != nil {
		return nil, err
	}
	// The writers are poisoned once the whole stream has been submitted.
	b.Last = false
	return b, nil
}

// resolveKinds applies a -in-format or -out-format override to desc. The
// standard streams have no extension to guess from and default to FASTQ.
func resolveKinds(desc *format.Descriptor, override string) {
	switch {
	case override != "":
		desc.Kinds = format.ParseKind(override)
	case desc.Kinds == format.Unknown && desc.Std():
		desc.Kinds = format.FASTQ
	}
}

// openSource opens the inputs and returns the batch source, the captured SAM
// header for SAM input, and a function that closes the readers.
func openSource(ctx context.Context, o pipelineOpts) (batchSource, *samtext.HeaderContext, format.Kind, func() error, error) {
	desc := format.New(ctx, o.in, format.Read)
	resolveKinds(&desc, o.inFormat)
	if desc.Kinds.Count() != 1 {
		return nil, nil, 0, nil, errors.E(errors.Invalid, fmt.Sprintf("%s: cannot determine the input format; use -in-format", o.in))
	}
	r1, err := linereader.Open(ctx, desc, o.reader)
	if err != nil {
		return nil, nil, 0, nil, err
	}
	readers := []*linereader.Reader{r1}
	closeAll := func() error {
		var once errors.Once
		for _, r := range readers {
			once.Set(r.Close())
		}
		return once.Err()
	}
	vlog.VI(1).Infof("%s: %v input, %v backend", o.in, desc.Kinds, r1.Backend())

	nReads := o.batchLines / 4
	if nReads < 1 {
		nReads = 1
	}
	offset := byte(o.qinOffset)
	switch desc.Kinds {
	case format.FASTQ:
		if o.in2 == "" {
			s := fastq.NewScanner(r1, offset, seq.R1)
			return &readSource{scan: s.Scan, err: s.Err, size: nReads}, nil, desc.Kinds, closeAll, nil
		}
		desc2 := desc
		desc2.Path = o.in2
		r2, err := linereader.Open(ctx, desc2, o.reader)
		if err != nil {
			closeAll() // nolint: errcheck
			return nil, nil, 0, nil, err
		}
		readers = append(readers, r2)
		p := fastq.NewPairScanner(r1, r2, offset)
		scan := func(r *seq.Read) bool {
			return p.Scan(r, &seq.Read{})
		}
		return &readSource{scan: scan, err: p.Err, size: nReads}, nil, desc.Kinds, closeAll, nil
	case format.FASTA:
		s := fasta.NewScanner(r1, seq.R1)
		return &readSource{scan: s.Scan, err: s.Err, size: nReads}, nil, desc.Kinds, closeAll, nil
	case format.SAM:
		h, err := samtext.Capture(r1)
		if err != nil {
			closeAll() // nolint: errcheck
			return nil, nil, 0, nil, err
		}
		return &lineSource{r: r1, maxLines: o.batchLines, maxBytes: o.batchBytes}, h, desc.Kinds, closeAll, nil
	}
	closeAll() // nolint: errcheck
	return nil, nil, 0, nil, errors.E(errors.NotSupported, fmt.Sprintf("%s: cannot read %v input", o.in, desc.Kinds))
}

// openWriter creates the writer for path. first and second select the
// pairing roles it emits.
func openWriter(ctx context.Context, o pipelineOpts, path string, header *samtext.HeaderContext, inKind format.Kind, first, second bool) (seqwriter.Writer, error) {
	desc := format.New(ctx, path, format.Write)
	resolveKinds(&desc, o.outFormat)
	desc.Append = o.append
	desc.AllowSubprocess = o.allowSubprocess
	if inKind == format.SAM && !desc.Kinds.Has(format.SAM) && !desc.Kinds.Has(format.BAM) {
		return nil, errors.E(errors.NotSupported, fmt.Sprintf("%s: SAM input can only be written as SAM or BAM, not %v", path, desc.Kinds))
	}
	opts := o.writer
	opts.EmitFirst, opts.EmitSecond = first, second
	opts.Header = header
	if header == nil && o.refIndex != "" && (desc.Kinds.Has(format.SAM) || desc.Kinds.Has(format.BAM)) {
		refs, err := readIndex(ctx, o.refIndex)
		if err != nil {
			return nil, err
		}
		opts.Refs = refs
	}
	sink, err := seqwriter.OpenSink(ctx, desc, o.sink)
	if err != nil {
		return nil, err
	}
	w, err := seqwriter.New(sink, desc, opts)
	if err != nil {
		sink.Close() // nolint: errcheck
		return nil, err
	}
	return w, nil
}

func readIndex(ctx context.Context, path string) (refs []fasta.IndexEntry, err error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if e := f.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	if strings.HasSuffix(path, ".fai") {
		return fasta.ReadIndex(f.Reader(ctx))
	}
	// A FASTA file; index it on the fly.
	var idx bytes.Buffer
	if err := fasta.GenerateIndex(&idx, f.Reader(ctx)); err != nil {
		return nil, errors.E(err, "index", path)
	}
	return fasta.ReadIndex(&idx)
}

// run copies the input to the outputs. Batches are filtered by o.threads
// workers, put back in order, and handed to every writer.
func run(ctx context.Context, o pipelineOpts) (err error) {
	sampler, err := fastq.NewSampler(o.sampleRate, o.seed)
	if err != nil {
		return errors.E(errors.Invalid, err)
	}
	src, header, inKind, closeSource, err := openSource(ctx, o)
	if err != nil {
		return err
	}
	defer func() {
		if e := closeSource(); e != nil && err == nil {
			err = e
		}
	}()

	var writers []seqwriter.Writer
	if o.out2 == "" {
		w, err := openWriter(ctx, o, o.out, header, inKind, true, true)
		if err != nil {
			return err
		}
		writers = append(writers, w)
	} else {
		for _, out := range []struct {
			path          string
			first, second bool
		}{{o.out, true, false}, {o.out2, false, true}} {
			w, err := openWriter(ctx, o, out.path, header, inKind, out.first, out.second)
			if err != nil {
				for _, w := range writers {
					w.Close() // nolint: errcheck
				}
				return err
			}
			writers = append(writers, w)
		}
	}

	threads := o.threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	var (
		g, gctx = errgroup.WithContext(ctx)
		work    = make(chan *seq.Batch, threads)
		queue   = syncqueue.NewOrderedQueue(threads * 4)
	)
	g.Go(func() error {
		defer close(work)
		for {
			b, err := src.next()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			select {
			case work <- b:
			case <-gctx.Done():
				return nil
			}
		}
	})
	g.Go(func() error {
		var workers errgroup.Group
		for i := 0; i < threads; i++ {
			workers.Go(func() error {
				for b := range work {
					filter(b, sampler)
					if err := queue.Insert(int(b.ID), b); err != nil {
						return err
					}
				}
				return nil
			})
		}
		err := workers.Wait()
		queue.Close(err) // nolint: errcheck
		return err
	})
	g.Go(func() error {
		for {
			v, ok, err := queue.Next()
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			b := v.(*seq.Batch)
			for _, w := range writers {
				if err := w.SubmitBatch(gctx, b); err != nil {
					queue.Close(err) // nolint: errcheck
					return err
				}
			}
		}
	})
	err = g.Wait()
	for i, w := range writers {
		if e := w.Close(); e != nil && err == nil {
			err = e
		}
		log.Printf("output %d: %+v", i, w.Stats())
	}
	return err
}

// filter drops the reads rejected by the sampler. Raw lines are kept.
func filter(b *seq.Batch, s *fastq.Sampler) {
	kept := b.Records[:0]
	for _, r := range b.Records {
		if r.Read == nil || s.Keep(r.Read) {
			kept = append(kept, r)
		}
	}
	b.Records = kept
}
