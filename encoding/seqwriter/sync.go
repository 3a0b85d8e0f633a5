package seqwriter

import (
	"context"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/seqio/encoding/format"
	"github.com/grailbio/seqio/encoding/seq"
)

// Sync writes each batch on the caller's goroutine before SubmitBatch
// returns. It supports FASTQ, FASTA and header output. A Sync writer is not
// safe for concurrent use.
type Sync struct {
	desc format.Descriptor
	opts Opts
	enc  *encoder
	sink io.WriteCloser

	expected int64
	poisoned bool
	closed   bool
	state    stateVar
	err      errors.Once
	stats    Stats
	buf      []byte
}

// NewSync creates a synchronous writer of the single kind in desc.Kinds onto
// sink.
func NewSync(sink io.WriteCloser, desc format.Descriptor, opts Opts) (*Sync, error) {
	if err := checkConfig(desc, opts); err != nil {
		return nil, err
	}
	if !syncKinds.Has(desc.Kinds) {
		return nil, errors.E(errors.NotSupported, fmt.Sprintf("%s: synchronous writer does not support %v output", desc.Path, desc.Kinds))
	}
	return &Sync{desc: desc, opts: opts, enc: newEncoder(desc, opts), sink: sink}, nil
}

// Start implements Writer.
func (w *Sync) Start() { w.state.advance(Started) }

// SubmitBatch encodes and writes b. It fails with errors.Precondition if
// b.ID is not the next expected ID.
func (w *Sync) SubmitBatch(ctx context.Context, b *seq.Batch) error {
	w.Start()
	if b.Poison {
		w.Poison()
		return nil
	}
	if w.poisoned {
		return errors.E(errors.Precondition, w.desc.Path+": submit after poison")
	}
	if b.ID != w.expected {
		return sequenceError(b.ID, w.expected)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	w.expected++
	err := w.write(b.Records)
	if b.Last {
		w.Poison()
	}
	return err
}

// SubmitList implements Writer.
func (w *Sync) SubmitList(ctx context.Context, records []seq.Record) error {
	w.Start()
	if w.poisoned {
		return errors.E(errors.Precondition, w.desc.Path+": submit after poison")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return w.write(records)
}

func (w *Sync) write(records []seq.Record) error {
	if w.ErrorState() {
		return w.err.Err()
	}
	w.state.advance(Running)
	var n int
	w.buf, n = w.enc.encode(w.buf[:0], records)
	if len(w.buf) > 0 {
		if _, err := w.sink.Write(w.buf); err != nil {
			err = errors.E(err, w.desc.Path)
			w.err.Set(err)
			w.opts.Metrics.failed(w.desc.Kinds)
			return err
		}
	}
	w.stats.Batches++
	w.stats.Records += int64(n)
	w.stats.Bytes += int64(len(w.buf))
	w.opts.Metrics.observe(w.desc.Kinds, n, len(w.buf))
	return nil
}

// Poison implements Writer.
func (w *Sync) Poison() {
	if w.poisoned {
		return
	}
	w.poisoned = true
	w.state.advance(Poisoned)
	if f, ok := w.sink.(flusher); ok {
		w.err.Set(f.Flush())
	}
}

// WaitForFinish returns the first write error. It does not block.
func (w *Sync) WaitForFinish() error { return w.err.Err() }

// ErrorState implements Writer.
func (w *Sync) ErrorState() bool { return w.err.Err() != nil }

// FinishedSuccessfully implements Writer.
func (w *Sync) FinishedSuccessfully() bool { return w.poisoned && !w.ErrorState() }

// Close poisons the writer and closes the sink.
func (w *Sync) Close() error {
	w.Poison()
	if !w.closed {
		w.closed = true
		w.err.Set(w.sink.Close())
		w.state.advance(Closed)
	}
	return w.err.Err()
}

// State implements Writer.
func (w *Sync) State() State { return w.state.load() }

// Stats implements Writer.
func (w *Sync) Stats() Stats { return w.stats }
