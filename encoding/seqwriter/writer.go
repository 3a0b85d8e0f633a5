// Package seqwriter writes batches of records in one of the output kinds of
// package format.
//
// Two writers share one surface. Async owns a background goroutine that
// drains a bounded FIFO queue of batches, so producers only pay for encoding
// and I/O when the queue is full. Sync does all the work on the caller's
// goroutine and supports only FASTQ, FASTA and header output.
//
// Batches submitted with SubmitBatch must carry the IDs 0, 1, 2, ... in
// order; the writers never reorder. Producers that finish batches out of
// order must reorder them first, e.g., with a syncqueue.OrderedQueue.
//
// Write errors do not cross the goroutine boundary: they are recorded in a
// durable error state, observed through ErrorState and WaitForFinish.
//
// Example:
//
//   sink, err := seqwriter.OpenSink(ctx, desc, seqwriter.SinkOpts{})
//   w, err := seqwriter.NewAsync(sink, desc, seqwriter.DefaultOpts)
//   for ... {
//     if err := w.SubmitBatch(ctx, batch); err != nil { ... }
//   }
//   err = w.Close()
package seqwriter

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/seqio/encoding/fasta"
	"github.com/grailbio/seqio/encoding/format"
	"github.com/grailbio/seqio/encoding/quality"
	"github.com/grailbio/seqio/encoding/samtext"
	"github.com/grailbio/seqio/encoding/seq"
)

// State is the lifecycle state of a writer. States only advance.
type State int32

const (
	// Created is the state after construction.
	Created State = iota
	// Started is entered on Start or on the first submission.
	Started
	// Running is entered when the first batch is written.
	Running
	// Poisoned is entered once no further batches will be accepted.
	Poisoned
	// Closed is entered after the sink has been released.
	Closed
)

var stateNames = [...]string{"created", "started", "running", "poisoned", "closed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int32(s))
	}
	return stateNames[s]
}

// stateVar is an atomically advanced State.
type stateVar int32

func (v *stateVar) load() State { return State(atomic.LoadInt32((*int32)(v))) }

func (v *stateVar) advance(s State) {
	for {
		cur := atomic.LoadInt32((*int32)(v))
		if State(cur) >= s || atomic.CompareAndSwapInt32((*int32)(v), cur, int32(s)) {
			return
		}
	}
}

// Opts configures a writer. The zero value is not usable; start from
// DefaultOpts.
type Opts struct {
	// QueueSize is the number of batches the Async queue holds before
	// SubmitBatch blocks.
	QueueSize int
	// EmitFirst and EmitSecond select the pairing roles written. Setting
	// only one of them writes one side of each pair (split output);
	// setting both interleaves the mates.
	EmitFirst, EmitSecond bool
	// Quality controls the encoding of quality scores.
	Quality quality.Opts
	// FastaWrap is the FASTA line width. Zero disables wrapping.
	FastaWrap int

	// NoHeader suppresses the SAM header.
	NoHeader bool
	// DropSequenceDictionary drops the @SQ lines of a copied header.
	DropSequenceDictionary bool
	// Header, if set, is copied verbatim as the SAM header.
	Header *samtext.HeaderContext
	// Refs[RefStart:RefEnd] is used to synthesize a SAM header when Header
	// is nil. RefEnd < 0 means len(Refs).
	Refs             []fasta.IndexEntry
	RefStart, RefEnd int
	// Program is the @PG line of a synthesized header.
	Program samtext.Program
	// BAMThreads is the compression parallelism of BAM output.
	BAMThreads int

	// Metrics, if set, receives the writer's counters.
	Metrics *Metrics
	// Sync makes New create a Sync writer when the kind allows it.
	Sync bool
}

// DefaultOpts emits both pairing roles with the default quality encoding.
var DefaultOpts = Opts{
	QueueSize:  4,
	EmitFirst:  true,
	EmitSecond: true,
	Quality:    quality.DefaultOpts,
	FastaWrap:  fasta.DefaultWrap,
	RefEnd:     -1,
	Program:    samtext.Program{ID: "seqio", Name: "seqio"},
	BAMThreads: 1,
}

// Stats holds the cumulative counters of a writer.
type Stats struct {
	Batches int64
	Records int64
	Bytes   int64
}

// Writer is the surface shared by Async and Sync.
type Writer interface {
	// Start transitions the writer to Started. It is idempotent.
	Start()
	// SubmitBatch writes b. b.ID must be the next expected batch ID.
	SubmitBatch(ctx context.Context, b *seq.Batch) error
	// SubmitList writes records as a batch with an internally assigned ID,
	// bypassing the ordering check.
	SubmitList(ctx context.Context, records []seq.Record) error
	// Poison signals that no further batches will be submitted.
	Poison()
	// WaitForFinish blocks until the poison has been processed and returns
	// the writer's error, if any.
	WaitForFinish() error
	// ErrorState reports whether a write has failed.
	ErrorState() bool
	// FinishedSuccessfully reports whether the writer finished without
	// error.
	FinishedSuccessfully() bool
	// Close poisons the writer if needed, waits for it to finish and
	// releases the sink.
	Close() error
	// State returns the lifecycle state.
	State() State
	// Stats returns the cumulative counters.
	Stats() Stats
}

// checkConfig validates the invariants shared by all writers.
func checkConfig(desc format.Descriptor, opts Opts) error {
	if n := desc.Kinds.Count(); n != 1 {
		return errors.E(errors.Invalid, fmt.Sprintf("%s: exactly one output kind must be set, found %d (%v)", desc.Path, n, desc.Kinds))
	}
	if !opts.EmitFirst && !opts.EmitSecond {
		return errors.E(errors.Invalid, desc.Path+": at least one pairing role must be emitted")
	}
	return nil
}

func sequenceError(got, want int64) error {
	return errors.E(errors.Precondition, fmt.Sprintf("out of order batch: got id %d, expected %d", got, want))
}

// syncKinds are the kinds supported by Sync.
const syncKinds = format.FASTQ | format.FASTA | format.Header

// New creates a Sync writer if opts.Sync is set and the kind of desc allows
// it, and an Async writer otherwise.
func New(sink io.WriteCloser, desc format.Descriptor, opts Opts) (Writer, error) {
	if opts.Sync && desc.Kinds.Count() == 1 && syncKinds.Has(desc.Kinds) {
		return NewSync(sink, desc, opts)
	}
	return NewAsync(sink, desc, opts)
}
