package seqwriter

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/seqio/encoding/format"
	"github.com/grailbio/seqio/encoding/seq"
	"v.io/x/lib/vlog"
)

// job is one entry of the Async queue. A poison job terminates the consumer;
// if close is also set, the consumer releases the sink before exiting.
type job struct {
	id     int64
	batch  *seq.Batch
	poison bool
	close  bool
}

// Async writes batches on a background goroutine. Producers submit batches
// into a bounded queue; a single consumer encodes them and writes them to the
// sink in submission order.
//
// All methods are safe for concurrent use. The ordering check of SubmitBatch
// makes concurrent submitters pointless, though, unless they coordinate the
// batch IDs among themselves.
type Async struct {
	desc format.Descriptor
	opts Opts
	enc  *encoder
	sink io.WriteCloser

	// mu serializes submissions, so that the ID check and the enqueue are
	// atomic.
	mu       sync.Mutex
	expected int64 // next ID accepted by SubmitBatch
	listID   int64 // next ID assigned by SubmitList
	poisoned bool

	queue     chan job
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
	state     stateVar

	err      errors.Once
	finished int32

	// Accessed atomically.
	nBatches, nRecords, nBytes int64

	buf []byte // consumer only
}

// NewAsync creates a writer of the single kind in desc.Kinds onto sink. The
// SAM header, if any, is written before NewAsync returns. The consumer
// goroutine is started by Start or on the first submission.
func NewAsync(sink io.WriteCloser, desc format.Descriptor, opts Opts) (*Async, error) {
	if err := checkConfig(desc, opts); err != nil {
		return nil, err
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	w := &Async{
		desc:  desc,
		opts:  opts,
		enc:   newEncoder(desc, opts),
		sink:  sink,
		queue: make(chan job, opts.QueueSize),
		done:  make(chan struct{}),
	}
	n, err := w.enc.prologue(desc, sink)
	if err != nil {
		return nil, errors.E(err, desc.Path+": write header")
	}
	w.nBytes = int64(n)
	vlog.VI(1).Infof("%s: created async %v writer, queue size %d", desc.Path, desc.Kinds, opts.QueueSize)
	return w, nil
}

// Start starts the consumer goroutine. It is idempotent.
func (w *Async) Start() {
	w.startOnce.Do(func() {
		w.state.advance(Started)
		go w.loop()
	})
}

// SubmitBatch enqueues b, blocking while the queue is full. It fails with
// errors.Precondition, and enqueues nothing, if b.ID is not the next expected
// ID. If ctx is done before b is enqueued, SubmitBatch returns ctx.Err() and
// the expected ID does not advance.
//
// A batch with Poison set poisons the writer instead of being written. A
// batch with Last set poisons the writer after being enqueued.
func (w *Async) SubmitBatch(ctx context.Context, b *seq.Batch) error {
	w.Start()
	if b.Poison {
		w.Poison()
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.poisoned {
		return errors.E(errors.Precondition, w.desc.Path+": submit after poison")
	}
	if b.ID != w.expected {
		return sequenceError(b.ID, w.expected)
	}
	if err := w.enqueue(ctx, job{id: b.ID, batch: b}); err != nil {
		return err
	}
	w.expected++
	if b.Last {
		w.poisonLocked(false)
	}
	return nil
}

// SubmitList enqueues records as a batch with an internally assigned ID.
// It skips the ordering check, so the caller is responsible for not mixing it
// with concurrent calls to SubmitBatch.
func (w *Async) SubmitList(ctx context.Context, records []seq.Record) error {
	w.Start()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.poisoned {
		return errors.E(errors.Precondition, w.desc.Path+": submit after poison")
	}
	id := w.listID
	if err := w.enqueue(ctx, job{id: id, batch: &seq.Batch{ID: id, Records: records}}); err != nil {
		return err
	}
	w.listID++
	return nil
}

// REQUIRES: w.mu is held.
func (w *Async) enqueue(ctx context.Context, j job) error {
	select {
	case w.queue <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Poison enqueues the terminal job. It blocks while the queue is full and
// is idempotent. Poison starts the consumer if needed.
func (w *Async) Poison() {
	w.Start()
	w.mu.Lock()
	w.poisonLocked(false)
	w.mu.Unlock()
}

// REQUIRES: w.mu is held.
func (w *Async) poisonLocked(close bool) {
	if w.poisoned {
		return
	}
	w.poisoned = true
	w.state.advance(Poisoned)
	w.queue <- job{id: w.expected, poison: true, close: close}
}

// WaitForFinish blocks until the consumer has processed the terminal job, and
// returns the first write error. The writer must have been poisoned.
func (w *Async) WaitForFinish() error {
	<-w.done
	return w.err.Err()
}

// ErrorState reports whether any write has failed.
func (w *Async) ErrorState() bool { return w.err.Err() != nil }

// FinishedSuccessfully reports whether the consumer has processed the
// terminal job without any write error.
func (w *Async) FinishedSuccessfully() bool {
	return atomic.LoadInt32(&w.finished) == 1 && !w.ErrorState()
}

// Close poisons the writer if needed, waits for the queue to drain and
// closes the sink. Closing a writer that was never started is valid and
// emits only the header. Close returns the first error encountered.
func (w *Async) Close() error {
	w.Start()
	w.mu.Lock()
	w.poisonLocked(true)
	w.mu.Unlock()
	<-w.done
	w.release()
	return w.err.Err()
}

// State returns the lifecycle state.
func (w *Async) State() State { return w.state.load() }

// Stats returns the cumulative counters.
func (w *Async) Stats() Stats {
	return Stats{
		Batches: atomic.LoadInt64(&w.nBatches),
		Records: atomic.LoadInt64(&w.nRecords),
		Bytes:   atomic.LoadInt64(&w.nBytes),
	}
}

func (w *Async) loop() {
	defer close(w.done)
	for j := range w.queue {
		if j.poison {
			w.err.Set(w.enc.epilogue())
			if f, ok := w.sink.(flusher); ok {
				w.err.Set(f.Flush())
			}
			if j.close {
				w.release()
			}
			atomic.StoreInt32(&w.finished, 1)
			vlog.VI(1).Infof("%s: writer finished: %+v", w.desc.Path, w.Stats())
			return
		}
		w.state.advance(Running)
		w.write(j.batch)
	}
}

// write encodes and writes one batch. After the first error, batches are
// still dequeued but no longer written.
func (w *Async) write(b *seq.Batch) {
	if w.ErrorState() {
		return
	}
	var (
		records, size int
		err           error
	)
	if w.enc.bam != nil {
		records, size, err = w.enc.writeBAM(b.Records)
	} else {
		w.buf, records = w.enc.encode(w.buf[:0], b.Records)
		size = len(w.buf)
		if size > 0 {
			_, err = w.sink.Write(w.buf)
		}
	}
	if err != nil {
		log.Error.Printf("%s: write batch %d: %v", w.desc.Path, b.ID, err)
		w.err.Set(errors.E(err, w.desc.Path))
		w.opts.Metrics.failed(w.desc.Kinds)
		return
	}
	atomic.AddInt64(&w.nBatches, 1)
	atomic.AddInt64(&w.nRecords, int64(records))
	atomic.AddInt64(&w.nBytes, int64(size))
	w.opts.Metrics.observe(w.desc.Kinds, records, size)
}

func (w *Async) release() {
	w.closeOnce.Do(func() {
		w.err.Set(w.sink.Close())
		w.state.advance(Closed)
	})
}
