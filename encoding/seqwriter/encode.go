package seqwriter

import (
	"bytes"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/seqio/encoding/fasta"
	"github.com/grailbio/seqio/encoding/fastq"
	"github.com/grailbio/seqio/encoding/format"
	"github.com/grailbio/seqio/encoding/samtext"
	"github.com/grailbio/seqio/encoding/seq"
)

// encoder turns records into the bytes of one output kind.
type encoder struct {
	kind format.Kind
	opts Opts

	// Set for BAM output only.
	header  *sam.Header
	bam     *bam.Writer
	scratch []byte
}

func newEncoder(desc format.Descriptor, opts Opts) *encoder {
	return &encoder{kind: desc.Kinds, opts: opts}
}

// headerText returns the SAM header to emit, copied from opts.Header or
// synthesized from opts.Refs.
func headerText(opts Opts) []byte {
	if opts.Header != nil {
		return opts.Header.AppendTo(nil, opts.DropSequenceDictionary)
	}
	refs := opts.Refs
	if opts.DropSequenceDictionary {
		refs = nil
	}
	return samtext.Synthesize(nil, refs, opts.RefStart, opts.RefEnd, opts.Program)
}

// prologue writes whatever must precede the first batch: the SAM header, or
// the BAM header and the BAM writer itself.
func (e *encoder) prologue(desc format.Descriptor, w io.Writer) (int, error) {
	switch e.kind {
	case format.SAM:
		if e.opts.NoHeader || (desc.Append && desc.Exists) {
			return 0, nil
		}
		return w.Write(headerText(e.opts))
	case format.BAM:
		h, err := samtext.NewHeaderContext(headerText(e.opts)).Parse()
		if err != nil {
			return 0, errors.E(errors.Invalid, err, desc.Path+": build BAM header")
		}
		threads := e.opts.BAMThreads
		if threads < 1 {
			threads = 1
		}
		if e.bam, err = bam.NewWriter(w, h, threads); err != nil {
			return 0, errors.E(err, desc.Path+": create BAM writer")
		}
		e.header = h
	}
	return 0, nil
}

// encode appends the encoding of records to dst. It returns the number of
// records encoded.
func (e *encoder) encode(dst []byte, records []seq.Record) ([]byte, int) {
	n := 0
	for _, rec := range records {
		if rec.Read == nil {
			if e.kind == format.SAM && e.opts.NoHeader && len(rec.Line) > 0 && rec.Line[0] == '@' {
				continue
			}
			dst = append(dst, rec.Line...)
			dst = append(dst, '\n')
			n++
			continue
		}
		first, second := rec.Read.Roles()
		if first != nil && e.opts.EmitFirst {
			dst = e.appendRead(dst, first)
			n++
		}
		if second != nil && e.opts.EmitSecond {
			dst = e.appendRead(dst, second)
			n++
		}
	}
	return dst, n
}

func (e *encoder) appendRead(dst []byte, r *seq.Read) []byte {
	switch e.kind {
	case format.FASTQ:
		return fastq.Append(dst, r, e.opts.Quality)
	case format.FASTA:
		return fasta.Append(dst, r, e.opts.FastaWrap)
	case format.SAM, format.BAM:
		return samtext.AppendUnmapped(dst, r, e.opts.Quality)
	case format.Header:
		dst = append(dst, r.ID...)
		return append(dst, '\n')
	case format.OneLine:
		dst = append(dst, r.ID...)
		dst = append(dst, '\t')
		dst = append(dst, r.Bases...)
		return append(dst, '\n')
	case format.Attachment, format.Sites:
		if r.Attachment == nil {
			return dst
		}
		dst = append(dst, r.Attachment...)
		return append(dst, '\n')
	}
	return dst
}

// writeBAM converts records to SAM text and writes them as BAM records. It
// returns the number of records and the number of SAM text bytes written.
func (e *encoder) writeBAM(records []seq.Record) (int, int, error) {
	var n int
	e.scratch, n = e.encode(e.scratch[:0], records)
	size := len(e.scratch)
	text := e.scratch
	for len(text) > 0 {
		var line []byte
		if i := bytes.IndexByte(text, '\n'); i >= 0 {
			line, text = text[:i], text[i+1:]
		} else {
			line, text = text, nil
		}
		if len(line) == 0 || line[0] == '@' {
			continue
		}
		rec, err := samtext.ParseRecord(e.header, line)
		if err != nil {
			return 0, 0, err
		}
		if err := e.bam.Write(rec); err != nil {
			return 0, 0, err
		}
	}
	return n, size, nil
}

// epilogue flushes any state held by the encoder.
func (e *encoder) epilogue() error {
	if e.bam != nil {
		return e.bam.Close()
	}
	return nil
}
