// Package samtext handles the text form of SAM: header blocks shared
// between writers, synthesized sequence dictionaries, unmapped records for
// decoded reads, and conversion of SAM lines into sam.Records for BAM output.
package samtext

import (
	"bytes"
	"io"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/seqio/encoding/fasta"
)

// LineReader is the line source consumed by Capture. It is implemented by
// *linereader.Reader.
type LineReader interface {
	NextLine() ([]byte, error)
	PushBack(line []byte)
}

// HeaderContext is a captured SAM header. It is populated once, upstream of
// the writers, and is read-only afterwards, so one context may be shared by
// any number of writers.
type HeaderContext struct {
	lines [][]byte
}

// NewHeaderContext creates a context from header text. Lines that do not
// start with '@' are ignored.
func NewHeaderContext(text []byte) *HeaderContext {
	h := &HeaderContext{}
	for _, line := range bytes.Split(text, []byte{'\n'}) {
		if len(line) > 0 && line[0] == '@' {
			h.lines = append(h.lines, line)
		}
	}
	return h
}

// Capture reads the header lines at the start of r. The first non-header line,
// if any, is pushed back so that the caller sees it on the next read.
func Capture(r LineReader) (*HeaderContext, error) {
	h := &HeaderContext{}
	for {
		line, err := r.NextLine()
		if err == io.EOF {
			return h, nil
		}
		if err != nil {
			return nil, errors.E(err, "capture SAM header")
		}
		if len(line) == 0 || line[0] != '@' {
			r.PushBack(line)
			return h, nil
		}
		h.lines = append(h.lines, line)
	}
}

// Len returns the number of header lines.
func (h *HeaderContext) Len() int { return len(h.lines) }

// AppendTo appends the header to dst, one line per header line. If dropSQ is
// set, the sequence dictionary (@SQ lines) is omitted.
func (h *HeaderContext) AppendTo(dst []byte, dropSQ bool) []byte {
	for _, line := range h.lines {
		if dropSQ && bytes.HasPrefix(line, []byte("@SQ\t")) {
			continue
		}
		dst = append(dst, line...)
		dst = append(dst, '\n')
	}
	return dst
}

// Parse converts the header to a sam.Header.
func (h *HeaderContext) Parse() (*sam.Header, error) {
	hdr, err := sam.NewHeader(h.AppendTo(nil, false), nil)
	if err != nil {
		return nil, errors.E(errors.Invalid, err, "parse SAM header")
	}
	return hdr, nil
}

// Program describes the @PG line written at the end of a synthesized
// header.
type Program struct {
	ID, Name, Version, CommandLine string
}

// Synthesize appends a freshly generated header to dst. The header consists
// of a fixed @HD prologue, one @SQ line per reference in refs[start:end], and
// a @PG epilogue. Out of range bounds are clamped.
func Synthesize(dst []byte, refs []fasta.IndexEntry, start, end int, pg Program) []byte {
	if end > len(refs) || end < 0 {
		end = len(refs)
	}
	if start < 0 {
		start = 0
	}
	dst = append(dst, "@HD\tVN:1.4\tSO:unsorted\n"...)
	for i := start; i < end; i++ {
		dst = append(dst, "@SQ\tSN:"...)
		dst = append(dst, refs[i].Name...)
		dst = append(dst, "\tLN:"...)
		dst = strconv.AppendUint(dst, refs[i].Length, 10)
		dst = append(dst, '\n')
	}
	dst = append(dst, "@PG\tID:"...)
	dst = append(dst, pg.ID...)
	for _, f := range [...]struct{ tag, val string }{
		{"PN", pg.Name}, {"VN", pg.Version}, {"CL", pg.CommandLine},
	} {
		if f.val == "" {
			continue
		}
		dst = append(dst, '\t')
		dst = append(dst, f.tag...)
		dst = append(dst, ':')
		dst = append(dst, f.val...)
	}
	return append(dst, '\n')
}
