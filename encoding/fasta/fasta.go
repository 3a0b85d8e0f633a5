// Package fasta contains code for parsing and emitting FASTA text.  See
// http://www.htslib.org/doc/faidx.html.  Briefly, FASTA files consist of a
// number of named sequences that may be interrupted by newlines.  For example:
//
// >chr7
// ACGTAC
// GAGGAC
// GCG
// >chr8
// ACGT
//
// The package also reads and generates .fai indexes, which are used to
// synthesize SAM sequence dictionaries.
package fasta

import (
	"io"

	"github.com/grailbio/seqio/encoding/seq"
	"github.com/pkg/errors"
)

// DefaultWrap is the default number of bases per output line.
const DefaultWrap = 70

// LineReader is the line source consumed by Scanner. It is implemented by
// *linereader.Reader. The scanner pushes back the header line of the next
// sequence, so at most one line is pushed back between reads.
type LineReader interface {
	NextLine() ([]byte, error)
	PushBack(line []byte)
}

// Scanner decodes (possibly multi-line) FASTA sequences. Scanners are not
// threadsafe.
type Scanner struct {
	r    LineReader
	err  error
	pair uint8
	n    int
}

// NewScanner creates a Scanner over r. Decoded reads are assigned pairing
// role pair.
func NewScanner(r LineReader, pair uint8) *Scanner {
	return &Scanner{r: r, pair: pair}
}

// Scan reads the next sequence into read. It returns false at the end of the
// stream or on error; check Err to distinguish the two.
func (s *Scanner) Scan(read *seq.Read) bool {
	if s.err != nil {
		return false
	}
	var header []byte
	for {
		line, err := s.r.NextLine()
		if err != nil {
			s.err = err
			return false
		}
		if len(line) == 0 {
			continue
		}
		if line[0] != '>' {
			s.err = errors.Errorf("malformed FASTA file: sequence %d does not start with '>'", s.n)
			return false
		}
		header = line
		break
	}
	var bases []byte
	for {
		line, err := s.r.NextLine()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.err = errors.Wrap(err, "couldn't read FASTA data")
			return false
		}
		if len(line) > 0 && line[0] == '>' {
			s.r.PushBack(line)
			break
		}
		bases = append(bases, line...)
	}
	s.n++
	*read = seq.Read{ID: string(header[1:]), Bases: bases, Pair: s.pair}
	return true
}

// Err returns the scanning error, if any.
func (s *Scanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}

// Append appends the FASTA encoding of r to dst, breaking the bases every
// wrap characters. wrap <= 0 writes the bases on one line.
func Append(dst []byte, r *seq.Read, wrap int) []byte {
	dst = append(dst, '>')
	dst = append(dst, r.ID...)
	dst = append(dst, '\n')
	bases := r.Bases
	if wrap <= 0 || len(bases) <= wrap {
		dst = append(dst, bases...)
		return append(dst, '\n')
	}
	for len(bases) > 0 {
		n := wrap
		if n > len(bases) {
			n = len(bases)
		}
		dst = append(dst, bases[:n]...)
		dst = append(dst, '\n')
		bases = bases[n:]
	}
	return dst
}
