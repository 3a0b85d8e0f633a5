package fastq

import (
	"errors"
	"io"

	"github.com/grailbio/seqio/encoding/quality"
	"github.com/grailbio/seqio/encoding/seq"
)

var (
	// ErrShort is returned when a truncated FASTQ file is encountered.
	ErrShort = errors.New("short FASTQ file")
	// ErrInvalid is returned when an invalid FASTQ file is encountered.
	ErrInvalid = errors.New("invalid FASTQ file")
	// ErrDiscordant is returned when two underlying FASTQ files are discordant.
	ErrDiscordant = errors.New("discordant FASTQ pairs")
)

// LineReader is the line source consumed by Scanner. It is implemented by
// *linereader.Reader. NextLine returns io.EOF at the end of the stream.
type LineReader interface {
	NextLine() ([]byte, error)
}

// Scanner decodes FASTQ reads from a line source. Scanners are not
// threadsafe.
//
// Scanner requires ID lines to begin with "@" and line 3 to begin with "+",
// but does not perform further validation (e.g., seq/qual being of equal
// length).
type Scanner struct {
	r      LineReader
	err    error
	offset byte
	pair   uint8
}

// NewScanner constructs a Scanner that reads lines from r. Quality text is
// decoded to raw scores using the given ASCII offset. Decoded reads are
// assigned pairing role pair.
func NewScanner(r LineReader, offset byte, pair uint8) *Scanner {
	return &Scanner{r: r, offset: offset, pair: pair}
}

// Scan the next read into the provided read. Scan returns a boolean
// indicating whether the scan succeeded. Once Scan returns false, it
// never returns true again. Upon completion, the user should check
// the Err method to determine whether scanning stopped because of an
// error or because the end of the stream was reached.
func (f *Scanner) Scan(read *seq.Read) bool {
	if f.err != nil {
		return false
	}
	id, err := f.r.NextLine()
	if err != nil {
		f.err = err
		return false
	}
	if len(id) == 0 || id[0] != '@' {
		f.err = ErrInvalid
		return false
	}
	var bases, unk, qual []byte
	if bases, err = f.next(); err != nil {
		return false
	}
	if unk, err = f.next(); err != nil {
		return false
	}
	if len(unk) == 0 || unk[0] != '+' {
		f.err = ErrInvalid
		return false
	}
	if qual, err = f.next(); err != nil {
		return false
	}
	*read = seq.Read{
		ID:    string(id[1:]),
		Bases: bases,
		Qual:  quality.Decode(make([]byte, 0, len(qual)), qual, f.offset),
		Pair:  f.pair,
	}
	return true
}

func (f *Scanner) next() ([]byte, error) {
	line, err := f.r.NextLine()
	if err == io.EOF {
		err = ErrShort
	}
	f.err = err
	return line, err
}

// Err returns the scanning error, if any.
func (f *Scanner) Err() error {
	if f.err == io.EOF {
		return nil
	}
	return f.err
}

// PairScanner composes a pair of scanners to scan a pair of FASTQ
// streams.
type PairScanner struct {
	r1, r2 *Scanner
	err    error
}

// NewPairScanner creates a new FASTQ pair scanner from the provided
// R1 and R2 line sources.
func NewPairScanner(r1, r2 LineReader, offset byte) *PairScanner {
	return &PairScanner{
		r1: NewScanner(r1, offset, seq.R1),
		r2: NewScanner(r2, offset, seq.R2),
	}
}

// Scan scans the next read pair into r1, r2 and links them as mates. Scan
// returns a boolean indicating whether the scan succeeded. Once Scan returns
// false, it never returns true again.
func (p *PairScanner) Scan(r1, r2 *seq.Read) bool {
	ok1 := p.r1.Scan(r1)
	ok2 := p.r2.Scan(r2)
	if ok1 != ok2 {
		p.err = ErrDiscordant
	}
	if ok1 && ok2 {
		r1.Mate, r2.Mate = r2, r1
	}
	return ok1 && ok2
}

// Err returns the scanning error, if any. It should be checked
// after Scan returns false.
func (p *PairScanner) Err() error {
	if err := p.r1.Err(); err != nil {
		return err
	}
	if err := p.r2.Err(); err != nil {
		return err
	}
	return p.err
}
