// Package quality encodes per-base quality scores for text output.
//
// Scores are raw phred values. Two representations are supported: the
// FASTQ character form, where each score becomes one byte (Offset+score), and
// the numeric form used by .qual files, where scores are written as
// space-separated decimals with a line break after every WrapWidth values.
package quality

import "strconv"

// Mode selects the textual representation of quality scores.
type Mode int

const (
	// Char encodes each score as a single byte, Offset+score.
	Char Mode = iota
	// Numeric encodes scores as space-separated decimal values.
	Numeric
)

// Opts configures quality encoding. One Opts value is normally shared by all
// the writers of a process.
type Opts struct {
	Mode Mode
	// Offset is the ASCII offset used in Char mode.
	Offset byte
	// FakeScore replaces every score of a read that has no quality data.
	FakeScore byte
	// WrapWidth is the number of values per line in Numeric mode. Values
	// <= 0 disable wrapping.
	WrapWidth int
}

// DefaultOpts is the Sanger/Illumina 1.8+ encoding.
var DefaultOpts = Opts{
	Mode:      Char,
	Offset:    33,
	FakeScore: 30,
	WrapWidth: 60,
}

// Append appends the encoding of qual to dst and returns the extended
// buffer. If qual is nil, n copies of opts.FakeScore are encoded instead.
// No trailing newline is written.
func Append(dst []byte, qual []byte, n int, opts Opts) []byte {
	if qual != nil {
		n = len(qual)
	}
	score := func(i int) byte {
		if qual == nil {
			return opts.FakeScore
		}
		return qual[i]
	}
	if opts.Mode == Char {
		for i := 0; i < n; i++ {
			dst = append(dst, opts.Offset+score(i))
		}
		return dst
	}
	for i := 0; i < n; i++ {
		if i > 0 {
			if opts.WrapWidth > 0 && i%opts.WrapWidth == 0 {
				dst = append(dst, '\n')
			} else {
				dst = append(dst, ' ')
			}
		}
		dst = strconv.AppendInt(dst, int64(score(i)), 10)
	}
	return dst
}

// Decode converts Char-mode text back to raw scores, appending to dst.
func Decode(dst []byte, text []byte, offset byte) []byte {
	for _, c := range text {
		dst = append(dst, c-offset)
	}
	return dst
}
