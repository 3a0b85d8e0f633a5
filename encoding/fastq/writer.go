package fastq

import (
	"github.com/grailbio/seqio/encoding/quality"
	"github.com/grailbio/seqio/encoding/seq"
)

// Append appends the FASTQ encoding of r to dst and returns the extended
// buffer. Reads without quality data get q.FakeScore for every base.
func Append(dst []byte, r *seq.Read, q quality.Opts) []byte {
	dst = append(dst, '@')
	dst = append(dst, r.ID...)
	dst = append(dst, '\n')
	dst = append(dst, r.Bases...)
	dst = append(dst, "\n+\n"...)
	dst = quality.Append(dst, r.Qual, len(r.Bases), q)
	return append(dst, '\n')
}
