package samtext

import (
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/seqio/encoding/fastq"
	"github.com/grailbio/seqio/encoding/quality"
	"github.com/grailbio/seqio/encoding/seq"
)

// AppendUnmapped appends r as an unmapped SAM record. Paired reads get the
// paired, mate-unmapped and first/second-in-pair flags. Quality scores are
// always written in the character form with q.Offset; reads without quality
// data get "*".
func AppendUnmapped(dst []byte, r *seq.Read, q quality.Opts) []byte {
	flags := sam.Unmapped
	if r.Mate != nil {
		flags |= sam.Paired | sam.MateUnmapped
		if r.Pair == seq.R2 {
			flags |= sam.Read2
		} else {
			flags |= sam.Read1
		}
	}
	dst = append(dst, fastq.PairName(r.ID)...)
	dst = append(dst, '\t')
	dst = strconv.AppendInt(dst, int64(flags), 10)
	dst = append(dst, "\t*\t0\t0\t*\t*\t0\t0\t"...)
	if len(r.Bases) == 0 {
		dst = append(dst, '*')
	} else {
		dst = append(dst, r.Bases...)
	}
	dst = append(dst, '\t')
	if r.Qual == nil || len(r.Bases) == 0 {
		dst = append(dst, '*')
	} else {
		q.Mode = quality.Char
		dst = quality.Append(dst, r.Qual, len(r.Qual), q)
	}
	return append(dst, '\n')
}

// ParseRecord parses one SAM alignment line.
func ParseRecord(h *sam.Header, line []byte) (*sam.Record, error) {
	r := &sam.Record{}
	if err := r.UnmarshalSAM(h, line); err != nil {
		return nil, errors.E(errors.Invalid, err, "parse SAM record")
	}
	return r, nil
}
