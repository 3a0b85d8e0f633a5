package fastq

import (
	"math"
	"strings"

	farm "github.com/dgryski/go-farm"
	"github.com/grailbio/seqio/encoding/seq"
	"github.com/pkg/errors"
)

// Sampler keeps reads at a fixed rate. The decision depends only on the
// read name and the seed, so the two mates of a pair are kept or dropped
// together even when they are read from separate files.
type Sampler struct {
	seed      uint64
	threshold uint64
	all       bool
}

// NewSampler creates a Sampler that keeps about rate*N of N reads.
func NewSampler(rate float64, seed uint64) (*Sampler, error) {
	if rate < 0.0 || rate > 1.0 {
		return nil, errors.New("rate must be between 0 and 1 (inclusive)")
	}
	return &Sampler{
		seed:      seed,
		threshold: uint64(rate * math.MaxUint64),
		all:       rate == 1.0,
	}, nil
}

// Keep reports whether r should be retained.
func (s *Sampler) Keep(r *seq.Read) bool {
	if s.all {
		return true
	}
	return farm.Hash64WithSeed([]byte(PairName(r.ID)), s.seed) < s.threshold
}

// PairName strips the parts of a read name that differ between mates: any
// comment after the first space and a trailing "/1" or "/2".
func PairName(id string) string {
	if i := strings.IndexAny(id, " \t"); i >= 0 {
		id = id[:i]
	}
	if n := len(id); n >= 2 && id[n-2] == '/' && (id[n-1] == '1' || id[n-1] == '2') {
		id = id[:n-2]
	}
	return id
}
