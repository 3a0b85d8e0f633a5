package seqwriter_test

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/grailbio/seqio/encoding/seq"
)

// memSink is an in-memory io.WriteCloser that counts write calls. If failAt
// is positive, the failAt'th write and all later ones fail.
type memSink struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	writes int
	closed int
	failAt int
	// block, if non-nil, is received from before every write.
	block chan struct{}
}

func (s *memSink) Write(p []byte) (int, error) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if s.failAt > 0 && s.writes >= s.failAt {
		return 0, fmt.Errorf("disk full")
	}
	return s.buf.Write(p)
}

func (s *memSink) Close() error {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
	return nil
}

func (s *memSink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func (s *memSink) numWrites() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// pair returns a linked R1/R2 read pair named name.
func pair(name string) (*seq.Read, *seq.Read) {
	r1 := &seq.Read{ID: name + "/1", Bases: []byte("ACGT"), Qual: []byte{30, 30, 30, 30}, Pair: seq.R1}
	r2 := &seq.Read{ID: name + "/2", Bases: []byte("TTGG"), Pair: seq.R2}
	r1.Mate, r2.Mate = r2, r1
	return r1, r2
}

// lineBatch creates a batch of raw lines.
func lineBatch(id int64, lines ...string) *seq.Batch {
	b := &seq.Batch{ID: id}
	for _, l := range lines {
		b.Records = append(b.Records, seq.LineRecord([]byte(l)))
	}
	return b
}
