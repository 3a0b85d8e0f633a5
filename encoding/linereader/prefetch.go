package linereader

import (
	"bufio"
	"io"
	"sync"
)

const (
	prefetchBlockLines = 1024
	prefetchBlockBytes = 1 << 20
	prefetchDepth      = 4
)

type lineBlock struct {
	lines [][]byte
	err   error
}

// prefetchSource reads blocks of lines on a background goroutine. The
// goroutine blocks in Read for as long as the underlying stream does.
type prefetchSource struct {
	ch      chan lineBlock
	stop    chan struct{}
	closer  io.Closer
	cur     [][]byte
	err     error
	stopped sync.Once
}

func newPrefetchSource(in io.Reader, closer io.Closer, bufSize int) *prefetchSource {
	s := &prefetchSource{
		ch:     make(chan lineBlock, prefetchDepth),
		stop:   make(chan struct{}),
		closer: closer,
	}
	go s.fill(bufio.NewReaderSize(in, bufSize))
	return s
}

func (s *prefetchSource) fill(r *bufio.Reader) {
	defer close(s.ch)
	for {
		var (
			b     lineBlock
			nByte int
		)
		for len(b.lines) < prefetchBlockLines && nByte < prefetchBlockBytes {
			line, err := readLine(r)
			if err != nil {
				b.err = err
				break
			}
			b.lines = append(b.lines, line)
			nByte += len(line)
		}
		select {
		case s.ch <- b:
		case <-s.stop:
			return
		}
		if b.err != nil {
			return
		}
	}
}

func (s *prefetchSource) next() ([]byte, error) {
	for len(s.cur) == 0 {
		if s.err != nil {
			return nil, s.err
		}
		b, ok := <-s.ch
		if !ok {
			s.err = io.ErrUnexpectedEOF
			continue
		}
		s.cur, s.err = b.lines, b.err
	}
	line := s.cur[0]
	s.cur[0] = nil
	s.cur = s.cur[1:]
	return line, nil
}

func (s *prefetchSource) close() error {
	s.stopped.Do(func() { close(s.stop) })
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
