package linereader

import (
	"bufio"
	"io"
)

// source produces lines for a Reader. next returns a line without its
// terminating '\n'; the slice belongs to the caller. It returns io.EOF after
// the last line.
type source interface {
	next() ([]byte, error)
	close() error
}

type simpleSource struct {
	r      *bufio.Reader
	closer io.Closer
}

func newSimpleSource(in io.Reader, closer io.Closer, bufSize int) *simpleSource {
	return &simpleSource{r: bufio.NewReaderSize(in, bufSize), closer: closer}
}

func (s *simpleSource) next() ([]byte, error) {
	return readLine(s.r)
}

func (s *simpleSource) close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// readLine reads one line from r. Lines longer than the buffer are
// reassembled. A final line without a terminator is returned as is.
func readLine(r *bufio.Reader) ([]byte, error) {
	frag, err := r.ReadSlice('\n')
	if err == nil {
		return append([]byte(nil), frag[:len(frag)-1]...), nil
	}
	line := append([]byte(nil), frag...)
	for err == bufio.ErrBufferFull {
		frag, err = r.ReadSlice('\n')
		line = append(line, frag...)
	}
	switch {
	case err == nil:
		return line[:len(line)-1], nil
	case err == io.EOF && len(line) > 0:
		return line, nil
	}
	return nil, err
}
