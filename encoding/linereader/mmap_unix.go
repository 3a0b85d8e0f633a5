//go:build linux || darwin || freebsd
// +build linux darwin freebsd

package linereader

import (
	"bytes"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

const mmapSupported = true

// mmapSource iterates over the lines of a memory-mapped file.
type mmapSource struct {
	data []byte
	off  int
}

func newMmapSource(path string) (*mmapSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() // The mapping outlives the descriptor.
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return &mmapSource{data: data}, nil
}

func (s *mmapSource) next() ([]byte, error) {
	if s.off >= len(s.data) {
		return nil, io.EOF
	}
	rest := s.data[s.off:]
	n := bytes.IndexByte(rest, '\n')
	if n < 0 {
		s.off = len(s.data)
		return append([]byte(nil), rest...), nil
	}
	s.off += n + 1
	return append([]byte(nil), rest[:n]...), nil
}

func (s *mmapSource) close() error {
	if s.data == nil {
		return nil
	}
	err := unix.Munmap(s.data)
	s.data = nil
	return err
}
