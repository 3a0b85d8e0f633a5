//go:build !linux && !darwin && !freebsd
// +build !linux,!darwin,!freebsd

package linereader

import "github.com/grailbio/base/errors"

const mmapSupported = false

type mmapSource struct{}

func newMmapSource(path string) (*mmapSource, error) {
	return nil, errors.E(errors.NotSupported, "mmap", path)
}

func (s *mmapSource) next() ([]byte, error) { panic("mmap not supported") }

func (s *mmapSource) close() error { return nil }
