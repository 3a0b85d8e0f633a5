package linereader

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/pbnjay/memory"
)

// Backend is a line reading strategy. Backends are ordered by
// sophistication: a higher value is faster on large inputs but carries more
// risk on specific inputs.
type Backend int

const (
	// Auto lets Select pick a backend.
	Auto Backend = iota
	// Simple reads lines on the caller's goroutine through a bufio.Reader.
	// It is always enabled.
	Simple
	// Prefetch reads blocks of lines ahead on a background goroutine. A
	// source that never closes (e.g., a stalled pipe) can leave the
	// goroutine blocked indefinitely.
	Prefetch
	// Mmap maps a local uncompressed regular file into memory. Truncating
	// the file while it is mapped faults the process.
	Mmap
)

var backendNames = [...]string{"auto", "simple", "prefetch", "mmap"}

// String implements fmt.Stringer.
func (b Backend) String() string {
	if b < 0 || int(b) >= len(backendNames) {
		return fmt.Sprintf("backend(%d)", int(b))
	}
	return backendNames[b]
}

// ParseBackend parses a backend name, as produced by String.
func ParseBackend(name string) (Backend, error) {
	for i, n := range backendNames {
		if strings.EqualFold(n, name) {
			return Backend(i), nil
		}
	}
	return Auto, fmt.Errorf("unknown line reader backend %q", name)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Backend) UnmarshalText(text []byte) error {
	v, err := ParseBackend(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (b Backend) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

// Capabilities enables or disables the risky backends. Disabling a backend
// lets operators avoid a known hazard without code changes.
type Capabilities struct {
	Prefetch bool `yaml:"prefetch"`
	Mmap     bool `yaml:"mmap"`
}

// DefaultCapabilities enables Prefetch. Mmap is opt-in.
var DefaultCapabilities = Capabilities{Prefetch: true}

// Enabled reports whether b may be selected.
func (c Capabilities) Enabled(b Backend) bool {
	switch b {
	case Simple:
		return true
	case Prefetch:
		return c.Prefetch
	case Mmap:
		return c.Mmap
	}
	return false
}

// Opts configures Open.
type Opts struct {
	// Force, if not Auto, is used regardless of Capabilities.
	Force Backend
	// Prefer, if not Auto, is used when it is enabled.
	Prefer Backend
	// Capabilities lists the enabled backends.
	Capabilities Capabilities
	// LowMemory causes the heuristic to pick Simple.
	LowMemory bool
	// Parallelism is the number of usable CPUs. Zero means GOMAXPROCS.
	Parallelism int
	// BufferSize is the size of the read buffer. Zero means 64KiB.
	BufferSize int
}

// DefaultOpts is the default configuration.
var DefaultOpts = Opts{Capabilities: DefaultCapabilities}

func (o Opts) parallelism() int {
	if o.Parallelism > 0 {
		return o.Parallelism
	}
	return runtime.GOMAXPROCS(0)
}

func (o Opts) bufferSize() int {
	if o.BufferSize > 0 {
		return o.BufferSize
	}
	return 64 << 10
}

// descending lists the advanced backends, most sophisticated first.
var descending = []Backend{Mmap, Prefetch}

// Select picks the backend for opts. The order of precedence is: the forced
// backend; the preferred backend, if enabled; Simple under low memory or
// parallelism below two; the most sophisticated enabled backend.
func Select(opts Opts) Backend {
	if opts.Force != Auto {
		return opts.Force
	}
	if opts.Prefer != Auto && opts.Capabilities.Enabled(opts.Prefer) {
		return opts.Prefer
	}
	if opts.LowMemory || opts.parallelism() < 2 {
		return Simple
	}
	for _, b := range descending {
		if opts.Capabilities.Enabled(b) {
			return b
		}
	}
	return Simple
}

// lowMemoryBytes is the physical memory size below which LowMemory reports
// true.
const lowMemoryBytes = 4 << 30

// LowMemory reports whether this machine has little physical memory. It is
// meant for populating Opts.LowMemory; Select never probes the machine.
func LowMemory() bool {
	total := memory.TotalMemory()
	return total > 0 && total < lowMemoryBytes
}
