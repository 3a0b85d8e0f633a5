// Package format describes the sources and destinations handled by the line
// readers and sequence writers.
package format

import (
	"context"
	"fmt"
	"io"
	"math/bits"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// Kind is a set of output kinds. A writer's descriptor must contain exactly
// one kind.
type Kind uint16

const (
	// SAM text, with a header block.
	SAM Kind = 1 << iota
	// BAM (BGZF-compressed binary SAM).
	BAM
	// FASTQ text.
	FASTQ
	// FASTA text.
	FASTA
	// Header emits one read name per line.
	Header
	// Attachment emits the opaque attachment of each read.
	Attachment
	// OneLine emits "name<TAB>bases" per read.
	OneLine
	// Sites emits site-score lines only.
	Sites
)

// Unknown is the empty kind set.
const Unknown Kind = 0

var kindNames = []string{"sam", "bam", "fastq", "fasta", "header", "attachment", "oneline", "sites"}

// String returns a "|"-separated list of the kinds in k.
func (k Kind) String() string {
	if k == Unknown {
		return "unknown"
	}
	var names []string
	for i, name := range kindNames {
		if k&(1<<uint(i)) != 0 {
			names = append(names, name)
		}
	}
	return strings.Join(names, "|")
}

// Count returns the number of kinds in k.
func (k Kind) Count() int { return bits.OnesCount16(uint16(k)) }

// Has reports whether k contains all of the kinds in x.
func (k Kind) Has(x Kind) bool { return x != Unknown && k&x == x }

// ParseKind parses a kind name such as "fastq". It returns Unknown if the
// name is not recognized.
func ParseKind(name string) Kind {
	name = strings.ToLower(name)
	for i, n := range kindNames {
		if n == name {
			return 1 << uint(i)
		}
	}
	switch name {
	case "fq":
		return FASTQ
	case "fa", "fna":
		return FASTA
	}
	return Unknown
}

// Mode is the direction of a descriptor.
type Mode int

const (
	// Read opens the descriptor for reading.
	Read Mode = iota
	// Write opens the descriptor for writing.
	Write
)

// Descriptor describes one source or destination.
type Descriptor struct {
	// Path is the file path. "-", "stdin" and "stdout" name the standard
	// streams.
	Path string
	Mode Mode
	// Kinds is the set of output kinds. Writers require exactly one.
	Kinds Kind
	// Append requests appending to an existing destination.
	Append bool
	// Exists is set when the destination already exists and is non-empty.
	Exists bool
	// AllowSubprocess permits routing output through an external command.
	AllowSubprocess bool
	// Stdout is set when the destination is the standard output (or the
	// source is the standard input).
	Stdout bool
	// Stream, if non-nil, is an already open source, for example a member
	// of an archive. It takes precedence over Path for readers.
	Stream io.Reader
}

// Std reports whether the descriptor names a standard stream.
func (d Descriptor) Std() bool {
	if d.Stdout {
		return true
	}
	switch d.Path {
	case "-", "stdin", "stdout":
		return true
	}
	return false
}

// Validate checks that a write descriptor names exactly one output kind.
func (d Descriptor) Validate() error {
	if d.Mode != Write {
		return nil
	}
	if n := d.Kinds.Count(); n != 1 {
		return errors.E(errors.Invalid, fmt.Sprintf("%s: exactly one output kind must be set, found %d (%v)", d.Path, n, d.Kinds))
	}
	return nil
}

var compressionSuffixes = []string{".gz", ".bgz", ".bz2", ".zst", ".xz", ".sz"}

// TrimCompression removes a trailing compression suffix from path. It
// returns the remaining path and the removed suffix.
func TrimCompression(path string) (string, string) {
	for _, sfx := range compressionSuffixes {
		if strings.HasSuffix(path, sfx) {
			return strings.TrimSuffix(path, sfx), sfx
		}
	}
	return path, ""
}

// Guess returns the kind implied by the extension of path, ignoring any
// compression suffix. It returns Unknown if the extension is not recognized.
func Guess(path string) Kind {
	base, _ := TrimCompression(path)
	dot := strings.LastIndexByte(base, '.')
	if dot < 0 {
		return Unknown
	}
	switch ext := strings.ToLower(base[dot+1:]); ext {
	case "fastq", "fq":
		return FASTQ
	case "fasta", "fa", "fna", "fas":
		return FASTA
	case "txt":
		return Attachment
	default:
		return ParseKind(ext)
	}
}

// New creates a descriptor for path. The kind is guessed from the extension,
// and for write descriptors Exists is filled by probing the destination.
func New(ctx context.Context, path string, mode Mode) Descriptor {
	d := Descriptor{Path: path, Mode: mode, Kinds: Guess(path)}
	if d.Std() {
		d.Stdout = true
		return d
	}
	if mode == Write {
		if info, err := file.Stat(ctx, path); err == nil && info.Size() > 0 {
			d.Exists = true
		}
	}
	return d
}
