// Package seq defines the records and batches that flow between the line
// readers, the decoders and the sequence writers.
//
// A Record is either an opaque line of text (for example a SAM alignment
// line) or a decoded Read. Records are owned by the Batch that contains them
// until the batch is consumed by a writer.
package seq

// Pairing roles of a read within a read pair.
const (
	// R1 is the first read of a pair, or an unpaired read.
	R1 uint8 = 0
	// R2 is the second read of a pair.
	R2 uint8 = 1
)

// Read is a decoded sequencing read.
type Read struct {
	// ID is the read name, without the leading '@' or '>'.
	ID string
	// Bases is the base sequence.
	Bases []byte
	// Qual holds raw phred scores, one per base. Nil means that the source
	// carried no quality data (e.g., FASTA).
	Qual []byte
	// Pair is the pairing role, R1 or R2.
	Pair uint8
	// Mate is the other read of the pair, if any.
	Mate *Read
	// Attachment is an opaque payload emitted by the attachment and
	// sites output kinds.
	Attachment []byte
}

// Roles resolves the pairing roles reachable from r through its mate link.
// first is the R1 read (r itself or its mate), second is the R2 read. Either
// may be nil.
func (r *Read) Roles() (first, second *Read) {
	for _, x := range [2]*Read{r, r.Mate} {
		if x == nil {
			continue
		}
		if x.Pair == R2 {
			if second == nil {
				second = x
			}
		} else if first == nil {
			first = x
		}
	}
	return
}

// Record is one unit of a batch. Exactly one of Line and Read is set.
type Record struct {
	Line []byte
	Read *Read
}

// Len returns the approximate number of bytes held by the record.
func (r Record) Len() int {
	if r.Read == nil {
		return len(r.Line)
	}
	n := len(r.Read.ID) + len(r.Read.Bases) + len(r.Read.Qual)
	if m := r.Read.Mate; m != nil {
		n += len(m.ID) + len(m.Bases) + len(m.Qual)
	}
	return n
}

// LineRecord creates a record holding a raw line.
func LineRecord(line []byte) Record { return Record{Line: line} }

// ReadRecord creates a record holding a decoded read.
func ReadRecord(r *Read) Record { return Record{Read: r} }

// Batch is an ordered group of records. Batch IDs form a gap-free increasing
// sequence, starting at 0, within one stream.
type Batch struct {
	ID      int64
	Records []Record
	// Last is set on the final batch of a stream.
	Last bool
	// Poison marks an in-band end-of-stream signal. A poison batch carries
	// no records.
	Poison bool
}

// Bytes returns the sum of Record.Len over the batch.
func (b *Batch) Bytes() int {
	n := 0
	for _, r := range b.Records {
		n += r.Len()
	}
	return n
}
