// Package batch implements the bounded in-memory write buffer that
// accumulates payload bytes and their index records until it is drained
// to the active segments.
package batch

import (
	"github.com/hupe1980/partstore/internal/record"
)

// DefaultCapacity is the default buffer size (16 KiB).
const DefaultCapacity = 16 * 1024

// State is the outcome of Add.
type State int

const (
	// Allowable means the entry was buffered.
	Allowable State = iota
	// ShouldFlush means the entry does not fit. Nothing was buffered; the
	// caller must flush and re-issue the same Add.
	ShouldFlush
)

func (s State) String() string {
	if s == ShouldFlush {
		return "should-flush"
	}
	return "allowable"
}

// Prune is a borrowed view of the pending entries. It is valid until the
// next call to Add, Place or Reset.
type Prune struct {
	Buffer  []byte
	Records []record.Record

	scratch *[]byte
}

// RecordBytes returns the contiguous encoding of Records. The returned
// slice is reused by later calls.
func (p Prune) RecordBytes() []byte {
	buf := (*p.scratch)[:0]
	for _, r := range p.Records {
		buf = r.AppendBinary(buf)
	}
	*p.scratch = buf
	return buf
}

// Batch buffers entries for a single writer. It is not safe for concurrent use.
type Batch struct {
	capacity int
	buf      []byte
	used     int
	records  []record.Record
	encoded  []byte

	// Position inside the payload segment the next entry is expected to
	// land in. Tracked independently of used, which restarts at every flush.
	synced      bool
	segment     uint64
	segmentSize uint64
}

// New allocates a batch with the given capacity in bytes.
// A capacity <= 0 selects DefaultCapacity.
func New(capacity int) *Batch {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Batch{
		capacity: capacity,
		buf:      make([]byte, capacity),
		records:  make([]record.Record, 0, 1024),
	}
}

// Add buffers payload under key. latestSegment and latestSegmentSize are
// the number and current size of the payload segment that receives the
// next flush.
//
// A non-empty batch answers ShouldFlush once used+len(payload) reaches
// capacity. An empty batch always accepts the entry, growing its buffer
// for a single oversized payload, so a flush followed by the same Add
// always succeeds.
func (b *Batch) Add(key string, payload []byte, latestSegment, latestSegmentSize uint64) (State, error) {
	if len(b.records) > 0 && b.used+len(payload) >= b.capacity {
		return ShouldFlush, nil
	}

	segment, offset := b.segment, b.segmentSize
	if !b.synced || latestSegment != segment {
		segment, offset = latestSegment, latestSegmentSize
	}

	rec, err := record.New(key, offset, offset+uint64(len(payload)), segment)
	if err != nil {
		return Allowable, err
	}

	if need := b.used + len(payload); need > len(b.buf) {
		grown := make([]byte, need)
		copy(grown, b.buf[:b.used])
		b.buf = grown
	}

	copy(b.buf[b.used:], payload)
	b.used += len(payload)
	b.records = append(b.records, rec)
	b.synced = true
	b.segment = segment
	b.segmentSize = offset + uint64(len(payload))

	return Allowable, nil
}

// Prunable returns the pending bytes and records without copying.
func (b *Batch) Prunable() Prune {
	return Prune{
		Buffer:  b.buf[:b.used],
		Records: b.records,
		scratch: &b.encoded,
	}
}

// Place moves every pending record to segment, laid out contiguously from
// base in buffer order. It reports whether any record changed.
func (b *Batch) Place(segment, base uint64) bool {
	moved := false
	offset := base
	for i, r := range b.records {
		if r.Segment() != segment || r.Start() != offset {
			b.records[i] = r.Relocate(segment, offset)
			moved = true
		}
		offset += r.DataSize()
	}
	b.synced = true
	b.segment = segment
	b.segmentSize = offset
	return moved
}

// Reset forgets the pending entries. The buffer is kept; bytes past the
// used boundary are unreachable rather than cleared.
func (b *Batch) Reset() {
	b.records = b.records[:0]
	b.used = 0
	if len(b.buf) > b.capacity {
		b.buf = make([]byte, b.capacity)
	}
}

// Len returns the number of pending entries.
func (b *Batch) Len() int { return len(b.records) }

// Size returns the number of pending payload bytes.
func (b *Batch) Size() int { return b.used }

// Capacity returns the configured buffer size.
func (b *Batch) Capacity() int { return b.capacity }

// Position returns the tracked payload segment and the offset the next
// entry would be written at.
func (b *Batch) Position() (segment, offset uint64) {
	return b.segment, b.segmentSize
}
