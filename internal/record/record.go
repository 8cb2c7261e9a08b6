// Package record implements the fixed-width index record that locates one
// entry inside a payload segment.
//
// On disk a record is exactly Size bytes:
//
//	offset  size  field
//	     0     8  key_size       uint64, little endian
//	     8   128  key            zero padded past key_size
//	   136     8  start          uint64, little endian
//	   144     8  data_size      uint64, little endian
//	   152     8  segment_count  uint64, little endian
//
// There is no header, length prefix or checksum, so an index segment is
// scanned by stepping Size bytes at a time.
package record

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"
)

const (
	// MaxKeySize is the maximum key length in bytes.
	MaxKeySize = 128

	// Size is the encoded width of a record.
	Size = 8 + MaxKeySize + 8 + 8 + 8

	offKeySize  = 0
	offKey      = 8
	offStart    = offKey + MaxKeySize
	offDataSize = offStart + 8
	offSegment  = offDataSize + 8
)

var (
	// ErrKeyTooLong is returned when a key exceeds MaxKeySize bytes.
	ErrKeyTooLong = errors.New("key exceeds maximum length")
	// ErrInvalidRange is returned when start is not strictly before end.
	ErrInvalidRange = errors.New("start must be less than end")
	// ErrInvalidKey is returned when key bytes are not valid UTF-8 or a
	// persisted key size is out of range.
	ErrInvalidKey = errors.New("invalid key bytes")
	// ErrShortBuffer is returned when fewer than Size bytes are supplied.
	ErrShortBuffer = errors.New("buffer shorter than record size")
)

// Record describes where the latest value of a key lives.
// Records are comparable with ==.
type Record struct {
	keySize  uint64
	key      [MaxKeySize]byte
	start    uint64
	dataSize uint64
	segment  uint64
}

// New validates its arguments and builds a record covering [start, end)
// in payload segment number segment.
func New(key string, start, end, segment uint64) (Record, error) {
	if len(key) > MaxKeySize {
		return Record{}, fmt.Errorf("%w: %d bytes, max %d", ErrKeyTooLong, len(key), MaxKeySize)
	}
	if !utf8.ValidString(key) {
		return Record{}, fmt.Errorf("%w: not valid utf-8", ErrInvalidKey)
	}
	if start >= end {
		return Record{}, fmt.Errorf("%w: start %d, end %d", ErrInvalidRange, start, end)
	}
	return Reconstruct(key, start, end-start, segment), nil
}

// Reconstruct builds a record from values that are already known to be
// valid, such as fields decoded from an index segment. Keys longer than
// MaxKeySize are truncated.
func Reconstruct(key string, start, dataSize, segment uint64) Record {
	r := Record{start: start, dataSize: dataSize, segment: segment}
	r.keySize = uint64(copy(r.key[:], key))
	return r
}

// Key returns the key as a string. It fails if the stored key bytes are
// not valid UTF-8.
func (r Record) Key() (string, error) {
	b := r.key[:r.keySize]
	if !utf8.Valid(b) {
		return "", ErrInvalidKey
	}
	return string(b), nil
}

// Start returns the byte offset of the payload inside its segment.
func (r Record) Start() uint64 { return r.start }

// DataSize returns the payload length in bytes.
func (r Record) DataSize() uint64 { return r.dataSize }

// End returns the offset one past the last payload byte.
func (r Record) End() uint64 { return r.start + r.dataSize }

// Segment returns the number of the payload segment holding the data.
func (r Record) Segment() uint64 { return r.segment }

// Relocate returns a copy of r pointing at start in segment.
func (r Record) Relocate(segment, start uint64) Record {
	r.segment = segment
	r.start = start
	return r
}

// PutBinary encodes r into the first Size bytes of b.
func (r Record) PutBinary(b []byte) {
	_ = b[Size-1]
	binary.LittleEndian.PutUint64(b[offKeySize:], r.keySize)
	copy(b[offKey:offStart], r.key[:])
	binary.LittleEndian.PutUint64(b[offStart:], r.start)
	binary.LittleEndian.PutUint64(b[offDataSize:], r.dataSize)
	binary.LittleEndian.PutUint64(b[offSegment:], r.segment)
}

// AppendBinary appends the encoding of r to dst.
func (r Record) AppendBinary(dst []byte) []byte {
	n := len(dst)
	dst = append(dst, make([]byte, Size)...)
	r.PutBinary(dst[n:])
	return dst
}

// Bytes returns the canonical on-disk encoding of r.
func (r Record) Bytes() [Size]byte {
	var b [Size]byte
	r.PutBinary(b[:])
	return b
}

// Decode parses one record from the first Size bytes of b.
func Decode(b []byte) (Record, error) {
	if len(b) < Size {
		return Record{}, fmt.Errorf("%w: %d < %d", ErrShortBuffer, len(b), Size)
	}
	var r Record
	r.keySize = binary.LittleEndian.Uint64(b[offKeySize:])
	if r.keySize > MaxKeySize {
		return Record{}, fmt.Errorf("%w: key size %d", ErrInvalidKey, r.keySize)
	}
	copy(r.key[:r.keySize], b[offKey:offKey+int(r.keySize)])
	if !utf8.Valid(r.key[:r.keySize]) {
		return Record{}, fmt.Errorf("%w: not valid utf-8", ErrInvalidKey)
	}
	r.start = binary.LittleEndian.Uint64(b[offStart:])
	r.dataSize = binary.LittleEndian.Uint64(b[offDataSize:])
	r.segment = binary.LittleEndian.Uint64(b[offSegment:])
	return r, nil
}

func (r Record) String() string {
	return fmt.Sprintf("%q@%d[%d:%d]", r.key[:r.keySize], r.segment, r.start, r.End())
}
