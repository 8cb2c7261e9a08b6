package partstore

import (
	"errors"
	"fmt"

	"github.com/hupe1980/partstore/internal/directory"
	"github.com/hupe1980/partstore/internal/record"
)

var (
	// ErrKeyTooLong is returned when a key exceeds MaxKeySize bytes.
	ErrKeyTooLong = record.ErrKeyTooLong
	// ErrInvalidRange is returned when an index record would cover no bytes.
	ErrInvalidRange = record.ErrInvalidRange
	// ErrInvalidKey is returned by Set for keys that are not valid UTF-8.
	ErrInvalidKey = record.ErrInvalidKey
	// ErrInvalidIndex is returned when a persisted index record cannot be decoded.
	ErrInvalidIndex = errors.New("invalid index record")
	// ErrEmptyPayload is returned by Set for zero-length payloads.
	ErrEmptyPayload = errors.New("payload must not be empty")
	// ErrShortRead is returned when a payload segment holds fewer bytes
	// than the index record promises.
	ErrShortRead = errors.New("short read from payload segment")
	// ErrSegmentNotFound is returned when an index record names a payload
	// segment that does not exist.
	ErrSegmentNotFound = errors.New("payload segment not found")
	// ErrClosed is returned by operations on a closed Storage.
	ErrClosed = errors.New("storage is closed")
	// ErrLocked is returned by Open when another handle owns the partition.
	ErrLocked = directory.ErrLocked
	// ErrCompactionDisabled is returned by Compact when compaction is off.
	ErrCompactionDisabled = errors.New("compaction is disabled")
)

// EntryTooLargeError is returned by Set when a payload exceeds MaxEntrySize.
type EntryTooLargeError struct {
	Size int
	Max  int
}

func (e *EntryTooLargeError) Error() string {
	return fmt.Sprintf("payload size %d bytes exceeds maximum of %d bytes", e.Size, e.Max)
}

// ErrEntryTooLarge matches any *EntryTooLargeError with errors.Is.
var ErrEntryTooLarge = errors.New("payload too large")

func (e *EntryTooLargeError) Is(target error) bool { return target == ErrEntryTooLarge }
