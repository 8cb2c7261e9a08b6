package partstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/hupe1980/partstore/internal/batch"
	"github.com/hupe1980/partstore/internal/directory"
	"github.com/hupe1980/partstore/internal/index"
	"github.com/hupe1980/partstore/internal/record"
	"github.com/hupe1980/partstore/internal/segment"
)

const (
	// MaxEntrySize is the largest payload Set accepts (16 MiB).
	MaxEntrySize = 16 * 1024 * 1024
	// MaxKeySize is the largest key Set accepts, in bytes.
	MaxKeySize = record.MaxKeySize
	// DefaultBatchSize is the default write buffer capacity (16 KiB).
	DefaultBatchSize = batch.DefaultCapacity
	// DefaultMaxSegmentSize is the default segment rotation threshold (4 GB).
	DefaultMaxSegmentSize = segment.DefaultMaxSize
)

// Storage is the storage engine of one partition.
//
// Writes are buffered in a batch and become visible to Get only after a
// flush. A Storage must have a single owner: it is not safe for concurrent
// use, and Open takes an exclusive lock on the partition directory so a
// second handle cannot be opened on the same files.
type Storage struct {
	dir      *directory.Directory
	segments *segment.Manager
	index    *index.Table
	batch    *batch.Batch
	scratch  []byte

	opts    options
	logger  *Logger
	metrics MetricsCollector
	closed  bool
}

// Open opens the partition stored in dir, creating it if needed, and
// rebuilds the in-memory index from every index segment.
func Open(ctx context.Context, dir string, optFns ...Option) (*Storage, error) {
	o := applyOptions(optFns)
	logger := o.logger.WithPartition(dir)

	d, err := directory.Open(o.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("partstore: open directory: %w", err)
	}
	if err := d.Lock(); err != nil {
		return nil, fmt.Errorf("partstore: open directory: %w", err)
	}

	mgr, err := segment.Load(d, o.maxSegmentSize)
	if err != nil {
		_ = d.Unlock()
		return nil, fmt.Errorf("partstore: load segments: %w", err)
	}

	table, err := rebuild(ctx, mgr, logger)
	if err != nil {
		_ = mgr.Close()
		_ = d.Unlock()
		return nil, fmt.Errorf("partstore: rebuild index: %w", err)
	}

	if o.compaction {
		logger.DebugContext(ctx, "compaction hook enabled")
	}

	return &Storage{
		dir:      d,
		segments: mgr,
		index:    table,
		batch:    batch.New(o.batchSize),
		opts:     o,
		logger:   logger,
		metrics:  o.metricsCollector,
	}, nil
}

func rebuild(ctx context.Context, mgr *segment.Manager, logger *Logger) (*index.Table, error) {
	segs := mgr.Segments(directory.Indices)
	sources := make([]io.Reader, 0, len(segs))
	for _, seg := range segs {
		if torn := seg.Size() % record.Size; torn != 0 {
			// An interrupted index append leaves a partial record behind.
			// Appending after it would break the fixed stride.
			aligned := seg.Size() - torn
			logger.WarnContext(ctx, "truncating torn index tail",
				"segment", seg.ID(),
				"size", seg.Size(),
				"torn_bytes", torn,
			)
			if err := seg.Truncate(aligned); err != nil {
				return nil, fmt.Errorf("truncate index segment %d: %w", seg.ID(), err)
			}
		}
		sources = append(sources, seg.Reader())
	}

	table, err := index.Rebuild(sources...)
	if err != nil {
		logger.LogRecovery(ctx, len(segs), 0, 0, err)
		return nil, err
	}
	logger.LogRecovery(ctx, len(segs), table.Len(), table.TornBytes(), nil)
	return table, nil
}

// Set buffers payload under key. When the batch is full it is flushed
// first and the entry is buffered into the emptied batch.
func (s *Storage) Set(ctx context.Context, key string, payload []byte) (err error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordSet(len(payload), time.Since(start), err)
	}()

	if s.closed {
		return ErrClosed
	}
	if len(payload) > MaxEntrySize {
		return &EntryTooLargeError{Size: len(payload), Max: MaxEntrySize}
	}
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	if len(key) > MaxKeySize {
		return fmt.Errorf("%w: %d bytes, max %d", ErrKeyTooLong, len(key), MaxKeySize)
	}
	if !utf8.ValidString(key) {
		return fmt.Errorf("%w: %q is not valid utf-8", ErrInvalidKey, key)
	}

	latestCount := s.segments.LastSegmentCount(directory.Partition)
	latestSize := s.segments.LastSegmentSize(directory.Partition)

	state, err := s.batch.Add(key, payload, latestCount, latestSize)
	if err != nil {
		return err
	}
	if state == batch.ShouldFlush {
		if err := s.Flush(ctx); err != nil {
			return err
		}
		latestCount = s.segments.LastSegmentCount(directory.Partition)
		latestSize = s.segments.LastSegmentSize(directory.Partition)
		// An empty batch always accepts the entry.
		if _, err := s.batch.Add(key, payload, latestCount, latestSize); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes the pending batch to the active payload and index segments
// and publishes its records to the in-memory index.
//
// The three steps are not atomic. If the payload append fails nothing is
// published. If the index append fails the index segment is truncated back
// to its previous size and the appended payload bytes stay behind
// unreferenced. In both cases the batch is kept and a later Flush places
// it after whatever reached the payload segment.
func (s *Storage) Flush(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	if s.batch.Len() == 0 {
		return nil
	}

	start := time.Now()
	entries, size := s.batch.Len(), s.batch.Size()
	err := s.pruneToDisk(ctx)
	duration := time.Since(start)

	s.metrics.RecordFlush(entries, size, duration, err)
	s.logger.LogFlush(ctx, entries, size, duration, err)
	if err != nil {
		return fmt.Errorf("partstore: flush: %w", err)
	}

	s.batch.Reset()
	return nil
}

func (s *Storage) pruneToDisk(ctx context.Context) error {
	payloadSeg, err := s.segments.Latest(directory.Partition)
	if err != nil {
		return fmt.Errorf("resolve payload segment: %w", err)
	}
	if s.batch.Place(payloadSeg.ID(), payloadSeg.Size()) {
		s.logger.DebugContext(ctx, "relocated pending records",
			"segment", payloadSeg.ID(),
			"offset", payloadSeg.Size(),
		)
	}

	prune := s.batch.Prunable()
	// Keys are checked before any byte reaches disk so that publishing
	// below cannot fail.
	for _, rec := range prune.Records {
		if _, err := rec.Key(); err != nil {
			return err
		}
	}

	if _, err := payloadSeg.Append(prune.Buffer); err != nil {
		return fmt.Errorf("append payload segment %d: %w", payloadSeg.ID(), err)
	}
	if s.opts.durability == DurabilitySync {
		if err := payloadSeg.Sync(); err != nil {
			return fmt.Errorf("sync payload segment %d: %w", payloadSeg.ID(), err)
		}
	}

	indexSeg, err := s.segments.Latest(directory.Indices)
	if err != nil {
		return fmt.Errorf("resolve index segment: %w", err)
	}
	before := indexSeg.Size()
	if _, err := indexSeg.Append(prune.RecordBytes()); err != nil {
		err = fmt.Errorf("append index segment %d: %w", indexSeg.ID(), err)
		if terr := indexSeg.Truncate(before); terr != nil {
			err = errors.Join(err, fmt.Errorf("roll back index segment %d: %w", indexSeg.ID(), terr))
		}
		return err
	}
	if s.opts.durability == DurabilitySync {
		if err := indexSeg.Sync(); err != nil {
			return fmt.Errorf("sync index segment %d: %w", indexSeg.ID(), err)
		}
	}

	for _, rec := range prune.Records {
		_ = s.index.Put(rec)
	}
	return nil
}

// Get returns a copy of the latest flushed value of key. A key that was
// never flushed yields (nil, false, nil).
func (s *Storage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var out []byte
	found, err := s.View(ctx, key, func(b []byte) error {
		out = bytes.Clone(b)
		return nil
	})
	return out, found, err
}

// View calls fn with the latest flushed value of key without copying it.
// The slice aliases an internal buffer and is only valid until fn returns.
// fn is not called when the key is absent or the read fails.
func (s *Storage) View(ctx context.Context, key string, fn func([]byte) error) (bool, error) {
	start := time.Now()
	data, found, err := s.read(ctx, key)
	s.metrics.RecordGet(found, time.Since(start), err)
	if err != nil || !found {
		return false, err
	}
	return true, fn(data)
}

func (s *Storage) read(ctx context.Context, key string) ([]byte, bool, error) {
	if s.closed {
		return nil, false, ErrClosed
	}

	rec, ok := s.index.Get(key)
	if !ok {
		return nil, false, nil
	}

	seg, ok := s.segments.Segment(directory.Partition, rec.Segment())
	if !ok {
		err := fmt.Errorf("partstore: get %q: %w: %d", key, ErrSegmentNotFound, rec.Segment())
		s.logger.LogRead(ctx, key, rec.Segment(), err)
		return nil, false, err
	}

	n := rec.DataSize()
	if n > MaxEntrySize {
		return nil, false, fmt.Errorf("partstore: get %q: %w: record claims %d bytes", key, ErrInvalidIndex, n)
	}
	if uint64(len(s.scratch)) < n {
		s.scratch = make([]byte, n)
	}
	buf := s.scratch[:n]

	m, err := seg.ReadAt(buf, int64(rec.Start()))
	if uint64(m) == n {
		return buf, true, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = fmt.Errorf("%w: segment %d offset %d: got %d of %d bytes", ErrShortRead, rec.Segment(), rec.Start(), m, n)
	}
	err = fmt.Errorf("partstore: get %q: %w", key, err)
	s.logger.LogRead(ctx, key, rec.Segment(), err)
	return nil, false, err
}

// Len returns the number of distinct flushed keys.
func (s *Storage) Len() int { return s.index.Len() }

// TotalBytes returns the payload bytes of every flushed entry, including
// overwritten values.
func (s *Storage) TotalBytes() uint64 { return s.index.TotalBytes() }

// Pending returns the number of entries waiting for a flush.
func (s *Storage) Pending() int { return s.batch.Len() }

// Keys returns all flushed keys in ascending order.
func (s *Storage) Keys() []string { return s.index.Keys() }

// Dir returns the partition directory.
func (s *Storage) Dir() string { return s.dir.Root() }

// Stats describes the state of a Storage.
type Stats struct {
	Keys            int
	TotalBytes      uint64
	PendingEntries  int
	PendingBytes    int
	PayloadSegments int
	IndexSegments   int
	ActiveSegment   uint64
	ActiveSize      uint64
	Durability      Durability
	Compaction      bool
}

// Stats returns current statistics.
func (s *Storage) Stats() Stats {
	return Stats{
		Keys:            s.index.Len(),
		TotalBytes:      s.index.TotalBytes(),
		PendingEntries:  s.batch.Len(),
		PendingBytes:    s.batch.Size(),
		PayloadSegments: s.segments.Count(directory.Partition),
		IndexSegments:   s.segments.Count(directory.Indices),
		ActiveSegment:   s.segments.LastSegmentCount(directory.Partition),
		ActiveSize:      s.segments.LastSegmentSize(directory.Partition),
		Durability:      s.opts.durability,
		Compaction:      s.opts.compaction,
	}
}

// SegmentInfo describes one segment file on disk.
type SegmentInfo struct {
	Kind string
	ID   uint64
	Path string
	Size uint64
}

// Segments lists every payload and index segment, payload first, each in
// ascending id order. Pending entries are not included; call Flush first
// for a complete picture.
func (s *Storage) Segments() []SegmentInfo {
	var out []SegmentInfo
	for _, k := range directory.Kinds {
		for _, seg := range s.segments.Segments(k) {
			out = append(out, SegmentInfo{
				Kind: k.String(),
				ID:   seg.ID(),
				Path: seg.Path(),
				Size: seg.Size(),
			})
		}
	}
	return out
}
