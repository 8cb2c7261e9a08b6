package segment

import (
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/hupe1980/partstore/internal/directory"
)

// DefaultMaxSize is the default segment size limit (4 GB).
const DefaultMaxSize uint64 = 4_000_000_000

// Manager owns the segments of one partition. It is not safe for
// concurrent use.
type Manager struct {
	dir     *directory.Directory
	maxSize uint64
	ids     map[directory.Kind]*roaring64.Bitmap
	segs    map[directory.Kind]map[uint64]*Segment
}

// Load opens every existing segment in dir. A maxSize of 0 selects
// DefaultMaxSize.
func Load(dir *directory.Directory, maxSize uint64) (*Manager, error) {
	if maxSize == 0 {
		maxSize = DefaultMaxSize
	}
	m := &Manager{
		dir:     dir,
		maxSize: maxSize,
		ids:     make(map[directory.Kind]*roaring64.Bitmap, len(directory.Kinds)),
		segs:    make(map[directory.Kind]map[uint64]*Segment, len(directory.Kinds)),
	}

	for _, k := range directory.Kinds {
		m.ids[k] = roaring64.New()
		m.segs[k] = make(map[uint64]*Segment)

		ids, err := dir.List(k)
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("list %s segments: %w", k, err)
		}
		for _, id := range ids {
			if _, err := m.open(k, id); err != nil {
				m.Close()
				return nil, fmt.Errorf("open %s segment %d: %w", k, id, err)
			}
		}
	}

	return m, nil
}

func (m *Manager) open(k directory.Kind, id uint64) (*Segment, error) {
	seg, err := Open(m.dir, k, id)
	if err != nil {
		return nil, err
	}
	m.ids[k].Add(id)
	m.segs[k][id] = seg
	return seg, nil
}

// MaxSize returns the rotation threshold in bytes.
func (m *Manager) MaxSize() uint64 { return m.maxSize }

func (m *Manager) last(k directory.Kind) (*Segment, bool) {
	if m.ids[k].IsEmpty() {
		return nil, false
	}
	return m.segs[k][m.ids[k].Maximum()], true
}

// LastSegmentCount returns the number of the segment the next append of
// kind k lands in: the last segment, or its successor if it is full.
func (m *Manager) LastSegmentCount(k directory.Kind) uint64 {
	last, ok := m.last(k)
	if !ok {
		return 0
	}
	if last.Size() >= m.maxSize {
		return last.ID() + 1
	}
	return last.ID()
}

// LastSegmentSize returns the size of the segment named by
// LastSegmentCount, which is 0 when that segment does not exist yet.
func (m *Manager) LastSegmentSize(k directory.Kind) uint64 {
	last, ok := m.last(k)
	if !ok || last.Size() >= m.maxSize {
		return 0
	}
	return last.Size()
}

// Latest returns the active segment of kind k, creating the first segment
// or rotating to a new one when the last is full.
func (m *Manager) Latest(k directory.Kind) (*Segment, error) {
	last, ok := m.last(k)
	if ok && last.Size() < m.maxSize {
		return last, nil
	}
	return m.open(k, m.LastSegmentCount(k))
}

// Segment returns segment number n of kind k.
func (m *Manager) Segment(k directory.Kind, n uint64) (*Segment, bool) {
	seg, ok := m.segs[k][n]
	return seg, ok
}

// Segments returns all segments of kind k in ascending id order.
func (m *Manager) Segments(k directory.Kind) []*Segment {
	out := make([]*Segment, 0, m.ids[k].GetCardinality())
	it := m.ids[k].Iterator()
	for it.HasNext() {
		out = append(out, m.segs[k][it.Next()])
	}
	return out
}

// Count returns the number of segments of kind k.
func (m *Manager) Count(k directory.Kind) int {
	return int(m.ids[k].GetCardinality())
}

// Close closes every segment.
func (m *Manager) Close() error {
	var errs []error
	for _, k := range directory.Kinds {
		for id, seg := range m.segs[k] {
			if err := seg.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s segment %d: %w", k, id, err))
			}
		}
		m.segs[k] = make(map[uint64]*Segment)
		if m.ids[k] != nil {
			m.ids[k].Clear()
		}
	}
	return errors.Join(errs...)
}
