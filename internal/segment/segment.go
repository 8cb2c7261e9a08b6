package segment

import (
	"io"

	"github.com/hupe1980/partstore/internal/directory"
	"github.com/hupe1980/partstore/internal/fs"
)

// Segment is an open segment file.
type Segment struct {
	kind directory.Kind
	id   uint64
	path string
	file fs.File
	size uint64
}

// Open opens (creating if needed) segment id of kind k in dir.
func Open(dir *directory.Directory, k directory.Kind, id uint64) (*Segment, error) {
	f, err := dir.OpenFile(k, id)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Segment{
		kind: k,
		id:   id,
		path: dir.Path(k, id),
		file: f,
		size: uint64(info.Size()),
	}, nil
}

// Kind returns the kind of data the segment holds.
func (s *Segment) Kind() directory.Kind { return s.kind }

// ID returns the segment number.
func (s *Segment) ID() uint64 { return s.id }

// Path returns the file path.
func (s *Segment) Path() string { return s.path }

// Size returns the number of bytes appended so far.
func (s *Segment) Size() uint64 { return s.size }

// Append writes p at the end of the segment. Bytes that reached the file
// before an error are still counted.
func (s *Segment) Append(p []byte) (int, error) {
	n, err := s.file.Write(p)
	s.size += uint64(n)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	return n, err
}

// ReadAt reads len(p) bytes starting at off.
func (s *Segment) ReadAt(p []byte, off int64) (int, error) {
	return s.file.ReadAt(p, off)
}

// Reader returns a reader over the bytes written so far.
func (s *Segment) Reader() io.Reader {
	return io.NewSectionReader(s.file, 0, int64(s.size))
}

// Truncate shrinks the segment to size bytes.
func (s *Segment) Truncate(size uint64) error {
	if err := s.file.Truncate(int64(size)); err != nil {
		return err
	}
	s.size = size
	return nil
}

// Sync commits the segment to stable storage.
func (s *Segment) Sync() error { return s.file.Sync() }

// Close closes the underlying file.
func (s *Segment) Close() error { return s.file.Close() }
