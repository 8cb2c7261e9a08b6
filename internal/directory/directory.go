// Package directory names, opens and removes the segment files of one
// partition and guards the partition with an exclusive lock.
package directory

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/hupe1980/partstore/internal/fs"
)

// Kind identifies the data held by a segment file.
type Kind uint8

const (
	// Partition segments hold raw payload bytes.
	Partition Kind = iota
	// Indices segments hold fixed-width index records.
	Indices
)

// Kinds lists every kind in a stable order.
var Kinds = []Kind{Partition, Indices}

func (k Kind) String() string {
	switch k {
	case Partition:
		return "partition"
	case Indices:
		return "indices"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k Kind) ext() string {
	if k == Indices {
		return ".idx"
	}
	return ".log"
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "partition":
		return Partition, nil
	case "indices":
		return Indices, nil
	default:
		return 0, fmt.Errorf("unknown segment kind %q", s)
	}
}

// FileName returns the base name of segment id of kind k.
func FileName(k Kind, id uint64) string {
	return fmt.Sprintf("%s-%020d%s", k, id, k.ext())
}

// ParseFileName reports the kind and id encoded in a segment file name.
func ParseFileName(name string) (Kind, uint64, bool) {
	for _, k := range Kinds {
		prefix := k.String() + "-"
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, k.ext()) {
			continue
		}
		digits := strings.TrimSuffix(strings.TrimPrefix(name, prefix), k.ext())
		id, err := strconv.ParseUint(digits, 10, 64)
		if err != nil {
			return 0, 0, false
		}
		return k, id, true
	}
	return 0, 0, false
}

const lockName = "LOCK"

// ErrLocked is returned when another handle owns the partition.
var ErrLocked = errors.New("partition directory is locked by another handle")

// Directory is the on-disk home of one partition.
type Directory struct {
	fs   fs.FileSystem
	root string
	lock *os.File
}

// Open creates root if needed. Call Lock to claim exclusive ownership.
func Open(fsys fs.FileSystem, root string) (*Directory, error) {
	if fsys == nil {
		fsys = fs.Default
	}
	if err := fsys.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Directory{fs: fsys, root: root}, nil
}

// Root returns the directory path.
func (d *Directory) Root() string { return d.root }

// FS returns the file system the directory uses.
func (d *Directory) FS() fs.FileSystem { return d.fs }

// Path returns the full path of segment id of kind k.
func (d *Directory) Path(k Kind, id uint64) string {
	return filepath.Join(d.root, FileName(k, id))
}

// OpenFile opens segment id of kind k for reading and appending,
// creating it if it does not exist.
func (d *Directory) OpenFile(k Kind, id uint64) (fs.File, error) {
	return d.fs.OpenFile(d.Path(k, id), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
}

// Remove deletes segment id of kind k.
func (d *Directory) Remove(k Kind, id uint64) error {
	return d.fs.Remove(d.Path(k, id))
}

// RemoveAll deletes the directory and everything in it, including the lock.
func (d *Directory) RemoveAll() error {
	if err := d.Unlock(); err != nil {
		return err
	}
	return d.fs.RemoveAll(d.root)
}

// List returns the ids of all segments of kind k in ascending order.
func (d *Directory) List(k Kind) ([]uint64, error) {
	entries, err := d.fs.ReadDir(d.root)
	if err != nil {
		return nil, err
	}
	var ids []uint64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		kind, id, ok := ParseFileName(e.Name())
		if ok && kind == k {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Lock takes an exclusive advisory lock on the directory. The lock file
// lives on the local disk regardless of the configured FileSystem.
func (d *Directory) Lock() error {
	if d.lock != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(d.root, lockName), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return fmt.Errorf("%w: %s: %v", ErrLocked, d.root, err)
	}
	d.lock = f
	return nil
}

// Unlock releases the lock taken by Lock.
func (d *Directory) Unlock() error {
	if d.lock == nil {
		return nil
	}
	f := d.lock
	d.lock = nil
	if err := unlockFile(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
