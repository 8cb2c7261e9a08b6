package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/hupe1980/partstore/internal/compress"
	"github.com/hupe1980/partstore/internal/directory"
	"github.com/hupe1980/partstore/internal/fs"
	"github.com/hupe1980/partstore/internal/hash"
	"github.com/hupe1980/partstore/resource"
	"golang.org/x/sync/errgroup"
)

// ErrDirectoryNotEmpty is returned by Restore when the target already
// holds segments.
var ErrDirectoryNotEmpty = errors.New("archive: restore target already holds segments")

// Restore writes the latest archived version of partition into dir and
// returns its manifest. dir is locked for the duration of the restore and
// must not contain any segments.
func (a *Archiver) Restore(ctx context.Context, partition, dir string) (*Manifest, error) {
	m, err := a.catalog.Latest(ctx, partition)
	if err != nil {
		return nil, fmt.Errorf("restore %s: %w", partition, err)
	}
	return m, a.RestoreManifest(ctx, m, dir)
}

// RestoreManifest writes the segments listed in m into dir.
func (a *Archiver) RestoreManifest(ctx context.Context, m *Manifest, dir string) (err error) {
	start := time.Now()
	defer func() {
		a.logger.LogTransfer(ctx, "restore", m.Partition, m.Version, len(m.Segments), m.TotalSize(), time.Since(start), err)
	}()

	d, err := directory.Open(fs.Default, dir)
	if err != nil {
		return fmt.Errorf("restore %s: %w", m.Partition, err)
	}
	if err := d.Lock(); err != nil {
		return fmt.Errorf("restore %s: %w", m.Partition, err)
	}
	defer d.Unlock()

	for _, k := range directory.Kinds {
		ids, err := d.List(k)
		if err != nil {
			return fmt.Errorf("restore %s: %w", m.Partition, err)
		}
		if len(ids) > 0 {
			return fmt.Errorf("restore %s: %w: %s", m.Partition, ErrDirectoryNotEmpty, dir)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, e := range m.Segments {
		g.Go(func() error {
			if err := a.ctrl.AcquireTransfer(gctx); err != nil {
				return err
			}
			defer a.ctrl.ReleaseTransfer()

			if err := a.restoreSegment(gctx, e, dir); err != nil {
				return fmt.Errorf("%s segment %d: %w", e.Kind, e.ID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("restore %s: %w", m.Partition, err)
	}
	return nil
}

func (a *Archiver) restoreSegment(ctx context.Context, e SegmentEntry, dir string) error {
	name, err := e.FileName()
	if err != nil {
		return err
	}

	blob, err := a.store.Open(ctx, e.Blob)
	if err != nil {
		return err
	}
	defer blob.Close()

	body, err := blob.ReadRange(ctx, 0, blob.Size())
	if err != nil {
		return err
	}
	defer body.Close()

	tmp, err := os.CreateTemp(dir, ".restore-"+name+"-*")
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	sum := hash.NewCRC32C()
	r := compress.NewReader(resource.NewRateLimitedReader(ctx, body, a.ctrl))
	n, err := io.Copy(io.MultiWriter(tmp, sum), r)
	if err != nil {
		return err
	}
	if uint64(n) != e.Size || sum.Sum32() != e.CRC32C {
		return fmt.Errorf("%w: got %d bytes crc %08x, want %d bytes crc %08x",
			ErrChecksumMismatch, n, sum.Sum32(), e.Size, e.CRC32C)
	}

	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return err
	}
	committed = true
	return nil
}
