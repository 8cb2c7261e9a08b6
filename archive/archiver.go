package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/partstore"
	"github.com/hupe1980/partstore/blobstore"
	"github.com/hupe1980/partstore/internal/compress"
	"github.com/hupe1980/partstore/internal/hash"
	"github.com/hupe1980/partstore/internal/mmap"
	"github.com/hupe1980/partstore/resource"
	"golang.org/x/sync/errgroup"
)

// Archiver moves partition segments between local disk and a blob store.
type Archiver struct {
	store     blobstore.BlobStore
	catalog   Catalog
	codec     compress.Codec
	blockSize int
	ctrl      *resource.Controller
	logger    *partstore.Logger
	prune     bool
	now       func() time.Time
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithCatalog replaces the BlobCatalog kept in the blob store.
func WithCatalog(c Catalog) Option {
	return func(a *Archiver) { a.catalog = c }
}

// WithCodec selects the block compression of uploaded segments.
func WithCodec(c compress.Codec) Option {
	return func(a *Archiver) { a.codec = c }
}

// WithBlockSize sets the uncompressed block size.
func WithBlockSize(n int) Option {
	return func(a *Archiver) { a.blockSize = n }
}

// WithController bounds concurrent transfers, staging memory and throughput.
func WithController(c *resource.Controller) Option {
	return func(a *Archiver) { a.ctrl = c }
}

// WithLogger configures structured logging.
func WithLogger(l *partstore.Logger) Option {
	return func(a *Archiver) {
		if l == nil {
			l = partstore.NoopLogger()
		}
		a.logger = l
	}
}

// WithPrune controls whether blobs only referenced by the replaced
// manifest are deleted after a commit. Enabled by default.
func WithPrune(enabled bool) Option {
	return func(a *Archiver) { a.prune = enabled }
}

// New creates an Archiver writing to store.
func New(store blobstore.BlobStore, optFns ...Option) *Archiver {
	a := &Archiver{
		store:     store,
		codec:     compress.Zstd,
		blockSize: compress.DefaultBlockSize,
		logger:    partstore.NoopLogger(),
		prune:     true,
		now:       time.Now,
	}
	for _, fn := range optFns {
		fn(a)
	}
	if a.catalog == nil {
		a.catalog = NewBlobCatalog(store)
	}
	if a.ctrl == nil {
		a.ctrl = resource.NewController(resource.Config{MaxTransfers: 4})
	}
	if a.blockSize <= 0 {
		a.blockSize = compress.DefaultBlockSize
	}
	return a
}

// Latest returns the current manifest of partition.
func (a *Archiver) Latest(ctx context.Context, partition string) (*Manifest, error) {
	return a.catalog.Latest(ctx, partition)
}

// Archive uploads the given segments of partition and commits a new
// manifest. Segments whose size and checksum match the current manifest
// are not uploaded again.
//
// The segment files must not change while Archive runs. Archive a Storage
// that is flushed and owned by the caller, passing Storage.Segments.
func (a *Archiver) Archive(ctx context.Context, partition string, segments []partstore.SegmentInfo) (m *Manifest, err error) {
	start := time.Now()
	defer func() {
		var version uint64
		var size uint64
		if m != nil {
			version, size = m.Version, m.TotalSize()
		}
		a.logger.LogTransfer(ctx, "archive", partition, version, len(segments), size, time.Since(start), err)
	}()

	prev, err := a.catalog.Latest(ctx, partition)
	if err != nil && !errors.Is(err, ErrNoManifest) {
		return nil, fmt.Errorf("archive %s: load manifest: %w", partition, err)
	}

	entries := make([]SegmentEntry, len(segments))
	g, gctx := errgroup.WithContext(ctx)
	for i, seg := range segments {
		g.Go(func() error {
			if err := a.ctrl.AcquireTransfer(gctx); err != nil {
				return err
			}
			defer a.ctrl.ReleaseTransfer()

			e, err := a.archiveSegment(gctx, partition, seg, prev)
			if err != nil {
				return fmt.Errorf("%s segment %d: %w", seg.Kind, seg.ID, err)
			}
			entries[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("archive %s: %w", partition, err)
	}

	m = &Manifest{
		Format:    ManifestFormat,
		Partition: partition,
		Version:   1,
		Codec:     a.codec.String(),
		CreatedAt: a.now().UTC(),
		Segments:  entries,
	}
	if prev != nil {
		m.Version = prev.Version + 1
	}
	if err := a.catalog.Commit(ctx, m); err != nil {
		return nil, fmt.Errorf("archive %s: commit version %d: %w", partition, m.Version, err)
	}

	if a.prune && prev != nil {
		a.pruneSuperseded(ctx, prev, m)
	}
	return m, nil
}

func (a *Archiver) archiveSegment(ctx context.Context, partition string, seg partstore.SegmentInfo, prev *Manifest) (SegmentEntry, error) {
	mapping, err := mmap.OpenSize(seg.Path, int64(seg.Size))
	if err != nil {
		return SegmentEntry{}, err
	}
	defer mapping.Close()
	_ = mapping.Advise(mmap.AccessSequential)

	data := mapping.Bytes()
	sum := hash.CRC32C(data)

	if prev != nil {
		if e, ok := prev.Find(seg.Kind, seg.ID); ok && e.Size == seg.Size && e.CRC32C == sum {
			return e, nil
		}
	}

	entry := SegmentEntry{
		Kind:   seg.Kind,
		ID:     seg.ID,
		Size:   seg.Size,
		CRC32C: sum,
	}
	file, err := entry.FileName()
	if err != nil {
		return SegmentEntry{}, err
	}
	entry.Blob = fmt.Sprintf("%s/segments/%s.%d-%08x%s", partition, file, seg.Size, sum, a.codec.Extension())

	staging := int64(2 * a.blockSize)
	if err := a.ctrl.AcquireMemory(ctx, staging); err != nil {
		return SegmentEntry{}, err
	}
	defer a.ctrl.ReleaseMemory(staging)

	w, err := a.store.Create(ctx, entry.Blob)
	if err != nil {
		return SegmentEntry{}, err
	}
	cw := compress.NewWriter(resource.NewRateLimitedWriter(ctx, w, a.ctrl), a.codec, a.blockSize)
	if _, err = cw.Write(data); err == nil {
		err = cw.Close()
	}
	if err == nil {
		err = w.Sync()
	}
	if err != nil {
		if ab, ok := w.(blobstore.Abortable); ok {
			return SegmentEntry{}, errors.Join(err, ab.Abort(ctx))
		}
		return SegmentEntry{}, errors.Join(err, w.Close())
	}
	if err := w.Close(); err != nil {
		return SegmentEntry{}, err
	}

	entry.Stored = cw.Written()
	return entry, nil
}

func (a *Archiver) pruneSuperseded(ctx context.Context, prev, next *Manifest) {
	keep := make(map[string]struct{}, len(next.Segments))
	for _, e := range next.Segments {
		keep[e.Blob] = struct{}{}
	}
	for _, e := range prev.Segments {
		if _, ok := keep[e.Blob]; ok {
			continue
		}
		if err := a.store.Delete(ctx, e.Blob); err != nil {
			a.logger.WarnContext(ctx, "failed to prune superseded blob",
				"blob", e.Blob,
				"error", err,
			)
		}
	}
}
