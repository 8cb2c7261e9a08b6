package archive

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/hupe1980/partstore/blobstore"
)

// Catalog records which manifest is current for each partition.
type Catalog interface {
	// Latest returns the newest committed manifest or ErrNoManifest.
	Latest(ctx context.Context, partition string) (*Manifest, error)
	// Commit publishes m. It fails with ErrConcurrentModification unless
	// m.Version is exactly one past the latest committed version.
	Commit(ctx context.Context, m *Manifest) error
}

// BlobCatalog keeps manifests next to the segments in the blob store.
//
// The version check and the write are separate requests, so two writers
// racing on one partition can both succeed. Use dynamo.Catalog when more
// than one process archives the same partition.
type BlobCatalog struct {
	store blobstore.BlobStore
}

// NewBlobCatalog returns a catalog stored in store.
func NewBlobCatalog(store blobstore.BlobStore) *BlobCatalog {
	return &BlobCatalog{store: store}
}

func (c *BlobCatalog) latestVersion(ctx context.Context, partition string) (uint64, error) {
	names, err := c.store.List(ctx, partition+"/manifests/")
	if err != nil {
		return 0, err
	}
	var latest uint64
	for _, name := range names {
		base := strings.TrimSuffix(path.Base(name), ".json")
		v, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue
		}
		latest = max(latest, v)
	}
	return latest, nil
}

// Latest implements Catalog.
func (c *BlobCatalog) Latest(ctx context.Context, partition string) (*Manifest, error) {
	v, err := c.latestVersion(ctx, partition)
	if err != nil {
		return nil, err
	}
	if v == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoManifest, partition)
	}
	return LoadManifest(ctx, c.store, ManifestPath(partition, v))
}

// Commit implements Catalog.
func (c *BlobCatalog) Commit(ctx context.Context, m *Manifest) error {
	v, err := c.latestVersion(ctx, m.Partition)
	if err != nil {
		return err
	}
	if m.Version != v+1 {
		return fmt.Errorf("%w: version %d, latest %d", ErrConcurrentModification, m.Version, v)
	}
	return PutManifest(ctx, c.store, m)
}

// LoadManifest reads the manifest blob called name.
func LoadManifest(ctx context.Context, store blobstore.BlobStore, name string) (*Manifest, error) {
	data, err := blobstore.ReadAll(ctx, store, name)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNoManifest, name)
		}
		return nil, err
	}
	return DecodeManifest(data)
}

// PutManifest writes m to its ManifestPath.
func PutManifest(ctx context.Context, store blobstore.BlobStore, m *Manifest) error {
	data, err := m.Encode()
	if err != nil {
		return err
	}
	return store.Put(ctx, ManifestPath(m.Partition, m.Version), data)
}
