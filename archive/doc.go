// Package archive copies the segments of a partition to a
// blobstore.BlobStore and restores a partition directory from there.
//
// Every archive run uploads the segments whose size or checksum changed
// since the previous run, then commits a new Manifest to a Catalog. A
// manifest lists one blob per segment, so restoring a version never mixes
// segments from different runs.
//
//	store := blobstore.NewLocalStore("/backups")
//	a := archive.New(store, archive.WithCodec(compress.Zstd))
//
//	m, err := a.Archive(ctx, "orders-0", s.Segments())
//	...
//	err = a.Restore(ctx, "orders-0", "/data/orders-0")
package archive
