// Package partstore is the storage engine of a single log partition.
//
// A partition is a directory of append-only segment files. Payload segments
// hold raw value bytes back to back. Index segments hold fixed-width
// 160-byte records that map a key to the payload segment, offset and length
// of its latest value. At open the in-memory index is rebuilt by replaying
// every index segment in order, so the newest record for a key wins.
//
// # Quick Start
//
//	ctx := context.Background()
//	s, _ := partstore.Open(ctx, "./data/orders-0")
//	defer s.Close(ctx)
//
//	_ = s.Set(ctx, "order-42", payload) // buffered
//	_ = s.Flush(ctx)                    // visible to Get after this
//
//	value, found, _ := s.Get(ctx, "order-42")
//
// # Write Path
//
// Set appends to a 16 KiB batch. When the next entry would fill it, the
// batch is flushed first. An entry larger than the whole batch is accepted
// on its own into an empty batch. A flush appends the batch payload to the
// active payload segment, then the batch records to the active index
// segment, then publishes the records in memory.
//
// # Durability Model
//
// With DurabilityAsync (the default) flushed bytes sit in the OS page cache.
// DurabilitySync fsyncs the payload segment before the index records are
// appended and the index segment before they are published.
//
// A failed flush leaves the batch pending and publishes nothing. A torn
// index append is rolled back, and a torn index tail found at open is
// truncated to the last whole record.
//
// # Ownership
//
// A Storage is not safe for concurrent use. Open takes an exclusive lock on
// the partition directory and fails with ErrLocked while another handle
// holds it.
//
// # Archiving
//
// The archive package copies sealed segments to a blobstore.BlobStore
// (local disk, S3 or MinIO) and restores a partition directory from it.
package partstore
