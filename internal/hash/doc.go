// Package hash holds the CRC32-Castagnoli checksum used for archived
// segments.
//
// The same polynomial is recorded in archive manifests, verified on
// restore and sent to S3 as the object checksum, so one table serves all
// three. Go's hash/crc32 uses the SSE4.2 and ARM CRC instructions for it
// when available.
//
//	sum := hash.CRC32C(segment)
//
//	h := hash.NewCRC32C()
//	io.Copy(h, r)
//	ok := h.Sum32() == want
package hash
