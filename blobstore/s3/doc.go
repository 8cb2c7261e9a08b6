// Package s3 stores archived segments in Amazon S3.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("partitions/"),
//	    s3.WithRegion("eu-central-1"),
//	)
//
//	archiver := archive.New(store)
//
// # Features
//
//   - Range reads for partial fetches
//   - Multipart streaming uploads for large segments
//   - CRC32C checksums on whole-blob puts
//   - Automatic pagination for listing
package s3
