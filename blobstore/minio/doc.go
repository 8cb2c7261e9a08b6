// Package minio stores archived segments in MinIO or any other
// S3-compatible service (Ceph, Garage, SeaweedFS) through the MinIO client.
//
// # Basic Usage
//
//	store, err := minio.Dial("localhost:9000", "minioadmin", "minioadmin", false,
//	    "partitions", "orders/")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	archiver := archive.New(store)
//
// An existing *minio.Client can be wrapped with NewStore instead.
package minio
