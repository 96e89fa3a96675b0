// Package blobstore abstracts where index snapshots are kept.
//
// A Store holds named, immutable blobs. Writers stream into a WritableBlob and
// the blob only becomes visible on a successful Close; Abort discards it.
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem, atomic rename on close
//   - MemoryStore: in-process map, for tests
//   - s3.Store: Amazon S3 with multipart uploads (package blobstore/s3)
//   - minio.Store: MinIO and other S3-compatible servers (package blobstore/minio)
package blobstore
