// Package blobstore provides object storage targets for flushed records.
//
// BlobStore is a minimal name -> bytes interface. Implementations must be
// safe for concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: in-process map, for tests and ephemeral setups
//   - LocalStore: one file per blob, written atomically
//   - s3.Store: Amazon S3 (multipart uploads, CRC32C checksums)
//   - minio.Store: MinIO and other S3-compatible services
//
// # Custom Implementations
//
//	type BlobStore interface {
//	    Put(ctx, name, data) error
//	    Get(ctx, name) ([]byte, error)
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
//
// Get must return an error satisfying errors.Is(err, ErrNotFound) for
// missing blobs.
package blobstore
