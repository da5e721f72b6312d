// Package s3 provides an S3 implementation of the blobstore.BlobStore interface.
//
// # Usage
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "my-bucket", "records/")
//	flusher := flush.Blob(store)
//
// # Features
//
//   - Multipart uploads for blobs larger than UploadConfig.PartSize
//   - CRC32C checksums validated by S3
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
package s3
