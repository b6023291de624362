// Package s3 provides an Amazon S3 implementation of blobstore.BlobStore.
//
// # Usage
//
//	store, err := s3.NewFromConfig(ctx, "my-bucket", func(o *s3.Options) {
//	    o.Prefix = "backups/index-1"
//	})
//
//	err = backup.Export(ctx, dir, store)
//
// # Features
//
//   - Range reads for partial fetches
//   - Multipart streaming uploads through the transfer manager
//   - CRC32C integrity validation on upload
//   - Automatic pagination for listing
//   - Key prefix for sharing one bucket between backups
package s3
