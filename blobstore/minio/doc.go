// Package minio provides a blobstore.BlobStore backed by the MinIO client.
//
// It works with MinIO and other S3-compatible servers (Ceph, Garage,
// SeaweedFS) without pulling in the AWS SDK configuration chain.
//
//	store, err := minioblob.Dial(minioblob.Config{
//	    Endpoint:  "localhost:9000",
//	    AccessKey: "minioadmin",
//	    SecretKey: "minioadmin",
//	}, "backups", "index-1")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	err = backup.Export(ctx, dir, store)
package minio
