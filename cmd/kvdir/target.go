package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hupe1980/kvdir/blobstore"
	"github.com/hupe1980/kvdir/blobstore/minio"
	"github.com/hupe1980/kvdir/blobstore/s3"
)

// openTarget resolves a backup location to a blob store and a backup prefix
// within it.
//
//	mem:PREFIX                       session memory store
//	s3://BUCKET/PREFIX               Amazon S3, default AWS configuration
//	minio://ENDPOINT/BUCKET/PREFIX   MinIO, credentials from MINIO_ACCESS_KEY,
//	                                 MINIO_SECRET_KEY and MINIO_SECURE
//	PATH                             local directory
func (s *shell) openTarget(ctx context.Context, target string) (blobstore.BlobStore, string, error) {
	if rest, ok := strings.CutPrefix(target, "mem:"); ok {
		return s.mem, backupPrefix(rest), nil
	}

	if rest, ok := strings.CutPrefix(target, "s3://"); ok {
		bucket, prefix, _ := strings.Cut(rest, "/")
		if bucket == "" {
			return nil, "", fmt.Errorf("s3 target %q: missing bucket", target)
		}
		store, err := s3.NewFromConfig(ctx, bucket, func(o *s3.Options) { o.Prefix = prefix })
		if err != nil {
			return nil, "", err
		}
		return store, "", nil
	}

	if rest, ok := strings.CutPrefix(target, "minio://"); ok {
		endpoint, path, _ := strings.Cut(rest, "/")
		bucket, prefix, _ := strings.Cut(path, "/")
		if endpoint == "" || bucket == "" {
			return nil, "", fmt.Errorf("minio target %q: want minio://ENDPOINT/BUCKET[/PREFIX]", target)
		}
		secure, _ := strconv.ParseBool(os.Getenv("MINIO_SECURE"))
		store, err := minio.Dial(minio.Config{
			Endpoint:  endpoint,
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Secure:    secure,
		}, bucket, prefix)
		if err != nil {
			return nil, "", err
		}
		return store, "", nil
	}

	if target == "" {
		return nil, "", errors.New("empty target")
	}
	return blobstore.NewLocalStore(target), "", nil
}

func backupPrefix(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}
