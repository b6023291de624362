package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/hupe1980/kvdir"
	"github.com/hupe1980/kvdir/blobstore"
	"github.com/hupe1980/kvdir/internal/hash"
	"github.com/hupe1980/kvdir/internal/resource"
	"golang.org/x/sync/errgroup"
)

// BlobName returns the blob name, below the prefix, that holds file name.
func BlobName(name string) string {
	return filesDir + url.PathEscape(name)
}

// Export copies every file of dir to store and writes the manifest last, so
// a manifest only ever describes complete blobs.
func Export(ctx context.Context, dir kvdir.Dir, store blobstore.BlobStore, optFns ...func(o *Options)) (*Manifest, error) {
	opts := applyOptions(dir, optFns)
	target := opts.Prefix + ManifestName

	m, err := export(ctx, dir, store, opts)
	if err != nil {
		opts.Logger.LogExport(ctx, target, 0, 0, err)
		return nil, err
	}
	opts.Logger.LogExport(ctx, target, len(m.Files), m.TotalLength(), nil)
	return m, nil
}

func export(ctx context.Context, dir kvdir.Dir, store blobstore.BlobStore, opts Options) (*Manifest, error) {
	if _, err := ParseCompression(string(opts.Compression)); err != nil {
		return nil, err
	}

	names, err := dir.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	rc := opts.controller()
	entries := make([]FileEntry, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			if err := rc.AcquireWorker(gctx); err != nil {
				return err
			}
			defer rc.ReleaseWorker()

			e, err := exportFile(gctx, dir, store, name, opts, rc)
			if err != nil {
				return err
			}
			entries[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	m := &Manifest{
		Version:     ManifestVersion,
		Compression: opts.Compression,
		CreatedAt:   time.Now().UTC(),
		Files:       entries,
	}
	if err := writeManifest(ctx, store, opts.Prefix, opts.Codec, m); err != nil {
		return nil, err
	}
	return m, nil
}

func exportFile(ctx context.Context, dir kvdir.Dir, store blobstore.BlobStore, name string, opts Options, rc *resource.Controller) (FileEntry, error) {
	in, err := dir.OpenInput(ctx, name)
	if err != nil {
		return FileEntry{}, err
	}
	defer in.Close()

	size := in.Length()
	if err := rc.AcquireMemory(ctx, size); err != nil {
		return FileEntry{}, err
	}
	defer rc.ReleaseMemory(size)

	data := make([]byte, size)
	if _, err := io.ReadFull(in, data); err != nil {
		return FileEntry{}, fmt.Errorf("backup: read %q: %w", name, err)
	}

	blob := BlobName(name)
	w, err := store.Create(ctx, opts.Prefix+blob)
	if err != nil {
		return FileEntry{}, fmt.Errorf("backup: create blob for %q: %w", name, err)
	}

	cw := &countingWriter{w: resource.NewRateLimitedWriter(ctx, w, rc)}
	err = writeCompressed(opts.Compression, cw, data)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return FileEntry{}, fmt.Errorf("backup: write %q: %w", name, err)
	}

	return FileEntry{
		Name:         name,
		Blob:         blob,
		Length:       size,
		StoredLength: cw.n,
		CRC32C:       hash.CRC32C(data),
	}, nil
}

// writeCompressed leaves empty content as an empty blob for every
// compression.
func writeCompressed(c Compression, w io.Writer, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	zw, err := newCompressor(c, w)
	if err != nil {
		return err
	}
	_, err = zw.Write(data)
	return errors.Join(err, zw.Close())
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
