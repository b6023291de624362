package backup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/hupe1980/kvdir"
	"github.com/hupe1980/kvdir/blobstore"
	"github.com/hupe1980/kvdir/internal/hash"
	"github.com/hupe1980/kvdir/internal/resource"
	"golang.org/x/sync/errgroup"
)

// Import restores the backup under the configured prefix into dir.
//
// No file is written unless every manifest name is absent from dir.
// Content is verified before its output is created, so a corrupt blob never
// reaches the directory.
func Import(ctx context.Context, dir kvdir.Dir, store blobstore.BlobStore, optFns ...func(o *Options)) (*Manifest, error) {
	opts := applyOptions(dir, optFns)
	source := opts.Prefix + ManifestName

	m, err := importBackup(ctx, dir, store, opts)
	if err != nil {
		opts.Logger.LogImport(ctx, source, 0, 0, err)
		return nil, err
	}
	opts.Logger.LogImport(ctx, source, len(m.Files), m.TotalLength(), nil)
	return m, nil
}

func importBackup(ctx context.Context, dir kvdir.Dir, store blobstore.BlobStore, opts Options) (*Manifest, error) {
	m, err := ReadManifest(ctx, store, opts.Prefix)
	if err != nil {
		return nil, err
	}

	for _, f := range m.Files {
		exists, err := dir.FileExists(ctx, f.Name)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, &kvdir.FileError{Op: "import", Name: f.Name, Err: kvdir.ErrAlreadyExists}
		}
	}

	// Fetches run in parallel; creates are serialized because concurrent
	// creates inside one kv.Tx would claim the same file id.
	var mu sync.Mutex
	err = forEachFile(ctx, m, opts, func(ctx context.Context, f FileEntry, rc *resource.Controller) error {
		data, err := fetch(ctx, store, opts.Prefix, m.Compression, f, rc)
		if err != nil {
			return err
		}

		mu.Lock()
		defer mu.Unlock()
		out, err := dir.CreateOutput(ctx, f.Name)
		if err != nil {
			return err
		}
		if _, err := out.Write(data); err != nil {
			return err
		}
		return out.Close()
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Verify fetches every file of the backup under the configured prefix and
// checks it against the manifest without touching a directory.
func Verify(ctx context.Context, store blobstore.BlobStore, optFns ...func(o *Options)) (*Manifest, error) {
	opts := applyOptions(nil, optFns)
	m, err := ReadManifest(ctx, store, opts.Prefix)
	if err != nil {
		return nil, err
	}
	err = forEachFile(ctx, m, opts, func(ctx context.Context, f FileEntry, rc *resource.Controller) error {
		_, err := fetch(ctx, store, opts.Prefix, m.Compression, f, rc)
		return err
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// forEachFile runs fn for every manifest entry under the resource limits,
// holding a memory reservation for the file's length.
func forEachFile(ctx context.Context, m *Manifest, opts Options, fn func(context.Context, FileEntry, *resource.Controller) error) error {
	rc := opts.controller()
	g, gctx := errgroup.WithContext(ctx)
	for _, f := range m.Files {
		g.Go(func() error {
			if err := rc.AcquireWorker(gctx); err != nil {
				return err
			}
			defer rc.ReleaseWorker()

			if err := rc.AcquireMemory(gctx, f.Length); err != nil {
				return err
			}
			defer rc.ReleaseMemory(f.Length)

			return fn(gctx, f, rc)
		})
	}
	return g.Wait()
}

func fetch(ctx context.Context, store blobstore.BlobStore, prefix string, c Compression, f FileEntry, rc *resource.Controller) ([]byte, error) {
	blob, err := store.Open(ctx, prefix+f.Blob)
	if err != nil {
		return nil, fmt.Errorf("backup: open blob for %q: %w", f.Name, err)
	}
	defer blob.Close()

	if blob.Size() == 0 {
		return verify(f, nil)
	}

	body, err := blob.ReadRange(ctx, 0, blob.Size())
	if err != nil {
		return nil, fmt.Errorf("backup: read blob for %q: %w", f.Name, err)
	}
	defer body.Close()

	r, err := newDecompressor(c, resource.NewRateLimitedReader(ctx, body, rc))
	if err != nil {
		return nil, fmt.Errorf("backup: read blob for %q: %w", f.Name, err)
	}
	defer r.Close()

	// One byte past the expected length exposes oversized content.
	var buf bytes.Buffer
	buf.Grow(int(min(f.Length, blob.Size())))
	if _, err := buf.ReadFrom(io.LimitReader(r, f.Length+1)); err != nil {
		return nil, fmt.Errorf("backup: decode blob for %q: %w", f.Name, err)
	}
	return verify(f, buf.Bytes())
}

func verify(f FileEntry, data []byte) ([]byte, error) {
	if crc := hash.CRC32C(data); int64(len(data)) != f.Length || crc != f.CRC32C {
		return nil, &ChecksumError{
			Name:       f.Name,
			WantLength: f.Length,
			GotLength:  int64(len(data)),
			WantCRC:    f.CRC32C,
			GotCRC:     crc,
		}
	}
	return data, nil
}
