package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/kvdir"
	"github.com/hupe1980/kvdir/blobstore"
	"github.com/hupe1980/kvdir/codec"
	"github.com/hupe1980/kvdir/internal/resource"
)

const (
	// ManifestName is the manifest's blob name below the prefix.
	ManifestName = "MANIFEST"
	// ManifestVersion is the manifest layout version written by Export.
	ManifestVersion = 1
	// DefaultConcurrency is the number of files copied at once.
	DefaultConcurrency = 4

	filesDir = "files/"
)

var (
	// ErrChecksumMismatch is returned when restored content does not match
	// the manifest.
	ErrChecksumMismatch = errors.New("backup: checksum mismatch")
	// ErrUnknownCodec is returned for manifests written with an unregistered
	// codec.
	ErrUnknownCodec = errors.New("backup: unknown manifest codec")
	// ErrUnsupportedVersion is returned for manifests newer than this package.
	ErrUnsupportedVersion = errors.New("backup: unsupported manifest version")
	// ErrInvalidManifest is returned for manifests with malformed entries.
	ErrInvalidManifest = errors.New("backup: invalid manifest")
)

// ChecksumError describes a file whose restored content does not match its
// manifest entry.
type ChecksumError struct {
	Name       string
	WantLength int64
	GotLength  int64
	WantCRC    uint32
	GotCRC     uint32
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("backup: %q: checksum mismatch: want %d bytes crc32c %08x, got %d bytes crc32c %08x",
		e.Name, e.WantLength, e.WantCRC, e.GotLength, e.GotCRC)
}

// Is reports ErrChecksumMismatch.
func (e *ChecksumError) Is(target error) bool { return target == ErrChecksumMismatch }

// Manifest describes one backup.
type Manifest struct {
	Version     int         `json:"version"`
	Compression Compression `json:"compression"`
	CreatedAt   time.Time   `json:"created_at"`
	Files       []FileEntry `json:"files"`
}

// FileEntry describes one backed-up file.
type FileEntry struct {
	// Name is the file name in the directory.
	Name string `json:"name"`
	// Blob is the blob name below the prefix.
	Blob string `json:"blob"`
	// Length is the uncompressed content length.
	Length int64 `json:"length"`
	// StoredLength is the blob size.
	StoredLength int64 `json:"stored_length"`
	// CRC32C is the Castagnoli checksum of the uncompressed content.
	CRC32C uint32 `json:"crc32c"`
}

// TotalLength returns the summed uncompressed length of all files.
func (m *Manifest) TotalLength() int64 {
	var n int64
	for _, f := range m.Files {
		n += f.Length
	}
	return n
}

// Options configures Export, Import and Verify.
type Options struct {
	// Prefix is prepended to every blob name.
	Prefix string
	// Compression applies to exported file blobs. Import uses the
	// manifest's setting.
	Compression Compression
	// Codec encodes the manifest on export. Default: codec.Default.
	Codec codec.Codec
	// Concurrency is the number of files copied at once.
	Concurrency int
	// MemoryLimitBytes bounds file content held in flight. 0 means no limit.
	MemoryLimitBytes int64
	// IOLimitBytesPerSec throttles blob reads and writes. 0 means no limit.
	IOLimitBytesPerSec int64
	// Logger receives the outcome. Default: the directory's logger.
	Logger *kvdir.Logger
}

func applyOptions(dir kvdir.Dir, optFns []func(o *Options)) Options {
	opts := Options{
		Compression: CompressionNone,
		Codec:       codec.Default,
		Concurrency: DefaultConcurrency,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Compression == "" {
		opts.Compression = CompressionNone
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Logger == nil {
		if d, err := kvdir.UnwrapDirectory(dir); err == nil {
			opts.Logger = d.Logger()
		} else {
			opts.Logger = kvdir.NoopLogger()
		}
	}
	return opts
}

func (o Options) controller() *resource.Controller {
	return resource.NewController(resource.Config{
		MaxConcurrency:     int64(o.Concurrency),
		MemoryLimitBytes:   o.MemoryLimitBytes,
		IOLimitBytesPerSec: o.IOLimitBytesPerSec,
	})
}

// ReadManifest reads and decodes the manifest stored under prefix.
func ReadManifest(ctx context.Context, store blobstore.BlobStore, prefix string) (*Manifest, error) {
	data, err := blobstore.ReadAll(ctx, store, prefix+ManifestName)
	if err != nil {
		return nil, fmt.Errorf("backup: read manifest: %w", err)
	}

	name, payload, ok := bytes.Cut(data, []byte("\n"))
	if !ok {
		return nil, fmt.Errorf("%w: missing codec header", ErrUnknownCodec)
	}
	c, ok := codec.ByName(string(name))
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}

	var m Manifest
	if err := c.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("backup: decode manifest: %w", err)
	}
	if m.Version > ManifestVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, m.Version)
	}
	if _, err := ParseCompression(string(m.Compression)); err != nil {
		return nil, err
	}
	for _, f := range m.Files {
		if f.Name == "" || f.Blob == "" || f.Length < 0 || f.StoredLength < 0 {
			return nil, fmt.Errorf("%w: entry %q: blob %q, length %d, stored length %d",
				ErrInvalidManifest, f.Name, f.Blob, f.Length, f.StoredLength)
		}
	}
	return &m, nil
}

func writeManifest(ctx context.Context, store blobstore.BlobStore, prefix string, c codec.Codec, m *Manifest) error {
	payload, err := c.Marshal(m)
	if err != nil {
		return fmt.Errorf("backup: encode manifest: %w", err)
	}
	data := make([]byte, 0, len(c.Name())+1+len(payload))
	data = append(data, c.Name()...)
	data = append(data, '\n')
	data = append(data, payload...)
	if err := store.Put(ctx, prefix+ManifestName, data); err != nil {
		return fmt.Errorf("backup: write manifest: %w", err)
	}
	return nil
}
