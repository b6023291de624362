package codec_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/hupe1980/kvdir/backup"
	"github.com/hupe1980/kvdir/codec"
)

// manifestOf builds a backup manifest of a directory holding segments
// segments with the usual per-segment file set.
func manifestOf(segments int) *backup.Manifest {
	exts := []string{"si", "cfs", "cfe", "liv", "fnm"}
	m := &backup.Manifest{
		Version:     backup.ManifestVersion,
		Compression: backup.CompressionZstd,
		CreatedAt:   time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC),
	}
	for i := range segments {
		for j, ext := range exts {
			name := fmt.Sprintf("_%d.%s", i, ext)
			length := int64(1024*(i+1) + j*37)
			m.Files = append(m.Files, backup.FileEntry{
				Name:         name,
				Blob:         backup.BlobName(name),
				Length:       length,
				StoredLength: length / 3,
				CRC32C:       uint32(i*len(exts) + j),
			})
		}
	}
	m.Files = append(m.Files, backup.FileEntry{
		Name:   fmt.Sprintf("segments_%d", segments),
		Blob:   backup.BlobName(fmt.Sprintf("segments_%d", segments)),
		Length: 512, StoredLength: 200, CRC32C: 7,
	})
	return m
}

var codecs = []codec.Codec{codec.JSON{}, codec.GoJSON{}}

func BenchmarkCodec_MarshalManifest(b *testing.B) {
	for _, segments := range []int{10, 1000} {
		m := manifestOf(segments)
		for _, c := range codecs {
			b.Run(fmt.Sprintf("%s/segments=%d", c.Name(), segments), func(b *testing.B) {
				b.ReportAllocs()
				b.SetBytes(int64(len(codec.MustMarshal(c, m))))
				for b.Loop() {
					if _, err := c.Marshal(m); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}

func BenchmarkCodec_UnmarshalManifest(b *testing.B) {
	for _, segments := range []int{10, 1000} {
		data := codec.MustMarshal(codec.JSON{}, manifestOf(segments))
		for _, c := range codecs {
			b.Run(fmt.Sprintf("%s/segments=%d", c.Name(), segments), func(b *testing.B) {
				b.ReportAllocs()
				b.SetBytes(int64(len(data)))
				for b.Loop() {
					var m backup.Manifest
					if err := c.Unmarshal(data, &m); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}
