package kvdir

import (
	"bytes"
	"context"
	"hash"
	"io"
	"sync"
	"time"

	internalhash "github.com/hupe1980/kvdir/internal/hash"
	"github.com/hupe1980/kvdir/kv"
)

// IndexOutput is the write side of the byte-stream contract a host indexing
// engine serializes through.
type IndexOutput interface {
	io.Writer
	io.ByteWriter
	io.StringWriter
	// Flush persists the content written so far. The first call is final.
	Flush() error
	// Close flushes the output.
	Close() error
	// FilePointer returns the number of bytes written.
	FilePointer() int64
	// Name returns the file name.
	Name() string
}

// Output buffers a file's content in memory and writes it to the store as a
// single set of chunk records on the first Flush or Close.
//
// In auto-commit mode the write commits in its own transaction. In threaded
// mode it is added to the directory's transaction.
type Output struct {
	dir    *Directory
	ctx    context.Context
	name   string
	fileID int64

	mu      sync.Mutex
	buf     bytes.Buffer
	crc     hash.Hash32
	flushed bool
	err     error
}

var _ IndexOutput = (*Output)(nil)

func newOutput(ctx context.Context, d *Directory, name string, fileID int64) *Output {
	return &Output{
		dir:    d,
		ctx:    ctx,
		name:   name,
		fileID: fileID,
		crc:    internalhash.NewCRC32C(),
	}
}

// Write appends p to the buffered content.
func (o *Output) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.flushed {
		return 0, fileError("write", o.name, ErrClosed)
	}
	_, _ = o.crc.Write(p)
	return o.buf.Write(p)
}

// WriteByte appends a single byte.
func (o *Output) WriteByte(c byte) error {
	_, err := o.Write([]byte{c})
	return err
}

// WriteString appends s.
func (o *Output) WriteString(s string) (int, error) {
	return o.Write([]byte(s))
}

// FilePointer returns the number of bytes written so far.
func (o *Output) FilePointer() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return int64(o.buf.Len())
}

// Checksum returns the CRC32C of the bytes written so far.
func (o *Output) Checksum() uint32 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.crc.Sum32()
}

// Name returns the file name.
func (o *Output) Name() string { return o.name }

// FileID returns the id the catalog assigned to the file.
func (o *Output) FileID() int64 { return o.fileID }

// Flush writes the buffered content to the store. Only the first call writes;
// later calls return the first call's result.
func (o *Output) Flush() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.flushed {
		return o.err
	}

	start := time.Now()
	content := o.buf.Bytes()
	chunks := 0
	err := o.dir.t.Transact(o.ctx, func(tr kv.Transaction) error {
		chunks = o.dir.chunks.write(tr, o.fileID, content)
		return nil
	})
	err = fileError("flush", o.name, err)

	o.flushed = true
	o.err = err
	o.dir.metrics().RecordFlush(int64(len(content)), chunks, time.Since(start), err)
	o.dir.logger.LogFlush(o.ctx, o.name, o.fileID, int64(len(content)), chunks, err)
	return err
}

// Close flushes the output.
func (o *Output) Close() error {
	return o.Flush()
}
