package kvdir

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// IndexInput is the read side of the byte-stream contract. Inputs are
// positioned readers over an immutable file.
type IndexInput interface {
	io.Reader
	io.ReaderAt
	io.Seeker
	io.ByteReader
	io.Closer
	// Length returns the file size.
	Length() int64
	// Name returns the file name.
	Name() string
	// Slice returns an independent input over [offset, offset+length).
	Slice(name string, offset, length int64) (IndexInput, error)
}

var errNegativeOffset = errors.New("kvdir: negative offset")

// Input serves reads from a file's content, loaded once when the input is
// opened. Reads never touch the store again.
type Input struct {
	name string
	data []byte

	mu  sync.Mutex
	pos int64
}

var _ IndexInput = (*Input)(nil)

func newInput(name string, data []byte) *Input {
	return &Input{name: name, data: data}
}

// Read reads up to len(p) bytes from the current position.
func (in *Input) Read(p []byte) (int, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.pos >= int64(len(in.data)) {
		return 0, io.EOF
	}
	n := copy(p, in.data[in.pos:])
	in.pos += int64(n)
	return n, nil
}

// ReadByte reads a single byte from the current position.
func (in *Input) ReadByte() (byte, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.pos >= int64(len(in.data)) {
		return 0, io.EOF
	}
	c := in.data[in.pos]
	in.pos++
	return c, nil
}

// ReadAt reads len(p) bytes at off. It does not move the position.
func (in *Input) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errNegativeOffset
	}
	if off >= int64(len(in.data)) {
		return 0, io.EOF
	}
	n := copy(p, in.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Seek sets the position for the next Read.
func (in *Input) Seek(offset int64, whence int) (int64, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = in.pos + offset
	case io.SeekEnd:
		abs = int64(len(in.data)) + offset
	default:
		return 0, fmt.Errorf("kvdir: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, errNegativeOffset
	}
	in.pos = abs
	return abs, nil
}

// Length returns the file size.
func (in *Input) Length() int64 { return int64(len(in.data)) }

// Name returns the file name.
func (in *Input) Name() string { return in.name }

// Bytes returns the file content. The slice must not be modified.
func (in *Input) Bytes() []byte { return in.data }

// Slice returns an input over a sub-range of the file with its own position.
func (in *Input) Slice(name string, offset, length int64) (IndexInput, error) {
	size := int64(len(in.data))
	if offset < 0 || length < 0 || offset > size || length > size-offset {
		return nil, fmt.Errorf("kvdir: slice offset %d length %d out of bounds for %q (length %d)",
			offset, length, in.name, size)
	}
	return newInput(name, in.data[offset:offset+length]), nil
}

// Close releases nothing; the content is garbage collected with the input.
func (in *Input) Close() error { return nil }
