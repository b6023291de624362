package kvdir

import (
	"errors"
	"fmt"
	"io/fs"
)

var (
	// ErrNotFound is returned when a file is not registered in the catalog.
	// It matches fs.ErrNotExist.
	ErrNotFound = fmt.Errorf("kvdir: file not found: %w", fs.ErrNotExist)

	// ErrAlreadyExists is returned when creating a file whose name is taken.
	// It matches fs.ErrExist.
	ErrAlreadyExists = fmt.Errorf("kvdir: file already exists: %w", fs.ErrExist)

	// ErrClosed is returned when writing to an output that was flushed.
	ErrClosed = errors.New("kvdir: output already flushed")

	// ErrNotKVDirectory is returned by UnwrapDirectory when no *Directory
	// backs the given Dir.
	ErrNotKVDirectory = errors.New("kvdir: not backed by a kv directory")
)

// FileError records a failed operation on a named file.
//
// The original underlying error can be accessed via errors.Unwrap.
type FileError struct {
	Op   string
	Name string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("kvdir: %s %q: %v", e.Op, e.Name, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

func fileError(op, name string, err error) error {
	if err == nil {
		return nil
	}
	var fe *FileError
	if errors.As(err, &fe) && fe.Name == name {
		return err
	}
	return &FileError{Op: op, Name: name, Err: err}
}
