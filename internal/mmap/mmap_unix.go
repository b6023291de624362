//go:build !windows

package mmap

import (
	"os"

	"golang.org/x/sys/unix"
)

// mapReadOnly maps the first size bytes of f privately; blobs never change
// after they are renamed into place.
func mapReadOnly(f *os.File, size int) ([]byte, error) {
	return unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_PRIVATE)
}

func unmap(data []byte) error {
	return unix.Munmap(data)
}
