// Package mmap provides read-only memory-mapped file access.
//
//	m, err := mmap.Open("backup/files/_0.cfs")
//	if err != nil { ... }
//	defer m.Close()
//
//	data := m.Bytes()
//
// Unix platforms use mmap(2); Windows uses CreateFileMapping/MapViewOfFile.
// Callers must not touch the slice returned by Bytes after Close.
package mmap
