// Package fs abstracts the file system operations the local blob store
// performs, so tests can inject I/O failures.
//
//   - [LocalFS]: production implementation over package os
//   - [FaultyFS]: wrapper that fails writes, syncs or renames on request
//
// Tests inject [FaultyFS] to simulate failures:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("_0.cfs", fs.Fault{FailAfterBytes: 1024})
//
// Operations take no context.Context; local file system calls are not
// interruptible at the syscall level.
package fs
