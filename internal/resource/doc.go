// Package resource bounds the work done by bulk directory operations.
//
// A Controller limits three things independently:
//
//   - Concurrency: the number of files copied at once
//   - Memory: the bytes of file contents held in flight
//   - IO: a token-bucket limit on bytes per second
//
// A nil *Controller imposes no limits.
package resource
