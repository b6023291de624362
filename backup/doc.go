// Package backup copies a directory's files to and from a blobstore.
//
// Export writes every file as one blob plus a manifest:
//
//	<prefix>files/<escaped name>   file content, optionally compressed
//	<prefix>MANIFEST               codec name, newline, encoded Manifest
//
// The manifest records each file's length and the CRC32C of its
// uncompressed content. Import and Verify recompute both and fail with
// ErrChecksumMismatch on any difference.
//
// Example:
//
//	store := blobstore.NewLocalStore("/var/backups/index")
//	m, err := backup.Export(ctx, dir, store, func(o *backup.Options) {
//	    o.Compression = backup.CompressionZstd
//	})
//
//	restored := kvdir.NewWithPath(db, "restored")
//	_, err = backup.Import(ctx, restored, store)
//
// In auto-commit mode each imported file commits on its own; bind the target
// directory to a kv.Tx to import atomically.
package backup
