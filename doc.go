// Package kvdir stores an indexing engine's files in an ordered, transactional
// key-value store.
//
// A Directory maps every file onto records inside a caller-chosen keyspace
// (a tuple.Subspace):
//
//	root, 0, <name>             -> tuple(<fileID>)        catalog
//	root, 1, <fileID>, <offset> -> up to ChunkSize bytes   content
//
// Concatenating a file's content records in offset order reproduces the file.
// Segment metadata is stored beside the files by package segment.
//
// # Quick Start
//
//	ctx := context.Background()
//	db := memkv.New()
//	dir := kvdir.NewWithPath(db, "index")
//
//	out, _ := dir.CreateOutput(ctx, "_0.cfs")
//	out.Write(data)
//	out.Close()
//
//	in, _ := dir.OpenInput(ctx, "_0.cfs")
//	defer in.Close()
//
// # Execution Modes
//
// A directory is bound to a kv.Transactor. Binding a kv.Database commits each
// call on its own and retries it on conflicts. Binding a kv.Tx threads every
// call through one transaction that the caller commits:
//
//	tx, _ := db.CreateTransaction(ctx)
//	txDir := dir.WithTransactor(tx)
//	// ... file operations ...
//	err := tx.Commit(ctx)
//
// Output content is buffered in memory and written as one set of records on
// the first Flush or Close. Inputs load the whole file when opened.
//
// # Wrapping
//
// Code that needs the backing store behind a wrapped Dir calls
// UnwrapDirectory, which follows Unwrapper implementations such as
// TrackingDirectory.
//
// # Observability
//
// WithLogger and WithMetricsCollector attach structured logging and
// operation metrics:
//
//	metrics := &kvdir.BasicMetricsCollector{}
//	dir := kvdir.NewWithPath(db, "index",
//		kvdir.WithLogger(kvdir.NewJSONLogger(slog.LevelDebug)),
//		kvdir.WithMetricsCollector(metrics),
//	)
package kvdir
