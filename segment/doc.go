// Package segment stores a segment's descriptive metadata as individual
// key-value entries beside the files of a kvdir.Directory.
//
// For a segment named n the entries live under root+(n, "si"):
//
//	doc_count           -> tuple(int)
//	version             -> tuple(string)
//	is_compound_file    -> tuple(bool)
//	diag, <key>         -> tuple(string)
//	attr, <key>         -> tuple(string)
//	file, <name>        -> empty
//
// Read rejects any entry outside this schema.
package segment
