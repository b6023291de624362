// Package tuple implements an order-preserving, self-describing encoding of
// typed element sequences and the binary prefixes ("subspaces") built from it.
//
// The wire format is the FoundationDB tuple layer. Packed tuples compare
// bytewise in the same order as their logical element sequences: integers
// compare as integers, strings as strings, and a tuple always sorts before any
// tuple that extends it.
//
// # Supported Elements
//
//	nil            0x00
//	[]byte         0x01 ... 0x00  (0x00 escaped as 0x00 0xFF)
//	string         0x02 ... 0x00  (UTF-8, same escaping)
//	Tuple          0x05 ... 0x00  (nested)
//	integers       0x0c - 0x1c    (length-prefixed big-endian magnitude)
//	bool           0x26 / 0x27
//
// # Subspaces
//
//	root := tuple.NewSubspace(tuple.Tuple{"kvdir", "index"})
//	files := root.Sub(0)
//	key := files.Pack(tuple.Tuple{"_0.cfs"})
//	r := files.Range() // all keys below files
package tuple
