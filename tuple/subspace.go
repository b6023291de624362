package tuple

import (
	"bytes"
	"encoding/hex"
)

// KeyRange is a half-open key interval [Begin, End).
type KeyRange struct {
	Begin []byte
	End   []byte
}

// Contains reports whether key lies in the range.
func (r KeyRange) Contains(key []byte) bool {
	return bytes.Compare(key, r.Begin) >= 0 && bytes.Compare(key, r.End) < 0
}

func prefixRange(p []byte) KeyRange {
	begin := make([]byte, len(p)+1)
	copy(begin, p)
	end := make([]byte, len(p)+1)
	copy(end, p)
	end[len(p)] = 0xff
	return KeyRange{Begin: begin, End: end}
}

// Subspace is a binary key prefix scoping keys to one logical purpose.
type Subspace struct {
	prefix []byte
}

// NewSubspace returns the subspace whose prefix is the packed tuple.
func NewSubspace(t Tuple) Subspace {
	return Subspace{prefix: t.Pack()}
}

// FromBytes returns a subspace over a raw prefix.
func FromBytes(prefix []byte) Subspace {
	return Subspace{prefix: bytes.Clone(prefix)}
}

// Bytes returns the raw prefix.
func (s Subspace) Bytes() []byte { return s.prefix }

// Sub returns a child subspace extended by the given elements.
func (s Subspace) Sub(elems ...any) Subspace {
	return Subspace{prefix: s.Pack(Tuple(elems))}
}

// Pack returns the key for t inside the subspace.
func (s Subspace) Pack(t Tuple) []byte {
	out := make([]byte, len(s.prefix), len(s.prefix)+32)
	copy(out, s.prefix)
	return t.appendTo(out, false)
}

// Unpack decodes the elements of key that follow the subspace prefix.
func (s Subspace) Unpack(key []byte) (Tuple, error) {
	if !s.Contains(key) {
		return nil, formatErrorf(0, "key %s is outside subspace %s", hex.EncodeToString(key), s)
	}
	return Unpack(key[len(s.prefix):])
}

// Contains reports whether key begins with the subspace prefix.
func (s Subspace) Contains(key []byte) bool {
	return bytes.HasPrefix(key, s.prefix)
}

// Range returns the interval of all keys in the subspace that extend t.
func (s Subspace) Range(t ...any) KeyRange {
	return prefixRange(s.Pack(Tuple(t)))
}

func (s Subspace) String() string {
	return hex.EncodeToString(s.prefix)
}
