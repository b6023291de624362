package tuple

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	nilCode    = 0x00
	bytesCode  = 0x01
	stringCode = 0x02
	nestedCode = 0x05
	intZero    = 0x14
	falseCode  = 0x26
	trueCode   = 0x27
	escapeByte = 0xff
)

// Tuple is an ordered sequence of elements.
//
// Valid element types are nil, bool, string, []byte, Tuple and every Go
// integer type. Unpack always returns int64 for integers that fit, uint64
// otherwise.
type Tuple []any

// Pack encodes the tuple.
//
// Pack panics if an element has an unsupported type; this is a programming
// error, not a data error.
func (t Tuple) Pack() []byte {
	return t.appendTo(make([]byte, 0, 32), false)
}

// Range returns the half-open interval of all keys that extend the tuple.
func (t Tuple) Range() KeyRange {
	p := t.Pack()
	return prefixRange(p)
}

func (t Tuple) appendTo(dst []byte, nested bool) []byte {
	for _, e := range t {
		dst = appendElement(dst, e, nested)
	}
	return dst
}

func appendElement(dst []byte, e any, nested bool) []byte {
	switch v := e.(type) {
	case nil:
		if nested {
			return append(dst, nilCode, escapeByte)
		}
		return append(dst, nilCode)
	case bool:
		if v {
			return append(dst, trueCode)
		}
		return append(dst, falseCode)
	case []byte:
		return appendEscaped(append(dst, bytesCode), v)
	case string:
		return appendEscaped(append(dst, stringCode), []byte(v))
	case Tuple:
		dst = append(dst, nestedCode)
		dst = v.appendTo(dst, true)
		return append(dst, 0x00)
	case int:
		return appendInt(dst, int64(v))
	case int8:
		return appendInt(dst, int64(v))
	case int16:
		return appendInt(dst, int64(v))
	case int32:
		return appendInt(dst, int64(v))
	case int64:
		return appendInt(dst, v)
	case uint:
		return appendUint(dst, uint64(v))
	case uint8:
		return appendUint(dst, uint64(v))
	case uint16:
		return appendUint(dst, uint64(v))
	case uint32:
		return appendUint(dst, uint64(v))
	case uint64:
		return appendUint(dst, v)
	default:
		panic(fmt.Sprintf("tuple: unsupported element type %T", e))
	}
}

func appendEscaped(dst, b []byte) []byte {
	for _, c := range b {
		dst = append(dst, c)
		if c == 0x00 {
			dst = append(dst, escapeByte)
		}
	}
	return append(dst, 0x00)
}

// byteLen returns the minimal number of bytes holding v.
func byteLen(v uint64) int {
	n := 0
	for v > 0 {
		n++
		v >>= 8
	}
	return n
}

func appendMagnitude(dst []byte, v uint64, n int) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return append(dst, buf[8-n:]...)
}

func appendUint(dst []byte, v uint64) []byte {
	if v == 0 {
		return append(dst, intZero)
	}
	n := byteLen(v)
	return appendMagnitude(append(dst, byte(intZero+n)), v, n)
}

func appendInt(dst []byte, v int64) []byte {
	if v >= 0 {
		return appendUint(dst, uint64(v))
	}
	var mag uint64
	if v == math.MinInt64 {
		mag = 1 << 63
	} else {
		mag = uint64(-v)
	}
	n := byteLen(mag)
	// Negative integers store the ones' complement of the magnitude so that
	// larger magnitudes sort first.
	return appendMagnitude(append(dst, byte(intZero-n)), maxValue(n)-mag, n)
}

func maxValue(n int) uint64 {
	if n >= 8 {
		return math.MaxUint64
	}
	return (uint64(1) << (8 * uint(n))) - 1
}

// Unpack decodes a packed tuple.
func Unpack(b []byte) (Tuple, error) {
	t, off, err := decode(b, 0, false)
	if err != nil {
		return nil, err
	}
	if off != len(b) {
		return nil, formatErrorf(off, "trailing bytes")
	}
	return t, nil
}

func decode(b []byte, off int, nested bool) (Tuple, int, error) {
	t := Tuple{}
	for off < len(b) {
		code := b[off]
		switch {
		case code == nilCode:
			if !nested {
				t = append(t, nil)
				off++
				continue
			}
			if off+1 < len(b) && b[off+1] == escapeByte {
				t = append(t, nil)
				off += 2
				continue
			}
			return t, off + 1, nil
		case code == bytesCode:
			v, next, err := decodeEscaped(b, off+1)
			if err != nil {
				return nil, 0, err
			}
			t = append(t, v)
			off = next
		case code == stringCode:
			v, next, err := decodeEscaped(b, off+1)
			if err != nil {
				return nil, 0, err
			}
			t = append(t, string(v))
			off = next
		case code == nestedCode:
			inner, next, err := decode(b, off+1, true)
			if err != nil {
				return nil, 0, err
			}
			t = append(t, inner)
			off = next
		case code >= intZero-8 && code <= intZero+8:
			v, next, err := decodeInt(b, off)
			if err != nil {
				return nil, 0, err
			}
			t = append(t, v)
			off = next
		case code == falseCode:
			t = append(t, false)
			off++
		case code == trueCode:
			t = append(t, true)
			off++
		default:
			return nil, 0, formatErrorf(off, "unknown type code 0x%02x", code)
		}
	}
	if nested {
		return nil, 0, formatErrorf(off, "unterminated nested tuple")
	}
	return t, off, nil
}

func decodeEscaped(b []byte, off int) ([]byte, int, error) {
	out := []byte{}
	for i := off; i < len(b); i++ {
		if b[i] != 0x00 {
			out = append(out, b[i])
			continue
		}
		if i+1 < len(b) && b[i+1] == escapeByte {
			out = append(out, 0x00)
			i++
			continue
		}
		return out, i + 1, nil
	}
	return nil, 0, formatErrorf(off, "unterminated byte string")
}

func decodeInt(b []byte, off int) (any, int, error) {
	n := int(b[off]) - intZero
	neg := n < 0
	if neg {
		n = -n
	}
	start := off + 1
	if start+n > len(b) {
		return nil, 0, formatErrorf(off, "truncated integer")
	}
	var buf [8]byte
	copy(buf[8-n:], b[start:start+n])
	v := binary.BigEndian.Uint64(buf[:])
	next := start + n
	if !neg {
		if v > math.MaxInt64 {
			return v, next, nil
		}
		return int64(v), next, nil
	}
	mag := maxValue(n) - v
	if mag > 1<<63 {
		return nil, 0, formatErrorf(off, "integer out of range")
	}
	if mag == 1<<63 {
		return int64(math.MinInt64), next, nil
	}
	return -int64(mag), next, nil
}

// String returns element i as a string.
func (t Tuple) String(i int) (string, error) {
	if i < 0 || i >= len(t) {
		return "", formatErrorf(i, "element index out of range")
	}
	v, ok := t[i].(string)
	if !ok {
		return "", formatErrorf(i, "element is %T, not string", t[i])
	}
	return v, nil
}

// Int returns element i as an int64.
func (t Tuple) Int(i int) (int64, error) {
	if i < 0 || i >= len(t) {
		return 0, formatErrorf(i, "element index out of range")
	}
	v, ok := t[i].(int64)
	if !ok {
		return 0, formatErrorf(i, "element is %T, not int64", t[i])
	}
	return v, nil
}

// Bool returns element i as a bool. Integers 0 and 1 are accepted as well.
func (t Tuple) Bool(i int) (bool, error) {
	if i < 0 || i >= len(t) {
		return false, formatErrorf(i, "element index out of range")
	}
	switch v := t[i].(type) {
	case bool:
		return v, nil
	case int64:
		if v == 0 || v == 1 {
			return v == 1, nil
		}
	}
	return false, formatErrorf(i, "element %v is not a bool", t[i])
}

// Bytes returns element i as a byte string.
func (t Tuple) Bytes(i int) ([]byte, error) {
	if i < 0 || i >= len(t) {
		return nil, formatErrorf(i, "element index out of range")
	}
	v, ok := t[i].([]byte)
	if !ok {
		return nil, formatErrorf(i, "element is %T, not []byte", t[i])
	}
	return v, nil
}

// Equal reports whether both tuples pack to the same bytes.
func (t Tuple) Equal(o Tuple) bool {
	return bytes.Equal(t.Pack(), o.Pack())
}
