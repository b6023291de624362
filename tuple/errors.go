package tuple

import (
	"errors"
	"fmt"
)

// ErrFormat is matched by every decoding failure.
var ErrFormat = errors.New("tuple: malformed encoding")

// FormatError describes a decoding failure at a byte offset.
type FormatError struct {
	Offset int
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("tuple: malformed encoding at offset %d: %s", e.Offset, e.Reason)
}

// Is reports whether target is ErrFormat.
func (e *FormatError) Is(target error) bool { return target == ErrFormat }

func formatErrorf(offset int, format string, args ...any) error {
	return &FormatError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}
