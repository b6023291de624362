package segment

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingField is matched by every MissingFieldError.
	ErrMissingField = errors.New("segment: missing field")

	// ErrUnexpectedKey is matched by every UnexpectedKeyError.
	ErrUnexpectedKey = errors.New("segment: unexpected key")

	// ErrInvalidName is returned when writing a segment without a name.
	ErrInvalidName = errors.New("segment: empty name")
)

// MissingFieldError reports a required scalar absent from a segment's
// metadata.
type MissingFieldError struct {
	Segment string
	Field   string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("segment %s missing key: %s", e.Segment, e.Field)
}

// Is reports whether target is ErrMissingField.
func (e *MissingFieldError) Is(target error) bool { return target == ErrMissingField }

// UnexpectedKeyError reports an entry that does not belong to the schema.
type UnexpectedKeyError struct {
	Segment string
	Key     string
}

func (e *UnexpectedKeyError) Error() string {
	return fmt.Sprintf("segment %s: unexpected key: %s", e.Segment, e.Key)
}

// Is reports whether target is ErrUnexpectedKey.
func (e *UnexpectedKeyError) Is(target error) bool { return target == ErrUnexpectedKey }
