// Package format selects which index formats are stored through kvdir.
//
// The selection is read from the KVDIR_FORMATS environment variable and
// accepts ALL, NONE, DEFAULT or a comma-separated list of format names:
//
//	KVDIR_FORMATS=SEGMENT_INFO,LIVE_DOCS
package format

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// EnvVar names the environment variable read by FromEnv.
const EnvVar = "KVDIR_FORMATS"

// Format identifies one per-segment index format.
type Format uint8

const (
	DocValues Format = iota
	FieldInfos
	LiveDocs
	Norms
	Postings
	SegmentInfo
	StoredFields
	TermVectors

	numFormats
)

var names = [numFormats]string{
	DocValues:    "DOC_VALUES",
	FieldInfos:   "FIELD_INFOS",
	LiveDocs:     "LIVE_DOCS",
	Norms:        "NORMS",
	Postings:     "POSTINGS",
	SegmentInfo:  "SEGMENT_INFO",
	StoredFields: "STORED_FIELDS",
	TermVectors:  "TERM_VECTORS",
}

func (f Format) String() string {
	if f < numFormats {
		return names[f]
	}
	return fmt.Sprintf("Format(%d)", uint8(f))
}

// All returns every format in declaration order.
func All() []Format {
	out := make([]Format, numFormats)
	for i := range out {
		out[i] = Format(i)
	}
	return out
}

// ErrUnknownFormat is returned by Parse for unrecognized names.
var ErrUnknownFormat = errors.New("format: unknown format")

// Set is a set of formats.
type Set uint16

const (
	// None selects no format.
	None Set = 0
	// AllSet selects every format.
	AllSet Set = 1<<numFormats - 1
	// Default is the selection used when nothing is configured. It
	// currently equals AllSet.
	Default = AllSet
)

// Of returns the set holding fs.
func Of(fs ...Format) Set {
	var s Set
	for _, f := range fs {
		s |= 1 << f
	}
	return s
}

// Has reports whether f is in the set.
func (s Set) Has(f Format) bool { return f < numFormats && s&(1<<f) != 0 }

// Formats returns the members in declaration order.
func (s Set) Formats() []Format {
	var out []Format
	for _, f := range All() {
		if s.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

func (s Set) String() string {
	switch s {
	case None:
		return "NONE"
	case AllSet:
		return "ALL"
	}
	parts := make([]string, 0, numFormats)
	for _, f := range s.Formats() {
		parts = append(parts, f.String())
	}
	return strings.Join(parts, ",")
}

// Parse reads a selection. Keywords and names are case-insensitive.
func Parse(v string) (Set, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "ALL":
		return AllSet, nil
	case "NONE":
		return None, nil
	case "DEFAULT":
		return Default, nil
	}

	var s Set
	for _, part := range strings.Split(v, ",") {
		name := strings.ToUpper(strings.TrimSpace(part))
		f, ok := lookup(name)
		if !ok {
			return None, fmt.Errorf("%w: %q", ErrUnknownFormat, part)
		}
		s |= Of(f)
	}
	return s, nil
}

func lookup(name string) (Format, bool) {
	for i, n := range names {
		if n == name {
			return Format(i), true
		}
	}
	return 0, false
}

// FromEnv parses KVDIR_FORMATS. An unset or empty variable selects Default.
func FromEnv() (Set, error) {
	v, ok := os.LookupEnv(EnvVar)
	if !ok || strings.TrimSpace(v) == "" {
		return Default, nil
	}
	return Parse(v)
}

// Selector resolves each format to the kv-backed implementation when the
// format is enabled and to the fallback otherwise.
type Selector[T any] struct {
	Enabled  Set
	KV       func(Format) T
	Fallback func(Format) T
}

// Resolve returns the implementation for f.
func (s Selector[T]) Resolve(f Format) T {
	if s.Enabled.Has(f) {
		return s.KV(f)
	}
	return s.Fallback(f)
}
