package segment

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/hupe1980/kvdir"
	"github.com/hupe1980/kvdir/kv"
	"github.com/hupe1980/kvdir/tuple"
)

const (
	infoTag = "si"

	fieldDocCount       = "doc_count"
	fieldVersion        = "version"
	fieldIsCompoundFile = "is_compound_file"
	fieldDiagnostics    = "diag"
	fieldAttributes     = "attr"
	fieldFile           = "file"
)

// Info is a segment's descriptive metadata.
type Info struct {
	Name           string
	Version        string
	DocCount       int64
	IsCompoundFile bool
	Diagnostics    map[string]string
	Attributes     map[string]string
	// Files is the segment's file set in ascending order.
	Files []string
}

func region(d *kvdir.Directory, name string) tuple.Subspace {
	return d.Subspace().Sub(name, infoTag)
}

// Write stores info under the directory backing dir.
//
// Entries are added to whatever the region already holds; call Delete first
// to replace a segment's metadata.
func Write(ctx context.Context, dir kvdir.Dir, info *Info) error {
	if info == nil || info.Name == "" {
		return ErrInvalidName
	}
	d, err := kvdir.UnwrapDirectory(dir)
	if err != nil {
		return err
	}
	r := region(d, info.Name)

	return d.Transactor().Transact(ctx, func(tr kv.Transaction) error {
		tr.Set(r.Pack(tuple.Tuple{fieldDocCount}), tuple.Tuple{info.DocCount}.Pack())
		tr.Set(r.Pack(tuple.Tuple{fieldIsCompoundFile}), tuple.Tuple{info.IsCompoundFile}.Pack())
		tr.Set(r.Pack(tuple.Tuple{fieldVersion}), tuple.Tuple{info.Version}.Pack())

		for k, v := range info.Diagnostics {
			tr.Set(r.Pack(tuple.Tuple{fieldDiagnostics, k}), tuple.Tuple{v}.Pack())
		}
		for k, v := range info.Attributes {
			tr.Set(r.Pack(tuple.Tuple{fieldAttributes, k}), tuple.Tuple{v}.Pack())
		}
		for _, f := range info.Files {
			tr.Set(r.Pack(tuple.Tuple{fieldFile, f}), nil)
		}
		return nil
	})
}

// Read loads the metadata of segment name with a single range read.
//
// It fails with a *MissingFieldError if version, doc_count or
// is_compound_file is absent (checked in that order) and with an
// *UnexpectedKeyError on any entry outside the schema.
func Read(ctx context.Context, dir kvdir.Dir, name string) (*Info, error) {
	d, err := kvdir.UnwrapDirectory(dir)
	if err != nil {
		return nil, err
	}
	r := region(d, name)

	var rows []kv.KeyValue
	err = d.Transactor().Transact(ctx, func(tr kv.Transaction) error {
		var err error
		rows, err = tr.GetRange(ctx, r.Range(), kv.RangeOptions{})
		return err
	})
	if err != nil {
		return nil, err
	}

	var (
		version        *string
		docCount       *int64
		isCompoundFile *bool
		diagnostics    = make(map[string]string)
		attributes     = make(map[string]string)
		files          = make(map[string]struct{})
	)

	for _, row := range rows {
		key, err := r.Unpack(row.Key)
		if err != nil {
			return nil, fmt.Errorf("segment %s: %w", name, err)
		}
		field, err := key.String(0)
		if err != nil {
			return nil, &UnexpectedKeyError{Segment: name, Key: fmt.Sprint(key)}
		}

		switch len(key) {
		case 1:
			value, err := tuple.Unpack(row.Value)
			if err != nil {
				return nil, fmt.Errorf("segment %s: %s: %w", name, field, err)
			}
			switch field {
			case fieldVersion:
				v, err := value.String(0)
				if err != nil {
					return nil, fmt.Errorf("segment %s: %s: %w", name, field, err)
				}
				version = &v
			case fieldDocCount:
				v, err := value.Int(0)
				if err != nil {
					return nil, fmt.Errorf("segment %s: %s: %w", name, field, err)
				}
				docCount = &v
			case fieldIsCompoundFile:
				v, err := value.Bool(0)
				if err != nil {
					return nil, fmt.Errorf("segment %s: %s: %w", name, field, err)
				}
				isCompoundFile = &v
			default:
				return nil, &UnexpectedKeyError{Segment: name, Key: field}
			}
		case 2:
			member, err := key.String(1)
			if err != nil {
				return nil, &UnexpectedKeyError{Segment: name, Key: fmt.Sprint(key)}
			}
			switch field {
			case fieldDiagnostics, fieldAttributes:
				value, err := tuple.Unpack(row.Value)
				if err != nil {
					return nil, fmt.Errorf("segment %s: %s %s: %w", name, field, member, err)
				}
				v, err := value.String(0)
				if err != nil {
					return nil, fmt.Errorf("segment %s: %s %s: %w", name, field, member, err)
				}
				if field == fieldDiagnostics {
					diagnostics[member] = v
				} else {
					attributes[member] = v
				}
			case fieldFile:
				files[member] = struct{}{}
			default:
				return nil, &UnexpectedKeyError{Segment: name, Key: field}
			}
		default:
			return nil, &UnexpectedKeyError{Segment: name, Key: field}
		}
	}

	switch {
	case version == nil:
		return nil, &MissingFieldError{Segment: name, Field: fieldVersion}
	case docCount == nil:
		return nil, &MissingFieldError{Segment: name, Field: fieldDocCount}
	case isCompoundFile == nil:
		return nil, &MissingFieldError{Segment: name, Field: fieldIsCompoundFile}
	}

	return &Info{
		Name:           name,
		Version:        *version,
		DocCount:       *docCount,
		IsCompoundFile: *isCompoundFile,
		Diagnostics:    diagnostics,
		Attributes:     attributes,
		Files:          slices.Sorted(maps.Keys(files)),
	}, nil
}

// Delete removes every metadata entry of segment name.
func Delete(ctx context.Context, dir kvdir.Dir, name string) error {
	d, err := kvdir.UnwrapDirectory(dir)
	if err != nil {
		return err
	}
	r := region(d, name)
	return d.Transactor().Transact(ctx, func(tr kv.Transaction) error {
		tr.ClearRange(r.Range())
		return nil
	})
}
