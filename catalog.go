package kvdir

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/kvdir/kv"
	"github.com/hupe1980/kvdir/tuple"
)

// catalog maps file names to file ids.
type catalog struct {
	names  tuple.Subspace
	chunks *chunkStore
}

func (c *catalog) resolve(ctx context.Context, tr kv.Transaction, name string) (int64, error) {
	v, err := tr.Get(ctx, c.names.Pack(tuple.Tuple{name}))
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, ErrNotFound
	}
	t, err := tuple.Unpack(v)
	if err != nil {
		return 0, fmt.Errorf("catalog entry %q: %w", name, err)
	}
	id, err := t.Int(0)
	if err != nil {
		return 0, fmt.Errorf("catalog entry %q: %w", name, err)
	}
	return id, nil
}

// create registers name under a fresh id and writes the empty sentinel chunk.
//
// The id is one past the largest id present in the data region rather than a
// persisted counter. Ids of deleted files at the top of the range may
// therefore be handed out again.
func (c *catalog) create(ctx context.Context, tr kv.Transaction, name string) (int64, error) {
	if _, err := c.resolve(ctx, tr, name); err == nil {
		return 0, ErrAlreadyExists
	} else if !errors.Is(err, ErrNotFound) {
		return 0, err
	}

	maxID, ok, err := c.chunks.maxID(ctx, tr)
	if err != nil {
		return 0, err
	}
	var id int64
	if ok {
		id = maxID + 1
	}

	// Reading the sentinel puts the id claim under the store's point-read
	// conflict check, which is all dynamokv validates.
	sentinel := c.chunks.data.Pack(tuple.Tuple{id, int64(0)})
	if v, err := tr.Get(ctx, sentinel); err != nil {
		return 0, err
	} else if v != nil {
		return 0, fmt.Errorf("file id %d already has data", id)
	}

	tr.Set(c.names.Pack(tuple.Tuple{name}), tuple.Tuple{id}.Pack())
	c.chunks.write(tr, id, nil)
	return id, nil
}

func (c *catalog) delete(ctx context.Context, tr kv.Transaction, name string) error {
	id, err := c.resolve(ctx, tr, name)
	if err != nil {
		return err
	}
	tr.Clear(c.names.Pack(tuple.Tuple{name}))
	c.chunks.clear(tr, id)
	return nil
}

func (c *catalog) list(ctx context.Context, tr kv.Transaction) ([]string, error) {
	rows, err := tr.GetRange(ctx, c.names.Range(), kv.RangeOptions{})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		t, err := c.names.Unpack(row.Key)
		if err != nil {
			return nil, err
		}
		name, err := t.String(0)
		if err != nil {
			return nil, fmt.Errorf("catalog key: %w", err)
		}
		names = append(names, name)
	}
	return names, nil
}

type catalogEntry struct {
	name string
	id   int64
}

func (c *catalog) entries(ctx context.Context, tr kv.Transaction) ([]catalogEntry, error) {
	rows, err := tr.GetRange(ctx, c.names.Range(), kv.RangeOptions{})
	if err != nil {
		return nil, err
	}
	out := make([]catalogEntry, 0, len(rows))
	for _, row := range rows {
		k, err := c.names.Unpack(row.Key)
		if err != nil {
			return nil, err
		}
		name, err := k.String(0)
		if err != nil {
			return nil, fmt.Errorf("catalog key: %w", err)
		}
		v, err := tuple.Unpack(row.Value)
		if err != nil {
			return nil, fmt.Errorf("catalog entry %q: %w", name, err)
		}
		id, err := v.Int(0)
		if err != nil {
			return nil, fmt.Errorf("catalog entry %q: %w", name, err)
		}
		out = append(out, catalogEntry{name: name, id: id})
	}
	return out, nil
}
