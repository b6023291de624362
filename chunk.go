package kvdir

import (
	"context"
	"fmt"

	"github.com/hupe1980/kvdir/kv"
	"github.com/hupe1980/kvdir/tuple"
)

// ChunkSize is the maximum size of one content record.
const ChunkSize = 1024

// chunkStore maps file content onto the data region. A file's content is the
// concatenation of the values under (fileID, offset) in ascending offset order.
type chunkStore struct {
	data tuple.Subspace
}

// write sets one record per ChunkSize slice of content. It never clears
// existing records; a file id is written once.
func (s *chunkStore) write(tr kv.Transaction, fileID int64, content []byte) int {
	if len(content) == 0 {
		tr.Set(s.data.Pack(tuple.Tuple{fileID, int64(0)}), nil)
		return 1
	}
	chunks := 0
	for off := 0; off < len(content); off += ChunkSize {
		end := min(off+ChunkSize, len(content))
		tr.Set(s.data.Pack(tuple.Tuple{fileID, int64(off)}), content[off:end])
		chunks++
	}
	return chunks
}

func (s *chunkStore) read(ctx context.Context, tr kv.Transaction, fileID int64) ([]byte, error) {
	rows, err := tr.GetRange(ctx, s.data.Range(fileID), kv.RangeOptions{})
	if err != nil {
		return nil, err
	}
	total := 0
	for _, row := range rows {
		total += len(row.Value)
	}
	out := make([]byte, 0, total)
	for _, row := range rows {
		out = append(out, row.Value...)
	}
	return out, nil
}

func (s *chunkStore) size(ctx context.Context, tr kv.Transaction, fileID int64) (int64, error) {
	rows, err := tr.GetRange(ctx, s.data.Range(fileID), kv.RangeOptions{})
	if err != nil {
		return 0, err
	}
	var n int64
	for _, row := range rows {
		n += int64(len(row.Value))
	}
	return n, nil
}

func (s *chunkStore) clear(tr kv.Transaction, fileID int64) {
	tr.ClearRange(s.data.Range(fileID))
}

// maxID returns the largest file id that has at least one record.
func (s *chunkStore) maxID(ctx context.Context, tr kv.Transaction) (int64, bool, error) {
	rows, err := tr.GetRange(ctx, s.data.Range(), kv.RangeOptions{Limit: 1, Reverse: true})
	if err != nil || len(rows) == 0 {
		return 0, false, err
	}
	id, err := s.fileID(rows[0].Key)
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// nextID returns the smallest file id with records that is >= from.
func (s *chunkStore) nextID(ctx context.Context, tr kv.Transaction, from int64) (int64, bool, error) {
	r := s.data.Range()
	r.Begin = s.data.Pack(tuple.Tuple{from})
	rows, err := tr.GetRange(ctx, r, kv.RangeOptions{Limit: 1})
	if err != nil || len(rows) == 0 {
		return 0, false, err
	}
	id, err := s.fileID(rows[0].Key)
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (s *chunkStore) fileID(key []byte) (int64, error) {
	t, err := s.data.Unpack(key)
	if err != nil {
		return 0, err
	}
	id, err := t.Int(0)
	if err != nil {
		return 0, fmt.Errorf("data key: %w", err)
	}
	return id, nil
}
