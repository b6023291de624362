package kvdir

import (
	"context"
	"slices"
	"sync"
)

// Dir is the directory contract a host indexing engine consumes.
type Dir interface {
	ListAll(ctx context.Context) ([]string, error)
	FileExists(ctx context.Context, name string) (bool, error)
	DeleteFile(ctx context.Context, name string) error
	FileLength(ctx context.Context, name string) (int64, error)
	CreateOutput(ctx context.Context, name string) (IndexOutput, error)
	OpenInput(ctx context.Context, name string) (IndexInput, error)
	Sync(ctx context.Context, names []string) error
	MakeLock(name string) Lock
	ClearLock(name string) error
	Close() error
}

// Unwrapper is implemented by directories that delegate to another Dir.
type Unwrapper interface {
	Unwrap() Dir
}

// UnwrapDirectory follows Unwrap until it reaches a *Directory.
// It returns ErrNotKVDirectory if the chain ends elsewhere.
func UnwrapDirectory(d Dir) (*Directory, error) {
	for d != nil {
		switch v := d.(type) {
		case *Directory:
			return v, nil
		case Unwrapper:
			d = v.Unwrap()
		default:
			return nil, ErrNotKVDirectory
		}
	}
	return nil, ErrNotKVDirectory
}

// TrackingDirectory records the names of files created through it.
// Segment writers use it to collect a segment's file set.
type TrackingDirectory struct {
	Dir

	mu      sync.Mutex
	created map[string]struct{}
}

var _ Unwrapper = (*TrackingDirectory)(nil)

// NewTrackingDirectory wraps d.
func NewTrackingDirectory(d Dir) *TrackingDirectory {
	return &TrackingDirectory{
		Dir:     d,
		created: make(map[string]struct{}),
	}
}

// Unwrap returns the wrapped directory.
func (t *TrackingDirectory) Unwrap() Dir { return t.Dir }

// CreateOutput creates the file in the wrapped directory and records its name.
func (t *TrackingDirectory) CreateOutput(ctx context.Context, name string) (IndexOutput, error) {
	out, err := t.Dir.CreateOutput(ctx, name)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.created[name] = struct{}{}
	t.mu.Unlock()
	return out, nil
}

// DeleteFile deletes the file and forgets it.
func (t *TrackingDirectory) DeleteFile(ctx context.Context, name string) error {
	if err := t.Dir.DeleteFile(ctx, name); err != nil {
		return err
	}
	t.mu.Lock()
	delete(t.created, name)
	t.mu.Unlock()
	return nil
}

// CreatedFiles returns the recorded names in sorted order.
func (t *TrackingDirectory) CreatedFiles() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.created))
	for name := range t.created {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
