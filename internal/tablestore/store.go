package tablestore

import (
	"context"
	"fmt"
	"time"

	"github.com/xtxerr/coinlake/internal/dataset"
	"github.com/xtxerr/coinlake/internal/errors"
	"github.com/xtxerr/coinlake/internal/tablestore/txlog"
)

// Store opens tables by path with shared options.
type Store struct {
	opts Options
}

// NewStore returns a Store. The options are checked once here.
func NewStore(opts Options) (*Store, error) {
	if _, err := ParseCompression(opts.Compression); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
	}
	return &Store{opts: opts}, nil
}

// Table opens the table at path.
func (s *Store) Table(path string) (*Table, error) {
	return Open(path, s.opts)
}

// Read returns the current contents of the table at path.
func (s *Store) Read(ctx context.Context, path string) (*dataset.Dataset, error) {
	t, err := s.Table(path)
	if err != nil {
		return nil, err
	}
	return t.Read(ctx)
}

// ReadVersion returns the table at path as of version v.
func (s *Store) ReadVersion(ctx context.Context, path string, v int64) (*dataset.Dataset, error) {
	t, err := s.Table(path)
	if err != nil {
		return nil, err
	}
	return t.ReadVersion(ctx, v)
}

// Write commits ds to the table at path.
func (s *Store) Write(ctx context.Context, path string, ds *dataset.Dataset, wm WriteMode, sm SchemaMode) (*CommitResult, error) {
	t, err := s.Table(path)
	if err != nil {
		return nil, err
	}
	return t.Write(ctx, ds, wm, sm)
}

// History lists the commits of the table at path, newest first.
func (s *Store) History(ctx context.Context, path string) ([]txlog.Entry, error) {
	t, err := s.Table(path)
	if err != nil {
		return nil, err
	}
	return t.History(ctx)
}

// ReadTable reads the table at path with default options.
func ReadTable(ctx context.Context, path string) (*dataset.Dataset, error) {
	t, err := Open(path, DefaultOptions())
	if err != nil {
		return nil, err
	}
	return t.Read(ctx)
}

// WriteTable writes ds to the table at path with default options.
func WriteTable(ctx context.Context, path string, ds *dataset.Dataset, wm WriteMode, sm SchemaMode) (*CommitResult, error) {
	t, err := Open(path, DefaultOptions())
	if err != nil {
		return nil, err
	}
	return t.Write(ctx, ds, wm, sm)
}

// Compact rewrites the live files of the table at path into one.
func (s *Store) Compact(ctx context.Context, path string) (*CompactResult, error) {
	t, err := s.Table(path)
	if err != nil {
		return nil, err
	}
	return t.Compact(ctx)
}

// Vacuum deletes data files of the table at path that no retained version
// references.
func (s *Store) Vacuum(ctx context.Context, path string, retain time.Duration, dryRun bool) (*VacuumResult, error) {
	t, err := s.Table(path)
	if err != nil {
		return nil, err
	}
	return t.Vacuum(ctx, retain, dryRun)
}
