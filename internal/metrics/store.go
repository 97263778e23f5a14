package metrics

import (
	"bytes"
	"context"
	"io"

	"github.com/xtxerr/coinlake/internal/objectstore"
)

// instrumentedStore counts operations and bytes of an objectstore.Store.
type instrumentedStore struct {
	next objectstore.Store
	m    *Metrics
}

// InstrumentStore wraps s so its traffic shows up in m.
func InstrumentStore(s objectstore.Store, m *Metrics) objectstore.Store {
	return &instrumentedStore{next: s, m: m}
}

func (s *instrumentedStore) EnsureBucket(ctx context.Context, bucket string) error {
	err := s.next.EnsureBucket(ctx, bucket)
	s.m.objectOp("ensure_bucket", err)
	return err
}

func (s *instrumentedStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	ok, err := s.next.BucketExists(ctx, bucket)
	s.m.objectOp("bucket_exists", err)
	return ok, err
}

func (s *instrumentedStore) PutObject(ctx context.Context, bucket, key string, data io.Reader, length int64, contentType string) error {
	cr := &countingReader{r: data}
	err := s.next.PutObject(ctx, bucket, key, cr, length, contentType)
	s.m.objectOp("put", err)
	if err == nil {
		s.m.bytesIn(cr.n)
	}
	return err
}

func (s *instrumentedStore) GetObject(ctx context.Context, bucket, key string) (*bytes.Reader, error) {
	r, err := s.next.GetObject(ctx, bucket, key)
	s.m.objectOp("get", err)
	if err == nil {
		s.m.bytesOut(r.Size())
	}
	return r, err
}

func (s *instrumentedStore) Stat(ctx context.Context, bucket, key string) (objectstore.ObjectInfo, error) {
	info, err := s.next.Stat(ctx, bucket, key)
	s.m.objectOp("stat", err)
	return info, err
}

func (s *instrumentedStore) ListObjects(ctx context.Context, bucket, prefix string) ([]objectstore.ObjectInfo, error) {
	objs, err := s.next.ListObjects(ctx, bucket, prefix)
	s.m.objectOp("list", err)
	return objs, err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
