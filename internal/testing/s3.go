package testing

import (
	"net/http/httptest"
	"testing"

	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
)

// S3Server is an in-memory S3 endpoint for backend tests.
type S3Server struct {
	URL     string
	Backend *s3mem.Backend
}

// NewS3Server starts an in-memory S3 server that is closed with the test.
func NewS3Server(t *testing.T) *S3Server {
	t.Helper()

	backend := s3mem.New()
	faker := gofakes3.New(backend)
	ts := httptest.NewServer(faker.Server())
	t.Cleanup(ts.Close)

	return &S3Server{URL: ts.URL, Backend: backend}
}

// HasBucket reports whether the server holds the bucket.
func (s *S3Server) HasBucket(t *testing.T, bucket string) bool {
	t.Helper()
	buckets, err := s.Backend.ListBuckets()
	if err != nil {
		t.Fatalf("list buckets: %v", err)
	}
	for _, b := range buckets {
		if b.Name == bucket {
			return true
		}
	}
	return false
}

// BucketCount returns how many buckets exist.
func (s *S3Server) BucketCount(t *testing.T) int {
	t.Helper()
	buckets, err := s.Backend.ListBuckets()
	if err != nil {
		t.Fatalf("list buckets: %v", err)
	}
	return len(buckets)
}
