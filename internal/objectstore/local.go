package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"

	"github.com/xtxerr/coinlake/internal/errors"
	"github.com/xtxerr/coinlake/internal/logging"
)

// Reserved directories under the root. Bucket names cannot start with a
// dot, so these never collide with a bucket.
const (
	localMetaDir = ".meta"
	localTmpDir  = ".tmp"
)

// LocalStore keeps each bucket as a directory under root. Objects are
// written to a temporary file and renamed into place, so a reader sees
// either the old or the new object.
type LocalStore struct {
	root   string
	logger *slog.Logger
}

type localMeta struct {
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Modified    time.Time `json:"modified"`
}

// NewLocal creates the root directory if needed.
func NewLocal(root string, logger *slog.Logger) (*LocalStore, error) {
	if root == "" {
		return nil, errors.NewMissingField("object_store.local_root")
	}
	for _, dir := range []string{root, filepath.Join(root, localMetaDir), filepath.Join(root, localTmpDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return &LocalStore{
		root:   root,
		logger: logging.OrComponent(logger, "objectstore").With("backend", "local"),
	}, nil
}

func (s *LocalStore) bucketDir(bucket string) string {
	return filepath.Join(s.root, bucket)
}

func (s *LocalStore) objectPath(bucket, key string) string {
	return filepath.Join(s.root, bucket, filepath.FromSlash(key))
}

func (s *LocalStore) metaPath(bucket, key string) string {
	return filepath.Join(s.root, localMetaDir, bucket, filepath.FromSlash(key)+".json")
}

// EnsureBucket creates the bucket directory unless it exists.
func (s *LocalStore) EnsureBucket(ctx context.Context, bucket string) error {
	if err := validateTarget(bucket, ""); err != nil {
		return err
	}
	s.logger.Debug("ensuring bucket", "bucket", bucket)

	exists, err := s.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		s.logger.Info("bucket already exists", "bucket", bucket)
		return nil
	}

	if err := os.Mkdir(s.bucketDir(bucket), 0o755); err != nil && !os.IsExist(err) {
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	s.logger.Info("bucket created", "bucket", bucket)
	return nil
}

// BucketExists reports whether the bucket directory exists.
func (s *LocalStore) BucketExists(_ context.Context, bucket string) (bool, error) {
	info, err := os.Stat(s.bucketDir(bucket))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat bucket %s: %w", bucket, err)
	}
	return info.IsDir(), nil
}

func (s *LocalStore) requireBucket(ctx context.Context, bucket string) error {
	exists, err := s.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if !exists {
		return errors.NewBucketNotFound(bucket)
	}
	return nil
}

// PutObject writes the object atomically.
func (s *LocalStore) PutObject(ctx context.Context, bucket, key string, data io.Reader, length int64, contentType string) error {
	if err := validateTarget(bucket, key); err != nil {
		return err
	}
	log := s.logger.With("bucket", bucket, "key", key)
	log.Debug("putting object", "length", length)

	if err := s.requireBucket(ctx, bucket); err != nil {
		log.Error("put object failed", "error", err)
		return err
	}

	body, err := readBody(data, length)
	if err != nil {
		log.Error("put object failed", "error", err)
		return err
	}

	dst := s.objectPath(bucket, key)
	if err := writeAtomic(filepath.Join(s.root, localTmpDir), dst, body); err != nil {
		log.Error("put object failed", "error", err)
		return fmt.Errorf("put object %s/%s: %w", bucket, key, err)
	}

	meta, err := json.Marshal(localMeta{
		ContentType: contentTypeOrDefault(contentType),
		Size:        int64(len(body)),
		Modified:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := writeAtomic(filepath.Join(s.root, localTmpDir), s.metaPath(bucket, key), meta); err != nil {
		return fmt.Errorf("put object metadata %s/%s: %w", bucket, key, err)
	}

	log.Info("object stored", "bytes", len(body))
	return nil
}

// GetObject reads the whole object.
func (s *LocalStore) GetObject(ctx context.Context, bucket, key string) (*bytes.Reader, error) {
	if err := validateTarget(bucket, key); err != nil {
		return nil, err
	}
	log := s.logger.With("bucket", bucket, "key", key)
	log.Debug("getting object")

	if err := s.requireBucket(ctx, bucket); err != nil {
		log.Error("get object failed", "error", err)
		return nil, err
	}

	data, err := os.ReadFile(s.objectPath(bucket, key))
	if err != nil {
		log.Error("get object failed", "error", err)
		if os.IsNotExist(err) || errors.Is(err, syscall.EISDIR) {
			return nil, errors.NewObjectNotFound(bucket, key)
		}
		return nil, fmt.Errorf("get object %s/%s: %w", bucket, key, err)
	}

	log.Info("object fetched", "bytes", len(data))
	return bytes.NewReader(data), nil
}

// Stat returns object metadata from the sidecar file.
func (s *LocalStore) Stat(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	if err := validateTarget(bucket, key); err != nil {
		return ObjectInfo{}, err
	}
	if err := s.requireBucket(ctx, bucket); err != nil {
		return ObjectInfo{}, err
	}

	fi, err := os.Stat(s.objectPath(bucket, key))
	if err != nil || fi.IsDir() {
		if err == nil || os.IsNotExist(err) {
			return ObjectInfo{}, errors.NewObjectNotFound(bucket, key)
		}
		return ObjectInfo{}, fmt.Errorf("stat object %s/%s: %w", bucket, key, err)
	}

	info := ObjectInfo{
		Key:          key,
		Size:         fi.Size(),
		ContentType:  DefaultContentType,
		LastModified: fi.ModTime().UTC(),
	}
	if raw, err := os.ReadFile(s.metaPath(bucket, key)); err == nil {
		var m localMeta
		if err := json.Unmarshal(raw, &m); err == nil && m.ContentType != "" {
			info.ContentType = m.ContentType
		}
	}
	return info, nil
}

// ListObjects walks the bucket directory.
func (s *LocalStore) ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	if err := validateTarget(bucket, ""); err != nil {
		return nil, err
	}
	log := s.logger.With("bucket", bucket, "prefix", prefix)
	log.Debug("listing objects")

	if err := s.requireBucket(ctx, bucket); err != nil {
		return nil, err
	}

	base := s.bucketDir(bucket)
	var objects []ObjectInfo
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, ObjectInfo{
			Key:          key,
			Size:         fi.Size(),
			LastModified: fi.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list objects %s: %w", bucket, err)
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	log.Info("objects listed", "count", len(objects))
	return objects, nil
}

// writeAtomic writes data to a temp file in tmpDir, syncs it and renames
// it onto dst.
func writeAtomic(tmpDir, dst string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(tmpDir, "put-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
