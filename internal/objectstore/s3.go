package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/xtxerr/coinlake/internal/errors"
	"github.com/xtxerr/coinlake/internal/logging"
)

// S3Options configures an S3Store. Secure is fixed for the store's lifetime.
type S3Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Secure    bool

	// HTTPClient overrides the SDK's client. Tests use it.
	HTTPClient *http.Client
}

// S3Store stores objects in an S3-compatible service using path-style
// addressing.
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	endpoint string
	logger   *slog.Logger
}

// NewS3 creates a store for the given endpoint. No request is made.
func NewS3(ctx context.Context, opts S3Options, logger *slog.Logger) (*S3Store, error) {
	if opts.Endpoint == "" {
		return nil, errors.NewMissingField("object_store.endpoint")
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		),
	}
	if opts.HTTPClient != nil {
		loadOpts = append(loadOpts, awsconfig.WithHTTPClient(opts.HTTPClient))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := opts.Endpoint
	if !strings.Contains(endpoint, "://") {
		scheme := "http"
		if opts.Secure {
			scheme = "https"
		}
		endpoint = scheme + "://" + endpoint
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
		// MinIO and most fakes predate the SDK's default trailing checksums.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		endpoint: endpoint,
		logger:   logging.OrComponent(logger, "objectstore").With("backend", "s3"),
	}, nil
}

// EnsureBucket creates the bucket unless it already exists.
func (s *S3Store) EnsureBucket(ctx context.Context, bucket string) error {
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

	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		if isAlreadyOwned(err) {
			s.logger.Info("bucket already exists", "bucket", bucket)
			return nil
		}
		s.logger.Error("create bucket failed", "bucket", bucket, "error", err)
		return errors.NewTransport("create bucket "+bucket, err)
	}

	s.logger.Info("bucket created", "bucket", bucket)
	return nil
}

// BucketExists issues a HEAD request for the bucket.
func (s *S3Store) BucketExists(ctx context.Context, bucket string) (bool, error) {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, errors.NewTransport("head bucket "+bucket, err)
}

func (s *S3Store) requireBucket(ctx context.Context, bucket string) error {
	exists, err := s.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if !exists {
		return errors.NewBucketNotFound(bucket)
	}
	return nil
}

// PutObject uploads the object after confirming the bucket exists.
func (s *S3Store) PutObject(ctx context.Context, bucket, key string, data io.Reader, length int64, contentType string) error {
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

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentTypeOrDefault(contentType)),
	})
	if err != nil {
		log.Error("put object failed", "error", err)
		if isNoSuchBucket(err) {
			return errors.NewBucketNotFound(bucket)
		}
		return errors.NewTransport("put object "+bucket+"/"+key, err)
	}

	log.Info("object stored", "bytes", len(body))
	return nil
}

// GetObject downloads the whole object into memory.
func (s *S3Store) GetObject(ctx context.Context, bucket, key string) (*bytes.Reader, error) {
	if err := validateTarget(bucket, key); err != nil {
		return nil, err
	}
	log := s.logger.With("bucket", bucket, "key", key)
	log.Debug("getting object")

	if err := s.requireBucket(ctx, bucket); err != nil {
		log.Error("get object failed", "error", err)
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		log.Error("get object failed", "error", err)
		switch {
		case isNoSuchBucket(err):
			return nil, errors.NewBucketNotFound(bucket)
		case isNotFound(err):
			return nil, errors.NewObjectNotFound(bucket, key)
		}
		return nil, errors.NewTransport("get object "+bucket+"/"+key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		log.Error("get object failed", "error", err)
		return nil, errors.NewTransport("read object "+bucket+"/"+key, err)
	}

	log.Info("object fetched", "bytes", len(data))
	return bytes.NewReader(data), nil
}

// Stat returns the object's size, content type and modification time.
func (s *S3Store) Stat(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	if err := validateTarget(bucket, key); err != nil {
		return ObjectInfo{}, err
	}
	if err := s.requireBucket(ctx, bucket); err != nil {
		return ObjectInfo{}, err
	}

	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return ObjectInfo{}, errors.NewObjectNotFound(bucket, key)
		}
		return ObjectInfo{}, errors.NewTransport("head object "+bucket+"/"+key, err)
	}

	return ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ContentType:  aws.ToString(out.ContentType),
		LastModified: aws.ToTime(out.LastModified),
	}, nil
}

// ListObjects pages through ListObjectsV2.
func (s *S3Store) ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	if err := validateTarget(bucket, ""); err != nil {
		return nil, err
	}
	log := s.logger.With("bucket", bucket, "prefix", prefix)
	log.Debug("listing objects")

	if err := s.requireBucket(ctx, bucket); err != nil {
		return nil, err
	}

	input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var objects []ObjectInfo
	p := s3.NewListObjectsV2Paginator(s.client, input)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			if isNoSuchBucket(err) {
				return nil, errors.NewBucketNotFound(bucket)
			}
			return nil, errors.NewTransport("list objects "+bucket, err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, ObjectInfo{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	log.Info("objects listed", "count", len(objects))
	return objects, nil
}

// =============================================================================
// Error classification
// =============================================================================

func apiCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

func isNoSuchBucket(err error) bool {
	var nsb *types.NoSuchBucket
	return errors.As(err, &nsb) || apiCode(err) == "NoSuchBucket"
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	if errors.As(err, &nf) || errors.As(err, &nsk) || isNoSuchBucket(err) {
		return true
	}
	switch apiCode(err) {
	case "NotFound", "NoSuchKey":
		return true
	}
	var respErr *awshttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}

func isAlreadyOwned(err error) bool {
	var owned *types.BucketAlreadyOwnedByYou
	var exists *types.BucketAlreadyExists
	if errors.As(err, &owned) || errors.As(err, &exists) {
		return true
	}
	switch apiCode(err) {
	case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
		return true
	}
	return false
}
