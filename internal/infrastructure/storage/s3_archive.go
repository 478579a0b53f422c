// Package storage archives sync attempt records to S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/erp/catalogsync/internal/domain/integration"
	"github.com/erp/catalogsync/internal/infrastructure/broker"
	infraconfig "github.com/erp/catalogsync/internal/infrastructure/config"
	"go.uber.org/zap"
)

// ContentTypeJSONLines is the content type of archive objects
const ContentTypeJSONLines = "application/x-ndjson"

// Ensure S3AttemptArchive implements AttemptArchiver
var _ integration.AttemptArchiver = (*S3AttemptArchive)(nil)

// S3AttemptArchive writes attempt batches as JSON lines objects. It works with
// any S3-compatible server (AWS S3, MinIO, RustFS).
type S3AttemptArchive struct {
	client *s3.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// S3AttemptArchiveOption is a functional option for configuring S3AttemptArchive
type S3AttemptArchiveOption func(*S3AttemptArchive)

// WithLogger sets a custom logger
func WithLogger(logger *zap.Logger) S3AttemptArchiveOption {
	return func(s *S3AttemptArchive) {
		s.logger = logger
	}
}

// NewS3AttemptArchive creates an archive from configuration
func NewS3AttemptArchive(cfg *infraconfig.ArchiveConfig, opts ...S3AttemptArchiveOption) (*S3AttemptArchive, error) {
	if cfg == nil {
		return nil, errors.New("archive configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("archive bucket is required")
	}
	if cfg.AccessKey == "" {
		return nil, errors.New("archive access key is required")
	}
	if cfg.SecretKey == "" {
		return nil, errors.New("archive secret key is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "http://localhost:9000"
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if cfg.UseSSL {
			endpoint = "https://" + endpoint
		} else {
			endpoint = "http://" + endpoint
		}
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid archive endpoint: %w", err)
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		o.BaseEndpoint = aws.String(endpoint)
		// Most S3-compatible servers reject the streaming checksum trailers
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	archive := &S3AttemptArchive{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(archive)
	}
	return archive, nil
}

// EnsureBucket creates the bucket if it doesn't exist. Call it at startup.
func (s *S3AttemptArchive) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	s.logger.Info("Creating archive bucket", zap.String("bucket", s.bucket))
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Archive uploads one batch as a single object. The key derives from the
// first attempt, so archiving the same batch again overwrites it.
func (s *S3AttemptArchive) Archive(ctx context.Context, attempts []*integration.SyncAttempt) error {
	if len(attempts) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, a := range attempts {
		if err := enc.Encode(broker.NewAttemptMessage(a)); err != nil {
			return fmt.Errorf("encode attempt %s: %w", a.ID, err)
		}
	}

	key := s.ObjectKey(attempts[0])
	if err := s.Upload(ctx, key, buf.Bytes(), ContentTypeJSONLines); err != nil {
		return err
	}
	s.logger.Debug("Archived sync attempts",
		zap.String("key", key),
		zap.Int("count", len(attempts)),
	)
	return nil
}

// ObjectKey returns <prefix>/<yyyy-mm-dd>/<attempt id>.jsonl for the batch
// starting with first
func (s *S3AttemptArchive) ObjectKey(first *integration.SyncAttempt) string {
	day := first.CreatedAt.UTC().Format("2006-01-02")
	return path.Join(s.prefix, day, first.ID.String()+".jsonl")
}

// Upload puts data under storageKey
func (s *S3AttemptArchive) Upload(ctx context.Context, storageKey string, data []byte, contentType string) error {
	if storageKey == "" {
		return errors.New("storage key is required")
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(storageKey),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}
	return nil
}

// GetBucket returns the bucket name
func (s *S3AttemptArchive) GetBucket() string {
	return s.bucket
}
