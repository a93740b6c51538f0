package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dunamismax/photoflow/internal/config"
)

// DefaultMaxObjectBytes bounds ReadObject when Config.MaxObjectBytes is unset.
const DefaultMaxObjectBytes = 64 << 20

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrObjectTooLarge = errors.New("object exceeds size limit")
)

// Config holds MinIO connection settings.
type Config struct {
	Endpoint       string
	Access         string
	Secret         string
	Bucket         string
	UseSSL         bool
	MaxObjectBytes int64
}

type Client struct {
	minio    *minio.Client
	bucket   string
	maxBytes int64
}

// FromConfig maps the process configuration onto a client Config.
func FromConfig(cfg config.StorageConfig) Config {
	return Config{
		Endpoint:       cfg.Endpoint,
		Access:         cfg.AccessKey,
		Secret:         cfg.SecretKey,
		Bucket:         cfg.Bucket,
		UseSSL:         cfg.UseSSL,
		MaxObjectBytes: cfg.MaxObjectBytes,
	}
}

func NewClient(cfg Config) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Access, cfg.Secret, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	maxBytes := cfg.MaxObjectBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxObjectBytes
	}

	return &Client{
		minio:    mc,
		bucket:   cfg.Bucket,
		maxBytes: maxBytes,
	}, nil
}

func (c *Client) Bucket() string {
	return c.bucket
}

func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.minio.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket existence: %w", err)
	}
	if exists {
		return nil
	}

	if err := c.minio.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		exists, checkErr := c.minio.BucketExists(ctx, c.bucket)
		if checkErr == nil && exists {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", c.bucket, err)
	}

	return nil
}

// PresignedPutURL lets a client upload a job source directly to the bucket.
func (c *Client) PresignedPutURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	u, err := c.minio.PresignedPutObject(ctx, c.bucket, objectKey, expiry)
	if err != nil {
		return "", fmt.Errorf("presign put object: %w", err)
	}
	return u.String(), nil
}

func (c *Client) ObjectExists(ctx context.Context, objectKey string) (bool, error) {
	_, err := c.minio.StatObject(ctx, c.bucket, objectKey, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}

	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat object %s: %w", objectKey, err)
}

// ReadObject downloads a job source. Missing objects wrap ErrObjectNotFound
// and objects over the configured limit wrap ErrObjectTooLarge, so callers
// can tell them apart from transient failures.
func (c *Client) ReadObject(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := c.minio.GetObject(ctx, c.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, c.readError(objectKey, err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return nil, c.readError(objectKey, err)
	}
	if info.Size > c.maxBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes (limit %d)", ErrObjectTooLarge, objectKey, info.Size, c.maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(obj, c.maxBytes+1))
	if err != nil {
		return nil, c.readError(objectKey, err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, fmt.Errorf("%w: %s (limit %d)", ErrObjectTooLarge, objectKey, c.maxBytes)
	}
	return data, nil
}

func (c *Client) readError(objectKey string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%w: %s/%s", ErrObjectNotFound, c.bucket, objectKey)
	}
	return fmt.Errorf("read object %s: %w", objectKey, err)
}

func isNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchObject", "NoSuchBucket":
		return true
	}
	return false
}

// WriteObject uploads data. metadata is stored as user metadata on the
// object and may be nil.
func (c *Client) WriteObject(ctx context.Context, objectKey string, data []byte, contentType string, metadata map[string]string) error {
	reader := bytes.NewReader(data)
	_, err := c.minio.PutObject(
		ctx,
		c.bucket,
		objectKey,
		reader,
		int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType, UserMetadata: metadata},
	)
	if err != nil {
		return fmt.Errorf("put object %s: %w", objectKey, err)
	}
	return nil
}
