package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"

	"github.com/angelmondragon/walletcore-backend/pkg/config"
	"github.com/angelmondragon/walletcore-backend/pkg/logger"
)

const (
	pingTimeout   = 5 * time.Second
	uploadTimeout = 2 * time.Minute
)

var (
	errBucketRequired       = errors.New("gcs archive bucket is required")
	errClientNotInitialized = errors.New("gcs client not initialized")
)

// Client writes cold-storage objects into the archive bucket.
type Client struct {
	svc    *storage.Service
	bucket string
	prefix string
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// NewClient builds a GCS JSON API client and verifies the archive bucket is reachable.
func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger, extra ...option.ClientOption) (*Client, error) {
	bucket := strings.TrimSpace(cfg.ArchiveBucket)
	if bucket == "" {
		return nil, errBucketRequired
	}

	opts := gcp.ClientOptions(append([]option.ClientOption{option.WithScopes(storage.DevstorageReadWriteScope)}, extra...)...)
	svc, err := storage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gcs service: %w", err)
	}

	client := &Client{svc: svc, bucket: bucket, prefix: strings.Trim(strings.TrimSpace(cfg.ArchivePrefix), "/")}
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}

	if logg != nil {
		logg.Info(ctx, "gcs client initialized")
	}
	return client, nil
}

// Bucket returns the archive bucket name.
func (c *Client) Bucket() string {
	if c == nil {
		return ""
	}
	return c.bucket
}

// ObjectName joins the configured prefix with the given path parts.
func (c *Client) ObjectName(parts ...string) string {
	all := make([]string, 0, len(parts)+1)
	if c != nil && c.prefix != "" {
		all = append(all, c.prefix)
	}
	for _, part := range parts {
		if trimmed := strings.Trim(part, "/"); trimmed != "" {
			all = append(all, trimmed)
		}
	}
	return path.Join(all...)
}

// UploadObject writes body to the archive bucket under name.
func (c *Client) UploadObject(ctx context.Context, name, contentType string, body io.Reader) error {
	if c == nil || c.svc == nil {
		return errClientNotInitialized
	}
	if strings.TrimSpace(name) == "" {
		return errors.New("object name is required")
	}
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	obj := &storage.Object{Name: name, ContentType: contentType}
	if _, err := c.svc.Objects.Insert(c.bucket, obj).Media(body).Context(ctx).Do(); err != nil {
		return fmt.Errorf("upload %s/%s: %w", c.bucket, name, err)
	}
	return nil
}

// Ping checks that the archive bucket exists and is readable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.svc == nil {
		return errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if _, err := c.svc.Buckets.Get(c.bucket).Context(ctx).Do(); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return fmt.Errorf("bucket %q does not exist", c.bucket)
		}
		return fmt.Errorf("checking bucket %q: %w", c.bucket, err)
	}
	return nil
}

func (c *Client) Close() error {
	return nil
}
